package main

import (
	"database/sql"
	"log"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"

	"github.com/telcoops/casedesk/internal/config"
	"github.com/telcoops/casedesk/router"
)

func main() {
	if err := config.LoadConfig("."); err != nil {
		log.Fatalf("ERROR: failed to load config: %v", err)
	}

	pg, err := sql.Open("postgres", config.App.DatabaseURL)
	if err != nil {
		log.Fatalf("ERROR: failed to open postgres: %v", err)
	}
	defer pg.Close()
	if err := pg.Ping(); err != nil {
		log.Fatalf("ERROR: failed to reach postgres: %v", err)
	}

	redisOpts, err := redis.ParseURL(config.App.RedisURL)
	if err != nil {
		log.Fatalf("ERROR: invalid redis url: %v", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	r := router.NewGinRouter(pg, redisClient)

	addr := ":" + config.App.Port
	log.Printf("INFO: casedesk api listening on %s", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("ERROR: server exited: %v", err)
	}
}

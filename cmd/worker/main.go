package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"

	"github.com/telcoops/casedesk/internal/config"
	"github.com/telcoops/casedesk/workers"
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

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		workers.NewNotificationWorker(pg, redisClient).Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		workers.NewSLAWorker(pg).Run(ctx)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("INFO: shutting down workers")
	cancel()
	wg.Wait()
	log.Println("INFO: workers stopped")
}

package main

import (
	"database/sql"
	"log"
	"os"
	"path/filepath"
	"sort"

	_ "github.com/lib/pq"

	"github.com/telcoops/casedesk/internal/config"
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

	dir := "migrations"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		log.Fatalf("ERROR: failed to list migrations: %v", err)
	}
	sort.Strings(files)

	for _, file := range files {
		contents, err := os.ReadFile(file)
		if err != nil {
			log.Fatalf("ERROR: failed to read %s: %v", file, err)
		}
		log.Printf("INFO: applying %s", file)
		if _, err := pg.Exec(string(contents)); err != nil {
			log.Fatalf("ERROR: migration %s failed: %v", file, err)
		}
	}

	log.Println("INFO: migrations complete")
}

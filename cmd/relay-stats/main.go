package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/celery8911/InnerLedger/internal/config"
)

func main() {
	configPath := flag.String("config", "", "config file (default config.yaml)")
	hours := flag.Int("hours", 24, "window in hours")
	top := flag.Int("top", 10, "number of senders to list")
	flag.Parse()

	fmt.Println("🔍 Relay transaction statistics")

	if err := config.LoadConfig(*configPath); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	dsn := config.AppConfig.Database.DSN
	if dsn == "" {
		log.Fatal("database.dsn / DATABASE_DSN is not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	since := time.Now().Add(-time.Duration(*hours) * time.Hour)
	report, err := collect(db, since, *top)
	if err != nil {
		log.Fatalf("Failed to query relay_transactions: %v", err)
	}
	report.render(os.Stdout, *hours)
}

package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/celery8911/InnerLedger/internal/config"
	"github.com/celery8911/InnerLedger/internal/db"
)

// column an address or hash column and the width it must have
type column struct {
	table, name string
	size        int64
}

var expectedColumns = []column{
	{"relay_transactions", "sender", 42},
	{"relay_transactions", "target", 42},
	{"relay_transactions", "tx_hash", 66},
	{"relay_idempotency_keys", "sender", 42},
	{"relay_idempotency_keys", "tx_hash", 66},
}

func main() {
	configPath := flag.String("config", "", "config file (default config.yaml)")
	fix := flag.Bool("fix", false, "widen columns that are too small")
	flag.Parse()

	fmt.Println("🔍 Verifying database connection and column sizes...")
	fmt.Println(strings.Repeat("=", 60))

	if err := config.LoadConfig(*configPath); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// InitDB also runs the migrations
	gdb, err := db.InitDB(config.AppConfig.Database, logrus.StandardLogger())
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	if gdb == nil {
		log.Fatal("database.dsn / DATABASE_DSN is not set")
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		log.Fatalf("Failed to get database connection: %v", err)
	}
	defer sqlDB.Close()

	var dbName string
	if err := sqlDB.QueryRow("SELECT current_database()").Scan(&dbName); err != nil {
		log.Fatalf("Failed to get database name: %v", err)
	}
	fmt.Printf("📋 Connected to database: %s\n", dbName)

	ok := true
	for _, col := range expectedColumns {
		var size sql.NullInt64
		err := sqlDB.QueryRow(`
			SELECT character_maximum_length
			FROM information_schema.columns
			WHERE table_schema = 'public'
			AND table_name = $1
			AND column_name = $2
		`, col.table, col.name).Scan(&size)
		switch {
		case err == sql.ErrNoRows || (err == nil && !size.Valid):
			fmt.Printf("❌ %s.%s does not exist\n", col.table, col.name)
			ok = false
			continue
		case err != nil:
			log.Fatalf("Failed to query column size: %v", err)
		}

		if size.Int64 >= col.size {
			fmt.Printf("✅ %s.%s: VARCHAR(%d)\n", col.table, col.name, size.Int64)
			continue
		}
		fmt.Printf("❌ %s.%s: VARCHAR(%d), need VARCHAR(%d)\n", col.table, col.name, size.Int64, col.size)
		if !*fix {
			ok = false
			continue
		}
		stmt := fmt.Sprintf(`ALTER TABLE %s ALTER COLUMN %s TYPE VARCHAR(%d)`, col.table, col.name, col.size)
		if _, err := sqlDB.Exec(stmt); err != nil {
			log.Fatalf("Failed to fix column size: %v", err)
		}
		fmt.Printf("🔧 %s.%s widened to VARCHAR(%d)\n", col.table, col.name, col.size)
	}

	var rows int64
	if err := sqlDB.QueryRow(`SELECT COUNT(*) FROM relay_transactions`).Scan(&rows); err == nil {
		fmt.Printf("📊 relay_transactions rows: %d\n", rows)
	}

	if !ok {
		fmt.Println("\n⚠️  Schema problems found (run with -fix to widen columns)")
		return
	}
	fmt.Println("\n✅ Database schema looks good")
}

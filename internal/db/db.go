// internal/db/db.go
package db

import (
	"database/sql"
	"log"
	"time"

	_ "github.com/lib/pq"

	"github.com/allocatr/email-scheduler-backend/internal/config"
)

var DB *sql.DB

// Init opens the record store connection and verifies it. The worker and the
// API server both call this on startup; either one is useless without it, so
// failure is fatal.
func Init(cfg *config.Config) {
	var err error
	DB, err = sql.Open("postgres", cfg.DatabaseURL())
	if err != nil {
		log.Fatalf("failed to connect to DB: %v", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(5)
	DB.SetConnMaxLifetime(5 * time.Minute)

	if err = DB.Ping(); err != nil {
		log.Fatalf("failed to ping DB: %v", err)
	}

	log.Println("✅ Connected to database")
}

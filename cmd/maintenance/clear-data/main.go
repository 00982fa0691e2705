package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/boxinggym/walkin-backend/internal/config"
	"github.com/boxinggym/walkin-backend/internal/database"
	"github.com/joho/godotenv"
)

// tables cleared, children first. classes are kept unless -all is given.
var bookingTables = []string{
	"payment_events",
	"payments",
	"bookings",
	"audit_logs",
	"members",
}

func main() {
	var (
		dbURLFlag string
		all       bool
	)
	flag.StringVar(&dbURLFlag, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	flag.BoolVar(&all, "all", false, "also clear the class timetable")
	flag.Parse()

	// Try loading .env from current working directory (optional)
	_ = godotenv.Load()

	if os.Getenv("ENVIRONMENT") == "production" {
		log.Fatal("refusing to clear data with ENVIRONMENT=production")
	}

	dbURL := dbURLFlag
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set and -database-url was not provided")
	}

	// Build minimal database config without loading full app config
	db, err := database.NewConnection(config.DatabaseConfig{
		URL:                dbURL,
		MaxConnections:     5,
		MaxIdleConnections: 2,
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	tables := bookingTables
	if all {
		tables = append(tables, "classes")
	}

	fmt.Println("Connected to database. Truncating tables...")
	query := "TRUNCATE TABLE "
	for i, t := range tables {
		if i > 0 {
			query += ", "
		}
		query += t
	}
	query += " RESTART IDENTITY CASCADE"

	if _, err := db.Exec(query); err != nil {
		log.Fatalf("failed to truncate tables: %v", err)
	}

	fmt.Println("Post-clear row counts:")
	for _, t := range tables {
		var count int
		if err := db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", t)).Scan(&count); err != nil {
			fmt.Printf("  %s: error: %v\n", t, err)
			continue
		}
		fmt.Printf("  %s: %d\n", t, count)
	}
}

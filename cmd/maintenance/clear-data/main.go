package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/tourbook/booking-backend/internal/config"
	"github.com/tourbook/booking-backend/internal/database"
)

func main() {
	var (
		dbURLFlag      string
		includeCatalog bool
	)
	flag.StringVar(&dbURLFlag, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	flag.BoolVar(&includeCatalog, "include-catalog", false, "also clear tours and users")
	flag.Parse()

	// Optional .env in the working directory
	_ = godotenv.Load()

	dbURL := dbURLFlag
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set and -database-url was not provided")
	}

	db, err := database.NewConnection(config.DatabaseConfig{
		URL:                dbURL,
		MaxConnections:     5,
		MaxIdleConnections: 2,
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	tables := []string{"bookings", "booking_audit_logs"}
	if includeCatalog {
		tables = append(tables, "tours", "users")
	}

	fmt.Printf("Connected to database. Truncating %v...\n", tables)

	truncateSQL := "TRUNCATE TABLE "
	for i, t := range tables {
		if i > 0 {
			truncateSQL += ", "
		}
		truncateSQL += t
	}
	truncateSQL += " RESTART IDENTITY CASCADE"

	if _, err := db.Exec(truncateSQL); err != nil {
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

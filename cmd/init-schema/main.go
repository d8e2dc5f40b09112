package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"credit_audit/internal/config"
	"credit_audit/internal/storage"
)

func main() {
	fmt.Println("Credit Validation Audit - Schema Initialization")

	// Load configuration (primarily for database connection)
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Connecting to database...")
	db, err := storage.NewDB(storage.DBConfig{
		DSN:             cfg.Database.URL,
		MaxOpenConns:    2, // Minimal pool for init tool
		MaxIdleConns:    1,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,
		LatestCacheSize: 10,
		LatestCacheTTL:  time.Minute,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	fmt.Println("Database connection established")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Every statement in the DDL is IF NOT EXISTS, so re-running this
	// tool against an initialized database is a no-op.
	fmt.Println("Applying schema...")
	if err := db.EnsureSchema(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to apply schema: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Schema is up to date")
	fmt.Println("Table: credit_validation_audit (append-only)")
	fmt.Println("Done")
}

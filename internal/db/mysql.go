package db

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/go-sql-driver/mysql"
)

// Connect opens a pooled connection to the exchange's MySQL database using
// the DATABASE_URL environment variable, a standard go-sql-driver DSN
// (user:password@tcp(host:port)/database?param=value).
func Connect() (*sql.DB, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	database, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err := database.Ping(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	database.SetMaxOpenConns(25)
	database.SetMaxIdleConns(10)

	return database, nil
}

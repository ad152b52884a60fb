package db

import (
	"database/sql"
	"fmt"
)

// statements creates the exchange's relational tables: users, instruments,
// balances, orders, transactions. Run once at startup; safe to re-run
// thanks to IF NOT EXISTS.
var statements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id VARCHAR(36) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		role VARCHAR(16) NOT NULL,
		api_key VARCHAR(64) NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS instruments (
		ticker VARCHAR(10) PRIMARY KEY,
		name VARCHAR(255) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS balances (
		user_id VARCHAR(36) NOT NULL,
		ticker VARCHAR(10) NOT NULL,
		amount BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (user_id, ticker),
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
		FOREIGN KEY (ticker) REFERENCES instruments(ticker) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id VARCHAR(36) PRIMARY KEY,
		sequence BIGINT UNSIGNED NOT NULL AUTO_INCREMENT UNIQUE,
		user_id VARCHAR(36) NOT NULL,
		ticker VARCHAR(10) NOT NULL,
		direction VARCHAR(4) NOT NULL,
		qty BIGINT NOT NULL,
		price BIGINT NULL,
		status VARCHAR(24) NOT NULL,
		filled BIGINT NOT NULL DEFAULT 0,
		timestamp DATETIME(6) NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
		FOREIGN KEY (ticker) REFERENCES instruments(ticker),
		INDEX idx_orders_ticker_status (ticker, status),
		INDEX idx_orders_user (user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id VARCHAR(36) PRIMARY KEY,
		ticker VARCHAR(10) NOT NULL,
		amount BIGINT NOT NULL,
		price BIGINT NOT NULL,
		timestamp DATETIME(6) NOT NULL,
		FOREIGN KEY (ticker) REFERENCES instruments(ticker),
		INDEX idx_transactions_ticker_time (ticker, timestamp)
	)`,
}

// Bootstrap creates the schema if it does not already exist.
func Bootstrap(database *sql.DB) error {
	for _, stmt := range statements {
		if _, err := database.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}

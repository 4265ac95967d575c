package database

import (
	"database/sql"
	"fmt"

	"checkout-svc/config"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

func InitDB(cfg *config.Config, logger *zap.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DBConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Create tables if they don't exist. The UNIQUE constraint on
	// lemon_squeezy_order_id backs the one-row-per-provider-order invariant
	// when concurrent deliveries race past the reconciler's lookup.
	createTablesQuery := `
	CREATE TABLE IF NOT EXISTS products (
		id SERIAL PRIMARY KEY,
		title VARCHAR(255) NOT NULL,
		description TEXT NOT NULL,
		price DECIMAL(10, 2) NOT NULL,
		lemon_variant_id VARCHAR(255) NOT NULL,
		published BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS orders (
		id SERIAL PRIMARY KEY,
		lemon_squeezy_order_id VARCHAR(255) NOT NULL UNIQUE,
		order_identifier VARCHAR(255) NOT NULL DEFAULT '',
		email VARCHAR(255) NOT NULL,
		amount BIGINT NOT NULL,
		status VARCHAR(50) NOT NULL DEFAULT 'paid',
		product_id VARCHAR(255) NOT NULL DEFAULT '',
		raw JSONB,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`

	if _, err := db.Exec(createTablesQuery); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info("Database connection established")
	return db, nil
}

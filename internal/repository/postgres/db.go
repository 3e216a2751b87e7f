package postgres

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"
)

func InitDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migrateDB(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	slog.Info("Database connected and migrated")
	return db, nil
}

func migrateDB(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			items JSONB NOT NULL,
			shipping_address JSONB NOT NULL,
			payment_method TEXT NOT NULL DEFAULT '',
			items_price NUMERIC(12,2) NOT NULL,
			shipping_price NUMERIC(12,2) NOT NULL,
			total_price NUMERIC(12,2) NOT NULL,
			is_paid BOOLEAN NOT NULL DEFAULT FALSE,
			is_delivered BOOLEAN NOT NULL DEFAULT FALSE,
			status TEXT NOT NULL,
			payment_result JSONB NOT NULL DEFAULT '{}',
			gateway_order_id TEXT NOT NULL,
			version INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL,
			paid_at TIMESTAMPTZ,
			delivered_at TIMESTAMPTZ
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_gateway_order_id ON orders (gateway_order_id);
		CREATE INDEX IF NOT EXISTS idx_orders_user_id ON orders (user_id);

		CREATE TABLE IF NOT EXISTS order_events (
			id TEXT PRIMARY KEY,
			order_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			payload JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_order_events_order_id ON order_events (order_id);
	`)
	return err
}

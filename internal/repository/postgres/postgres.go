// Package postgres is the PostgreSQL backend of the product store.
package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository stores tracked products in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewRepository connects to dsn and migrates the schema.
func NewRepository(ctx context.Context, log *slog.Logger, dsn string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}

	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to establish connection to database: %w", err)
	}

	if err = initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("DB schema initialization error: %w", err)
	}

	return &Repository{pool: pool, log: log}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	const migrationQuery = `
	CREATE TABLE IF NOT EXISTS products (
		url TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		currency TEXT NOT NULL DEFAULT '',
		image_url TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		current_price NUMERIC NOT NULL DEFAULT 0,
		original_price NUMERIC NOT NULL DEFAULT 0,
		discount_rate INTEGER NOT NULL DEFAULT 0,
		availability TEXT NOT NULL DEFAULT 'unknown',
		lowest_price NUMERIC NOT NULL DEFAULT 0,
		highest_price NUMERIC NOT NULL DEFAULT 0,
		average_price NUMERIC NOT NULL DEFAULT 0,
		target_price NUMERIC,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS price_history (
		id BIGSERIAL PRIMARY KEY,
		product_url TEXT NOT NULL REFERENCES products(url) ON DELETE CASCADE,
		price NUMERIC NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_price_history_product ON price_history(product_url, id);

	CREATE TABLE IF NOT EXISTS subscribers (
		id BIGSERIAL,
		product_url TEXT NOT NULL REFERENCES products(url) ON DELETE CASCADE,
		email TEXT NOT NULL,
		PRIMARY KEY (product_url, email)
	);

	CREATE TABLE IF NOT EXISTS report_chats (
		chat_id BIGINT PRIMARY KEY,
		subscribed_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	`
	if _, err := pool.Exec(ctx, migrationQuery); err != nil {
		return fmt.Errorf("failed to execute migration query: %w", err)
	}

	return nil
}

// Close releases every pooled connection.
func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

// Pool is a getter for the connection pool.
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

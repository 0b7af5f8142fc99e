package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver
)

// timeLayout is the fixed-width layout of every timestamp column, so that text order is time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Repository represents a data repository that interacts with the database
// and provides logging capabilities. It holds a reference to the database
// and a logger instance for logging operations.
type Repository struct {
	db  *sql.DB
	log *slog.Logger
}

// NewRepository opens (or creates) the sqlite database at storagePath and migrates its schema.
func NewRepository(ctx context.Context, log *slog.Logger, storagePath string) (*Repository, error) {
	// Open (or create if it doesn't exist) the database file.
	dtb, err := sql.Open("sqlite3", fmt.Sprintf("%s?_foreign_keys=on&_busy_timeout=5000&_txlock=immediate", storagePath))
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Check if the connection is actually established.
	if err = dtb.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("unable to establish connection to database: %w", err)
	}

	// Perform the initial schema migration.
	if err = initSchema(ctx, dtb); err != nil {
		return nil, fmt.Errorf("DB schema initialization error: %w", err)
	}

	return &Repository{db: dtb, log: log}, nil
}

// NewForTest wraps an existing connection without running migrations.
func NewForTest(db *sql.DB) *Repository {
	return &Repository{db: db, log: slog.New(slog.DiscardHandler)}
}

// initSchema creates the necessary tables if they don't already exist.
func initSchema(ctx context.Context, dtb *sql.DB) error {
	const migrationQuery = `
	CREATE TABLE IF NOT EXISTS products (
		url TEXT PRIMARY KEY NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		currency TEXT NOT NULL DEFAULT '',
		image_url TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		current_price TEXT NOT NULL DEFAULT '0',
		original_price TEXT NOT NULL DEFAULT '0',
		discount_rate INTEGER NOT NULL DEFAULT 0,
		availability TEXT NOT NULL DEFAULT 'unknown',
		lowest_price TEXT NOT NULL DEFAULT '0',
		highest_price TEXT NOT NULL DEFAULT '0',
		average_price TEXT NOT NULL DEFAULT '0',
		target_price TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS price_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		product_url TEXT NOT NULL REFERENCES products(url) ON DELETE CASCADE,
		price TEXT NOT NULL,
		recorded_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_price_history_product ON price_history(product_url, id);

	CREATE TABLE IF NOT EXISTS subscribers (
		product_url TEXT NOT NULL REFERENCES products(url) ON DELETE CASCADE,
		email TEXT NOT NULL,
		PRIMARY KEY (product_url, email)
	);

	CREATE TABLE IF NOT EXISTS report_chats (
		chat_id INTEGER PRIMARY KEY NOT NULL,
		subscribed_at TEXT NOT NULL
	);
	`
	_, err := dtb.ExecContext(ctx, migrationQuery)
	if err != nil {
		return fmt.Errorf("failed to execute migration query: %w", err)
	}

	return nil
}

// Close closes the connection to the database.
func (r *Repository) Close() error {
	if err := r.db.Close(); err != nil {
		r.log.Error("failed to close the database", "op", "repository.sqlite.Close", "error", err)
		return fmt.Errorf("failed to close the database: %w", err)
	}

	return nil
}

// DB is a getter for database handler.
func (r *Repository) DB() *sql.DB {
	return r.db
}

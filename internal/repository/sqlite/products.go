package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Houeta/pricewatch/internal/models"
	"github.com/Houeta/pricewatch/internal/pricing"
	"github.com/Houeta/pricewatch/internal/repository"
	"github.com/shopspring/decimal"
)

const productColumns = `url, title, currency, image_url, description, current_price, original_price,
	discount_rate, availability, lowest_price, highest_price, average_price, target_price, created_at, updated_at`

const upsertProductQuery = `
	INSERT INTO products (` + productColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(url) DO UPDATE SET
		title = excluded.title,
		currency = excluded.currency,
		image_url = excluded.image_url,
		description = excluded.description,
		current_price = excluded.current_price,
		original_price = excluded.original_price,
		discount_rate = excluded.discount_rate,
		availability = excluded.availability,
		lowest_price = excluded.lowest_price,
		highest_price = excluded.highest_price,
		average_price = excluded.average_price,
		target_price = excluded.target_price,
		updated_at = excluded.updated_at`

// ListAll returns every tracked product ordered by creation time.
func (r *Repository) ListAll(ctx context.Context) ([]models.TrackedProduct, error) {
	const opn = "repository.sqlite.ListAll"

	products, err := r.loadProducts(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opn, err)
	}

	return products, nil
}

// Get returns the product stored under url.
func (r *Repository) Get(ctx context.Context, url string) (*models.TrackedProduct, error) {
	const opn = "repository.sqlite.Get"

	products, err := r.loadProducts(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opn, err)
	}
	if len(products) == 0 {
		return nil, repository.ErrProductNotFound
	}

	return &products[0], nil
}

// Upsert writes the product in one transaction. Only history points recorded after
// the stored tail are appended, and the aggregates are recomputed from the stored
// history, so a stale copy can never drop a point or leave the aggregates out of step.
// On success product holds the stored history and aggregates.
func (r *Repository) Upsert(ctx context.Context, product *models.TrackedProduct) error {
	const opn = "repository.sqlite.Upsert"

	// The connection is opened with _txlock=immediate, so writers serialize here.
	tx, err := r.db.BeginTx(ctx, nil) //nolint:varnamelen // tx its a default naming for transaction
	if err != nil {
		return fmt.Errorf("%s: failed to begin transaction: %w", opn, err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit returns sql.ErrTxDone

	// 1. Insert or update the product row.
	var target decimal.NullDecimal
	if product.TargetPrice != nil {
		target = decimal.NullDecimal{Decimal: *product.TargetPrice, Valid: true}
	}
	_, err = tx.ExecContext(ctx, upsertProductQuery,
		product.URL, product.Title, product.Currency, product.ImageURL, product.Description,
		product.CurrentPrice, product.OriginalPrice, product.DiscountRate, string(product.Availability),
		product.LowestPrice, product.HighestPrice, product.AveragePrice, target,
		formatTime(product.CreatedAt), formatTime(product.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("%s: failed to upsert product %s: %w", opn, product.URL, err)
	}

	// 2. History is append-only: only points past the stored tail are inserted.
	history, err := appendHistory(ctx, tx, product)
	if err != nil {
		return fmt.Errorf("%s: %w", opn, err)
	}

	// 3. Aggregates always describe the stored history.
	stats := pricing.Compute(history)
	_, err = tx.ExecContext(ctx,
		"UPDATE products SET lowest_price = ?, highest_price = ?, average_price = ? WHERE url = ?",
		stats.Lowest, stats.Highest, stats.Average, product.URL)
	if err != nil {
		return fmt.Errorf("%s: failed to update aggregates: %w", opn, err)
	}

	// 4. Subscribers are never removed by an upsert.
	if len(product.Subscribers) > 0 {
		stmt, prepErr := tx.PrepareContext(ctx,
			"INSERT OR IGNORE INTO subscribers (product_url, email) VALUES (?, ?)")
		if prepErr != nil {
			return fmt.Errorf("%s: failed to prepare subscriber statement: %w", opn, prepErr)
		}
		defer stmt.Close()

		for _, email := range product.Subscribers {
			if _, err = stmt.ExecContext(ctx, product.URL, email); err != nil {
				return fmt.Errorf("%s: failed to insert subscriber: %w", opn, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%s: failed to commit transaction: %w", opn, err)
	}

	product.PriceHistory = history
	product.LowestPrice, product.HighestPrice, product.AveragePrice = stats.Lowest, stats.Highest, stats.Average

	return nil
}

// appendHistory inserts the points of product recorded after the latest stored one
// and returns the whole stored history in insertion order.
func appendHistory(ctx context.Context, tx *sql.Tx, product *models.TrackedProduct) ([]models.PricePoint, error) {
	var latest sql.NullString
	err := tx.QueryRowContext(ctx,
		"SELECT MAX(recorded_at) FROM price_history WHERE product_url = ?", product.URL).Scan(&latest)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest price point: %w", err)
	}

	var stmt *sql.Stmt
	for _, point := range product.PriceHistory {
		// timeLayout is fixed width, so text order is time order.
		recordedAt := formatTime(point.RecordedAt)
		if latest.Valid && recordedAt <= latest.String {
			continue
		}
		if stmt == nil {
			if stmt, err = tx.PrepareContext(ctx,
				"INSERT INTO price_history (product_url, price, recorded_at) VALUES (?, ?, ?)"); err != nil {
				return nil, fmt.Errorf("failed to prepare history statement: %w", err)
			}
			defer stmt.Close()
		}
		if _, err = stmt.ExecContext(ctx, product.URL, point.Price, recordedAt); err != nil {
			return nil, fmt.Errorf("failed to insert price point: %w", err)
		}
		latest = sql.NullString{String: recordedAt, Valid: true}
	}

	rows, err := tx.QueryContext(ctx,
		"SELECT price, recorded_at FROM price_history WHERE product_url = ? ORDER BY id", product.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to get price history: %w", err)
	}
	defer rows.Close()

	var history []models.PricePoint
	for rows.Next() {
		var (
			point      models.PricePoint
			recordedAt string
		)
		if err = rows.Scan(&point.Price, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan price point: %w", err)
		}
		if point.RecordedAt, err = parseTime(recordedAt); err != nil {
			return nil, err
		}
		history = append(history, point)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("price history iteration error: %w", err)
	}

	return history, nil
}

// AddSubscriber subscribes email to an existing product.
func (r *Repository) AddSubscriber(ctx context.Context, url, email string) error {
	const opn = "repository.sqlite.AddSubscriber"

	var exists int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM products WHERE url = ?", url).Scan(&exists)
	if err != nil {
		return fmt.Errorf("%s: failed to check product: %w", opn, err)
	}
	if exists == 0 {
		return repository.ErrProductNotFound
	}

	res, err := r.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO subscribers (product_url, email) VALUES (?, ?)", url, email)
	if err != nil {
		return fmt.Errorf("%s: failed to insert subscriber: %w", opn, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: failed to get affected rows: %w", opn, err)
	}
	if affected == 0 {
		return repository.ErrSubscriberExists
	}

	return nil
}

// loadProducts reads products with their history and subscribers. An empty url loads all of them.
func (r *Repository) loadProducts(ctx context.Context, url string) ([]models.TrackedProduct, error) {
	var args []any
	filter := func(string) string { return "" }
	if url != "" {
		args = []any{url}
		filter = func(column string) string { return " WHERE " + column + " = ?" }
	}

	// 1. Product rows.
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+productColumns+" FROM products"+filter("url")+" ORDER BY created_at, url", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get products: %w", err)
	}
	defer rows.Close()

	var products []models.TrackedProduct
	index := make(map[string]int)
	for rows.Next() {
		product, scanErr := scanProduct(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan product: %w", scanErr)
		}
		index[product.URL] = len(products)
		products = append(products, product)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	if len(products) == 0 {
		return nil, nil
	}

	// 2. Price history in insertion order.
	histRows, err := r.db.QueryContext(ctx,
		"SELECT product_url, price, recorded_at FROM price_history"+filter("product_url")+" ORDER BY product_url, id",
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get price history: %w", err)
	}
	defer histRows.Close()

	for histRows.Next() {
		var (
			productURL, recordedAt string
			point                  models.PricePoint
		)
		if err = histRows.Scan(&productURL, &point.Price, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan price point: %w", err)
		}
		if point.RecordedAt, err = parseTime(recordedAt); err != nil {
			return nil, err
		}
		if i, ok := index[productURL]; ok {
			products[i].PriceHistory = append(products[i].PriceHistory, point)
		}
	}
	if err = histRows.Err(); err != nil {
		return nil, fmt.Errorf("price history iteration error: %w", err)
	}

	// 3. Subscribers.
	subRows, err := r.db.QueryContext(ctx,
		"SELECT product_url, email FROM subscribers"+filter("product_url")+" ORDER BY product_url, rowid", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscribers: %w", err)
	}
	defer subRows.Close()

	for subRows.Next() {
		var productURL, email string
		if err = subRows.Scan(&productURL, &email); err != nil {
			return nil, fmt.Errorf("failed to scan subscriber: %w", err)
		}
		if i, ok := index[productURL]; ok {
			products[i].Subscribers = append(products[i].Subscribers, email)
		}
	}
	if err = subRows.Err(); err != nil {
		return nil, fmt.Errorf("subscribers iteration error: %w", err)
	}

	return products, nil
}

func scanProduct(rows *sql.Rows) (models.TrackedProduct, error) {
	var (
		p                    models.TrackedProduct
		availability         string
		target               decimal.NullDecimal
		createdAt, updatedAt string
	)

	err := rows.Scan(
		&p.URL, &p.Title, &p.Currency, &p.ImageURL, &p.Description, &p.CurrentPrice, &p.OriginalPrice,
		&p.DiscountRate, &availability, &p.LowestPrice, &p.HighestPrice, &p.AveragePrice, &target,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return p, err
	}

	p.Availability = models.Availability(availability)
	if target.Valid {
		p.TargetPrice = &target.Decimal
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return p, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return p, err
	}

	return p, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", value, err)
	}
	return t, nil
}

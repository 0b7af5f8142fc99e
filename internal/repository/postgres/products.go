package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Houeta/pricewatch/internal/models"
	"github.com/Houeta/pricewatch/internal/pricing"
	"github.com/Houeta/pricewatch/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Numeric columns travel as text so that decimal values keep their exact scale.
const selectProducts = `
	SELECT url, title, currency, image_url, description, current_price::text, original_price::text,
		discount_rate, availability, lowest_price::text, highest_price::text, average_price::text,
		target_price::text, created_at, updated_at
	FROM products`

const upsertProductQuery = `
	INSERT INTO products (url, title, currency, image_url, description, current_price, original_price,
		discount_rate, availability, lowest_price, highest_price, average_price, target_price, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	ON CONFLICT (url) DO UPDATE SET
		title = EXCLUDED.title,
		currency = EXCLUDED.currency,
		image_url = EXCLUDED.image_url,
		description = EXCLUDED.description,
		current_price = EXCLUDED.current_price,
		original_price = EXCLUDED.original_price,
		discount_rate = EXCLUDED.discount_rate,
		availability = EXCLUDED.availability,
		lowest_price = EXCLUDED.lowest_price,
		highest_price = EXCLUDED.highest_price,
		average_price = EXCLUDED.average_price,
		target_price = EXCLUDED.target_price,
		updated_at = EXCLUDED.updated_at`

// ListAll returns every tracked product ordered by creation time.
func (r *Repository) ListAll(ctx context.Context) ([]models.TrackedProduct, error) {
	const opn = "repository.postgres.ListAll"

	products, err := r.loadProducts(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opn, err)
	}

	return products, nil
}

// Get returns the product stored under url.
func (r *Repository) Get(ctx context.Context, url string) (*models.TrackedProduct, error) {
	const opn = "repository.postgres.Get"

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
// history. On success product holds the stored history and aggregates.
func (r *Repository) Upsert(ctx context.Context, product *models.TrackedProduct) error {
	const opn = "repository.postgres.Upsert"

	var (
		history []models.PricePoint
		stats   pricing.Stats
	)
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var target *string
		if product.TargetPrice != nil {
			s := product.TargetPrice.String()
			target = &s
		}

		// The upsert locks the product row until commit, so writers of one product serialize here.
		_, err := tx.Exec(ctx, upsertProductQuery,
			product.URL, product.Title, product.Currency, product.ImageURL, product.Description,
			product.CurrentPrice.String(), product.OriginalPrice.String(), product.DiscountRate,
			string(product.Availability), product.LowestPrice.String(), product.HighestPrice.String(),
			product.AveragePrice.String(), target, product.CreatedAt, product.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert product %s: %w", product.URL, err)
		}

		var latest *time.Time
		err = tx.QueryRow(ctx, "SELECT MAX(recorded_at) FROM price_history WHERE product_url = $1", product.URL).
			Scan(&latest)
		if err != nil {
			return fmt.Errorf("failed to get latest price point: %w", err)
		}

		batch := &pgx.Batch{}
		for _, point := range product.PriceHistory {
			// TIMESTAMPTZ keeps microseconds.
			recordedAt := point.RecordedAt.Truncate(time.Microsecond)
			if latest != nil && !recordedAt.After(*latest) {
				continue
			}
			batch.Queue("INSERT INTO price_history (product_url, price, recorded_at) VALUES ($1, $2, $3)",
				product.URL, point.Price.String(), recordedAt)
			latest = &recordedAt
		}
		for _, email := range product.Subscribers {
			batch.Queue("INSERT INTO subscribers (product_url, email) VALUES ($1, $2) ON CONFLICT DO NOTHING",
				product.URL, email)
		}
		if batch.Len() > 0 {
			if err = tx.SendBatch(ctx, batch).Close(); err != nil {
				return fmt.Errorf("failed to append history and subscribers: %w", err)
			}
		}

		if history, err = storedHistory(ctx, tx, product.URL); err != nil {
			return err
		}

		stats = pricing.Compute(history)
		_, err = tx.Exec(ctx,
			"UPDATE products SET lowest_price = $1, highest_price = $2, average_price = $3 WHERE url = $4",
			stats.Lowest.String(), stats.Highest.String(), stats.Average.String(), product.URL)
		if err != nil {
			return fmt.Errorf("failed to update aggregates: %w", err)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", opn, err)
	}

	product.PriceHistory = history
	product.LowestPrice, product.HighestPrice, product.AveragePrice = stats.Lowest, stats.Highest, stats.Average

	return nil
}

func storedHistory(ctx context.Context, tx pgx.Tx, url string) ([]models.PricePoint, error) {
	rows, err := tx.Query(ctx,
		"SELECT price::text, recorded_at FROM price_history WHERE product_url = $1 ORDER BY id", url)
	if err != nil {
		return nil, fmt.Errorf("failed to get price history: %w", err)
	}

	history, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.PricePoint, error) {
		var point models.PricePoint
		err := row.Scan(&point.Price, &point.RecordedAt)
		return point, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan price point: %w", err)
	}

	return history, nil
}

// AddSubscriber subscribes email to an existing product.
func (r *Repository) AddSubscriber(ctx context.Context, url, email string) error {
	const opn = "repository.postgres.AddSubscriber"

	var exists bool
	err := r.pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM products WHERE url = $1)", url).Scan(&exists)
	if err != nil {
		return fmt.Errorf("%s: failed to check product: %w", opn, err)
	}
	if !exists {
		return repository.ErrProductNotFound
	}

	tag, err := r.pool.Exec(ctx,
		"INSERT INTO subscribers (product_url, email) VALUES ($1, $2) ON CONFLICT DO NOTHING", url, email)
	if err != nil {
		return fmt.Errorf("%s: failed to insert subscriber: %w", opn, err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrSubscriberExists
	}

	return nil
}

func (r *Repository) loadProducts(ctx context.Context, url string) ([]models.TrackedProduct, error) {
	var args []any
	where := ""
	if url != "" {
		args = []any{url}
		where = " WHERE product_url = $1"
	}

	productQuery := selectProducts + " ORDER BY created_at, url"
	if url != "" {
		productQuery = selectProducts + " WHERE url = $1"
	}

	rows, err := r.pool.Query(ctx, productQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get products: %w", err)
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("failed to scan product: %w", err)
	}
	if len(products) == 0 {
		return nil, nil
	}

	index := make(map[string]int, len(products))
	for i := range products {
		index[products[i].URL] = i
	}

	rows, err = r.pool.Query(ctx,
		"SELECT product_url, price::text, recorded_at FROM price_history"+where+" ORDER BY product_url, id", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get price history: %w", err)
	}
	var (
		productURL string
		point      models.PricePoint
	)
	_, err = pgx.ForEachRow(rows, []any{&productURL, &point.Price, &point.RecordedAt}, func() error {
		if i, ok := index[productURL]; ok {
			products[i].PriceHistory = append(products[i].PriceHistory, point)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan price point: %w", err)
	}

	rows, err = r.pool.Query(ctx,
		"SELECT product_url, email FROM subscribers"+where+" ORDER BY product_url, id", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscribers: %w", err)
	}
	var email string
	_, err = pgx.ForEachRow(rows, []any{&productURL, &email}, func() error {
		if i, ok := index[productURL]; ok {
			products[i].Subscribers = append(products[i].Subscribers, email)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan subscriber: %w", err)
	}

	return products, nil
}

func scanProduct(row pgx.CollectableRow) (models.TrackedProduct, error) {
	var (
		p            models.TrackedProduct
		availability string
		target       decimal.NullDecimal
	)

	err := row.Scan(
		&p.URL, &p.Title, &p.Currency, &p.ImageURL, &p.Description, &p.CurrentPrice, &p.OriginalPrice,
		&p.DiscountRate, &availability, &p.LowestPrice, &p.HighestPrice, &p.AveragePrice, &target,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return p, err
	}

	p.Availability = models.Availability(availability)
	if target.Valid {
		p.TargetPrice = &target.Decimal
	}

	return p, nil
}

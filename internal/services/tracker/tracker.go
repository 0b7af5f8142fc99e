// Package tracker adds product URLs to monitoring and subscribes emails to them.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/Houeta/pricewatch/internal/models"
	"github.com/Houeta/pricewatch/internal/pricing"
	"github.com/Houeta/pricewatch/internal/repository"
)

var (
	// ErrInvalidURL is returned for anything other than an absolute http(s) URL.
	ErrInvalidURL = errors.New("invalid product URL")
	// ErrInvalidEmail is returned when the subscriber address cannot be parsed.
	ErrInvalidEmail = errors.New("invalid email address")
)

// Fetcher returns a fresh snapshot of a product page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (models.Snapshot, error)
}

// Notifier delivers a category notification to recipients.
type Notifier interface {
	Notify(ctx context.Context, product models.TrackedProduct, category models.Category, recipients []string) error
}

// Tracker is the entry point for user submitted URLs and subscriptions.
type Tracker struct {
	log      *slog.Logger
	fetcher  Fetcher
	store    repository.Store
	notifier Notifier
	now      func() time.Time
}

// New creates a new Tracker instance.
func New(log *slog.Logger, fetcher Fetcher, store repository.Store, notifier Notifier) *Tracker {
	return &Tracker{log: log, fetcher: fetcher, store: store, notifier: notifier, now: time.Now}
}

// Track scrapes rawURL once and stores the result. A new product is seeded with
// one history point; an existing one gets a point appended.
func (t *Tracker) Track(ctx context.Context, rawURL string) (*models.TrackedProduct, error) {
	const opn = "tracker.Track"

	productURL, err := CanonicalURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opn, err)
	}
	log := t.log.With("op", opn, "url", productURL)

	snap, err := t.fetcher.Fetch(ctx, productURL)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to scrape product: %w", opn, err)
	}

	product, err := t.store.Get(ctx, productURL)
	switch {
	case errors.Is(err, repository.ErrProductNotFound):
		product = &models.TrackedProduct{URL: productURL, CreatedAt: t.now()}
		log.InfoContext(ctx, "Tracking new product")
	case err != nil:
		return nil, fmt.Errorf("%s: failed to load product: %w", opn, err)
	}

	now := t.now()
	pricing.Record(product, models.PricePoint{Price: snap.Price, RecordedAt: now})
	product.Merge(snap)
	product.UpdatedAt = now

	if err = t.store.Upsert(ctx, product); err != nil {
		return nil, fmt.Errorf("%s: failed to store product: %w", opn, err)
	}
	log.InfoContext(ctx, "Product stored", "price", product.CurrentPrice, "points", len(product.PriceHistory))

	return product, nil
}

// Subscribe adds email to the product subscribers and sends a welcome message.
// Subscribing twice is a no-op and sends no second welcome.
func (t *Tracker) Subscribe(ctx context.Context, rawURL, email string) error {
	const opn = "tracker.Subscribe"

	productURL, err := CanonicalURL(rawURL)
	if err != nil {
		return fmt.Errorf("%s: %w", opn, err)
	}

	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return fmt.Errorf("%s: %w: %w", opn, ErrInvalidEmail, err)
	}
	log := t.log.With("op", opn, "url", productURL)

	product, err := t.store.Get(ctx, productURL)
	if err != nil {
		return fmt.Errorf("%s: %w", opn, err)
	}
	if product.HasSubscriber(addr.Address) {
		return nil
	}

	if err = t.store.AddSubscriber(ctx, productURL, addr.Address); err != nil {
		if errors.Is(err, repository.ErrSubscriberExists) {
			return nil
		}
		return fmt.Errorf("%s: %w", opn, err)
	}
	log.InfoContext(ctx, "Subscriber added")

	// The subscription is stored; a lost welcome mail is not worth failing it.
	if err = t.notifier.Notify(ctx, *product, models.CategoryWelcome, []string{addr.Address}); err != nil {
		log.WarnContext(ctx, "Failed to send welcome email", "error", err)
	}

	return nil
}

// CanonicalURL validates rawURL and strips its fragment.
func CanonicalURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	u.Fragment = ""
	u.RawFragment = ""

	return u.String(), nil
}

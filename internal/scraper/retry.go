package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Houeta/pricewatch/internal/models"
)

var (
	// ErrPermanent marks a scrape failure that is not worth retrying.
	ErrPermanent = errors.New("permanent scrape failure")
	// ErrExhaustedRetries marks a product that kept asking to retry later until attempts ran out.
	ErrExhaustedRetries = errors.New("scrape retries exhausted")
)

const (
	defaultAttempts = 3
	defaultDelay    = 2 * time.Second
)

// Scraper fetches one product page.
type Scraper interface {
	Scrape(ctx context.Context, url string) (models.Snapshot, error)
}

// Backoff selects how the delay grows between attempts.
type Backoff int

const (
	// BackoffFixed waits the same delay before every retry.
	BackoffFixed Backoff = iota
	// BackoffExponential doubles the delay before each further retry.
	BackoffExponential
)

// ParseBackoff maps "fixed" and "exponential" to a Backoff. Anything else is fixed.
func ParseBackoff(s string) Backoff {
	if s == "exponential" {
		return BackoffExponential
	}
	return BackoffFixed
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Observer receives the result of every attempt: "success", "retry", "permanent" or "exhausted".
type Observer interface {
	ScrapeAttempt(result string)
}

// RetryPolicy wraps a Scraper with bounded retries on ErrRetryLater.
type RetryPolicy struct {
	log      *slog.Logger
	scraper  Scraper
	attempts int
	delay    time.Duration
	backoff  Backoff
	sleep    SleepFunc
	observer Observer
}

// Option configures a RetryPolicy.
type Option func(*RetryPolicy)

// WithAttempts sets the maximum number of scrape calls per Fetch.
func WithAttempts(n int) Option {
	return func(r *RetryPolicy) {
		if n > 0 {
			r.attempts = n
		}
	}
}

// WithDelay sets the wait before the first retry.
func WithDelay(d time.Duration) Option {
	return func(r *RetryPolicy) { r.delay = d }
}

// WithBackoff sets the delay growth.
func WithBackoff(b Backoff) Option {
	return func(r *RetryPolicy) { r.backoff = b }
}

// WithSleep replaces the wait between attempts, tests use it to skip real time.
func WithSleep(fn SleepFunc) Option {
	return func(r *RetryPolicy) { r.sleep = fn }
}

// WithObserver reports every attempt result.
func WithObserver(o Observer) Option {
	return func(r *RetryPolicy) { r.observer = o }
}

// NewRetryPolicy creates a policy with 3 attempts and a fixed 2s delay unless overridden.
func NewRetryPolicy(log *slog.Logger, scraper Scraper, opts ...Option) *RetryPolicy {
	r := &RetryPolicy{
		log:      log,
		scraper:  scraper,
		attempts: defaultAttempts,
		delay:    defaultDelay,
		backoff:  BackoffFixed,
		sleep:    Sleep,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Fetch scrapes url, retrying only while the storefront answers ErrRetryLater.
// It fails with ErrPermanent or ErrExhaustedRetries.
func (r *RetryPolicy) Fetch(ctx context.Context, url string) (models.Snapshot, error) {
	const opn = "scraper.RetryPolicy.Fetch"
	log := r.log.With("op", opn, "url", url)

	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		snap, err := r.scraper.Scrape(ctx, url)
		if err == nil {
			r.observe("success")
			return snap, nil
		}

		if !errors.Is(err, ErrRetryLater) || ctx.Err() != nil {
			r.observe("permanent")
			return models.Snapshot{}, fmt.Errorf("%s: %w: %w", opn, ErrPermanent, err)
		}

		lastErr = err
		if attempt == r.attempts {
			break
		}

		r.observe("retry")
		wait := r.delayBefore(attempt)
		log.InfoContext(ctx, "Retrying scrape", "attempt", attempt, "wait", wait, "error", err)

		if err = r.sleep(ctx, wait); err != nil {
			return models.Snapshot{}, fmt.Errorf("%s: %w: %w", opn, ErrPermanent, err)
		}
	}

	r.observe("exhausted")
	return models.Snapshot{}, fmt.Errorf("%s: %w after %d attempts: %w", opn, ErrExhaustedRetries, r.attempts, lastErr)
}

// delayBefore returns the wait after the given failed attempt.
func (r *RetryPolicy) delayBefore(attempt int) time.Duration {
	if r.backoff == BackoffExponential {
		return r.delay << (attempt - 1)
	}
	return r.delay
}

func (r *RetryPolicy) observe(result string) {
	if r.observer != nil {
		r.observer.ScrapeAttempt(result)
	}
}

// Sleep waits for d unless ctx is done first.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

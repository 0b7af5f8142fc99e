// Package refresher runs refresh cycles: every tracked product is re-scraped,
// its history and aggregates are updated and persisted, and subscribers are
// notified when the change is worth an email.
package refresher

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/Houeta/pricewatch/internal/models"
	"github.com/Houeta/pricewatch/internal/pricing"
	"github.com/Houeta/pricewatch/internal/scraper"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
)

// ErrLoadProducts is returned when the tracked products cannot be listed. It is the only cycle-fatal error.
var ErrLoadProducts = errors.New("failed to load tracked products")

// StatusOK is the status of every completed cycle.
const StatusOK = "Ok"

const (
	defaultConcurrency = 8
	defaultTimeout     = 60 * time.Second
)

// Fetcher returns a fresh snapshot of a product page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (models.Snapshot, error)
}

// Store loads and persists tracked products.
type Store interface {
	ListAll(ctx context.Context) ([]models.TrackedProduct, error)
	Upsert(ctx context.Context, product *models.TrackedProduct) error
}

// Classifier derives the notification category of a refresh.
type Classifier interface {
	Classify(fresh models.Snapshot, prior models.TrackedProduct) (models.Category, bool)
}

// Notifier delivers a category notification to the product subscribers.
type Notifier interface {
	Notify(ctx context.Context, product models.TrackedProduct, category models.Category, recipients []string) error
}

// Recorder receives cycle telemetry.
type Recorder interface {
	CycleFinished(status string, d time.Duration)
	ItemProcessed(outcome string)
	Notification(category, result string)
}

// Runner runs one refresh cycle.
type Runner interface {
	Run(ctx context.Context) (*models.BatchOutcome, error)
}

// Refresher is the orchestrator of a refresh cycle.
type Refresher struct {
	log        *slog.Logger
	fetcher    Fetcher
	store      Store
	classifier Classifier
	notifier   Notifier

	recorder    Recorder
	concurrency int
	timeout     time.Duration
	now         func() time.Time
}

// Option configures a Refresher.
type Option func(*Refresher)

// WithConcurrency bounds the number of products processed at once.
func WithConcurrency(n int) Option {
	return func(r *Refresher) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithTimeout sets the wall-clock budget of one cycle. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(r *Refresher) { r.timeout = d }
}

// WithRecorder sets the telemetry recorder.
func WithRecorder(rec Recorder) Option {
	return func(r *Refresher) {
		if rec != nil {
			r.recorder = rec
		}
	}
}

// WithClock overrides the time source used for price points.
func WithClock(now func() time.Time) Option {
	return func(r *Refresher) { r.now = now }
}

// New creates a new Refresher instance.
func New(
	log *slog.Logger,
	fetcher Fetcher,
	store Store,
	classifier Classifier,
	notifier Notifier,
	opts ...Option,
) *Refresher {
	r := &Refresher{
		log:         log,
		fetcher:     fetcher,
		store:       store,
		classifier:  classifier,
		notifier:    notifier,
		recorder:    nopRecorder{},
		concurrency: defaultConcurrency,
		timeout:     defaultTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// itemResult is the outcome of one product. Exactly one of product and skipped is set.
type itemResult struct {
	index   int
	product *models.TrackedProduct
	skipped *models.SkippedItem
}

// Run performs one refresh cycle. Per-item failures are logged and reported in
// BatchOutcome.Skipped; only a failure to load the products fails the cycle.
func (r *Refresher) Run(ctx context.Context) (*models.BatchOutcome, error) {
	const opn = "refresher.Run"
	runID := uuid.NewString()
	log := r.log.With("op", opn, "run_id", runID)
	started := time.Now()

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	// 1. Load every tracked product.
	products, err := r.store.ListAll(ctx)
	if err != nil {
		r.recorder.CycleFinished("failed", time.Since(started))
		return nil, fmt.Errorf("%s: %w: %w", opn, ErrLoadProducts, err)
	}
	log.InfoContext(ctx, "Starting refresh cycle", "products", len(products), "concurrency", r.concurrency)

	// 2. Fan out with one result per task; a failing task never cancels its siblings.
	p := pool.NewWithResults[itemResult]().WithMaxGoroutines(r.concurrency)
	for i, product := range products {
		p.Go(func() itemResult {
			return r.safeProcess(ctx, log, i, product)
		})
	}
	results := p.Wait()
	slices.SortFunc(results, func(a, b itemResult) int { return cmp.Compare(a.index, b.index) })

	// 3. Merge per-item outcomes.
	outcome := &models.BatchOutcome{
		RunID:   runID,
		Status:  StatusOK,
		Updated: make([]models.TrackedProduct, 0, len(results)),
	}
	for _, res := range results {
		if res.skipped != nil {
			outcome.Skipped = append(outcome.Skipped, *res.skipped)
			r.recorder.ItemProcessed(string(res.skipped.Kind))
			continue
		}
		outcome.Updated = append(outcome.Updated, *res.product)
		r.recorder.ItemProcessed("updated")
	}

	elapsed := time.Since(started)
	r.recorder.CycleFinished("ok", elapsed)
	log.InfoContext(ctx, "Refresh cycle complete",
		"updated", len(outcome.Updated),
		"skipped", len(outcome.Skipped),
		"duration", elapsed,
	)

	return outcome, nil
}

// safeProcess turns a panic in one item into a skipped result.
func (r *Refresher) safeProcess(
	ctx context.Context,
	log *slog.Logger,
	index int,
	product models.TrackedProduct,
) (res itemResult) {
	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("panic: %v", rec)
			log.ErrorContext(ctx, "Product refresh panicked", "url", product.URL, "error", err)
			res = skip(index, product.URL, models.SkipPanic, err)
		}
	}()

	return r.process(ctx, log, index, product)
}

// process runs fetch, record, persist, classify and notify for one product, strictly in that order.
func (r *Refresher) process(
	ctx context.Context,
	log *slog.Logger,
	index int,
	product models.TrackedProduct,
) itemResult {
	log = log.With("url", product.URL)

	if err := ctx.Err(); err != nil {
		log.WarnContext(ctx, "Skipping product", "kind", models.SkipCanceled, "error", err)
		return skip(index, product.URL, models.SkipCanceled, err)
	}

	snap, err := r.fetcher.Fetch(ctx, product.URL)
	if err != nil {
		kind := fetchSkipKind(ctx, err)
		log.WarnContext(ctx, "Skipping product", "kind", kind, "error", err)
		return skip(index, product.URL, kind, err)
	}

	prior := product.Clone()
	now := r.now()
	pricing.Record(&product, models.PricePoint{Price: snap.Price, RecordedAt: now})
	product.Merge(snap)
	product.UpdatedAt = now

	if err = r.store.Upsert(ctx, &product); err != nil {
		log.ErrorContext(ctx, "Skipping product", "kind", models.SkipPersist, "error", err)
		return skip(index, product.URL, models.SkipPersist, err)
	}

	category, ok := r.classifier.Classify(snap, prior)
	if ok && len(product.Subscribers) > 0 {
		if err = r.notifier.Notify(ctx, product, category, product.Subscribers); err != nil {
			// The update is already durable; only this notification is lost.
			log.ErrorContext(ctx, "Notification failed", "kind", "dispatch", "category", category, "error", err)
			r.recorder.Notification(string(category), "failed")
		} else {
			r.recorder.Notification(string(category), "sent")
		}
	}

	log.DebugContext(ctx, "Product refreshed", "price", product.CurrentPrice, "category", category)

	return itemResult{index: index, product: &product}
}

func skip(index int, url string, kind models.SkipKind, err error) itemResult {
	return itemResult{index: index, skipped: &models.SkippedItem{URL: url, Kind: kind, Err: err}}
}

func fetchSkipKind(ctx context.Context, err error) models.SkipKind {
	switch {
	case errors.Is(err, scraper.ErrExhaustedRetries):
		return models.SkipExhausted
	case ctx.Err() != nil, errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return models.SkipCanceled
	default:
		return models.SkipPermanent
	}
}

type nopRecorder struct{}

func (nopRecorder) CycleFinished(string, time.Duration) {}
func (nopRecorder) ItemProcessed(string)                {}
func (nopRecorder) Notification(string, string)         {}

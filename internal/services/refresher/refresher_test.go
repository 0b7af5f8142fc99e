package refresher_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/Houeta/pricewatch/internal/models"
	"github.com/Houeta/pricewatch/internal/notify"
	"github.com/Houeta/pricewatch/internal/pricing"
	"github.com/Houeta/pricewatch/internal/scraper"
	"github.com/Houeta/pricewatch/internal/services/refresher"
	"github.com/Houeta/pricewatch/test/mocks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	t0  = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	now = t0.Add(24 * time.Hour)
)

func tracked(url string, availability models.Availability, price string, subscribers ...string) models.TrackedProduct {
	p := models.TrackedProduct{
		URL:          url,
		Title:        "Product " + url,
		Currency:     "$",
		CurrentPrice: decimal.RequireFromString(price),
		Availability: availability,
		Subscribers:  subscribers,
		CreatedAt:    t0,
		UpdatedAt:    t0,
	}
	pricing.Record(&p, models.PricePoint{Price: p.CurrentPrice, RecordedAt: t0})
	return p
}

func fresh(url string, availability models.Availability, price string) models.Snapshot {
	return models.Snapshot{
		URL:          url,
		Title:        "Product " + url,
		Currency:     "$",
		Price:        decimal.RequireFromString(price),
		Availability: availability,
	}
}

func newRefresher(
	t *testing.T,
	fetcher refresher.Fetcher,
	store refresher.Store,
	notifier refresher.Notifier,
) *refresher.Refresher {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return refresher.New(logger, fetcher, store, notify.NewClassifier(0), notifier,
		refresher.WithConcurrency(2),
		refresher.WithClock(func() time.Time { return now }),
	)
}

func permanent(url string) error {
	return fmt.Errorf("%w: %w", scraper.ErrPermanent, &scraper.StatusError{Code: http.StatusNotFound, Status: url})
}

func TestRefresher_Run_Isolation(t *testing.T) {
	ctx := t.Context()
	products := []models.TrackedProduct{
		tracked("https://shop.example/a", models.AvailabilityInStock, "10"),
		tracked("https://shop.example/b", models.AvailabilityInStock, "20"),
		tracked("https://shop.example/c", models.AvailabilityInStock, "30"),
	}

	mStore := mocks.NewStore(t)
	mFetcher := mocks.NewFetcher(t)
	mNotifier := mocks.NewNotifier(t)

	mStore.On("ListAll", mock.Anything).Return(products, nil).Once()
	mFetcher.On("Fetch", mock.Anything, "https://shop.example/a").
		Return(fresh("https://shop.example/a", models.AvailabilityInStock, "10"), nil).Once()
	mFetcher.On("Fetch", mock.Anything, "https://shop.example/b").
		Return(models.Snapshot{}, permanent("https://shop.example/b")).Once()
	mFetcher.On("Fetch", mock.Anything, "https://shop.example/c").
		Return(fresh("https://shop.example/c", models.AvailabilityInStock, "31"), nil).Once()
	mStore.On("Upsert", mock.Anything, mock.AnythingOfType("*models.TrackedProduct")).Return(nil).Twice()

	outcome, err := newRefresher(t, mFetcher, mStore, mNotifier).Run(ctx)

	require.NoError(t, err)
	assert.Equal(t, refresher.StatusOK, outcome.Status)
	assert.NotEmpty(t, outcome.RunID)
	require.Len(t, outcome.Updated, 2)
	assert.Equal(t, "https://shop.example/a", outcome.Updated[0].URL)
	assert.Equal(t, "https://shop.example/c", outcome.Updated[1].URL)
	require.Len(t, outcome.Skipped, 1)
	assert.Equal(t, "https://shop.example/b", outcome.Skipped[0].URL)
	assert.Equal(t, models.SkipPermanent, outcome.Skipped[0].Kind)
	mNotifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRefresher_Run_LowestPriceEver(t *testing.T) {
	ctx := t.Context()
	url := "https://shop.example/p"
	product := tracked(url, models.AvailabilityInStock, "100", "a@example.com", "b@example.com")

	mStore := mocks.NewStore(t)
	mFetcher := mocks.NewFetcher(t)
	mNotifier := mocks.NewNotifier(t)

	mStore.On("ListAll", mock.Anything).Return([]models.TrackedProduct{product}, nil).Once()
	mFetcher.On("Fetch", mock.Anything, url).Return(fresh(url, models.AvailabilityInStock, "90"), nil).Once()
	mStore.On("Upsert", mock.Anything, mock.MatchedBy(func(p *models.TrackedProduct) bool {
		return len(p.PriceHistory) == 2 &&
			p.PriceHistory[1].RecordedAt.Equal(now) &&
			p.LowestPrice.Equal(decimal.NewFromInt(90)) &&
			p.HighestPrice.Equal(decimal.NewFromInt(100)) &&
			p.AveragePrice.Equal(decimal.NewFromInt(95))
	})).Return(nil).Once()
	mNotifier.On("Notify", mock.Anything,
		mock.MatchedBy(func(p models.TrackedProduct) bool { return p.URL == url }),
		models.CategoryLowestPriceEver,
		[]string{"a@example.com", "b@example.com"},
	).Return(nil).Once()

	outcome, err := newRefresher(t, mFetcher, mStore, mNotifier).Run(ctx)

	require.NoError(t, err)
	require.Len(t, outcome.Updated, 1)
	assert.True(t, outcome.Updated[0].LowestPrice.Equal(decimal.NewFromInt(90)))
	assert.True(t, outcome.Updated[0].CurrentPrice.Equal(decimal.NewFromInt(90)))
	assert.True(t, outcome.Updated[0].UpdatedAt.Equal(now))
}

func TestRefresher_Run_BackInStock(t *testing.T) {
	ctx := t.Context()
	url := "https://shop.example/p"
	product := tracked(url, models.AvailabilityOutOfStock, "50", "a@example.com")

	mStore := mocks.NewStore(t)
	mFetcher := mocks.NewFetcher(t)
	mNotifier := mocks.NewNotifier(t)

	mStore.On("ListAll", mock.Anything).Return([]models.TrackedProduct{product}, nil).Once()
	mFetcher.On("Fetch", mock.Anything, url).Return(fresh(url, models.AvailabilityInStock, "50"), nil).Once()
	mStore.On("Upsert", mock.Anything, mock.Anything).Return(nil).Once()
	mNotifier.On("Notify", mock.Anything, mock.Anything, models.CategoryBackInStock, []string{"a@example.com"}).
		Return(nil).Once()

	outcome, err := newRefresher(t, mFetcher, mStore, mNotifier).Run(ctx)

	require.NoError(t, err)
	require.Len(t, outcome.Updated, 1)
	assert.Equal(t, models.AvailabilityInStock, outcome.Updated[0].Availability)
}

func TestRefresher_Run_ExhaustedRetries(t *testing.T) {
	ctx := t.Context()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	okURL, busyURL := "https://shop.example/ok", "https://shop.example/busy"

	mScraper := mocks.NewScraper(t)
	mScraper.On("Scrape", mock.Anything, okURL).Return(fresh(okURL, models.AvailabilityInStock, "10"), nil).Once()
	mScraper.On("Scrape", mock.Anything, busyURL).
		Return(models.Snapshot{}, &scraper.StatusError{Code: http.StatusServiceUnavailable, Status: "busy"}).Times(3)
	policy := scraper.NewRetryPolicy(logger, mScraper,
		scraper.WithSleep(func(context.Context, time.Duration) error { return nil }))

	mStore := mocks.NewStore(t)
	mStore.On("ListAll", mock.Anything).Return([]models.TrackedProduct{
		tracked(okURL, models.AvailabilityInStock, "10"),
		tracked(busyURL, models.AvailabilityInStock, "10"),
	}, nil).Once()
	mStore.On("Upsert", mock.Anything, mock.Anything).Return(nil).Once()

	outcome, err := newRefresher(t, policy, mStore, mocks.NewNotifier(t)).Run(ctx)

	require.NoError(t, err)
	require.Len(t, outcome.Updated, 1)
	assert.Equal(t, okURL, outcome.Updated[0].URL)
	require.Len(t, outcome.Skipped, 1)
	assert.Equal(t, models.SkipExhausted, outcome.Skipped[0].Kind)
	mScraper.AssertNumberOfCalls(t, "Scrape", 4)
}

func TestRefresher_Run_LoadFailure(t *testing.T) {
	mStore := mocks.NewStore(t)
	mStore.On("ListAll", mock.Anything).Return(nil, assert.AnError).Once()

	outcome, err := newRefresher(t, mocks.NewFetcher(t), mStore, mocks.NewNotifier(t)).Run(t.Context())

	require.ErrorIs(t, err, refresher.ErrLoadProducts)
	require.ErrorIs(t, err, assert.AnError)
	assert.Nil(t, outcome)
}

func TestRefresher_Run_ItemFailures(t *testing.T) {
	url := "https://shop.example/p"

	testCases := []struct {
		name        string
		setupMocks  func(mFetcher *mocks.Fetcher, mStore *mocks.Store, mNotifier *mocks.Notifier)
		subscribers []string
		wantUpdated int
		wantSkip    models.SkipKind
	}{
		{
			name:        "persist failure skips the item and sends nothing",
			subscribers: []string{"a@example.com"},
			setupMocks: func(mFetcher *mocks.Fetcher, mStore *mocks.Store, _ *mocks.Notifier) {
				mFetcher.On("Fetch", mock.Anything, url).Return(fresh(url, models.AvailabilityInStock, "90"), nil).Once()
				mStore.On("Upsert", mock.Anything, mock.Anything).Return(assert.AnError).Once()
			},
			wantSkip: models.SkipPersist,
		},
		{
			name:        "dispatch failure keeps the update",
			subscribers: []string{"a@example.com"},
			setupMocks: func(mFetcher *mocks.Fetcher, mStore *mocks.Store, mNotifier *mocks.Notifier) {
				mFetcher.On("Fetch", mock.Anything, url).Return(fresh(url, models.AvailabilityInStock, "90"), nil).Once()
				mStore.On("Upsert", mock.Anything, mock.Anything).Return(nil).Once()
				mNotifier.On("Notify", mock.Anything, mock.Anything, models.CategoryLowestPriceEver, mock.Anything).
					Return(notify.ErrDispatch).Once()
			},
			wantUpdated: 1,
		},
		{
			name: "no subscribers means no notification",
			setupMocks: func(mFetcher *mocks.Fetcher, mStore *mocks.Store, _ *mocks.Notifier) {
				mFetcher.On("Fetch", mock.Anything, url).Return(fresh(url, models.AvailabilityInStock, "90"), nil).Once()
				mStore.On("Upsert", mock.Anything, mock.Anything).Return(nil).Once()
			},
			wantUpdated: 1,
		},
		{
			name:        "price increase sends nothing",
			subscribers: []string{"a@example.com"},
			setupMocks: func(mFetcher *mocks.Fetcher, mStore *mocks.Store, _ *mocks.Notifier) {
				mFetcher.On("Fetch", mock.Anything, url).Return(fresh(url, models.AvailabilityInStock, "101"), nil).Once()
				mStore.On("Upsert", mock.Anything, mock.Anything).Return(nil).Once()
			},
			wantUpdated: 1,
		},
		{
			name: "panicking fetch is isolated",
			setupMocks: func(mFetcher *mocks.Fetcher, _ *mocks.Store, _ *mocks.Notifier) {
				mFetcher.On("Fetch", mock.Anything, url).Run(func(mock.Arguments) { panic("boom") }).
					Return(models.Snapshot{}, nil).Once()
			},
			wantSkip: models.SkipPanic,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mStore := mocks.NewStore(t)
			mFetcher := mocks.NewFetcher(t)
			mNotifier := mocks.NewNotifier(t)
			mStore.On("ListAll", mock.Anything).
				Return([]models.TrackedProduct{tracked(url, models.AvailabilityInStock, "100", tc.subscribers...)}, nil).
				Once()
			tc.setupMocks(mFetcher, mStore, mNotifier)

			outcome, err := newRefresher(t, mFetcher, mStore, mNotifier).Run(t.Context())

			require.NoError(t, err)
			assert.Len(t, outcome.Updated, tc.wantUpdated)
			if tc.wantSkip != "" {
				require.Len(t, outcome.Skipped, 1)
				assert.Equal(t, tc.wantSkip, outcome.Skipped[0].Kind)
			} else {
				assert.Empty(t, outcome.Skipped)
			}
		})
	}
}

func TestRefresher_Run_CanceledCycle(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	mStore := mocks.NewStore(t)
	mStore.On("ListAll", mock.Anything).
		Return([]models.TrackedProduct{tracked("https://shop.example/p", models.AvailabilityInStock, "1")}, nil).Once()

	outcome, err := newRefresher(t, mocks.NewFetcher(t), mStore, mocks.NewNotifier(t)).Run(ctx)

	require.NoError(t, err)
	assert.Empty(t, outcome.Updated)
	require.Len(t, outcome.Skipped, 1)
	assert.Equal(t, models.SkipCanceled, outcome.Skipped[0].Kind)
}

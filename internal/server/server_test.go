package server_test

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/Houeta/pricewatch/internal/models"
	"github.com/Houeta/pricewatch/internal/pricing"
	"github.com/Houeta/pricewatch/internal/repository"
	"github.com/Houeta/pricewatch/internal/server"
	"github.com/Houeta/pricewatch/internal/services/refresher"
	"github.com/Houeta/pricewatch/internal/services/tracker"
	"github.com/Houeta/pricewatch/test/mocks"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const productURL = "https://shop.example/item/1"

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	router  *gin.Engine
	runner  *mocks.Runner
	store   *mocks.Store
	tracker *mocks.Tracker
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	f := fixture{
		runner:  mocks.NewRunner(t),
		store:   mocks.NewStore(t),
		tracker: mocks.NewTracker(t),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "pricewatch_refresh_cycles_total 1")
	})
	f.router = server.New(logger, f.runner, f.store, f.tracker, metrics).Router()

	return f
}

func (f fixture) do(method, target, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	f.router.ServeHTTP(rec, req)
	return rec
}

func sampleProduct() *models.TrackedProduct {
	p := &models.TrackedProduct{URL: productURL, Title: "Desk Lamp", Currency: "USD"}
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i, price := range []int64{100, 90, 95} {
		pricing.Record(p, models.PricePoint{Price: decimal.NewFromInt(price), RecordedAt: start.Add(time.Duration(i) * time.Hour)})
	}
	return p
}

func TestRunCycle(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		f := newFixture(t)
		updated := *sampleProduct()
		updated.Subscribers = []string{"a@example.com"}
		f.runner.On("Run", mock.Anything).Return(&models.BatchOutcome{
			RunID:   "run-1",
			Status:  refresher.StatusOK,
			Updated: []models.TrackedProduct{updated},
			Skipped: []models.SkippedItem{{URL: "https://shop.example/b", Kind: models.SkipPermanent}},
		}, nil).Once()

		rec := f.do(http.MethodGet, "/api/cron", "")

		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Message string                  `json:"message"`
			Data    []models.TrackedProduct `json:"data"`
			Skipped int                     `json:"skipped"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "Ok", body.Message)
		require.Len(t, body.Data, 1)
		assert.Equal(t, productURL, body.Data[0].URL)
		assert.Equal(t, 1, body.Skipped)
		assert.NotContains(t, rec.Body.String(), "https://shop.example/b")
		assert.NotContains(t, rec.Body.String(), "a@example.com")
	})

	t.Run("load failure", func(t *testing.T) {
		f := newFixture(t)
		f.runner.On("Run", mock.Anything).Return(nil, refresher.ErrLoadProducts).Once()

		rec := f.do(http.MethodGet, "/api/cron", "")

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.JSONEq(t, `{"error":"refresh cycle failed"}`, rec.Body.String())
	})
}

func TestListProducts(t *testing.T) {
	t.Run("empty store", func(t *testing.T) {
		f := newFixture(t)
		f.store.On("ListAll", mock.Anything).Return(nil, nil).Once()

		rec := f.do(http.MethodGet, "/api/products", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[]`, rec.Body.String())
	})

	t.Run("subscriber emails stay private", func(t *testing.T) {
		f := newFixture(t)
		product := sampleProduct()
		product.Subscribers = []string{"a@example.com"}
		f.store.On("ListAll", mock.Anything).Return([]models.TrackedProduct{*product}, nil).Once()

		rec := f.do(http.MethodGet, "/api/products", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), productURL)
		assert.NotContains(t, rec.Body.String(), "a@example.com")
		assert.NotContains(t, rec.Body.String(), "subscribers")
	})
}

func TestGetProduct(t *testing.T) {
	target := "/api/product?url=" + url.QueryEscape(productURL)

	t.Run("found", func(t *testing.T) {
		f := newFixture(t)
		f.store.On("Get", mock.Anything, productURL).Return(sampleProduct(), nil).Once()

		rec := f.do(http.MethodGet, target, "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"title":"Desk Lamp"`)
	})

	t.Run("not found", func(t *testing.T) {
		f := newFixture(t)
		f.store.On("Get", mock.Anything, productURL).Return(nil, repository.ErrProductNotFound).Once()

		rec := f.do(http.MethodGet, target, "")

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("invalid url", func(t *testing.T) {
		f := newFixture(t)

		rec := f.do(http.MethodGet, "/api/product?url=nope", "")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestTrackProduct(t *testing.T) {
	testCases := []struct {
		name       string
		body       string
		setupMocks func(m *mocks.Tracker)
		wantCode   int
	}{
		{
			name: "created",
			body: `{"url":"` + productURL + `"}`,
			setupMocks: func(m *mocks.Tracker) {
				m.On("Track", mock.Anything, productURL).Return(sampleProduct(), nil).Once()
			},
			wantCode: http.StatusCreated,
		},
		{
			name:       "missing url",
			body:       `{}`,
			setupMocks: func(*mocks.Tracker) {},
			wantCode:   http.StatusBadRequest,
		},
		{
			name: "invalid url",
			body: `{"url":"ftp://x"}`,
			setupMocks: func(m *mocks.Tracker) {
				m.On("Track", mock.Anything, "ftp://x").Return(nil, tracker.ErrInvalidURL).Once()
			},
			wantCode: http.StatusBadRequest,
		},
		{
			name: "scrape failure",
			body: `{"url":"` + productURL + `"}`,
			setupMocks: func(m *mocks.Tracker) {
				m.On("Track", mock.Anything, productURL).Return(nil, assert.AnError).Once()
			},
			wantCode: http.StatusBadGateway,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			tc.setupMocks(f.tracker)

			rec := f.do(http.MethodPost, "/api/products", tc.body)

			assert.Equal(t, tc.wantCode, rec.Code)
		})
	}
}

func TestSubscribe(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		wantCode int
	}{
		{name: "subscribed", wantCode: http.StatusOK},
		{name: "invalid email", err: tracker.ErrInvalidEmail, wantCode: http.StatusBadRequest},
		{name: "unknown product", err: repository.ErrProductNotFound, wantCode: http.StatusNotFound},
		{name: "store failure", err: assert.AnError, wantCode: http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.tracker.On("Subscribe", mock.Anything, productURL, "a@example.com").Return(tc.err).Once()

			rec := f.do(http.MethodPost, "/api/products/subscribe",
				`{"url":"`+productURL+`","email":"a@example.com"}`)

			assert.Equal(t, tc.wantCode, rec.Code)
		})
	}
}

func TestPriceChart(t *testing.T) {
	f := newFixture(t)
	f.store.On("Get", mock.Anything, productURL).Return(sampleProduct(), nil).Once()

	rec := f.do(http.MethodGet, "/api/products/chart?url="+url.QueryEscape(productURL), "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Desk Lamp")
	assert.Contains(t, rec.Body.String(), "2024-05-01 11:00")
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pricewatch_refresh_cycles_total")
}

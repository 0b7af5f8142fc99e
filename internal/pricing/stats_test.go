package pricing_test

import (
	"math/rand"
	"testing"
	"time"

	"github.com/Houeta/pricewatch/internal/models"
	"github.com/Houeta/pricewatch/internal/pricing"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func history(prices ...string) []models.PricePoint {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	points := make([]models.PricePoint, 0, len(prices))
	for i, p := range prices {
		points = append(points, models.PricePoint{
			Price:      decimal.RequireFromString(p),
			RecordedAt: start.Add(time.Duration(i) * time.Hour),
		})
	}
	return points
}

func TestCompute(t *testing.T) {
	testCases := []struct {
		name    string
		history []models.PricePoint
		lowest  string
		highest string
		average string
	}{
		{
			name:    "single point",
			history: history("100"),
			lowest:  "100",
			highest: "100",
			average: "100",
		},
		{
			name:    "several points",
			history: history("100", "90", "120.50"),
			lowest:  "90",
			highest: "120.50",
			average: "103.5",
		},
		{
			name:    "average keeps sub-cent precision",
			history: history("0.001", "0.002"),
			lowest:  "0.001",
			highest: "0.002",
			average: "0.0015",
		},
		{
			name:    "average rounds half away from zero",
			history: history("0.00000001", "0.00000002"),
			lowest:  "0.00000001",
			highest: "0.00000002",
			average: "0.00000002",
		},
		{
			name:    "rounded average is clamped to the lowest",
			history: history("0.000000001", "0.000000001"),
			lowest:  "0.000000001",
			highest: "0.000000001",
			average: "0.000000001",
		},
		{
			name:    "repeating fraction",
			history: history("10", "10", "10.01"),
			lowest:  "10",
			highest: "10.01",
			average: "10.00333333",
		},
		{
			name:    "empty history yields zeros",
			history: nil,
			lowest:  "0",
			highest: "0",
			average: "0",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			stats := pricing.Compute(tc.history)

			assert.Truef(t, decimal.RequireFromString(tc.lowest).Equal(stats.Lowest), "lowest: %s", stats.Lowest)
			assert.Truef(t, decimal.RequireFromString(tc.highest).Equal(stats.Highest), "highest: %s", stats.Highest)
			assert.Truef(t, decimal.RequireFromString(tc.average).Equal(stats.Average), "average: %s", stats.Average)
		})
	}
}

func TestCompute_Bounds(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))

	for range 200 {
		n := 1 + rnd.Intn(30)
		points := make([]models.PricePoint, 0, n)
		for range n {
			// Between 0 and 12 decimal places, so sub-cent prices are covered.
			value := int64(1 + rnd.Intn(1_000_000))
			points = append(points, models.PricePoint{Price: decimal.New(value, -int32(rnd.Intn(13)))})
		}

		stats := pricing.Compute(points)

		require.True(t, stats.Lowest.LessThanOrEqual(stats.Average), "lowest %s > average %s", stats.Lowest, stats.Average)
		require.True(t, stats.Average.LessThanOrEqual(stats.Highest), "average %s > highest %s", stats.Average, stats.Highest)

		var foundLowest, foundHighest bool
		for _, p := range points {
			require.True(t, p.Price.GreaterThanOrEqual(stats.Lowest))
			require.True(t, p.Price.LessThanOrEqual(stats.Highest))
			foundLowest = foundLowest || p.Price.Equal(stats.Lowest)
			foundHighest = foundHighest || p.Price.Equal(stats.Highest)
		}
		require.True(t, foundLowest, "lowest must be a member of the history")
		require.True(t, foundHighest, "highest must be a member of the history")
	}
}

func TestRecord(t *testing.T) {
	p := &models.TrackedProduct{URL: "https://shop.example/item/1"}
	pricing.Record(p, history("100")[0])

	seeded := p.PriceHistory[0]
	next := models.PricePoint{Price: decimal.NewFromInt(90), RecordedAt: seeded.RecordedAt.Add(time.Hour)}
	pricing.Record(p, next)

	require.Len(t, p.PriceHistory, 2)
	assert.Equal(t, seeded, p.PriceHistory[0])
	assert.Equal(t, next, p.PriceHistory[1])
	assert.True(t, decimal.NewFromInt(90).Equal(p.LowestPrice))
	assert.True(t, decimal.NewFromInt(100).Equal(p.HighestPrice))
	assert.True(t, decimal.NewFromInt(95).Equal(p.AveragePrice))
}

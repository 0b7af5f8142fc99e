// Package pricing computes aggregates over a product's price history.
//
// All arithmetic is done on decimals. The average is the exact sum divided by
// the number of points, rounded half away from zero to eight places and clamped
// to [lowest, highest]. It is always recomputed from the full history so no
// rounding error carries over between cycles.
package pricing

import (
	"github.com/Houeta/pricewatch/internal/models"
	"github.com/shopspring/decimal"
)

// averagePlaces is the number of decimal places the average is rounded to.
const averagePlaces = 8

// Stats holds the aggregates of a price history.
type Stats struct {
	Lowest  decimal.Decimal
	Highest decimal.Decimal
	Average decimal.Decimal
}

// Lowest returns the minimum price of the history.
func Lowest(history []models.PricePoint) decimal.Decimal {
	if len(history) == 0 {
		return decimal.Zero
	}
	lowest := history[0].Price
	for _, p := range history[1:] {
		if p.Price.LessThan(lowest) {
			lowest = p.Price
		}
	}
	return lowest
}

// Highest returns the maximum price of the history.
func Highest(history []models.PricePoint) decimal.Decimal {
	if len(history) == 0 {
		return decimal.Zero
	}
	highest := history[0].Price
	for _, p := range history[1:] {
		if p.Price.GreaterThan(highest) {
			highest = p.Price
		}
	}
	return highest
}

// Average returns the arithmetic mean of the history. Rounding never moves it
// outside the range of the history.
func Average(history []models.PricePoint) decimal.Decimal {
	if len(history) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, p := range history {
		sum = sum.Add(p.Price)
	}
	avg := sum.DivRound(decimal.NewFromInt(int64(len(history))), averagePlaces)
	return decimal.Min(decimal.Max(avg, Lowest(history)), Highest(history))
}

// Compute returns all aggregates of the history at once.
// The history must hold at least one point; an empty one yields zero values.
func Compute(history []models.PricePoint) Stats {
	return Stats{
		Lowest:  Lowest(history),
		Highest: Highest(history),
		Average: Average(history),
	}
}

// Record appends a price point to the product history and recomputes the
// aggregates in the same step.
func Record(p *models.TrackedProduct, point models.PricePoint) {
	p.PriceHistory = append(p.PriceHistory, point)

	stats := Compute(p.PriceHistory)
	p.LowestPrice = stats.Lowest
	p.HighestPrice = stats.Highest
	p.AveragePrice = stats.Average
}

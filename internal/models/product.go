package models

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Availability is the stock state reported by a product page.
type Availability string

const (
	AvailabilityUnknown    Availability = "unknown"
	AvailabilityInStock    Availability = "in_stock"
	AvailabilityOutOfStock Availability = "out_of_stock"
)

// PricePoint is a single price observation. It is never modified once recorded.
type PricePoint struct {
	Price      decimal.Decimal `json:"price"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// Snapshot is a point-in-time scrape result of a product page.
type Snapshot struct {
	URL           string
	Title         string
	Currency      string
	Price         decimal.Decimal
	OriginalPrice decimal.Decimal
	DiscountRate  int // percent, 0-100
	Availability  Availability
	ImageURL      string
	Description   string
}

// TrackedProduct is a product URL under periodic price monitoring.
type TrackedProduct struct {
	URL           string          `json:"url"` // URL is the identity key and never changes.
	Title         string          `json:"title"`
	Currency      string          `json:"currency"`
	ImageURL      string          `json:"image_url,omitempty"`
	Description   string          `json:"description,omitempty"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	OriginalPrice decimal.Decimal `json:"original_price"`
	DiscountRate  int             `json:"discount_rate"`
	Availability  Availability    `json:"availability"`

	PriceHistory []PricePoint    `json:"price_history"`
	LowestPrice  decimal.Decimal `json:"lowest_price"`
	HighestPrice decimal.Decimal `json:"highest_price"`
	AveragePrice decimal.Decimal `json:"average_price"`

	// TargetPrice is an optional product-wide alert threshold.
	TargetPrice *decimal.Decimal `json:"target_price,omitempty"`
	// Subscribers are never serialized; product JSON is public.
	Subscribers []string         `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Merge copies freshly scraped metadata into the product. The URL is left untouched.
func (p *TrackedProduct) Merge(s Snapshot) {
	p.Title = s.Title
	p.Currency = s.Currency
	p.CurrentPrice = s.Price
	p.OriginalPrice = s.OriginalPrice
	p.DiscountRate = s.DiscountRate
	p.Availability = s.Availability
	if s.ImageURL != "" {
		p.ImageURL = s.ImageURL
	}
	if s.Description != "" {
		p.Description = s.Description
	}
}

// HasSubscriber reports whether email is already subscribed to the product.
func (p *TrackedProduct) HasSubscriber(email string) bool {
	return slices.Contains(p.Subscribers, email)
}

// Clone returns a deep copy, so the prior state survives mutation of the original.
func (p *TrackedProduct) Clone() TrackedProduct {
	c := *p
	c.PriceHistory = slices.Clone(p.PriceHistory)
	c.Subscribers = slices.Clone(p.Subscribers)
	if p.TargetPrice != nil {
		target := *p.TargetPrice
		c.TargetPrice = &target
	}
	return c
}

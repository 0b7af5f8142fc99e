package notify

import (
	"github.com/Houeta/pricewatch/internal/models"
)

// Rule pairs a notification category with the predicate that produces it.
type Rule struct {
	Category models.Category
	Match    func(fresh models.Snapshot, prior models.TrackedProduct) bool
}

// Classifier maps a fresh snapshot and the prior stored product to at most one
// category. Rules are evaluated in order and the first match wins.
type Classifier struct {
	rules []Rule
}

// NewClassifier builds a classifier with the default rule table.
// discountThreshold is a percentage; zero disables the discount half of the threshold rule.
func NewClassifier(discountThreshold int) *Classifier {
	return NewClassifierWithRules(DefaultRules(discountThreshold)...)
}

// NewClassifierWithRules builds a classifier evaluating rules in the given order.
func NewClassifierWithRules(rules ...Rule) *Classifier {
	return &Classifier{rules: rules}
}

// DefaultRules returns the rule table: stock recovery, record low, plain drop, threshold.
func DefaultRules(discountThreshold int) []Rule {
	return []Rule{
		{Category: models.CategoryBackInStock, Match: backInStock},
		{Category: models.CategoryLowestPriceEver, Match: lowestPriceEver},
		{Category: models.CategoryPriceDrop, Match: priceDrop},
		{Category: models.CategoryThresholdCrossed, Match: thresholdCrossed(discountThreshold)},
	}
}

// Rules returns a copy of the rule table in evaluation order.
func (c *Classifier) Rules() []Rule {
	return append([]Rule(nil), c.rules...)
}

// Classify returns the first matching category, or CategoryNone and false.
func (c *Classifier) Classify(fresh models.Snapshot, prior models.TrackedProduct) (models.Category, bool) {
	for _, r := range c.rules {
		if r.Match(fresh, prior) {
			return r.Category, true
		}
	}
	return models.CategoryNone, false
}

func backInStock(fresh models.Snapshot, prior models.TrackedProduct) bool {
	return prior.Availability == models.AvailabilityOutOfStock &&
		fresh.Availability == models.AvailabilityInStock
}

func lowestPriceEver(fresh models.Snapshot, prior models.TrackedProduct) bool {
	if len(prior.PriceHistory) == 0 || !fresh.Price.IsPositive() {
		return false
	}
	return fresh.Price.LessThanOrEqual(prior.LowestPrice)
}

func priceDrop(fresh models.Snapshot, prior models.TrackedProduct) bool {
	return fresh.Price.IsPositive() && fresh.Price.LessThan(prior.CurrentPrice)
}

func thresholdCrossed(discountThreshold int) func(models.Snapshot, models.TrackedProduct) bool {
	return func(fresh models.Snapshot, prior models.TrackedProduct) bool {
		if t := prior.TargetPrice; t != nil && fresh.Price.IsPositive() &&
			prior.CurrentPrice.GreaterThanOrEqual(*t) && fresh.Price.LessThan(*t) {
			return true
		}
		return discountThreshold > 0 &&
			prior.DiscountRate < discountThreshold && fresh.DiscountRate >= discountThreshold
	}
}

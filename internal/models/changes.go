package models

// Category is the single notification-worthy event derived for a product in one cycle.
type Category string

const (
	CategoryNone             Category = ""
	CategoryWelcome          Category = "WELCOME"
	CategoryBackInStock      Category = "BACK_IN_STOCK"
	CategoryLowestPriceEver  Category = "LOWEST_PRICE"
	CategoryPriceDrop        Category = "PRICE_DROP"
	CategoryThresholdCrossed Category = "THRESHOLD_MET"
)

// SkipKind tells why a product was left out of a refresh cycle.
type SkipKind string

const (
	SkipPermanent SkipKind = "permanent"
	SkipExhausted SkipKind = "exhausted"
	SkipPersist   SkipKind = "persist"
	SkipCanceled  SkipKind = "canceled"
	SkipPanic     SkipKind = "panic"
)

// SkippedItem is a product that could not be refreshed in this cycle.
type SkippedItem struct {
	URL  string
	Kind SkipKind
	Err  error
}

// BatchOutcome is the result of one refresh cycle.
type BatchOutcome struct {
	RunID   string
	Status  string
	Updated []TrackedProduct
	Skipped []SkippedItem
}

// EmailContent is a rendered notification ready for the mail transport.
type EmailContent struct {
	Subject string
	Body    string // HTML
}

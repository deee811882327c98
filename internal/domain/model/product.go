package model

type ProductKind string

const (
	ProductKindOneTime      ProductKind = "one_time"
	ProductKindSubscription ProductKind = "subscription"
)

type BillingInterval string

const (
	IntervalMonth BillingInterval = "month"
	IntervalYear  BillingInterval = "year"
)

// Product is a sellable item. Price is stored in minor currency units
// (cents). Interval is only meaningful for subscription products.
type Product struct {
	ID          string
	Name        string
	Description string
	Kind        ProductKind
	Price       int64  // minor units, >= 0
	Currency    string // ISO code, carried opaquely
	Interval    BillingInterval

	// Lazily mirrored Stripe ids. Empty until the first card-rail checkout.
	StripeProductID string
	StripePriceID   string

	Active bool
}

// PeriodDays returns the length of one billing period in days.
// Yearly products get 365 days, everything else 30.
func (p *Product) PeriodDays() int {
	if p.Interval == IntervalYear {
		return 365
	}
	return 30
}

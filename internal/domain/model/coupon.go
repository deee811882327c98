package model

import "time"

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

type CouponScope string

const (
	CouponScopeAll           CouponScope = "all"
	CouponScopeSpecific      CouponScope = "specific"
	CouponScopeSubscriptions CouponScope = "subscriptions"
	CouponScopeOneTime       CouponScope = "one_time"
)

// Coupon is a discount code. DiscountValue is a percentage (0-100) for
// percentage coupons and minor currency units for fixed coupons.
type Coupon struct {
	ID            string
	Code          string // stored uppercased; lookups are case-insensitive
	DiscountType  DiscountType
	DiscountValue int64
	MaxUses       *int64     // nil = unlimited
	CurrentUses   int64      // monotonically non-decreasing
	ExpiresAt     *time.Time // nil = never expires
	AppliesTo     CouponScope
	ProductIDs    []string // only for CouponScopeSpecific
	Active        bool

	// Lazily mirrored Stripe coupon id (card rail only).
	StripeCouponID string
}

// IsFree reports whether the coupon eliminates the whole price on its own.
// Only a 100% percentage coupon qualifies; fixed coupons depend on the price.
func (c *Coupon) IsFree() bool {
	return c.DiscountType == DiscountPercentage && c.DiscountValue == 100
}

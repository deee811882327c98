package repository

import (
	"context"

	"cms-billing/internal/domain/model"
)

// CouponRepository is the port for discount codes. Codes are stored
// uppercased; FindByCode expects an already-normalized code.
type CouponRepository interface {
	Save(ctx context.Context, tx Tx, c *model.Coupon) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Coupon, error)
	FindByCode(ctx context.Context, tx Tx, code string) (*model.Coupon, error)
	// FindActiveByCode only matches active coupons.
	FindActiveByCode(ctx context.Context, tx Tx, code string) (*model.Coupon, error)
	// IncrementUsage bumps current_uses by one. The Postgres implementation
	// does this with a single UPDATE so concurrent webhooks cannot
	// undercount.
	IncrementUsage(ctx context.Context, tx Tx, id string) error
	// SetStripeCouponID mirrors the lazily created Stripe coupon id.
	SetStripeCouponID(ctx context.Context, tx Tx, id, stripeCouponID string) error
}

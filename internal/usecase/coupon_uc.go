package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"cms-billing/internal/domain"
	"cms-billing/internal/domain/model"
	"cms-billing/internal/domain/ports/repository"
	"cms-billing/internal/infra/metrics"
)

// Compile-time check
var _ CouponUseCase = (*couponUC)(nil)

// CouponValidation is the outcome of validating a code against a product.
// Exactly one of (Valid + Coupon + Discount) or Error is populated.
type CouponValidation struct {
	Valid    bool
	Coupon   *model.Coupon
	Discount string // display text, e.g. "20% off" or "$5.00 off"
	Error    string
}

type CouponUseCase interface {
	// Validate runs the ordered eligibility checks. A failed check comes back
	// as a non-valid result, not an error; errors are infrastructure only.
	Validate(ctx context.Context, code, productID string) (*CouponValidation, error)
	// ApplyDiscount reduces price by the coupon's value, never below zero.
	ApplyDiscount(price int64, c *model.Coupon) int64
	// IncrementUsage bumps the usage counter. Returns false when the coupon
	// no longer exists. Best-effort: callers must not let a failure here
	// block payment recording.
	IncrementUsage(ctx context.Context, couponID string) bool
}

type couponUC struct {
	coupons  repository.CouponRepository
	products repository.ProductRepository
	log      *zerolog.Logger
}

func NewCouponUseCase(coupons repository.CouponRepository, products repository.ProductRepository, logger *zerolog.Logger) *couponUC {
	ucLog := logger.With().Str("component", "CouponUC").Logger()
	return &couponUC{coupons: coupons, products: products, log: &ucLog}
}

func (u *couponUC) Validate(ctx context.Context, code, productID string) (*CouponValidation, error) {
	coupon, err := u.coupons.FindActiveByCode(ctx, repository.NoTX, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return &CouponValidation{Error: "Coupon not found or inactive"}, nil
		}
		return nil, fmt.Errorf("lookup coupon: %w", err)
	}

	if coupon.ExpiresAt != nil && coupon.ExpiresAt.Before(time.Now()) {
		return &CouponValidation{Error: "Coupon has expired"}, nil
	}
	if coupon.MaxUses != nil && coupon.CurrentUses >= *coupon.MaxUses {
		return &CouponValidation{Error: "Coupon usage limit reached"}, nil
	}

	if productID != "" {
		product, err := u.products.FindByID(ctx, repository.NoTX, productID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return &CouponValidation{Error: "Product not found"}, nil
			}
			return nil, fmt.Errorf("lookup product: %w", err)
		}
		switch coupon.AppliesTo {
		case model.CouponScopeSpecific:
			if !slices.Contains(coupon.ProductIDs, product.ID) {
				return &CouponValidation{Error: "Coupon is not valid for this product"}, nil
			}
		case model.CouponScopeSubscriptions:
			if product.Kind != model.ProductKindSubscription {
				return &CouponValidation{Error: "Coupon is only valid for subscriptions"}, nil
			}
		case model.CouponScopeOneTime:
			if product.Kind != model.ProductKindOneTime {
				return &CouponValidation{Error: "Coupon is only valid for one-time purchases"}, nil
			}
		}
	}

	return &CouponValidation{
		Valid:    true,
		Coupon:   coupon,
		Discount: discountText(coupon),
	}, nil
}

func discountText(c *model.Coupon) string {
	if c.DiscountType == model.DiscountPercentage {
		return fmt.Sprintf("%d%% off", c.DiscountValue)
	}
	return fmt.Sprintf("$%d.%02d off", c.DiscountValue/100, c.DiscountValue%100)
}

func (u *couponUC) ApplyDiscount(price int64, c *model.Coupon) int64 {
	if c == nil {
		return price
	}
	if c.DiscountType == model.DiscountPercentage {
		return int64(math.Round(float64(price) * float64(100-c.DiscountValue) / 100))
	}
	final := price - c.DiscountValue
	if final < 0 {
		return 0
	}
	return final
}

func (u *couponUC) IncrementUsage(ctx context.Context, couponID string) bool {
	if err := u.coupons.IncrementUsage(ctx, repository.NoTX, couponID); err != nil {
		u.log.Warn().Err(err).Str("coupon", couponID).Msg("usage increment failed")
		return false
	}
	metrics.IncCouponRedemption()
	return true
}

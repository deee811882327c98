package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"cms-billing/internal/domain"
	"cms-billing/internal/domain/model"
	"cms-billing/internal/domain/ports/repository"
)

var _ repository.CouponRepository = (*couponRepo)(nil)

const couponColumns = `id, code, discount_type, discount_value, max_uses, current_uses, expires_at, applies_to, product_ids, active, stripe_coupon_id`

type couponRepo struct{ pool *pgxpool.Pool }

func NewCouponRepo(pool *pgxpool.Pool) *couponRepo {
	return &couponRepo{pool: pool}
}

func scanCoupon(row pgx.Row) (*model.Coupon, error) {
	c := &model.Coupon{}
	if err := row.Scan(&c.ID, &c.Code, &c.DiscountType, &c.DiscountValue, &c.MaxUses, &c.CurrentUses, &c.ExpiresAt, &c.AppliesTo, &c.ProductIDs, &c.Active, &c.StripeCouponID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return c, nil
}

func (r *couponRepo) Save(ctx context.Context, tx repository.Tx, c *model.Coupon) error {
	const q = `
INSERT INTO coupons (
  id, code, discount_type, discount_value, max_uses, current_uses, expires_at, applies_to, product_ids, active, stripe_coupon_id
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
) ON CONFLICT (id) DO UPDATE SET
  code=$2, discount_type=$3, discount_value=$4, max_uses=$5, current_uses=$6, expires_at=$7, applies_to=$8, product_ids=$9, active=$10, stripe_coupon_id=$11, updated_at=NOW();`

	_, err := execSQL(ctx, r.pool, tx, q, c.ID, strings.ToUpper(c.Code), c.DiscountType, c.DiscountValue, c.MaxUses, c.CurrentUses, c.ExpiresAt, c.AppliesTo, c.ProductIDs, c.Active, c.StripeCouponID)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *couponRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Coupon, error) {
	const q = `SELECT ` + couponColumns + ` FROM coupons WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanCoupon(row)
}

func (r *couponRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.Coupon, error) {
	const q = `SELECT ` + couponColumns + ` FROM coupons WHERE code=$1 LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, strings.ToUpper(code))
	if err != nil {
		return nil, err
	}
	return scanCoupon(row)
}

func (r *couponRepo) FindActiveByCode(ctx context.Context, tx repository.Tx, code string) (*model.Coupon, error) {
	const q = `SELECT ` + couponColumns + ` FROM coupons WHERE code=$1 AND active=TRUE LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, strings.ToUpper(code))
	if err != nil {
		return nil, err
	}
	return scanCoupon(row)
}

// IncrementUsage is a single UPDATE so concurrent webhook deliveries cannot
// undercount the usage counter.
func (r *couponRepo) IncrementUsage(ctx context.Context, tx repository.Tx, id string) error {
	const q = `UPDATE coupons SET current_uses = current_uses + 1, updated_at=NOW() WHERE id=$1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, id)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *couponRepo) SetStripeCouponID(ctx context.Context, tx repository.Tx, id, stripeCouponID string) error {
	const q = `UPDATE coupons SET stripe_coupon_id=$2, updated_at=NOW() WHERE id=$1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, stripeCouponID)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"cms-billing/internal/domain"
	"cms-billing/internal/domain/model"
	"cms-billing/internal/domain/ports/repository"
)

var _ repository.PaymentIntentRepository = (*paymentIntentRepo)(nil)

const paymentIntentColumns = `id, user_id, product_id, uuid, order_id, amount, currency, kind, status, payment_url, coupon_code, related_subscription_id, crypto_currency, crypto_amount, network, paid_at, created_at, updated_at`

type paymentIntentRepo struct{ pool *pgxpool.Pool }

func NewPaymentIntentRepo(pool *pgxpool.Pool) *paymentIntentRepo {
	return &paymentIntentRepo{pool: pool}
}

func scanPaymentIntent(row pgx.Row) (*model.PaymentIntent, error) {
	pi := &model.PaymentIntent{}
	if err := row.Scan(&pi.ID, &pi.UserID, &pi.ProductID, &pi.UUID, &pi.OrderID, &pi.Amount, &pi.Currency, &pi.Kind, &pi.Status, &pi.PaymentURL, &pi.CouponCode, &pi.RelatedSubscriptionID, &pi.CryptoCurrency, &pi.CryptoAmount, &pi.Network, &pi.PaidAt, &pi.CreatedAt, &pi.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return pi, nil
}

func (r *paymentIntentRepo) Save(ctx context.Context, tx repository.Tx, pi *model.PaymentIntent) error {
	const q = `
INSERT INTO payment_intents (
  id, user_id, product_id, uuid, order_id, amount, currency, kind, status, payment_url, coupon_code, related_subscription_id, crypto_currency, crypto_amount, network, paid_at, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18
) ON CONFLICT (id) DO UPDATE SET
  status=$9, payment_url=$10, crypto_currency=$13, crypto_amount=$14, network=$15, paid_at=$16, updated_at=$18;`

	_, err := execSQL(ctx, r.pool, tx, q, pi.ID, pi.UserID, pi.ProductID, pi.UUID, pi.OrderID, pi.Amount, pi.Currency, pi.Kind, pi.Status, pi.PaymentURL, pi.CouponCode, pi.RelatedSubscriptionID, pi.CryptoCurrency, pi.CryptoAmount, pi.Network, pi.PaidAt, pi.CreatedAt, pi.UpdatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *paymentIntentRepo) FindByUUID(ctx context.Context, tx repository.Tx, uuid string) (*model.PaymentIntent, error) {
	q := `SELECT ` + paymentIntentColumns + ` FROM payment_intents WHERE uuid=$1 LIMIT 1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, uuid)
	if err != nil {
		return nil, err
	}
	return scanPaymentIntent(row)
}

func (r *paymentIntentRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.PaymentIntentStatus, cryptoCurrency, cryptoAmount, network string, paidAt *time.Time) error {
	const q = `
UPDATE payment_intents SET
  status=$2,
  crypto_currency=CASE WHEN $3 <> '' THEN $3 ELSE crypto_currency END,
  crypto_amount=CASE WHEN $4 <> '' THEN $4 ELSE crypto_amount END,
  network=CASE WHEN $5 <> '' THEN $5 ELSE network END,
  paid_at=COALESCE($6, paid_at),
  updated_at=NOW()
WHERE id=$1;`

	cmd, err := execSQL(ctx, r.pool, tx, q, id, status, cryptoCurrency, cryptoAmount, network, paidAt)
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

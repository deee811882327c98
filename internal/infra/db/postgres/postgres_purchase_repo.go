package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"cms-billing/internal/domain"
	"cms-billing/internal/domain/model"
	"cms-billing/internal/domain/ports/repository"
)

var _ repository.PurchaseRepository = (*purchaseRepo)(nil)

const purchaseColumns = `id, user_id, product_id, provider_payment_id, amount, currency, status, purchased_at, created_at`

type purchaseRepo struct{ pool *pgxpool.Pool }

func NewPurchaseRepo(pool *pgxpool.Pool) *purchaseRepo {
	return &purchaseRepo{pool: pool}
}

func (r *purchaseRepo) Save(ctx context.Context, tx repository.Tx, p *model.Purchase) error {
	const q = `
INSERT INTO purchases (
  id, user_id, product_id, provider_payment_id, amount, currency, status, purchased_at, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9
) ON CONFLICT (id) DO UPDATE SET
  status=$7;`

	_, err := execSQL(ctx, r.pool, tx, q, p.ID, p.UserID, p.ProductID, p.ProviderPaymentID, p.Amount, p.Currency, p.Status, p.PurchasedAt, p.CreatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *purchaseRepo) FindByProviderPaymentID(ctx context.Context, tx repository.Tx, providerPaymentID string) (*model.Purchase, error) {
	const q = `SELECT ` + purchaseColumns + ` FROM purchases WHERE provider_payment_id=$1 LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, providerPaymentID)
	if err != nil {
		return nil, err
	}

	p := &model.Purchase{}
	if err := row.Scan(&p.ID, &p.UserID, &p.ProductID, &p.ProviderPaymentID, &p.Amount, &p.Currency, &p.Status, &p.PurchasedAt, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return p, nil
}

func (r *purchaseRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.Purchase, error) {
	const q = `SELECT ` + purchaseColumns + ` FROM purchases WHERE user_id=$1 ORDER BY purchased_at DESC;`
	rows, err := queryRows(ctx, r.pool, tx, q, userID)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return nil, err
		}
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.Purchase
	for rows.Next() {
		p := new(model.Purchase)
		if err := rows.Scan(&p.ID, &p.UserID, &p.ProductID, &p.ProviderPaymentID, &p.Amount, &p.Currency, &p.Status, &p.PurchasedAt, &p.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, p)
	}
	return out, nil
}

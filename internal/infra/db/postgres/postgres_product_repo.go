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

var _ repository.ProductRepository = (*productRepo)(nil)

const productColumns = `id, name, description, kind, price, currency, interval, stripe_product_id, stripe_price_id, active`

type productRepo struct{ pool *pgxpool.Pool }

func NewProductRepo(pool *pgxpool.Pool) *productRepo {
	return &productRepo{pool: pool}
}

func scanProduct(row pgx.Row) (*model.Product, error) {
	p := &model.Product{}
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Kind, &p.Price, &p.Currency, &p.Interval, &p.StripeProductID, &p.StripePriceID, &p.Active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return p, nil
}

func (r *productRepo) Save(ctx context.Context, tx repository.Tx, p *model.Product) error {
	const q = `
INSERT INTO products (
  id, name, description, kind, price, currency, interval, stripe_product_id, stripe_price_id, active
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
) ON CONFLICT (id) DO UPDATE SET
  name=$2, description=$3, kind=$4, price=$5, currency=$6, interval=$7, stripe_product_id=$8, stripe_price_id=$9, active=$10, updated_at=NOW();`

	_, err := execSQL(ctx, r.pool, tx, q, p.ID, p.Name, p.Description, p.Kind, p.Price, p.Currency, p.Interval, p.StripeProductID, p.StripePriceID, p.Active)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *productRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Product, error) {
	const q = `SELECT ` + productColumns + ` FROM products WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanProduct(row)
}

func (r *productRepo) FindByIDAndKind(ctx context.Context, tx repository.Tx, id string, kind model.ProductKind) (*model.Product, error) {
	const q = `SELECT ` + productColumns + ` FROM products WHERE id=$1 AND kind=$2;`
	row, err := pickRow(ctx, r.pool, tx, q, id, kind)
	if err != nil {
		return nil, err
	}
	return scanProduct(row)
}

func (r *productRepo) FindByStripePriceID(ctx context.Context, tx repository.Tx, priceID string) (*model.Product, error) {
	const q = `SELECT ` + productColumns + ` FROM products WHERE stripe_price_id=$1 LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, priceID)
	if err != nil {
		return nil, err
	}
	return scanProduct(row)
}

func (r *productRepo) ListActive(ctx context.Context, tx repository.Tx, kind model.ProductKind) ([]*model.Product, error) {
	const q = `SELECT ` + productColumns + ` FROM products WHERE active=TRUE AND kind=$1 ORDER BY price ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, kind)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return nil, err
		}
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.Product
	for rows.Next() {
		p := new(model.Product)
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Kind, &p.Price, &p.Currency, &p.Interval, &p.StripeProductID, &p.StripePriceID, &p.Active); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *productRepo) SetStripeIDs(ctx context.Context, tx repository.Tx, id, stripeProductID, stripePriceID string) error {
	const q = `UPDATE products SET stripe_product_id=$2, stripe_price_id=$3, updated_at=NOW() WHERE id=$1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, stripeProductID, stripePriceID)
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

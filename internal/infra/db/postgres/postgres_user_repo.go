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

var _ repository.UserRepository = (*userRepo)(nil)

const userColumns = `id, email, first_name, last_name, stripe_customer_id, subscription_status, current_product_id, created_at, updated_at`

type userRepo struct{ pool *pgxpool.Pool }

func NewUserRepo(pool *pgxpool.Pool) *userRepo {
	return &userRepo{pool: pool}
}

func scanUser(row pgx.Row) (*model.User, error) {
	u := &model.User{}
	if err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.StripeCustomerID, &u.SubscriptionStatus, &u.CurrentProductID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return u, nil
}

func (r *userRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanUser(row)
}

func (r *userRepo) FindByStripeCustomerID(ctx context.Context, tx repository.Tx, customerID string) (*model.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE stripe_customer_id=$1 LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, customerID)
	if err != nil {
		return nil, err
	}
	return scanUser(row)
}

func (r *userRepo) SetStripeCustomerID(ctx context.Context, tx repository.Tx, id, customerID string) error {
	const q = `UPDATE users SET stripe_customer_id=$2, updated_at=NOW() WHERE id=$1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, customerID)
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

func (r *userRepo) MirrorSubscription(ctx context.Context, tx repository.Tx, id string, status model.SubscriptionStatus, currentProductID string) error {
	const q = `UPDATE users SET subscription_status=$2, current_product_id=$3, updated_at=NOW() WHERE id=$1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, status, currentProductID)
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

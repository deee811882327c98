package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"cms-billing/internal/domain"
	"cms-billing/internal/domain/model"
	"cms-billing/internal/domain/ports/repository"
)

var _ repository.RenewalReminderRepository = (*reminderRepo)(nil)

const reminderColumns = `id, user_id, product_id, reminder_date, renewal_date, status, type, sent_at, reminder_count, last_sent_at, created_at, updated_at`

type reminderRepo struct{ pool *pgxpool.Pool }

func NewReminderRepo(pool *pgxpool.Pool) *reminderRepo {
	return &reminderRepo{pool: pool}
}

func scanReminderRows(rows pgx.Rows) ([]*model.RenewalReminder, error) {
	var out []*model.RenewalReminder
	for rows.Next() {
		m := new(model.RenewalReminder)
		if err := rows.Scan(&m.ID, &m.UserID, &m.ProductID, &m.ReminderDate, &m.RenewalDate, &m.Status, &m.Type, &m.SentAt, &m.ReminderCount, &m.LastSentAt, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, m)
	}
	return out, nil
}

func (r *reminderRepo) Save(ctx context.Context, tx repository.Tx, m *model.RenewalReminder) error {
	const q = `
INSERT INTO renewal_reminders (
  id, user_id, product_id, reminder_date, renewal_date, status, type, sent_at, reminder_count, last_sent_at, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
) ON CONFLICT (id) DO UPDATE SET
  reminder_date=$4, renewal_date=$5, status=$6, type=$7, sent_at=$8, reminder_count=$9, last_sent_at=$10, updated_at=$12;`

	_, err := execSQL(ctx, r.pool, tx, q, m.ID, m.UserID, m.ProductID, m.ReminderDate, m.RenewalDate, m.Status, m.Type, m.SentAt, m.ReminderCount, m.LastSentAt, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *reminderRepo) ListPendingDueBefore(ctx context.Context, tx repository.Tx, cutoff time.Time) ([]*model.RenewalReminder, error) {
	const q = `SELECT ` + reminderColumns + ` FROM renewal_reminders WHERE status='pending' AND reminder_date <= $1 ORDER BY reminder_date ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, cutoff)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return nil, err
		}
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()
	return scanReminderRows(rows)
}

func (r *reminderRepo) ListPendingByUserProduct(ctx context.Context, tx repository.Tx, userID, productID string) ([]*model.RenewalReminder, error) {
	const q = `SELECT ` + reminderColumns + ` FROM renewal_reminders WHERE user_id=$1 AND product_id=$2 AND status='pending';`
	rows, err := queryRows(ctx, r.pool, tx, q, userID, productID)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return nil, err
		}
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()
	return scanReminderRows(rows)
}

func (r *reminderRepo) MarkSent(ctx context.Context, tx repository.Tx, id string, at time.Time) error {
	const q = `UPDATE renewal_reminders SET status='sent', sent_at=$2, last_sent_at=$2, reminder_count=reminder_count+1, updated_at=NOW() WHERE id=$1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, at)
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

func (r *reminderRepo) MarkRenewed(ctx context.Context, tx repository.Tx, id string) error {
	const q = `UPDATE renewal_reminders SET status='renewed', updated_at=NOW() WHERE id=$1;`
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

package repository

import (
	"context"
	"time"

	"cms-billing/internal/domain/model"
)

// RenewalReminderRepository is the port for renewal reminder records.
type RenewalReminderRepository interface {
	Save(ctx context.Context, tx Tx, r *model.RenewalReminder) error
	// ListPendingDueBefore returns pending reminders whose fire time has
	// passed (the sweeper's dispatch pass input).
	ListPendingDueBefore(ctx context.Context, tx Tx, cutoff time.Time) ([]*model.RenewalReminder, error)
	// ListPendingByUserProduct returns still-pending reminders for a
	// user+product pair. There should be at most one, but callers must
	// tolerate more.
	ListPendingByUserProduct(ctx context.Context, tx Tx, userID, productID string) ([]*model.RenewalReminder, error)
	MarkSent(ctx context.Context, tx Tx, id string, at time.Time) error
	MarkRenewed(ctx context.Context, tx Tx, id string) error
}

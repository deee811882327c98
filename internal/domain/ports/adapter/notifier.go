package adapter

import (
	"context"

	"cms-billing/internal/domain/model"
)

// Notifier is the external notification collaborator the sweeper hands
// dispatched reminders to. The core's obligation ends at "mark dispatched";
// delivery is someone else's problem.
type Notifier interface {
	NotifyRenewalDue(ctx context.Context, r *model.RenewalReminder) error
}

// NoopNotifier drops notifications on the floor. Used when no collaborator
// is configured.
type NoopNotifier struct{}

var _ Notifier = (*NoopNotifier)(nil)

func (NoopNotifier) NotifyRenewalDue(context.Context, *model.RenewalReminder) error { return nil }

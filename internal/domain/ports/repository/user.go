package repository

import (
	"context"

	"cms-billing/internal/domain/model"
)

// UserRepository is the port for the billing view of CMS users.
type UserRepository interface {
	FindByID(ctx context.Context, tx Tx, id string) (*model.User, error)
	FindByStripeCustomerID(ctx context.Context, tx Tx, customerID string) (*model.User, error)
	SetStripeCustomerID(ctx context.Context, tx Tx, id, customerID string) error
	// MirrorSubscription updates the denormalized subscription status and
	// current product on the user record. currentProductID may be empty to
	// clear it.
	MirrorSubscription(ctx context.Context, tx Tx, id string, status model.SubscriptionStatus, currentProductID string) error
}

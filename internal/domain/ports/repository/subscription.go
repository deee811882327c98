package repository

import (
	"context"
	"time"

	"cms-billing/internal/domain/model"
)

// SubscriptionRepository is the port for user subscriptions.
type SubscriptionRepository interface {
	Save(ctx context.Context, tx Tx, s *model.Subscription) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Subscription, error)
	FindByIDAndUser(ctx context.Context, tx Tx, id, userID string) (*model.Subscription, error)
	FindByProviderID(ctx context.Context, tx Tx, providerID string) (*model.Subscription, error)
	// FindCurrentByUser returns the user's active or trialing subscription,
	// newest first, or domain.ErrNotFound.
	FindCurrentByUser(ctx context.Context, tx Tx, userID string) (*model.Subscription, error)
	// ListActiveExpiredBefore returns active subscriptions whose current
	// period end is before the cutoff (the sweeper's expiry pass input).
	ListActiveExpiredBefore(ctx context.Context, tx Tx, cutoff time.Time) ([]*model.Subscription, error)
	// ListExpiringCryptoByUser returns the user's active cryptomus/free_crypto
	// subscriptions whose period ends before the cutoff.
	ListExpiringCryptoByUser(ctx context.Context, tx Tx, userID string, cutoff time.Time) ([]*model.Subscription, error)
}

package repository

import (
	"context"

	"cms-billing/internal/domain/model"
)

// PurchaseRepository is the port for one-time purchase records.
type PurchaseRepository interface {
	Save(ctx context.Context, tx Tx, p *model.Purchase) error
	FindByProviderPaymentID(ctx context.Context, tx Tx, providerPaymentID string) (*model.Purchase, error)
	ListByUser(ctx context.Context, tx Tx, userID string) ([]*model.Purchase, error)
}

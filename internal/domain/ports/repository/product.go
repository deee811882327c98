package repository

import (
	"context"

	"cms-billing/internal/domain/model"
)

// ProductRepository is the port for the product catalog.
type ProductRepository interface {
	Save(ctx context.Context, tx Tx, p *model.Product) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Product, error)
	// FindByIDAndKind resolves a product only when it matches the expected
	// kind; returns domain.ErrNotFound otherwise.
	FindByIDAndKind(ctx context.Context, tx Tx, id string, kind model.ProductKind) (*model.Product, error)
	FindByStripePriceID(ctx context.Context, tx Tx, priceID string) (*model.Product, error)
	ListActive(ctx context.Context, tx Tx, kind model.ProductKind) ([]*model.Product, error)
	// SetStripeIDs mirrors the lazily created Stripe product/price ids.
	SetStripeIDs(ctx context.Context, tx Tx, id, stripeProductID, stripePriceID string) error
}

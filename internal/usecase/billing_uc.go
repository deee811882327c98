package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"cms-billing/internal/domain"
	"cms-billing/internal/domain/model"
	"cms-billing/internal/domain/ports/repository"
)

// Compile-time check
var _ BillingUseCase = (*billingUC)(nil)

// BillingData aggregates everything the account billing page shows.
type BillingData struct {
	User         *model.User
	Subscription *model.Subscription // nil when none active
	Product      *model.Product      // product of the active subscription
	Purchases    []*model.Purchase
}

type BillingUseCase interface {
	ActiveProducts(ctx context.Context, kind model.ProductKind) ([]*model.Product, error)
	// UserSubscription returns the user's active or trialing subscription,
	// or nil when there is none.
	UserSubscription(ctx context.Context, userID string) (*model.Subscription, error)
	BillingData(ctx context.Context, userID string) (*BillingData, error)
}

type billingUC struct {
	users     repository.UserRepository
	products  repository.ProductRepository
	subs      repository.SubscriptionRepository
	purchases repository.PurchaseRepository
	log       *zerolog.Logger
}

func NewBillingUseCase(
	users repository.UserRepository,
	products repository.ProductRepository,
	subs repository.SubscriptionRepository,
	purchases repository.PurchaseRepository,
	logger *zerolog.Logger,
) *billingUC {
	ucLog := logger.With().Str("component", "BillingUC").Logger()
	return &billingUC{users: users, products: products, subs: subs, purchases: purchases, log: &ucLog}
}

func (u *billingUC) ActiveProducts(ctx context.Context, kind model.ProductKind) ([]*model.Product, error) {
	return u.products.ListActive(ctx, repository.NoTX, kind)
}

func (u *billingUC) UserSubscription(ctx context.Context, userID string) (*model.Subscription, error) {
	sub, err := u.subs.FindCurrentByUser(ctx, repository.NoTX, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return sub, nil
}

func (u *billingUC) BillingData(ctx context.Context, userID string) (*BillingData, error) {
	user, err := u.users.FindByID(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, err
	}

	data := &BillingData{User: user}

	sub, err := u.UserSubscription(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load subscription: %w", err)
	}
	if sub != nil {
		data.Subscription = sub
		product, err := u.products.FindByID(ctx, repository.NoTX, sub.ProductID)
		if err != nil {
			u.log.Warn().Err(err).Str("product", sub.ProductID).Msg("product of active subscription missing")
		} else {
			data.Product = product
		}
	}

	purchases, err := u.purchases.ListByUser(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, fmt.Errorf("load purchases: %w", err)
	}
	data.Purchases = purchases
	return data, nil
}

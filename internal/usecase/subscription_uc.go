package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"cms-billing/internal/domain"
	"cms-billing/internal/domain/model"
	"cms-billing/internal/domain/ports/adapter"
	"cms-billing/internal/domain/ports/repository"
)

// Compile-time check
var _ SubscriptionUseCase = (*subscriptionUC)(nil)

// SubscriptionUseCase manages card-rail subscriptions on the user's behalf.
// Crypto and free subscriptions have no provider-side state to mutate and
// are rejected with ErrRailNotConfigured.
type SubscriptionUseCase interface {
	// Cancel flags the subscription to lapse at the current period end.
	Cancel(ctx context.Context, userID, subscriptionID string) error
	// Reactivate clears the cancel-at-period-end flag before it takes effect.
	Reactivate(ctx context.Context, userID, subscriptionID string) error
	// Upgrade swaps the subscription to a different subscription product,
	// invoicing the proration immediately.
	Upgrade(ctx context.Context, userID, subscriptionID, newProductID string) error
	// PortalSession returns a provider-hosted billing portal URL.
	PortalSession(ctx context.Context, userID, returnURL string) (string, error)
}

type subscriptionUC struct {
	users    repository.UserRepository
	products repository.ProductRepository
	subs     repository.SubscriptionRepository
	card     adapter.CardRail
	log      *zerolog.Logger
}

func NewSubscriptionUseCase(
	users repository.UserRepository,
	products repository.ProductRepository,
	subs repository.SubscriptionRepository,
	card adapter.CardRail,
	logger *zerolog.Logger,
) *subscriptionUC {
	ucLog := logger.With().Str("component", "SubscriptionUC").Logger()
	return &subscriptionUC{users: users, products: products, subs: subs, card: card, log: &ucLog}
}

// loadCardSubscription resolves the subscription and enforces that it is
// managed by the card rail.
func (u *subscriptionUC) loadCardSubscription(ctx context.Context, userID, subscriptionID string) (*model.Subscription, error) {
	sub, err := u.subs.FindByIDAndUser(ctx, repository.NoTX, subscriptionID, userID)
	if err != nil {
		return nil, err
	}
	origin := sub.Origin
	if origin == "" {
		origin = model.OriginFromProviderID(sub.ProviderSubscriptionID)
	}
	if origin != model.OriginStripe {
		return nil, fmt.Errorf("%w: subscription is not managed by the card processor, contact support", domain.ErrRailNotConfigured)
	}
	return sub, nil
}

func (u *subscriptionUC) Cancel(ctx context.Context, userID, subscriptionID string) error {
	sub, err := u.loadCardSubscription(ctx, userID, subscriptionID)
	if err != nil {
		return err
	}
	if err := u.card.SetCancelAtPeriodEnd(ctx, sub.ProviderSubscriptionID, true); err != nil {
		return err
	}
	sub.CancelAtPeriodEnd = true
	sub.UpdatedAt = time.Now()
	if err := u.subs.Save(ctx, repository.NoTX, sub); err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}
	u.log.Info().Str("subscription", sub.ID).Msg("cancel at period end set")
	return nil
}

func (u *subscriptionUC) Reactivate(ctx context.Context, userID, subscriptionID string) error {
	sub, err := u.loadCardSubscription(ctx, userID, subscriptionID)
	if err != nil {
		return err
	}
	if err := u.card.SetCancelAtPeriodEnd(ctx, sub.ProviderSubscriptionID, false); err != nil {
		return err
	}
	sub.CancelAtPeriodEnd = false
	sub.UpdatedAt = time.Now()
	if err := u.subs.Save(ctx, repository.NoTX, sub); err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}
	u.log.Info().Str("subscription", sub.ID).Msg("cancel at period end cleared")
	return nil
}

func (u *subscriptionUC) Upgrade(ctx context.Context, userID, subscriptionID, newProductID string) error {
	sub, err := u.loadCardSubscription(ctx, userID, subscriptionID)
	if err != nil {
		return err
	}
	product, err := u.products.FindByIDAndKind(ctx, repository.NoTX, newProductID, model.ProductKindSubscription)
	if err != nil {
		return err
	}

	ids, err := u.card.EnsureProduct(ctx, product)
	if err != nil {
		return err
	}
	if ids.ProductID != product.StripeProductID || ids.PriceID != product.StripePriceID {
		if err := u.products.SetStripeIDs(ctx, repository.NoTX, product.ID, ids.ProductID, ids.PriceID); err != nil {
			return fmt.Errorf("mirror product ids: %w", err)
		}
	}

	if err := u.card.ChangeSubscriptionItem(ctx, sub.ProviderSubscriptionID, ids.PriceID); err != nil {
		return err
	}

	// The provider webhook confirms the change; updating locally keeps
	// reads consistent in the meantime.
	sub.ProductID = product.ID
	sub.UpdatedAt = time.Now()
	if err := u.subs.Save(ctx, repository.NoTX, sub); err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}
	u.log.Info().Str("subscription", sub.ID).Str("product", product.ID).Msg("subscription upgraded")
	return nil
}

func (u *subscriptionUC) PortalSession(ctx context.Context, userID, returnURL string) (string, error) {
	user, err := u.users.FindByID(ctx, repository.NoTX, userID)
	if err != nil {
		return "", err
	}
	if user.StripeCustomerID == "" {
		return "", fmt.Errorf("%w: user has no card-rail customer", domain.ErrNotFound)
	}
	return u.card.CreatePortalSession(ctx, user.StripeCustomerID, returnURL)
}

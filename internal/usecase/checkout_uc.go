package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"cms-billing/internal/domain"
	"cms-billing/internal/domain/model"
	"cms-billing/internal/domain/ports/adapter"
	"cms-billing/internal/domain/ports/repository"
	"cms-billing/internal/infra/metrics"
)

// Compile-time check
var _ CheckoutUseCase = (*checkoutUC)(nil)

// CheckoutInput is the rail-agnostic checkout request.
type CheckoutInput struct {
	ProductID  string
	PriceType  model.ProductKind
	CouponCode string
	SuccessURL string
	CancelURL  string
}

// CheckoutResult carries whichever fields the chosen rail produced.
type CheckoutResult struct {
	URL       string
	SessionID string // card rail
	PaymentID string // crypto rail
	OrderID   string // crypto rail
	IsPrepaid bool
}

type CheckoutUseCase interface {
	// CardCheckout builds a hosted checkout session on the card rail,
	// lazily mirroring the customer, product and coupon onto the provider.
	CardCheckout(ctx context.Context, userID string, in CheckoutInput) (*CheckoutResult, error)
	// CryptoCheckout creates a single crypto payment and a pending payment
	// intent. Monthly subscriptions become prepaid single payments because
	// the crypto rail has no native recurring billing.
	CryptoCheckout(ctx context.Context, userID string, in CheckoutInput) (*CheckoutResult, error)
}

type checkoutUC struct {
	users        repository.UserRepository
	products     repository.ProductRepository
	coupons      repository.CouponRepository
	subs         repository.SubscriptionRepository
	purchases    repository.PurchaseRepository
	intents      repository.PaymentIntentRepository
	couponUC     CouponUseCase
	card         adapter.CardRail
	crypto       adapter.CryptoRail
	publicDomain string
	log          *zerolog.Logger
	now          func() time.Time
}

func NewCheckoutUseCase(
	users repository.UserRepository,
	products repository.ProductRepository,
	coupons repository.CouponRepository,
	subs repository.SubscriptionRepository,
	purchases repository.PurchaseRepository,
	intents repository.PaymentIntentRepository,
	couponUC CouponUseCase,
	card adapter.CardRail,
	crypto adapter.CryptoRail,
	publicDomain string,
	logger *zerolog.Logger,
) *checkoutUC {
	ucLog := logger.With().Str("component", "CheckoutUC").Logger()
	return &checkoutUC{
		users:        users,
		products:     products,
		coupons:      coupons,
		subs:         subs,
		purchases:    purchases,
		intents:      intents,
		couponUC:     couponUC,
		card:         card,
		crypto:       crypto,
		publicDomain: strings.TrimRight(publicDomain, "/"),
		log:          &ucLog,
		now:          time.Now,
	}
}

// resolveCoupon validates an optional code and reports whether it zeroes the
// price entirely. An invalid code aborts the checkout.
func (u *checkoutUC) resolveCoupon(ctx context.Context, in CheckoutInput) (*model.Coupon, error) {
	if in.CouponCode == "" {
		return nil, nil
	}
	v, err := u.couponUC.Validate(ctx, in.CouponCode, in.ProductID)
	if err != nil {
		return nil, err
	}
	if !v.Valid {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidArgument, v.Error)
	}
	return v.Coupon, nil
}

// materializeFree grants the product without touching any provider. Used for
// the 100%-off short circuit on both rails.
func (u *checkoutUC) materializeFree(ctx context.Context, userID string, product *model.Product, coupon *model.Coupon, prefix string, in CheckoutInput) (*CheckoutResult, error) {
	now := u.now()
	if product.Kind == model.ProductKindOneTime {
		p := &model.Purchase{
			ID:                uuid.NewString(),
			UserID:            userID,
			ProductID:         product.ID,
			ProviderPaymentID: prefix + ulid.Make().String(),
			Amount:            0,
			Currency:          product.Currency,
			Status:            model.PurchaseStatusCompleted,
			PurchasedAt:       now,
			CreatedAt:         now,
		}
		if err := u.purchases.Save(ctx, repository.NoTX, p); err != nil {
			return nil, fmt.Errorf("save free purchase: %w", err)
		}
	} else {
		sub := &model.Subscription{
			ID:                     uuid.NewString(),
			UserID:                 userID,
			ProductID:              product.ID,
			Status:                 model.SubscriptionStatusActive,
			Origin:                 model.OriginFromProviderID(prefix),
			ProviderSubscriptionID: prefix + ulid.Make().String(),
			CurrentPeriodStart:     now,
			CurrentPeriodEnd:       now.AddDate(0, 0, 30),
			CreatedAt:              now,
			UpdatedAt:              now,
		}
		if err := u.subs.Save(ctx, repository.NoTX, sub); err != nil {
			return nil, fmt.Errorf("save free subscription: %w", err)
		}
		if err := u.users.MirrorSubscription(ctx, repository.NoTX, userID, model.SubscriptionStatusActive, product.ID); err != nil {
			u.log.Warn().Err(err).Str("user", userID).Msg("mirror free subscription failed")
		}
	}
	u.couponUC.IncrementUsage(ctx, coupon.ID)
	u.log.Info().Str("user", userID).Str("product", product.ID).Str("coupon", coupon.Code).Msg("free checkout granted")

	url := in.SuccessURL
	if url == "" {
		url = u.publicDomain + "/checkout/success"
	}
	return &CheckoutResult{URL: url}, nil
}

func (u *checkoutUC) CardCheckout(ctx context.Context, userID string, in CheckoutInput) (*CheckoutResult, error) {
	res, err := u.cardCheckout(ctx, userID, in)
	if err != nil {
		metrics.IncCheckout("stripe", "error")
		return nil, err
	}
	metrics.IncCheckout("stripe", "ok")
	return res, nil
}

func (u *checkoutUC) cardCheckout(ctx context.Context, userID string, in CheckoutInput) (*CheckoutResult, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}
	coupon, err := u.resolveCoupon(ctx, in)
	if err != nil {
		return nil, err
	}
	product, err := u.products.FindByIDAndKind(ctx, repository.NoTX, in.ProductID, in.PriceType)
	if err != nil {
		return nil, err
	}
	if coupon != nil && coupon.IsFree() {
		return u.materializeFree(ctx, userID, product, coupon, model.PrefixFree, in)
	}

	user, err := u.users.FindByID(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, err
	}
	if user.StripeCustomerID == "" {
		customerID, err := u.card.CreateCustomer(ctx, user)
		if err != nil {
			return nil, err
		}
		if err := u.users.SetStripeCustomerID(ctx, repository.NoTX, user.ID, customerID); err != nil {
			return nil, fmt.Errorf("mirror customer id: %w", err)
		}
		user.StripeCustomerID = customerID
	}

	ids, err := u.card.EnsureProduct(ctx, product)
	if err != nil {
		return nil, err
	}
	if ids.ProductID != product.StripeProductID || ids.PriceID != product.StripePriceID {
		if err := u.products.SetStripeIDs(ctx, repository.NoTX, product.ID, ids.ProductID, ids.PriceID); err != nil {
			return nil, fmt.Errorf("mirror product ids: %w", err)
		}
	}

	var couponID string
	if coupon != nil {
		couponID, err = u.card.EnsureCoupon(ctx, coupon)
		if err != nil {
			return nil, err
		}
		if couponID != coupon.StripeCouponID {
			if err := u.coupons.SetStripeCouponID(ctx, repository.NoTX, coupon.ID, couponID); err != nil {
				return nil, fmt.Errorf("mirror coupon id: %w", err)
			}
		}
	}

	mode := adapter.ModePayment
	if product.Kind == model.ProductKindSubscription {
		mode = adapter.ModeSubscription
	}
	meta := map[string]string{
		"userId":    userID,
		"productId": product.ID,
		"type":      string(product.Kind),
	}
	if coupon != nil {
		meta["couponCode"] = coupon.Code
	}
	sess, err := u.card.CreateCheckoutSession(ctx, adapter.CheckoutSessionParams{
		CustomerID: user.StripeCustomerID,
		PriceID:    ids.PriceID,
		Mode:       mode,
		CouponID:   couponID,
		SuccessURL: u.urlOr(in.SuccessURL, "/checkout/success"),
		CancelURL:  u.urlOr(in.CancelURL, "/checkout/cancel"),
		Metadata:   meta,
	})
	if err != nil {
		return nil, err
	}
	return &CheckoutResult{URL: sess.URL, SessionID: sess.ID}, nil
}

func (u *checkoutUC) CryptoCheckout(ctx context.Context, userID string, in CheckoutInput) (*CheckoutResult, error) {
	res, err := u.cryptoCheckout(ctx, userID, in)
	if err != nil {
		metrics.IncCheckout("cryptomus", "error")
		return nil, err
	}
	metrics.IncCheckout("cryptomus", "ok")
	return res, nil
}

func (u *checkoutUC) cryptoCheckout(ctx context.Context, userID string, in CheckoutInput) (*CheckoutResult, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}
	coupon, err := u.resolveCoupon(ctx, in)
	if err != nil {
		return nil, err
	}
	product, err := u.products.FindByIDAndKind(ctx, repository.NoTX, in.ProductID, in.PriceType)
	if err != nil {
		return nil, err
	}
	if coupon != nil && coupon.IsFree() {
		return u.materializeFree(ctx, userID, product, coupon, model.PrefixFreeCrypto, in)
	}

	finalPrice := u.couponUC.ApplyDiscount(product.Price, coupon)
	now := u.now()

	// Monthly subscriptions cannot recur natively on this rail: the first
	// period is sold as a prepaid single payment and renewed manually.
	kind := model.PaymentKind(in.PriceType)
	orderID := fmt.Sprintf("%s_%s_%s_%d", in.PriceType, product.ID, userID, now.Unix())
	isPrepaid := false
	if product.Kind == model.ProductKindSubscription && product.Interval != model.IntervalYear {
		kind = model.PaymentKindPrepaidSubscription
		orderID = fmt.Sprintf("prepaid_sub_%s_%s_%d", product.ID, userID, now.Unix())
		isPrepaid = true
	}

	payment, err := u.crypto.CreatePayment(ctx, adapter.CryptoPaymentParams{
		Amount:      finalPrice,
		Currency:    product.Currency,
		OrderID:     orderID,
		ReturnURL:   u.urlOr(in.CancelURL, "/checkout/cancel"),
		SuccessURL:  u.urlOr(in.SuccessURL, "/checkout/success"),
		CallbackURL: u.publicDomain + "/api/cryptomus/webhook",
	})
	if err != nil {
		return nil, err
	}

	pi := &model.PaymentIntent{
		ID:         uuid.NewString(),
		UserID:     userID,
		ProductID:  product.ID,
		UUID:       payment.UUID,
		OrderID:    orderID,
		Amount:     finalPrice,
		Currency:   product.Currency,
		Kind:       kind,
		Status:     model.PaymentIntentPending,
		PaymentURL: payment.PaymentURL,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if coupon != nil {
		pi.CouponCode = coupon.Code
	}
	if err := u.intents.Save(ctx, repository.NoTX, pi); err != nil {
		// The provider payment already exists; keep its reference around
		// for manual reconciliation.
		u.log.Error().Err(err).Str("uuid", payment.UUID).Str("order_id", orderID).Msg("payment intent save failed after provider create")
		return nil, fmt.Errorf("save payment intent: %w", err)
	}

	return &CheckoutResult{
		URL:       payment.PaymentURL,
		PaymentID: pi.ID,
		OrderID:   orderID,
		IsPrepaid: isPrepaid,
	}, nil
}

func (u *checkoutUC) urlOr(v, fallbackPath string) string {
	if v != "" {
		return v
	}
	return u.publicDomain + fallbackPath
}

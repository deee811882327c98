package adapter

import (
	"context"

	"cms-billing/internal/domain/model"
)

// CheckoutMode selects the Stripe checkout session mode.
type CheckoutMode string

const (
	ModeSubscription CheckoutMode = "subscription"
	ModePayment      CheckoutMode = "payment"
)

// CheckoutSessionParams describes a card-rail checkout session.
type CheckoutSessionParams struct {
	CustomerID string
	PriceID    string
	Mode       CheckoutMode
	// CouponID attaches a session-level discount. When set, generic
	// promotion codes are disabled for the session.
	CouponID   string
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

// CheckoutSession is the normalized card-rail session result.
type CheckoutSession struct {
	ID  string
	URL string
}

// MirroredIDs is the result of the idempotent create-or-verify mirroring of
// a product onto the card rail.
type MirroredIDs struct {
	ProductID string
	PriceID   string
}

// CardRail is the capability interface for the card payment processor.
type CardRail interface {
	CreateCustomer(ctx context.Context, u *model.User) (string, error)
	// EnsureProduct returns usable provider product/price ids, verifying any
	// mirrored ids still resolve upstream and recreating them otherwise.
	EnsureProduct(ctx context.Context, p *model.Product) (MirroredIDs, error)
	// EnsureCoupon does the same for the provider-side coupon mirror.
	EnsureCoupon(ctx context.Context, c *model.Coupon) (string, error)
	CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (CheckoutSession, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
	// SetCancelAtPeriodEnd flips the provider-side cancel flag; used by both
	// cancel (true) and reactivate (false).
	SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) error
	// ChangeSubscriptionItem swaps the subscription's single item to a new
	// price, invoicing the proration immediately.
	ChangeSubscriptionItem(ctx context.Context, subscriptionID, newPriceID string) error
}

// CryptoPayment is the normalized crypto-rail payment result.
type CryptoPayment struct {
	UUID       string
	OrderID    string
	Amount     string // major-unit decimal string as sent to the provider
	Status     string
	PaymentURL string
}

// CryptoPaymentParams describes a crypto payment to create. Amount is in
// minor units; the adapter converts and forces the settlement currency.
type CryptoPaymentParams struct {
	Amount      int64
	Currency    string
	OrderID     string
	ReturnURL   string
	SuccessURL  string
	CallbackURL string
}

// CryptoWebhook is the crypto rail's single webhook shape, decoded at the
// boundary and never carried past it raw.
type CryptoWebhook struct {
	UUID           string
	OrderID        string
	Amount         string
	PaymentStatus  model.PaymentIntentStatus
	PayerAmount    string
	Network        string
	Currency       string
	PayerCurrency  string
	AdditionalData string
	Sign           string
}

// CryptoRail is the capability interface for the cryptocurrency gateway.
type CryptoRail interface {
	CreatePayment(ctx context.Context, params CryptoPaymentParams) (CryptoPayment, error)
	PaymentStatus(ctx context.Context, uuid string) (CryptoPayment, error)
	// VerifyWebhook recomputes the signature over the raw payload minus the
	// sign field. It never returns an error, only false.
	VerifyWebhook(payload map[string]any, sign string) bool
}

package adapter

import (
	"time"

	"cms-billing/internal/domain/model"
)

// CardEvent is the closed set of card-rail webhook events the reconciler
// handles. Raw provider shapes are decoded into one of these at the adapter
// boundary and never carried further.
type CardEvent interface{ cardEvent() }

// SubscriptionChanged covers customer.subscription.created and .updated.
type SubscriptionChanged struct {
	SubscriptionID    string
	CustomerID        string
	PriceID           string
	Status            model.SubscriptionStatus
	PeriodStart       time.Time
	PeriodEnd         time.Time
	CancelAtPeriodEnd bool
	CanceledAt        *time.Time
}

// SubscriptionDeleted covers customer.subscription.deleted.
type SubscriptionDeleted struct {
	SubscriptionID string
	CustomerID     string
}

// InvoicePaymentSucceeded is observed but triggers no state change.
type InvoicePaymentSucceeded struct {
	CustomerID string
	InvoiceID  string
}

// InvoicePaymentFailed demotes the user's mirrored status to past_due.
type InvoicePaymentFailed struct {
	CustomerID string
	InvoiceID  string
}

// CheckoutCompleted covers checkout.session.completed. Only payment-mode
// sessions are reconciled; subscription-mode sessions are fully handled by
// the subscription events.
type CheckoutCompleted struct {
	SessionID       string
	CustomerID      string
	PaymentIntentID string
	Mode            string
	AmountTotal     int64
	Currency        string
	Metadata        map[string]string
}

// IgnoredEvent is any event type outside the handled set.
type IgnoredEvent struct {
	Type string
}

func (SubscriptionChanged) cardEvent()     {}
func (SubscriptionDeleted) cardEvent()     {}
func (InvoicePaymentSucceeded) cardEvent() {}
func (InvoicePaymentFailed) cardEvent()    {}
func (CheckoutCompleted) cardEvent()       {}
func (IgnoredEvent) cardEvent()            {}

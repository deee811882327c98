package model

import (
	"strings"
	"time"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive            SubscriptionStatus = "active"
	SubscriptionStatusCanceled          SubscriptionStatus = "canceled"
	SubscriptionStatusIncomplete        SubscriptionStatus = "incomplete"
	SubscriptionStatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	SubscriptionStatusPastDue           SubscriptionStatus = "past_due"
	SubscriptionStatusTrialing          SubscriptionStatus = "trialing"
	SubscriptionStatusUnpaid            SubscriptionStatus = "unpaid"
)

// SubscriptionOrigin identifies which rail created a subscription. The
// provider id keeps its historical prefix (cryptomus_, free_, free_crypto_)
// for compatibility, but code branches on Origin, not on the prefix.
type SubscriptionOrigin string

const (
	OriginStripe     SubscriptionOrigin = "stripe"
	OriginCryptomus  SubscriptionOrigin = "cryptomus"
	OriginFree       SubscriptionOrigin = "free"
	OriginFreeCrypto SubscriptionOrigin = "free_crypto"
)

// Synthetic provider-id prefixes for non-Stripe origins.
const (
	PrefixCryptomus  = "cryptomus_"
	PrefixFree       = "free_"
	PrefixFreeCrypto = "free_crypto_"
)

// OriginFromProviderID recovers the origin from a persisted provider
// subscription id. Rows written before the origin column existed carry only
// the prefix.
func OriginFromProviderID(id string) SubscriptionOrigin {
	switch {
	case strings.HasPrefix(id, PrefixFreeCrypto):
		return OriginFreeCrypto
	case strings.HasPrefix(id, PrefixCryptomus):
		return OriginCryptomus
	case strings.HasPrefix(id, PrefixFree):
		return OriginFree
	default:
		return OriginStripe
	}
}

// Subscription is a user's entitlement to a subscription product. At most
// one subscription per user is expected in {active, trialing} at a time;
// this is enforced by the query pattern, not a constraint.
type Subscription struct {
	ID        string
	UserID    string
	ProductID string
	Status    SubscriptionStatus
	Origin    SubscriptionOrigin

	// Native Stripe subscription id, or a synthetic cryptomus_/free_/
	// free_crypto_ marker for the other origins.
	ProviderSubscriptionID string
	// Stripe customer id; empty for crypto and free subscriptions.
	ProviderCustomerID string

	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool
	CanceledAt         *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// InPeriod reports whether t falls inside the current billing period.
func (s *Subscription) InPeriod(t time.Time) bool {
	return !t.Before(s.CurrentPeriodStart) && t.Before(s.CurrentPeriodEnd)
}

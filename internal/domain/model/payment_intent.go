package model

import "time"

type PaymentKind string

const (
	PaymentKindOneTime             PaymentKind = "one_time"
	PaymentKindSubscription        PaymentKind = "subscription"
	PaymentKindPrepaidSubscription PaymentKind = "prepaid_subscription"
	PaymentKindSubscriptionRenewal PaymentKind = "subscription_renewal"
)

type PaymentIntentStatus string

const (
	PaymentIntentPending      PaymentIntentStatus = "pending"
	PaymentIntentPaid         PaymentIntentStatus = "paid"
	PaymentIntentFail         PaymentIntentStatus = "fail"
	PaymentIntentWrongAmount  PaymentIntentStatus = "wrong_amount"
	PaymentIntentProcess      PaymentIntentStatus = "process"
	PaymentIntentConfirmCheck PaymentIntentStatus = "confirm_check"
)

// PaymentIntent is the crypto rail's durable pending-payment record, written
// before the provider confirms payment and reconciled by the webhook. The
// card rail keeps the equivalent state on the provider side.
//
// Created pending at checkout time; mutated by the webhook reconciler; never
// deleted.
type PaymentIntent struct {
	ID         string
	UserID     string
	ProductID  string
	UUID       string // provider payment uuid
	OrderID    string // caller-generated, embeds type/product/user/timestamp
	Amount     int64  // minor units, after discount
	Currency   string
	Kind       PaymentKind
	Status     PaymentIntentStatus
	PaymentURL string
	CouponCode string // optional, uppercased

	// Set only for Kind == PaymentKindSubscriptionRenewal.
	RelatedSubscriptionID string

	// Mirrored from the webhook once paid.
	CryptoCurrency string
	CryptoAmount   string
	Network        string
	PaidAt         *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

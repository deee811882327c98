package model

import "time"

type PurchaseStatus string

const (
	PurchaseStatusPending   PurchaseStatus = "pending"
	PurchaseStatusCompleted PurchaseStatus = "completed"
	PurchaseStatusFailed    PurchaseStatus = "failed"
	PurchaseStatusRefunded  PurchaseStatus = "refunded"
)

// Purchase records a completed one-time sale. Immutable after creation in
// the normal flow.
type Purchase struct {
	ID        string
	UserID    string
	ProductID string
	// Stripe payment-intent id, or a synthetic cryptomus_/free_ reference.
	ProviderPaymentID string
	Amount            int64
	Currency          string
	Status            PurchaseStatus
	PurchasedAt       time.Time
	CreatedAt         time.Time
}

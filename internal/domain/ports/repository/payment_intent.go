package repository

import (
	"context"
	"time"

	"cms-billing/internal/domain/model"
)

// PaymentIntentRepository is the port for crypto-rail payment intents.
type PaymentIntentRepository interface {
	Save(ctx context.Context, tx Tx, pi *model.PaymentIntent) error
	FindByUUID(ctx context.Context, tx Tx, uuid string) (*model.PaymentIntent, error)
	// UpdateStatus applies the webhook's status and, when paid, the crypto
	// mirror fields. paidAt is nil unless the transition is to paid.
	UpdateStatus(ctx context.Context, tx Tx, id string, status model.PaymentIntentStatus, cryptoCurrency, cryptoAmount, network string, paidAt *time.Time) error
}

package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cms-billing/internal/domain"
	"cms-billing/internal/domain/model"
	"cms-billing/internal/domain/ports/adapter"
)

// webhookTolerance bounds how old a signed webhook timestamp may be.
const webhookTolerance = 5 * time.Minute

// StripeWebhookDecoder verifies Stripe-Signature headers and decodes raw
// event payloads into adapter.CardEvent values.
type StripeWebhookDecoder struct {
	signingSecret string
	now           func() time.Time
}

func NewStripeWebhookDecoder(signingSecret string) *StripeWebhookDecoder {
	return &StripeWebhookDecoder{signingSecret: signingSecret, now: time.Now}
}

// VerifySignature checks the v1 scheme of the Stripe-Signature header: an
// HMAC-SHA256 over "{timestamp}.{payload}" with the endpoint signing secret.
func (d *StripeWebhookDecoder) VerifySignature(payload []byte, header string) error {
	var ts string
	var sigs []string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sigs = append(sigs, v)
		}
	}
	if ts == "" || len(sigs) == 0 {
		return fmt.Errorf("%w: malformed signature header", domain.ErrInvalidSignature)
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: malformed timestamp", domain.ErrInvalidSignature)
	}
	age := d.now().Sub(time.Unix(unix, 0))
	if age > webhookTolerance || age < -webhookTolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", domain.ErrInvalidSignature)
	}

	mac := hmac.New(sha256.New, []byte(d.signingSecret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	for _, sig := range sigs {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			return nil
		}
	}
	return fmt.Errorf("%w: no matching v1 signature", domain.ErrInvalidSignature)
}

type stripeEvent struct {
	Type string          `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type stripeSubscriptionObject struct {
	ID                 string `json:"id"`
	Customer           string `json:"customer"`
	Status             string `json:"status"`
	CurrentPeriodStart int64  `json:"current_period_start"`
	CurrentPeriodEnd   int64  `json:"current_period_end"`
	CancelAtPeriodEnd  bool   `json:"cancel_at_period_end"`
	CanceledAt         *int64 `json:"canceled_at"`
	Items              struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

type stripeInvoiceObject struct {
	ID       string `json:"id"`
	Customer string `json:"customer"`
}

type stripeCheckoutSessionObject struct {
	ID            string            `json:"id"`
	Customer      string            `json:"customer"`
	PaymentIntent string            `json:"payment_intent"`
	Mode          string            `json:"mode"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata"`
}

// Decode parses a verified event body into one of the closed CardEvent
// variants. Unhandled event types come back as IgnoredEvent, never an error.
func (d *StripeWebhookDecoder) Decode(payload []byte) (adapter.CardEvent, error) {
	var ev stripeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("%w: unparseable event body", domain.ErrInvalidArgument)
	}

	switch ev.Type {
	case "customer.subscription.created", "customer.subscription.updated":
		var sub stripeSubscriptionObject
		if err := json.Unmarshal(ev.Data.Object, &sub); err != nil {
			return nil, fmt.Errorf("%w: unparseable subscription object", domain.ErrInvalidArgument)
		}
		out := adapter.SubscriptionChanged{
			SubscriptionID:    sub.ID,
			CustomerID:        sub.Customer,
			Status:            model.SubscriptionStatus(sub.Status),
			PeriodStart:       time.Unix(sub.CurrentPeriodStart, 0).UTC(),
			PeriodEnd:         time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
			CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		}
		if len(sub.Items.Data) > 0 {
			out.PriceID = sub.Items.Data[0].Price.ID
		}
		if sub.CanceledAt != nil {
			t := time.Unix(*sub.CanceledAt, 0).UTC()
			out.CanceledAt = &t
		}
		return out, nil

	case "customer.subscription.deleted":
		var sub stripeSubscriptionObject
		if err := json.Unmarshal(ev.Data.Object, &sub); err != nil {
			return nil, fmt.Errorf("%w: unparseable subscription object", domain.ErrInvalidArgument)
		}
		return adapter.SubscriptionDeleted{SubscriptionID: sub.ID, CustomerID: sub.Customer}, nil

	case "invoice.payment_succeeded":
		var inv stripeInvoiceObject
		if err := json.Unmarshal(ev.Data.Object, &inv); err != nil {
			return nil, fmt.Errorf("%w: unparseable invoice object", domain.ErrInvalidArgument)
		}
		return adapter.InvoicePaymentSucceeded{CustomerID: inv.Customer, InvoiceID: inv.ID}, nil

	case "invoice.payment_failed":
		var inv stripeInvoiceObject
		if err := json.Unmarshal(ev.Data.Object, &inv); err != nil {
			return nil, fmt.Errorf("%w: unparseable invoice object", domain.ErrInvalidArgument)
		}
		return adapter.InvoicePaymentFailed{CustomerID: inv.Customer, InvoiceID: inv.ID}, nil

	case "checkout.session.completed":
		var sess stripeCheckoutSessionObject
		if err := json.Unmarshal(ev.Data.Object, &sess); err != nil {
			return nil, fmt.Errorf("%w: unparseable checkout session object", domain.ErrInvalidArgument)
		}
		return adapter.CheckoutCompleted{
			SessionID:       sess.ID,
			CustomerID:      sess.Customer,
			PaymentIntentID: sess.PaymentIntent,
			Mode:            sess.Mode,
			AmountTotal:     sess.AmountTotal,
			Currency:        sess.Currency,
			Metadata:        sess.Metadata,
		}, nil
	}

	return adapter.IgnoredEvent{Type: ev.Type}, nil
}

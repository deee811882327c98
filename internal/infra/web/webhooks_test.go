//go:build !integration

package web_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cms-billing/internal/domain"
	"cms-billing/internal/domain/ports/adapter"
)

func stripeSignature(secret string, payload []byte) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func postStripeWebhook(h http.Handler, payload []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", strings.NewReader(string(payload)))
	req.Header.Set("Stripe-Signature", signature)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStripeWebhookValidSignature(t *testing.T) {
	h, m := newTestServer()
	var got adapter.CardEvent
	m.reconcile.HandleCardEventFunc = func(_ context.Context, ev adapter.CardEvent) error {
		got = ev
		return nil
	}

	payload := []byte(`{"type":"invoice.payment_failed","data":{"object":{"id":"in_1","customer":"cus_1"}}}`)
	rec := postStripeWebhook(h, payload, stripeSignature("whsec", payload))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if out := decodeBody(t, rec); out["received"] != true {
		t.Errorf("response = %v", out)
	}
	if _, ok := got.(adapter.InvoicePaymentFailed); !ok {
		t.Errorf("event = %T, want InvoicePaymentFailed", got)
	}
}

func TestStripeWebhookBadSignature(t *testing.T) {
	h, m := newTestServer()
	m.reconcile.HandleCardEventFunc = func(context.Context, adapter.CardEvent) error {
		t.Error("the reconciler must not see an unverified event")
		return nil
	}

	payload := []byte(`{"type":"invoice.payment_failed","data":{"object":{}}}`)
	rec := postStripeWebhook(h, payload, stripeSignature("wrong-secret", payload))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if out := decodeBody(t, rec); out["error"] != "Invalid signature" {
		t.Errorf("response = %v", out)
	}
}

func TestStripeWebhookHandlerFailureIs500(t *testing.T) {
	h, m := newTestServer()
	m.reconcile.HandleCardEventFunc = func(context.Context, adapter.CardEvent) error {
		return errors.New("db down")
	}

	payload := []byte(`{"type":"invoice.payment_failed","data":{"object":{}}}`)
	rec := postStripeWebhook(h, payload, stripeSignature("whsec", payload))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500 so the provider redelivers", rec.Code)
	}
}

func TestCryptomusWebhook(t *testing.T) {
	h, m := newTestServer()
	var got map[string]any
	m.reconcile.HandleCryptoWebhookFunc = func(_ context.Context, payload map[string]any) error {
		got = payload
		return nil
	}

	body := map[string]any{"uuid": "uuid-1", "payment_status": "paid", "sign": "abc"}
	rec := doJSON(t, h, http.MethodPost, "/api/cryptomus/webhook", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if out := decodeBody(t, rec); out["success"] != true {
		t.Errorf("response = %v", out)
	}
	if got["uuid"] != "uuid-1" || got["sign"] != "abc" {
		t.Errorf("payload = %v, the raw body must reach the reconciler intact", got)
	}
}

func TestCryptomusWebhookErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{"bad signature", domain.ErrInvalidSignature, http.StatusBadRequest, "Invalid signature"},
		{"unknown payment", fmt.Errorf("%w: uuid x", domain.ErrPaymentUnknown), http.StatusNotFound, "Payment not found"},
		{"infrastructure failure", errors.New("db down"), http.StatusInternalServerError, "Internal error"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h, m := newTestServer()
			m.reconcile.HandleCryptoWebhookFunc = func(context.Context, map[string]any) error {
				return tc.err
			}
			rec := doJSON(t, h, http.MethodPost, "/api/cryptomus/webhook", map[string]any{"uuid": "x"}, nil)
			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if out := decodeBody(t, rec); out["error"] != tc.wantError {
				t.Errorf("error = %v, want %q", out["error"], tc.wantError)
			}
		})
	}
}

func TestCryptomusWebhookBadBody(t *testing.T) {
	h, _ := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/api/cryptomus/webhook", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

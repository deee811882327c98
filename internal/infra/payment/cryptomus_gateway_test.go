//go:build !integration

package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"cms-billing/internal/domain"
	"cms-billing/internal/domain/ports/adapter"
)

func testCryptomusGateway(t *testing.T, handler http.HandlerFunc) *CryptomusGateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	log := zerolog.Nop()
	g := NewCryptomusGateway("m1", "key", "usd", &log)
	g.baseURL = srv.URL
	return g
}

func TestCryptomusCreatePayment(t *testing.T) {
	var gotPath, gotMerchant, gotSign string
	var gotBody map[string]any

	g := testCryptomusGateway(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMerchant = r.Header.Get("merchant")
		gotSign = r.Header.Get("sign")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"state": 0,
			"result": map[string]any{
				"uuid":           "uuid-1",
				"order_id":       "o1",
				"amount":         "20.00",
				"payment_status": "check",
				"url":            "https://pay.example/uuid-1",
			},
		})
	})

	p, err := g.CreatePayment(context.Background(), adapter.CryptoPaymentParams{
		Amount:      2000,
		Currency:    "USD",
		OrderID:     "o1",
		CallbackURL: "https://cms.example/api/cryptomus/webhook",
	})
	if err != nil {
		t.Fatal(err)
	}
	if p.UUID != "uuid-1" || p.PaymentURL != "https://pay.example/uuid-1" {
		t.Errorf("payment = %+v", p)
	}

	if gotPath != "/payment" {
		t.Errorf("path = %q, want /payment", gotPath)
	}
	if gotMerchant != "m1" {
		t.Errorf("merchant header = %q, want m1", gotMerchant)
	}
	if gotBody["amount"] != "20.00" {
		t.Errorf("amount = %v, want the major-unit string", gotBody["amount"])
	}
	if gotBody["currency"] != "USD" {
		t.Errorf("currency = %v, want the uppercased settlement currency", gotBody["currency"])
	}
	if gotBody["url_callback"] != "https://cms.example/api/cryptomus/webhook" {
		t.Errorf("url_callback = %v", gotBody["url_callback"])
	}

	// The sign header must match the canonical signature of the sent body.
	want, err := signPayload(gotBody, "key")
	if err != nil {
		t.Fatal(err)
	}
	if gotSign != want {
		t.Errorf("sign header = %q, want %q", gotSign, want)
	}
}

func TestCryptomusProviderError(t *testing.T) {
	g := testCryptomusGateway(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]any{"state": 1, "message": "amount too small"})
	})

	_, err := g.CreatePayment(context.Background(), adapter.CryptoPaymentParams{Amount: 1, OrderID: "o1"})
	pe, ok := domain.AsProviderError(err)
	if !ok {
		t.Fatalf("error = %v, want ProviderError", err)
	}
	if pe.Rail != "cryptomus" || pe.Message != "amount too small" {
		t.Errorf("provider error = %+v", pe)
	}
}

func TestCryptomusNonZeroStateIsError(t *testing.T) {
	// 200 with a non-zero state still means failure.
	g := testCryptomusGateway(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"state": 2, "message": "merchant blocked"})
	})

	if _, err := g.PaymentStatus(context.Background(), "uuid-1"); err == nil {
		t.Fatal("expected an error for a non-zero state")
	}
}

func TestCryptomusUnparseableResponse(t *testing.T) {
	g := testCryptomusGateway(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>gateway timeout</html>"))
	})

	_, err := g.CreatePayment(context.Background(), adapter.CryptoPaymentParams{Amount: 2000, OrderID: "o1"})
	pe, ok := domain.AsProviderError(err)
	if !ok {
		t.Fatalf("error = %v, want ProviderError", err)
	}
	if pe.Message != "unparseable response" {
		t.Errorf("Message = %q", pe.Message)
	}
}

package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"cms-billing/internal/domain"
	"cms-billing/internal/domain/ports/adapter"
)

const cryptomusBaseURL = "https://api.cryptomus.com/v1"

// CryptomusGateway implements adapter.CryptoRail with direct HTTP calls.
type CryptomusGateway struct {
	merchantID string
	apiKey     string
	// settlement is forced on every payment regardless of the product
	// currency; the provider rejects some fiat codes.
	settlement string
	baseURL    string
	client     *http.Client
	log        *zerolog.Logger
}

var _ adapter.CryptoRail = (*CryptomusGateway)(nil)

func NewCryptomusGateway(merchantID, apiKey, settlementCurrency string, logger *zerolog.Logger) *CryptomusGateway {
	gwLog := logger.With().Str("component", "CryptomusGateway").Logger()
	return &CryptomusGateway{
		merchantID: merchantID,
		apiKey:     apiKey,
		settlement: strings.ToUpper(settlementCurrency),
		baseURL:    cryptomusBaseURL,
		client:     &http.Client{Timeout: 30 * time.Second},
		log:        &gwLog,
	}
}

// formatAmount renders minor units as a major-unit decimal string with two
// decimals, e.g. 2000 -> "20.00".
func formatAmount(minor int64) string {
	neg := ""
	if minor < 0 {
		neg = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", neg, minor/100, minor%100)
}

type cryptomusEnvelope struct {
	State   int             `json:"state"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type cryptomusPaymentResult struct {
	UUID          string `json:"uuid"`
	OrderID       string `json:"order_id"`
	Amount        string `json:"amount"`
	PaymentStatus string `json:"payment_status"`
	URL           string `json:"url"`
	Network       string `json:"network"`
	Currency      string `json:"currency"`
	PayerCurrency string `json:"payer_currency"`
	IsFinal       bool   `json:"is_final"`
}

// CreatePayment implements adapter.CryptoRail.
func (g *CryptomusGateway) CreatePayment(ctx context.Context, params adapter.CryptoPaymentParams) (adapter.CryptoPayment, error) {
	body := map[string]any{
		"amount":              formatAmount(params.Amount),
		"currency":            g.settlement,
		"order_id":            params.OrderID,
		"is_payment_multiple": false,
		"lifetime":            3600,
		"merchant_id":         g.merchantID,
	}
	if params.ReturnURL != "" {
		body["url_return"] = params.ReturnURL
	}
	if params.SuccessURL != "" {
		body["url_success"] = params.SuccessURL
	}
	if params.CallbackURL != "" {
		body["url_callback"] = params.CallbackURL
	}

	res, err := g.post(ctx, "/payment", body)
	if err != nil {
		return adapter.CryptoPayment{}, err
	}
	return adapter.CryptoPayment{
		UUID:       res.UUID,
		OrderID:    res.OrderID,
		Amount:     res.Amount,
		Status:     res.PaymentStatus,
		PaymentURL: res.URL,
	}, nil
}

// PaymentStatus implements adapter.CryptoRail.
func (g *CryptomusGateway) PaymentStatus(ctx context.Context, uuid string) (adapter.CryptoPayment, error) {
	body := map[string]any{
		"uuid":        uuid,
		"merchant_id": g.merchantID,
	}
	res, err := g.post(ctx, "/payment/info", body)
	if err != nil {
		return adapter.CryptoPayment{}, err
	}
	return adapter.CryptoPayment{
		UUID:       res.UUID,
		OrderID:    res.OrderID,
		Amount:     res.Amount,
		Status:     res.PaymentStatus,
		PaymentURL: res.URL,
	}, nil
}

// VerifyWebhook implements adapter.CryptoRail.
func (g *CryptomusGateway) VerifyWebhook(payload map[string]any, sign string) bool {
	return verifySignature(payload, sign, g.merchantID, g.apiKey)
}

func (g *CryptomusGateway) post(ctx context.Context, path string, body map[string]any) (*cryptomusPaymentResult, error) {
	sign, err := signPayload(body, g.apiKey)
	if err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}
	jsonBody, err := canonicalJSON(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("merchant", g.merchantID)
	req.Header.Set("sign", sign)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	var env cryptomusEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		// A timeout after the provider created the payment is a
		// lost-reference risk; keep the raw response for manual
		// reconciliation.
		g.log.Error().Str("path", path).Str("body", string(raw)).Msg("unparseable provider response")
		return nil, &domain.ProviderError{Rail: "cryptomus", Status: resp.StatusCode, Message: "unparseable response"}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || env.State != 0 {
		g.log.Error().Str("path", path).Int("status", resp.StatusCode).Int("state", env.State).Str("message", env.Message).Msg("provider call failed")
		return nil, &domain.ProviderError{Rail: "cryptomus", Status: resp.StatusCode, Message: env.Message}
	}

	var res cryptomusPaymentResult
	if err := json.Unmarshal(env.Result, &res); err != nil {
		return nil, &domain.ProviderError{Rail: "cryptomus", Status: resp.StatusCode, Message: "unparseable result"}
	}
	return &res, nil
}

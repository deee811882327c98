package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"cms-billing/internal/domain"
	"cms-billing/internal/domain/model"
	"cms-billing/internal/domain/ports/adapter"
)

const stripeBaseURL = "https://api.stripe.com/v1"

// StripeGateway implements adapter.CardRail with direct form-encoded HTTP
// calls against the Stripe API.
type StripeGateway struct {
	secretKey string
	baseURL   string
	client    *http.Client
	log       *zerolog.Logger
}

var _ adapter.CardRail = (*StripeGateway)(nil)

func NewStripeGateway(secretKey string, logger *zerolog.Logger) *StripeGateway {
	gwLog := logger.With().Str("component", "StripeGateway").Logger()
	return &StripeGateway{
		secretKey: secretKey,
		baseURL:   stripeBaseURL,
		client:    &http.Client{Timeout: 30 * time.Second},
		log:       &gwLog,
	}
}

type stripeObject struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	Active  bool   `json:"active"`
	Deleted bool   `json:"deleted"`
	Valid   bool   `json:"valid"` // coupons
	Items   struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	} `json:"items"`
}

type stripeErrorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// CreateCustomer implements adapter.CardRail.
func (g *StripeGateway) CreateCustomer(ctx context.Context, u *model.User) (string, error) {
	form := url.Values{}
	form.Set("email", u.Email)
	form.Set("name", u.FullName())
	form.Set("metadata[userId]", u.ID)

	var out stripeObject
	if err := g.do(ctx, http.MethodPost, "/customers", form, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// EnsureProduct implements adapter.CardRail. If mirrored ids exist they are
// verified upstream before reuse; a dangling mirror is recreated.
func (g *StripeGateway) EnsureProduct(ctx context.Context, p *model.Product) (adapter.MirroredIDs, error) {
	if p.StripeProductID != "" && p.StripePriceID != "" {
		var price stripeObject
		err := g.do(ctx, http.MethodGet, "/prices/"+p.StripePriceID, nil, &price)
		if err == nil && price.Active {
			return adapter.MirroredIDs{ProductID: p.StripeProductID, PriceID: p.StripePriceID}, nil
		}
		g.log.Warn().Str("product", p.ID).Str("price", p.StripePriceID).Msg("mirrored price no longer resolves, recreating")
	}

	form := url.Values{}
	form.Set("name", p.Name)
	if p.Description != "" {
		form.Set("description", p.Description)
	}
	form.Set("metadata[productId]", p.ID)
	form.Set("metadata[type]", string(p.Kind))

	var prod stripeObject
	if err := g.do(ctx, http.MethodPost, "/products", form, &prod); err != nil {
		return adapter.MirroredIDs{}, err
	}

	priceForm := url.Values{}
	priceForm.Set("product", prod.ID)
	priceForm.Set("unit_amount", strconv.FormatInt(p.Price, 10))
	priceForm.Set("currency", strings.ToLower(currencyOr(p.Currency, "usd")))
	priceForm.Set("metadata[productId]", p.ID)
	if p.Kind == model.ProductKindSubscription {
		interval := p.Interval
		if interval == "" {
			interval = model.IntervalMonth
		}
		priceForm.Set("recurring[interval]", string(interval))
	}

	var price stripeObject
	if err := g.do(ctx, http.MethodPost, "/prices", priceForm, &price); err != nil {
		return adapter.MirroredIDs{}, err
	}
	return adapter.MirroredIDs{ProductID: prod.ID, PriceID: price.ID}, nil
}

// EnsureCoupon implements adapter.CardRail with the same verify-or-recreate
// pattern as EnsureProduct.
func (g *StripeGateway) EnsureCoupon(ctx context.Context, c *model.Coupon) (string, error) {
	if c.StripeCouponID != "" {
		var coupon stripeObject
		err := g.do(ctx, http.MethodGet, "/coupons/"+c.StripeCouponID, nil, &coupon)
		if err == nil && coupon.Valid && !coupon.Deleted {
			return c.StripeCouponID, nil
		}
		g.log.Warn().Str("coupon", c.Code).Msg("mirrored coupon no longer resolves, recreating")
	}

	form := url.Values{}
	form.Set("name", c.Code)
	form.Set("duration", "once")
	if c.DiscountType == model.DiscountPercentage {
		form.Set("percent_off", strconv.FormatInt(c.DiscountValue, 10))
	} else {
		form.Set("amount_off", strconv.FormatInt(c.DiscountValue, 10))
		form.Set("currency", "usd")
	}

	var coupon stripeObject
	if err := g.do(ctx, http.MethodPost, "/coupons", form, &coupon); err != nil {
		return "", err
	}
	return coupon.ID, nil
}

// CreateCheckoutSession implements adapter.CardRail.
func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, params adapter.CheckoutSessionParams) (adapter.CheckoutSession, error) {
	form := url.Values{}
	form.Set("mode", string(params.Mode))
	form.Set("customer", params.CustomerID)
	form.Set("line_items[0][price]", params.PriceID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("success_url", params.SuccessURL)
	form.Set("cancel_url", params.CancelURL)
	form.Set("billing_address_collection", "required")
	for k, v := range params.Metadata {
		form.Set("metadata["+k+"]", v)
	}
	if params.CouponID != "" {
		// A session-level discount and allow_promotion_codes are mutually
		// exclusive on the provider side.
		form.Set("discounts[0][coupon]", params.CouponID)
	} else {
		form.Set("allow_promotion_codes", "true")
	}

	var out stripeObject
	if err := g.do(ctx, http.MethodPost, "/checkout/sessions", form, &out); err != nil {
		return adapter.CheckoutSession{}, err
	}
	return adapter.CheckoutSession{ID: out.ID, URL: out.URL}, nil
}

// CreatePortalSession implements adapter.CardRail.
func (g *StripeGateway) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	form := url.Values{}
	form.Set("customer", customerID)
	form.Set("return_url", returnURL)

	var out stripeObject
	if err := g.do(ctx, http.MethodPost, "/billing_portal/sessions", form, &out); err != nil {
		return "", err
	}
	return out.URL, nil
}

// SetCancelAtPeriodEnd implements adapter.CardRail.
func (g *StripeGateway) SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) error {
	form := url.Values{}
	form.Set("cancel_at_period_end", strconv.FormatBool(cancel))
	return g.do(ctx, http.MethodPost, "/subscriptions/"+subscriptionID, form, &stripeObject{})
}

// ChangeSubscriptionItem implements adapter.CardRail. The proration is
// invoiced immediately so the user pays the difference right away.
func (g *StripeGateway) ChangeSubscriptionItem(ctx context.Context, subscriptionID, newPriceID string) error {
	var sub stripeObject
	if err := g.do(ctx, http.MethodGet, "/subscriptions/"+subscriptionID, nil, &sub); err != nil {
		return err
	}
	if len(sub.Items.Data) == 0 {
		return &domain.ProviderError{Rail: "stripe", Message: "subscription has no items"}
	}

	form := url.Values{}
	form.Set("items[0][id]", sub.Items.Data[0].ID)
	form.Set("items[0][price]", newPriceID)
	form.Set("proration_behavior", "always_invoice")
	return g.do(ctx, http.MethodPost, "/subscriptions/"+subscriptionID, form, &stripeObject{})
}

func (g *StripeGateway) do(ctx context.Context, method, path string, form url.Values, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.secretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errBody stripeErrorBody
		_ = json.Unmarshal(raw, &errBody)
		g.log.Error().Str("path", path).Int("status", resp.StatusCode).Str("message", errBody.Error.Message).Msg("provider call failed")
		return &domain.ProviderError{Rail: "stripe", Status: resp.StatusCode, Message: errBody.Error.Message}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &domain.ProviderError{Rail: "stripe", Status: resp.StatusCode, Message: "unparseable response"}
	}
	return nil
}

func currencyOr(c, fallback string) string {
	if c == "" {
		return fallback
	}
	return c
}

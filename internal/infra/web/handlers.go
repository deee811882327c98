package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"cms-billing/internal/domain/model"
	"cms-billing/internal/usecase"
)

type checkoutRequest struct {
	ProductID  string `json:"productId"`
	PriceType  string `json:"priceType"`
	CouponCode string `json:"couponCode"`
	SuccessURL string `json:"successUrl"`
	CancelURL  string `json:"cancelUrl"`
}

type checkoutResponse struct {
	URL       string `json:"url"`
	SessionID string `json:"sessionId,omitempty"`
	PaymentID string `json:"paymentId,omitempty"`
	OrderID   string `json:"orderId,omitempty"`
	IsPrepaid bool   `json:"isPrepaid,omitempty"`
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	priceType := model.ProductKind(req.PriceType)
	if priceType != model.ProductKindOneTime && priceType != model.ProductKindSubscription {
		writeError(w, http.StatusBadRequest, "priceType must be one_time or subscription")
		return
	}

	in := usecase.CheckoutInput{
		ProductID:  req.ProductID,
		PriceType:  priceType,
		CouponCode: req.CouponCode,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
	}

	var (
		res *usecase.CheckoutResult
		err error
	)
	switch chi.URLParam(r, "rail") {
	case "stripe":
		res, err = s.checkoutUC.CardCheckout(r.Context(), userID(r.Context()), in)
	case "cryptomus":
		res, err = s.checkoutUC.CryptoCheckout(r.Context(), userID(r.Context()), in)
	default:
		writeError(w, http.StatusBadRequest, "Unknown payment rail")
		return
	}
	if err != nil {
		s.log.Warn().Err(err).Str("product", req.ProductID).Msg("checkout failed")
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, checkoutResponse{
		URL:       res.URL,
		SessionID: res.SessionID,
		PaymentID: res.PaymentID,
		OrderID:   res.OrderID,
		IsPrepaid: res.IsPrepaid,
	})
}

type couponValidateRequest struct {
	Code      string `json:"code"`
	ProductID string `json:"productId"`
}

func (s *Server) handleValidateCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}

	v, err := s.couponUC.Validate(r.Context(), req.Code, req.ProductID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !v.Valid {
		writeJSON(w, http.StatusOK, map[string]any{"valid": false, "error": v.Error})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":    true,
		"discount": v.Discount,
		"coupon": map[string]any{
			"code":          v.Coupon.Code,
			"discountType":  v.Coupon.DiscountType,
			"discountValue": v.Coupon.DiscountValue,
		},
	})
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	kind := model.ProductKind(r.URL.Query().Get("kind"))
	if kind == "" {
		kind = model.ProductKindSubscription
	}
	products, err := s.billingUC.ActiveProducts(r.Context(), kind)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(products))
	for _, p := range products {
		out = append(out, map[string]any{
			"id":       p.ID,
			"name":     p.Name,
			"kind":     p.Kind,
			"price":    p.Price,
			"currency": p.Currency,
			"interval": p.Interval,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": out})
}

func (s *Server) handleBilling(w http.ResponseWriter, r *http.Request) {
	data, err := s.billingUC.BillingData(r.Context(), userID(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := map[string]any{
		"subscriptionStatus": data.User.SubscriptionStatus,
		"currentProductId":   data.User.CurrentProductID,
	}
	if data.Subscription != nil {
		sub := map[string]any{
			"id":                data.Subscription.ID,
			"status":            data.Subscription.Status,
			"origin":            data.Subscription.Origin,
			"currentPeriodEnd":  data.Subscription.CurrentPeriodEnd,
			"cancelAtPeriodEnd": data.Subscription.CancelAtPeriodEnd,
		}
		if data.Product != nil {
			sub["product"] = map[string]any{
				"id":       data.Product.ID,
				"name":     data.Product.Name,
				"price":    data.Product.Price,
				"currency": data.Product.Currency,
			}
		}
		resp["subscription"] = sub
	}
	purchases := make([]map[string]any, 0, len(data.Purchases))
	for _, p := range data.Purchases {
		purchases = append(purchases, map[string]any{
			"id":          p.ID,
			"productId":   p.ProductID,
			"amount":      p.Amount,
			"currency":    p.Currency,
			"status":      p.Status,
			"purchasedAt": p.PurchasedAt.Format(time.RFC3339),
		})
	}
	resp["purchases"] = purchases
	writeJSON(w, http.StatusOK, resp)
}

type renewRequest struct {
	SubscriptionID string `json:"subscriptionId"`
}

func (s *Server) handleRenew(w http.ResponseWriter, r *http.Request) {
	var req renewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SubscriptionID == "" {
		writeError(w, http.StatusBadRequest, "subscriptionId is required")
		return
	}

	order, err := s.renewalUC.RenewPrepaidSubscription(r.Context(), req.SubscriptionID, userID(r.Context()))
	if err != nil {
		s.log.Warn().Err(err).Str("subscription", req.SubscriptionID).Msg("renewal payment failed")
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"paymentId": order.PaymentID,
		"url":       order.URL,
		"orderId":   order.OrderID,
	})
}

func (s *Server) handleExpiring(w http.ResponseWriter, r *http.Request) {
	subs, err := s.renewalUC.ExpiringSubscriptions(r.Context(), userID(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(subs))
	for _, sub := range subs {
		out = append(out, map[string]any{
			"id": sub.ID,
			"product": map[string]any{
				"id":       sub.Product.ID,
				"name":     sub.Product.Name,
				"price":    sub.Product.Price,
				"currency": sub.Product.Currency,
			},
			"currentPeriodEnd": sub.CurrentPeriodEnd.Format(time.RFC3339),
			"status":           sub.Status,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"subscriptions": out})
}

type portalRequest struct {
	ReturnURL string `json:"returnUrl"`
}

func (s *Server) handlePortal(w http.ResponseWriter, r *http.Request) {
	var req portalRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.ReturnURL == "" {
		req.ReturnURL = s.publicDomain + "/account"
	}

	url, err := s.subUC.PortalSession(r.Context(), userID(r.Context()), req.ReturnURL)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

type subscriptionActionRequest struct {
	SubscriptionID string `json:"subscriptionId"`
	NewProductID   string `json:"newProductId"`
}

func (s *Server) handleCancelSubscription(w http.ResponseWriter, r *http.Request) {
	var req subscriptionActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SubscriptionID == "" {
		writeError(w, http.StatusBadRequest, "subscriptionId is required")
		return
	}
	if err := s.subUC.Cancel(r.Context(), userID(r.Context()), req.SubscriptionID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleReactivateSubscription(w http.ResponseWriter, r *http.Request) {
	var req subscriptionActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SubscriptionID == "" {
		writeError(w, http.StatusBadRequest, "subscriptionId is required")
		return
	}
	if err := s.subUC.Reactivate(r.Context(), userID(r.Context()), req.SubscriptionID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleUpgradeSubscription(w http.ResponseWriter, r *http.Request) {
	var req subscriptionActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SubscriptionID == "" || req.NewProductID == "" {
		writeError(w, http.StatusBadRequest, "subscriptionId and newProductId are required")
		return
	}
	if err := s.subUC.Upgrade(r.Context(), userID(r.Context()), req.SubscriptionID, req.NewProductID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

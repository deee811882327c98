package web

import (
	"encoding/json"
	"io"
	"net/http"
)

// maxWebhookBody bounds webhook payload reads.
const maxWebhookBody = 1 << 20

func (s *Server) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Unreadable body")
		return
	}

	if err := s.stripeWH.VerifySignature(body, r.Header.Get("Stripe-Signature")); err != nil {
		s.log.Warn().Err(err).Msg("stripe webhook signature rejected")
		writeError(w, http.StatusBadRequest, "Invalid signature")
		return
	}

	ev, err := s.stripeWH.Decode(body)
	if err != nil {
		s.log.Warn().Err(err).Msg("stripe webhook body rejected")
		writeError(w, http.StatusBadRequest, "Invalid payload")
		return
	}

	if err := s.reconcile.HandleCardEvent(r.Context(), ev); err != nil {
		// A 500 makes the provider redeliver, which the upserts tolerate.
		s.log.Error().Err(err).Msg("stripe webhook reconciliation failed")
		writeError(w, http.StatusInternalServerError, "Handler failure")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (s *Server) handleCryptomusWebhook(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := json.NewDecoder(io.LimitReader(r.Body, maxWebhookBody)).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid payload")
		return
	}

	if err := s.reconcile.HandleCryptoWebhook(r.Context(), payload); err != nil {
		s.log.Warn().Err(err).Msg("cryptomus webhook rejected")
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

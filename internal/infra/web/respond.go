package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"cms-billing/internal/domain"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps the sentinel taxonomy onto transport status codes.
// Provider errors surface as 500 with a stable message; the upstream text
// stays in the logs.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "Authentication required")
	case errors.Is(err, domain.ErrPaymentUnknown):
		writeError(w, http.StatusNotFound, "Payment not found")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, domain.ErrInvalidSignature):
		writeError(w, http.StatusBadRequest, "Invalid signature")
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrRailNotConfigured):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		if _, ok := domain.AsProviderError(err); ok {
			writeError(w, http.StatusInternalServerError, "Payment provider error")
			return
		}
		writeError(w, http.StatusInternalServerError, "Internal error")
	}
}

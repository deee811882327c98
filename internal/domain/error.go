package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrUnauthenticated    = errors.New("authentication required")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrRailNotConfigured  = errors.New("payment rail not configured for this product")
	ErrOperationFailed    = errors.New("operation failed")
	ErrInvalidExecContext = errors.New("invalid transaction context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidSignature   = errors.New("invalid webhook signature")
	ErrPaymentUnknown     = errors.New("payment not found")
)

// ProviderError carries the upstream payment provider message for operator
// diagnosis. The web edge maps it to a 500-class response instead of leaking
// the raw provider text to end users.
type ProviderError struct {
	Rail    string // "stripe" | "cryptomus"
	Status  int    // HTTP status from the provider, 0 if not applicable
	Message string
}

func (e *ProviderError) Error() string {
	if e.Message == "" {
		return e.Rail + ": provider request failed"
	}
	return e.Rail + ": " + e.Message
}

// AsProviderError unwraps err into a *ProviderError if it carries one.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

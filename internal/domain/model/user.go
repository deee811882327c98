package model

import "time"

// User holds only the billing mirror of the CMS user record: the fields the
// webhook reconciler and checkout orchestrator read and write. Identity and
// sessions are owned by the surrounding application.
type User struct {
	ID        string
	Email     string
	FirstName string
	LastName  string

	// Mirrored billing state.
	StripeCustomerID   string
	SubscriptionStatus SubscriptionStatus
	CurrentProductID   string // empty when no active subscription

	CreatedAt time.Time
	UpdatedAt time.Time
}

// FullName is used when creating the Stripe customer.
func (u *User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}

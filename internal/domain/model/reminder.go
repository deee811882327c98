package model

import "time"

type ReminderStatus string

const (
	ReminderStatusPending  ReminderStatus = "pending"
	ReminderStatusSent     ReminderStatus = "sent"
	ReminderStatusRenewed  ReminderStatus = "renewed"
	ReminderStatusExpired  ReminderStatus = "expired"
	ReminderStatusCanceled ReminderStatus = "canceled"
)

// Reminder type tags. Prepaid reminders fire 7 days ahead of the renewal
// date; expiry notices fire immediately.
const (
	ReminderTypePrepaidSubscription = "cryptomus_prepaid_subscription"
	ReminderTypeSubscriptionExpired = "cryptomus_subscription_expired"
)

// RenewalReminder is a flag-and-poll record: the sweeper promotes pending
// rows whose ReminderDate has passed, and the webhook reconciler marks them
// renewed when the linked subscription renews.
type RenewalReminder struct {
	ID            string
	UserID        string
	ProductID     string
	ReminderDate  time.Time // when to notify; renewal date minus 7 days
	RenewalDate   time.Time // when the subscription period ends
	Status        ReminderStatus
	Type          string
	SentAt        *time.Time
	ReminderCount int
	LastSentAt    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Package ledger tracks monthly therapy subscriptions and the sessions
// remaining in the current period. Session consumption is a single guarded
// row update so concurrent bookings can never draw more sessions than the
// plan grants.
package ledger

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Subscription statuses.
const (
	StatusActive    = "active"
	StatusPastDue   = "past_due"
	StatusCancelled = "cancelled"
)

var (
	// ErrNoActiveSubscription means the account has no active subscription
	// covering the current period for the service.
	ErrNoActiveSubscription = errors.New("ledger: no active subscription")
)

// Subscription is one account's monthly plan for a service, scoped to a
// billing period. Renewal inserts a fresh row per period rather than
// mutating the old one, so consumption history stays auditable.
type Subscription struct {
	ID                uuid.UUID `json:"id"`
	AccountID         string    `json:"account_id"`
	ServiceID         uuid.UUID `json:"service_id"`
	Status            string    `json:"status"`
	SessionsPerMonth  int       `json:"sessions_per_month"`
	MinutesPerSession int       `json:"minutes_per_session"`
	SessionsRemaining int       `json:"sessions_remaining"`
	PeriodStart       time.Time `json:"period_start"`
	PeriodEnd         time.Time `json:"period_end"`
	ExternalRef       string    `json:"external_ref,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// ConsumeResult reports the outcome of a session draw.
type ConsumeResult struct {
	Consumed  bool
	Remaining int
}

// ActivateParams describes a subscription grant for one billing period.
type ActivateParams struct {
	AccountID         string
	ServiceID         uuid.UUID
	SessionsPerMonth  int
	MinutesPerSession int
	PeriodStart       time.Time
	PeriodEnd         time.Time
	ExternalRef       string
}

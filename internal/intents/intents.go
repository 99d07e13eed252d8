// Package intents tracks payment intents, the bridge rows between a booking
// request and its gateway checkout. An intent moves created -> succeeded or
// created -> failed exactly once; the transition is guarded in SQL so
// replayed webhooks and poll races collapse onto the first outcome.
package intents

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Intent statuses.
const (
	StatusCreated   = "created"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusExpired   = "expired"
)

var (
	// ErrIntentNotFound is returned when a lookup matches no row.
	ErrIntentNotFound = errors.New("intents: not found")
)

// PaymentIntent is the record of one checkout attempt.
type PaymentIntent struct {
	ID                uuid.UUID `json:"id"`
	AccountID         string    `json:"account_id"`
	ServiceID         uuid.UUID `json:"service_id"`
	AmountCents       int64     `json:"amount_cents"`
	Currency          string    `json:"currency"`
	Status            string    `json:"status"`
	Gateway           string    `json:"gateway,omitempty"`
	ExternalReference string    `json:"external_reference,omitempty"`
	Metadata          Metadata  `json:"metadata"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Metadata carries the booking details needed to materialize the
// appointment once payment lands. Stored as JSONB alongside the intent.
type Metadata struct {
	ScheduledAt       time.Time `json:"scheduled_at"`
	DurationMinutes   int       `json:"duration_minutes"`
	Notes             string    `json:"notes,omitempty"`
	Subscription      bool      `json:"subscription,omitempty"`
	SessionsPerMonth  int       `json:"sessions_per_month,omitempty"`
	MinutesPerSession int       `json:"minutes_per_session,omitempty"`
}

// NewIntent carries the fields for an insert.
type NewIntent struct {
	AccountID   string
	ServiceID   uuid.UUID
	AmountCents int64
	Currency    string
	Metadata    Metadata
}

// TransitionResult reports the outcome of a guarded status transition.
type TransitionResult struct {
	// Applied is true when this call performed the transition. False means
	// the intent had already left the created state (duplicate delivery).
	Applied bool
	Intent  *PaymentIntent
}

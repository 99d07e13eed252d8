// Package appointments persists booked sessions. Every insert carries a
// dedupe key so a retried booking or a redelivered payment confirmation
// lands on the same row instead of a duplicate.
package appointments

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Appointment statuses, matching the scheduling lifecycle.
const (
	StatusScheduled = "scheduled"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusNoShow    = "no_show"
)

// Origins record how the appointment was paid for.
const (
	OriginFree                = "free"
	OriginPaid                = "paid"
	OriginSubscriptionSession = "subscription_session"
)

// ErrAppointmentNotFound is returned when a lookup matches no row.
var ErrAppointmentNotFound = errors.New("appointments: not found")

// Appointment is a confirmed (or historical) session on the calendar.
type Appointment struct {
	ID              uuid.UUID  `json:"id"`
	AccountID       string     `json:"account_id"`
	ServiceID       uuid.UUID  `json:"service_id"`
	ScheduledAt     time.Time  `json:"scheduled_at"`
	DurationMinutes int        `json:"duration_minutes"`
	Status          string     `json:"status"`
	Origin          string     `json:"origin"`
	PaymentIntentID *uuid.UUID `json:"payment_intent_id,omitempty"`
	SubscriptionID  *uuid.UUID `json:"subscription_id,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// NewAppointment carries the fields for an insert.
type NewAppointment struct {
	AccountID       string
	ServiceID       uuid.UUID
	ScheduledAt     time.Time
	DurationMinutes int
	Origin          string
	PaymentIntentID *uuid.UUID
	SubscriptionID  *uuid.UUID
	Notes           string
}

// Validate rejects inserts that could not represent a real session.
func (n *NewAppointment) Validate() error {
	if n.AccountID == "" {
		return fmt.Errorf("appointments: account id required")
	}
	if n.ServiceID == uuid.Nil {
		return fmt.Errorf("appointments: service id required")
	}
	if n.ScheduledAt.IsZero() {
		return fmt.Errorf("appointments: scheduled time required")
	}
	if n.DurationMinutes <= 0 {
		return fmt.Errorf("appointments: duration must be positive")
	}
	switch n.Origin {
	case OriginFree, OriginPaid, OriginSubscriptionSession:
	default:
		return fmt.Errorf("appointments: unknown origin %q", n.Origin)
	}
	if n.Origin == OriginPaid && n.PaymentIntentID == nil {
		return fmt.Errorf("appointments: paid origin requires a payment intent")
	}
	if n.Origin == OriginSubscriptionSession && n.SubscriptionID == nil {
		return fmt.Errorf("appointments: subscription origin requires a subscription")
	}
	return nil
}

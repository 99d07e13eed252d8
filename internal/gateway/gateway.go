package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

var (
	// ErrGatewayUnavailable covers network failures, timeouts and 5xx
	// responses. Retryable; never reported to the payer as a payment failure.
	ErrGatewayUnavailable = errors.New("gateway: unavailable")
	// ErrGatewayRejected covers 4xx rejections such as an invalid amount.
	// Not retryable.
	ErrGatewayRejected = errors.New("gateway: rejected")
	// ErrAuthFailed means credential misconfiguration. Surfaced to
	// operators, not end users.
	ErrAuthFailed = errors.New("gateway: authentication failed")
)

// ConfirmationStatus is the normalized outcome of a payment attempt.
type ConfirmationStatus string

const (
	StatusPending   ConfirmationStatus = "pending"
	StatusSucceeded ConfirmationStatus = "succeeded"
	StatusFailed    ConfirmationStatus = "failed"
)

// CheckoutParams describes one checkout to create. Metadata is carried
// opaquely through the gateway round-trip and comes back on confirmation.
type CheckoutParams struct {
	IntentID    uuid.UUID
	AmountCents int64
	Currency    string
	Description string
	SuccessURL  string
	CancelURL   string
	Metadata    map[string]string

	// IdempotencyKey makes creation side-effect-idempotent where the
	// gateway supports it. Gateways without native support rely on the
	// coordinator-level guard instead.
	IdempotencyKey string

	// Subscription switches the checkout to recurring mode where the
	// gateway supports it (Stripe). Zero value means one-time payment.
	Subscription      bool
	SessionsPerMonth  int
	MinutesPerSession int
}

// CheckoutResponse is the normalized result of checkout creation.
type CheckoutResponse struct {
	RedirectURL       string
	ExternalReference string
}

// CheckoutProvider creates hosted checkouts and reports their outcome.
// ConfirmPayment is read-only and safe to call any number of times; it is
// the polling half of the confirmation channel.
type CheckoutProvider interface {
	CreateCheckout(ctx context.Context, params CheckoutParams) (*CheckoutResponse, error)
	ConfirmPayment(ctx context.Context, externalRef string) (ConfirmationStatus, error)
}

// classifyStatus maps an HTTP status from a gateway API to the error taxonomy.
func classifyStatus(status int, body string) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: status %d: %s", ErrAuthFailed, status, body)
	case status >= http.StatusInternalServerError:
		return fmt.Errorf("%w: status %d: %s", ErrGatewayUnavailable, status, body)
	case status >= http.StatusBadRequest:
		return fmt.Errorf("%w: status %d: %s", ErrGatewayRejected, status, body)
	default:
		return nil
	}
}

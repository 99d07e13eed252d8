package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/pridehealth/portal-api/internal/billing"
	"github.com/pridehealth/portal-api/internal/booking"
	"github.com/pridehealth/portal-api/internal/intents"
	"github.com/pridehealth/portal-api/pkg/logging"
)

const maxWebhookBody = 65536

type confirmationHandler interface {
	HandleConfirmation(ctx context.Context, conf booking.Confirmation) (*booking.ConfirmationResult, error)
}

type lifecycleProcessor interface {
	ProcessEvent(ctx context.Context, eventType string, object json.RawMessage) error
}

// StripeWebhookHandler receives Stripe events. Checkout session events are
// routed to the booking coordinator; subscription lifecycle events (invoice
// renewals, cancellations) go to the billing processor.
type StripeWebhookHandler struct {
	webhookSecret string
	confirmations confirmationHandler
	lifecycle     lifecycleProcessor
	logger        *logging.Logger
}

// NewStripeWebhookHandler creates a Stripe webhook handler. When
// webhookSecret is empty, signature verification is skipped (local dev).
func NewStripeWebhookHandler(webhookSecret string, confirmations confirmationHandler, lifecycle lifecycleProcessor, logger *logging.Logger) *StripeWebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &StripeWebhookHandler{
		webhookSecret: webhookSecret,
		confirmations: confirmations,
		lifecycle:     lifecycle,
		logger:        logger,
	}
}

type stripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// Handle processes POST /webhooks/stripe.
func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}

	if h.webhookSecret != "" {
		sig := r.Header.Get("Stripe-Signature")
		if !billing.VerifyStripeSignature(h.webhookSecret, body, sig) {
			h.logger.Warn("stripe webhook: signature verification failed")
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
	}

	var event stripeEvent
	if err := json.Unmarshal(body, &event); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	switch event.Type {
	case "checkout.session.completed":
		h.handleCheckoutOutcome(w, r, event, true)
		return
	case "checkout.session.expired", "checkout.session.async_payment_failed":
		h.handleCheckoutOutcome(w, r, event, false)
		return
	case "invoice.payment_succeeded", "invoice.payment_failed", "customer.subscription.deleted":
		if h.lifecycle != nil {
			if err := h.lifecycle.ProcessEvent(r.Context(), event.Type, event.Data.Object); err != nil {
				// 5xx so Stripe redelivers; a renewal lost here would
				// otherwise never be granted.
				h.logger.Error("stripe webhook: lifecycle processing failed", "error", err, "type", event.Type)
				http.Error(w, "lifecycle processing failed", http.StatusInternalServerError)
				return
			}
		}
	default:
		h.logger.Info("stripe webhook: ignoring event", "type", event.Type)
	}

	writeReceived(w)
}

func (h *StripeWebhookHandler) handleCheckoutOutcome(w http.ResponseWriter, r *http.Request, event stripeEvent, succeeded bool) {
	var session struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(event.Data.Object, &session); err != nil || session.ID == "" {
		http.Error(w, "invalid session object", http.StatusBadRequest)
		return
	}

	result, err := h.confirmations.HandleConfirmation(r.Context(), booking.Confirmation{
		Gateway:           "stripe",
		EventID:           event.ID,
		ExternalReference: session.ID,
		Succeeded:         succeeded,
	})
	if err != nil {
		if errors.Is(err, intents.ErrIntentNotFound) {
			// Not a session we issued. Acknowledge it so Stripe stops
			// redelivering.
			h.logger.Warn("stripe webhook: unknown session", "session_id", session.ID)
			writeReceived(w)
			return
		}
		// 5xx so Stripe retries the delivery.
		h.logger.Error("stripe webhook: confirmation failed", "error", err, "session_id", session.ID)
		http.Error(w, "confirmation failed", http.StatusInternalServerError)
		return
	}

	h.logger.Info("stripe webhook: confirmation processed",
		"event", event.Type, "session_id", session.ID, "outcome", result.Outcome)
	writeReceived(w)
}

func writeReceived(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"received":true}`))
}

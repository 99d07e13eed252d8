// Package billing consumes Stripe subscription lifecycle events. Checkout
// completion is handled by the booking confirmation path; this handler owns
// what happens afterwards: monthly renewals, payment failures and
// cancellations.
package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pridehealth/portal-api/pkg/logging"
)

// LifecycleWebhookHandler handles Stripe webhook events for subscription
// lifecycle.
type LifecycleWebhookHandler struct {
	webhookSecret string
	db            *sql.DB
	logger        *logging.Logger
}

// NewLifecycleWebhookHandler creates a new webhook handler.
func NewLifecycleWebhookHandler(db *sql.DB, webhookSecret string, logger *logging.Logger) *LifecycleWebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &LifecycleWebhookHandler{
		webhookSecret: webhookSecret,
		db:            db,
		logger:        logger,
	}
}

// Handle processes incoming Stripe lifecycle webhook events.
func (h *LifecycleWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 65536))
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}

	if h.webhookSecret != "" {
		sig := r.Header.Get("Stripe-Signature")
		if !h.verifySignature(body, sig) {
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
	}

	var event struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	var obj struct {
		Object json.RawMessage `json:"object"`
	}
	json.Unmarshal(event.Data, &obj)

	if err := h.ProcessEvent(r.Context(), event.Type, obj.Object); err != nil {
		// 5xx so Stripe redelivers the event once the store recovers.
		h.logger.Error("lifecycle webhook: processing failed", "error", err, "type", event.Type)
		http.Error(w, "processing failed", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"received":true}`))
}

// ProcessEvent dispatches one lifecycle event. Exposed so the combined
// Stripe webhook endpoint can route lifecycle events here after doing its
// own signature verification. A non-nil error means the event was not
// applied and the delivery should be retried.
func (h *LifecycleWebhookHandler) ProcessEvent(ctx context.Context, eventType string, object json.RawMessage) error {
	switch eventType {
	case "invoice.payment_succeeded":
		return h.handlePaymentSucceeded(ctx, object)
	case "invoice.payment_failed":
		return h.handlePaymentFailed(ctx, object)
	case "customer.subscription.deleted":
		return h.handleSubscriptionCancelled(ctx, object)
	default:
		h.logger.Info("lifecycle webhook: unhandled event", "type", eventType)
		return nil
	}
}

func (h *LifecycleWebhookHandler) verifySignature(payload []byte, sigHeader string) bool {
	return VerifyStripeSignature(h.webhookSecret, payload, sigHeader)
}

// VerifyStripeSignature checks a Stripe-Signature header (t=...,v1=...)
// against the HMAC-SHA256 of "timestamp.payload".
func VerifyStripeSignature(secret string, payload []byte, sigHeader string) bool {
	if sigHeader == "" || secret == "" {
		return false
	}
	// Parse t= and v1= from header
	var timestamp, sig string
	for _, part := range strings.Split(sigHeader, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			sig = kv[1]
		}
	}
	if timestamp == "" || sig == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(sig))
}

// handlePaymentSucceeded grants the next billing period. The new row copies
// the plan shape from the latest period for the subscription and resets the
// session count; the unique period index makes redelivered invoices no-ops.
func (h *LifecycleWebhookHandler) handlePaymentSucceeded(ctx context.Context, data json.RawMessage) error {
	var invoice struct {
		Subscription string `json:"subscription"`
		PeriodStart  int64  `json:"period_start"`
		PeriodEnd    int64  `json:"period_end"`
	}
	if err := json.Unmarshal(data, &invoice); err != nil {
		h.logger.Error("lifecycle: parse invoice", "error", err)
		return nil
	}
	if invoice.Subscription == "" || invoice.PeriodStart == 0 {
		return nil
	}
	h.logger.Info("lifecycle: renewal payment succeeded",
		"subscription", invoice.Subscription,
		"period_start", invoice.PeriodStart,
	)

	if h.db == nil {
		return nil
	}
	_, err := h.db.ExecContext(ctx, `
		INSERT INTO subscriptions (id, account_id, service_id, status, sessions_per_month,
			minutes_per_session, sessions_remaining, period_start, period_end, external_ref)
		SELECT gen_random_uuid(), account_id, service_id, 'active', sessions_per_month,
			minutes_per_session, sessions_per_month, $2, $3, external_ref
		FROM subscriptions
		WHERE external_ref = $1
		ORDER BY period_start DESC
		LIMIT 1
		ON CONFLICT (account_id, service_id, period_start) DO NOTHING
	`, invoice.Subscription, time.Unix(invoice.PeriodStart, 0).UTC(), time.Unix(invoice.PeriodEnd, 0).UTC())
	if err != nil {
		return fmt.Errorf("billing: renew subscription: %w", err)
	}
	return nil
}

func (h *LifecycleWebhookHandler) handlePaymentFailed(ctx context.Context, data json.RawMessage) error {
	var invoice struct {
		Subscription string `json:"subscription"`
	}
	if err := json.Unmarshal(data, &invoice); err != nil || invoice.Subscription == "" {
		return nil
	}
	h.logger.Error("lifecycle: renewal payment failed", "subscription", invoice.Subscription)

	if h.db == nil {
		return nil
	}
	if _, err := h.db.ExecContext(ctx, `
		UPDATE subscriptions SET status = 'past_due', updated_at = NOW()
		WHERE external_ref = $1 AND status = 'active'
	`, invoice.Subscription); err != nil {
		return fmt.Errorf("billing: mark past_due: %w", err)
	}
	return nil
}

func (h *LifecycleWebhookHandler) handleSubscriptionCancelled(ctx context.Context, data json.RawMessage) error {
	var sub struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &sub); err != nil || sub.ID == "" {
		return nil
	}
	h.logger.Info("lifecycle: subscription cancelled", "subscription", sub.ID)

	if h.db == nil {
		return nil
	}
	if _, err := h.db.ExecContext(ctx, `
		UPDATE subscriptions SET status = 'cancelled', updated_at = NOW()
		WHERE external_ref = $1 AND status != 'cancelled'
	`, sub.ID); err != nil {
		return fmt.Errorf("billing: mark cancelled: %w", err)
	}
	return nil
}

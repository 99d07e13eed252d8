package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/pridehealth/portal-api/internal/booking"
	"github.com/pridehealth/portal-api/internal/gateway"
	"github.com/pridehealth/portal-api/internal/intents"
	"github.com/pridehealth/portal-api/pkg/logging"
)

type pollingConfirmer interface {
	ConfirmByPolling(ctx context.Context, gatewayName, externalRef string) (*booking.ConfirmationResult, error)
}

type orderCapturer interface {
	CaptureOrder(ctx context.Context, externalRef string) error
}

type webhookVerifier interface {
	VerifyWebhook(ctx context.Context, webhookID string, header http.Header, rawEvent []byte) (bool, error)
}

// PayPalWebhookHandler receives PayPal order events. Deliveries are verified
// against the PayPal signature API before anything else, and the event payload
// is used only to learn the order ID; the outcome is always re-fetched from
// the PayPal API, so a forged payload cannot confirm a booking. An approved
// order is captured here, since approval alone moves no money.
type PayPalWebhookHandler struct {
	confirmer pollingConfirmer
	capturer  orderCapturer
	verifier  webhookVerifier
	webhookID string
	logger    *logging.Logger
}

// NewPayPalWebhookHandler creates a PayPal webhook handler. Signature
// verification is skipped when webhookID is empty (local development
// against a sandbox without a registered webhook).
func NewPayPalWebhookHandler(confirmer pollingConfirmer, capturer orderCapturer, verifier webhookVerifier, webhookID string, logger *logging.Logger) *PayPalWebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &PayPalWebhookHandler{
		confirmer: confirmer,
		capturer:  capturer,
		verifier:  verifier,
		webhookID: webhookID,
		logger:    logger,
	}
}

// Handle processes POST /webhooks/paypal.
func (h *PayPalWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}

	if h.webhookID != "" && h.verifier != nil {
		ok, err := h.verifier.VerifyWebhook(r.Context(), h.webhookID, r.Header, body)
		if err != nil {
			// Fail closed but retryable; PayPal redelivers on 5xx.
			h.logger.Error("paypal webhook: verification call failed", "error", err)
			http.Error(w, "verification unavailable", http.StatusServiceUnavailable)
			return
		}
		if !ok {
			h.logger.Warn("paypal webhook: signature verification failed")
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
	}

	var event struct {
		ID        string `json:"id"`
		EventType string `json:"event_type"`
		Resource  struct {
			ID                string `json:"id"`
			SupplementaryData struct {
				RelatedIDs struct {
					OrderID string `json:"order_id"`
				} `json:"related_ids"`
			} `json:"supplementary_data"`
		} `json:"resource"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	switch event.EventType {
	case "CHECKOUT.ORDER.APPROVED", "CHECKOUT.ORDER.COMPLETED", "PAYMENT.CAPTURE.COMPLETED", "PAYMENT.CAPTURE.DENIED":
	default:
		h.logger.Info("paypal webhook: ignoring event", "type", event.EventType)
		writeReceived(w)
		return
	}

	// Capture events carry the order ID in supplementary data; order events
	// carry it as the resource ID.
	orderID := event.Resource.SupplementaryData.RelatedIDs.OrderID
	if orderID == "" {
		orderID = event.Resource.ID
	}
	if orderID == "" {
		http.Error(w, "missing order id", http.StatusBadRequest)
		return
	}

	// An approved order still holds no funds. Capture first so the poll
	// below sees COMPLETED; the capture is idempotent on the order id.
	if event.EventType == "CHECKOUT.ORDER.APPROVED" && h.capturer != nil {
		if err := h.capturer.CaptureOrder(r.Context(), orderID); err != nil {
			if errors.Is(err, gateway.ErrGatewayUnavailable) {
				http.Error(w, "provider unavailable", http.StatusServiceUnavailable)
				return
			}
			// A rejected capture (order voided, funding declined) is not
			// retryable. The poll below records whatever state the order
			// actually reached.
			h.logger.Warn("paypal webhook: capture rejected", "error", err, "order_id", orderID)
		}
	}

	result, err := h.confirmer.ConfirmByPolling(r.Context(), "paypal", orderID)
	if err != nil {
		switch {
		case errors.Is(err, intents.ErrIntentNotFound):
			h.logger.Warn("paypal webhook: unknown order", "order_id", orderID)
			writeReceived(w)
		case errors.Is(err, gateway.ErrGatewayUnavailable):
			// 5xx so PayPal retries once the API is reachable again.
			http.Error(w, "provider unavailable", http.StatusServiceUnavailable)
		default:
			h.logger.Error("paypal webhook: confirmation failed", "error", err, "order_id", orderID)
			http.Error(w, "confirmation failed", http.StatusInternalServerError)
		}
		return
	}

	h.logger.Info("paypal webhook: confirmation processed",
		"event", event.EventType, "order_id", orderID, "outcome", result.Outcome)
	writeReceived(w)
}

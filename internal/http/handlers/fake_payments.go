package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pridehealth/portal-api/internal/booking"
	"github.com/pridehealth/portal-api/internal/intents"
	"github.com/pridehealth/portal-api/pkg/logging"
)

type intentGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*intents.PaymentIntent, error)
}

// FakePaymentsHandler exposes a tiny demo UI to "complete" checkouts without
// gateway credentials. Only mount this handler when ALLOW_FAKE_PAYMENTS=true.
type FakePaymentsHandler struct {
	intents       intentGetter
	confirmations confirmationHandler
	logger        *logging.Logger
}

func NewFakePaymentsHandler(intentStore intentGetter, confirmations confirmationHandler, logger *logging.Logger) *FakePaymentsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &FakePaymentsHandler{
		intents:       intentStore,
		confirmations: confirmations,
		logger:        logger,
	}
}

func (h *FakePaymentsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/payments/fake/{intentID}", h.HandleCheckout)
	r.Post("/payments/fake/{intentID}/complete", h.HandleComplete)
	r.Get("/payments/fake/{intentID}/success", h.HandleSuccess)
	return r
}

func (h *FakePaymentsHandler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	intentID, ok := parseUUIDParam(w, r, "intentID")
	if !ok {
		return
	}
	if h.intents == nil {
		http.Error(w, "payments unavailable", http.StatusServiceUnavailable)
		return
	}
	intent, err := h.intents.GetByID(r.Context(), intentID)
	if err != nil || intent == nil {
		http.Error(w, "payment not found", http.StatusNotFound)
		return
	}

	amount := float64(intent.AmountCents) / 100.0
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>Demo Checkout</title>
    <style>
      body{font-family:system-ui,-apple-system,Segoe UI,Roboto,Ubuntu,Cantarell,Noto Sans,sans-serif;max-width:680px;margin:40px auto;padding:0 16px;}
      .card{border:1px solid #e5e7eb;border-radius:12px;padding:18px;}
      .btn{display:inline-block;background:#111827;color:#fff;padding:12px 16px;border-radius:10px;text-decoration:none;border:0;cursor:pointer;}
      .muted{color:#6b7280;font-size:14px;}
      code{background:#f3f4f6;padding:2px 6px;border-radius:6px;}
    </style>
  </head>
  <body>
    <h1>Demo Checkout</h1>
    <div class="card">
      <p><strong>Amount:</strong> $%.2f %s</p>
      <p class="muted">This is a demo-only payment page (no real payment is processed).</p>
      <form method="POST" action="/payments/fake/%s/complete">
        <button class="btn" type="submit">Complete Payment</button>
      </form>
      <p class="muted">Intent ID: <code>%s</code></p>
    </div>
  </body>
</html>`, amount, intent.Currency, intentID.String(), intentID.String())
}

func (h *FakePaymentsHandler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	intentID, ok := parseUUIDParam(w, r, "intentID")
	if !ok {
		return
	}
	if h.confirmations == nil {
		http.Error(w, "payments unavailable", http.StatusServiceUnavailable)
		return
	}

	externalRef := "fake:" + intentID.String()
	result, err := h.confirmations.HandleConfirmation(r.Context(), booking.Confirmation{
		Gateway:           "fake",
		EventID:           externalRef,
		ExternalReference: externalRef,
		Succeeded:         true,
	})
	if err != nil {
		h.logger.Error("fake payment completion failed", "error", err, "intent_id", intentID)
		http.Error(w, "failed to complete payment", http.StatusInternalServerError)
		return
	}
	h.logger.Info("fake payment completed", "intent_id", intentID, "outcome", result.Outcome)
	http.Redirect(w, r, fmt.Sprintf("/payments/fake/%s/success", intentID.String()), http.StatusSeeOther)
}

func (h *FakePaymentsHandler) HandleSuccess(w http.ResponseWriter, r *http.Request) {
	intentID, ok := parseUUIDParam(w, r, "intentID")
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>Payment Completed</title>
    <style>
      body{font-family:system-ui,-apple-system,Segoe UI,Roboto,Ubuntu,Cantarell,Noto Sans,sans-serif;max-width:680px;margin:40px auto;padding:0 16px;}
      .card{border:1px solid #e5e7eb;border-radius:12px;padding:18px;}
      .muted{color:#6b7280;font-size:14px;}
      code{background:#f3f4f6;padding:2px 6px;border-radius:6px;}
    </style>
  </head>
  <body>
    <h1>Payment Completed</h1>
    <div class="card">
      <p>Thanks, your demo payment is marked as paid.</p>
      <p class="muted">Your appointment is confirmed. You can close this tab.</p>
      <p class="muted">Intent ID: <code>%s</code></p>
    </div>
  </body>
</html>`, intentID.String())
}

func parseUUIDParam(w http.ResponseWriter, r *http.Request, key string) (uuid.UUID, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, key))
	if raw == "" {
		http.Error(w, "missing id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return parsed, true
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/pridehealth/portal-api/internal/appointments"
	"github.com/pridehealth/portal-api/internal/booking"
	"github.com/pridehealth/portal-api/internal/gateway"
	"github.com/pridehealth/portal-api/internal/identity"
	"github.com/pridehealth/portal-api/internal/pricing"
	"github.com/pridehealth/portal-api/pkg/logging"
)

type bookingCoordinator interface {
	Book(ctx context.Context, req booking.BookingRequest) (*booking.BookingResult, error)
	ConfirmByPolling(ctx context.Context, gatewayName, externalRef string) (*booking.ConfirmationResult, error)
}

type appointmentLister interface {
	ListForAccount(ctx context.Context, accountID string) ([]appointments.Appointment, error)
}

// BookingHandler handles HTTP requests for bookings and confirmation
// polling.
type BookingHandler struct {
	coordinator  bookingCoordinator
	appointments appointmentLister
	logger       *logging.Logger
}

// NewBookingHandler creates a new booking handler.
func NewBookingHandler(coordinator bookingCoordinator, lister appointmentLister, logger *logging.Logger) *BookingHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &BookingHandler{
		coordinator:  coordinator,
		appointments: lister,
		logger:       logger,
	}
}

type planRequest struct {
	SessionsPerMonth  int `json:"sessions_per_month"`
	MinutesPerSession int `json:"minutes_per_session"`
}

type createBookingRequest struct {
	ServiceID       string      `json:"service_id"`
	DurationMinutes int         `json:"duration_minutes"`
	Subscribe       bool        `json:"subscribe"`
	Plan            planRequest `json:"plan"`
	UseSubscription bool        `json:"use_subscription"`
	ScheduledAt     time.Time   `json:"scheduled_at"`
	Notes           string      `json:"notes"`
	PaymentMethod   string      `json:"payment_method"`
	ClientNonce     string      `json:"client_nonce"`
}

type bookingResponse struct {
	Status      string                    `json:"status"`
	Appointment *appointments.Appointment `json:"appointment,omitempty"`
	RedirectURL string                    `json:"url,omitempty"`
	IntentID    string                    `json:"intent_id,omitempty"`
}

// CreateBooking handles POST /bookings requests.
func (h *BookingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	accountID, ok := identity.AccountIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing account context", http.StatusUnauthorized)
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ServiceID == "" {
		http.Error(w, "service_id required", http.StatusBadRequest)
		return
	}
	if req.ScheduledAt.IsZero() {
		http.Error(w, "scheduled_at required", http.StatusBadRequest)
		return
	}

	result, err := h.coordinator.Book(r.Context(), booking.BookingRequest{
		AccountID: accountID,
		ServiceID: req.ServiceID,
		Selection: pricing.Selection{
			DurationMinutes: req.DurationMinutes,
			Subscribe:       req.Subscribe,
			Plan: pricing.Plan{
				SessionsPerMonth:  req.Plan.SessionsPerMonth,
				MinutesPerSession: req.Plan.MinutesPerSession,
			},
		},
		UseSubscription: req.UseSubscription,
		ScheduledAt:     req.ScheduledAt,
		Notes:           req.Notes,
		PaymentMethod:   req.PaymentMethod,
		ClientNonce:     req.ClientNonce,
	})
	if err != nil {
		h.writeBookingError(w, r, err)
		return
	}

	resp := bookingResponse{
		Status:      result.Status,
		Appointment: result.Appointment,
		RedirectURL: result.RedirectURL,
	}
	if result.Status == booking.StatusRedirect {
		resp.IntentID = result.IntentID.String()
	}

	status := http.StatusCreated
	if result.Status == booking.StatusRedirect {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// writeBookingError maps coordinator errors onto the API's taxonomy. Input
// errors go back verbatim; everything else is collapsed to a safe message.
func (h *BookingHandler) writeBookingError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, pricing.ErrUnknownService),
		errors.Is(err, pricing.ErrInvalidTier),
		errors.Is(err, pricing.ErrNotSubscribable),
		errors.Is(err, pricing.ErrInvalidPlan),
		errors.Is(err, booking.ErrNonceRequired):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, booking.ErrVelocityExceeded):
		http.Error(w, "too many checkout attempts, try again later", http.StatusTooManyRequests)
	case errors.Is(err, gateway.ErrGatewayRejected):
		http.Error(w, "payment was rejected", http.StatusPaymentRequired)
	case errors.Is(err, gateway.ErrGatewayUnavailable):
		http.Error(w, "payment provider unavailable, try again shortly", http.StatusServiceUnavailable)
	default:
		h.logger.Error("booking failed", "error", err, "path", r.URL.Path)
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
	}
}

// ListBookings handles GET /bookings requests.
func (h *BookingHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	accountID, ok := identity.AccountIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing account context", http.StatusUnauthorized)
		return
	}

	list, err := h.appointments.ListForAccount(r.Context(), accountID)
	if err != nil {
		h.logger.Error("failed to list appointments", "error", err, "account_id", accountID)
		http.Error(w, "failed to list appointments", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []appointments.Appointment{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"appointments": list,
		"count":        len(list),
	})
}

type confirmRequest struct {
	Gateway           string `json:"gateway"`
	ExternalReference string `json:"external_reference"`
}

// ConfirmPayment handles POST /payments/confirm, the client-initiated
// polling path. The gateway is asked for the authoritative outcome; the
// request body's word is never trusted.
func (h *BookingHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	if _, ok := identity.AccountIDFromContext(r.Context()); !ok {
		http.Error(w, "missing account context", http.StatusUnauthorized)
		return
	}

	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Gateway == "" || req.ExternalReference == "" {
		http.Error(w, "gateway and external_reference required", http.StatusBadRequest)
		return
	}

	result, err := h.coordinator.ConfirmByPolling(r.Context(), req.Gateway, req.ExternalReference)
	if err != nil {
		switch {
		case errors.Is(err, gateway.ErrGatewayUnavailable):
			http.Error(w, "payment provider unavailable, try again shortly", http.StatusServiceUnavailable)
		default:
			h.logger.Error("confirmation polling failed", "error", err, "external_ref", req.ExternalReference)
			http.Error(w, "confirmation failed", http.StatusBadGateway)
		}
		return
	}

	resp := map[string]any{"outcome": result.Outcome}
	if result.Appointment != nil {
		resp["appointment"] = result.Appointment
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

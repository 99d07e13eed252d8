package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/pridehealth/portal-api/pkg/logging"
)

var stripeTracer = otel.Tracer("portal.internal.gateway.stripe")

// StripeCheckoutService creates Stripe Checkout Sessions, in payment mode
// for single sessions and subscription mode for monthly plans.
type StripeCheckoutService struct {
	secretKey  string
	successURL string
	cancelURL  string
	baseURL    string
	apiVersion string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewStripeCheckoutService creates a new Stripe checkout adapter.
func NewStripeCheckoutService(secretKey, successURL, cancelURL string, logger *logging.Logger) *StripeCheckoutService {
	if logger == nil {
		logger = logging.Default()
	}
	return &StripeCheckoutService{
		secretKey:  secretKey,
		successURL: successURL,
		cancelURL:  cancelURL,
		baseURL:    "https://api.stripe.com",
		apiVersion: "2024-12-18.acacia",
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// WithBaseURL overrides the Stripe API base URL (for testing).
func (s *StripeCheckoutService) WithBaseURL(baseURL string) *StripeCheckoutService {
	if baseURL != "" {
		s.baseURL = strings.TrimRight(baseURL, "/")
	}
	return s
}

// CreateCheckout implements CheckoutProvider for Stripe.
func (s *StripeCheckoutService) CreateCheckout(ctx context.Context, params CheckoutParams) (*CheckoutResponse, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.create_checkout_session")
	defer span.End()
	span.SetAttributes(
		attribute.String("portal.intent_id", params.IntentID.String()),
		attribute.Int64("portal.amount_cents", params.AmountCents),
		attribute.Bool("portal.subscription", params.Subscription),
	)

	successURL := params.SuccessURL
	if successURL == "" {
		successURL = s.successURL
	}
	cancelURL := params.CancelURL
	if cancelURL == "" {
		cancelURL = s.cancelURL
	}

	description := params.Description
	if strings.TrimSpace(description) == "" {
		description = "Appointment"
	}

	form := url.Values{}
	currency := strings.ToLower(params.Currency)
	if currency == "" {
		currency = "usd"
	}
	form.Set("line_items[0][price_data][currency]", currency)
	form.Set("line_items[0][price_data][unit_amount]", fmt.Sprintf("%d", params.AmountCents))
	form.Set("line_items[0][price_data][product_data][name]", description)
	form.Set("line_items[0][quantity]", "1")

	if params.Subscription {
		form.Set("mode", "subscription")
		form.Set("line_items[0][price_data][recurring][interval]", "month")
	} else {
		form.Set("mode", "payment")
	}

	if successURL != "" {
		form.Set("success_url", successURL)
	}
	if cancelURL != "" {
		form.Set("cancel_url", cancelURL)
	}

	// Metadata rides on the session and, for one-time payments, on the
	// payment intent so webhooks can recover the booking context.
	for key, value := range params.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", key), value)
		if !params.Subscription {
			form.Set(fmt.Sprintf("payment_intent_data[metadata][%s]", key), value)
		}
	}
	form.Set("metadata[intent_id]", params.IntentID.String())
	if params.Subscription {
		form.Set("subscription_data[metadata][intent_id]", params.IntentID.String())
		form.Set("subscription_data[metadata][sessions_per_month]", fmt.Sprintf("%d", params.SessionsPerMonth))
		form.Set("subscription_data[metadata][minutes_per_session]", fmt.Sprintf("%d", params.MinutesPerSession))
	} else {
		form.Set("payment_intent_data[metadata][intent_id]", params.IntentID.String())
	}

	apiURL := s.baseURL + "/v1/checkout/sessions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("gateway: stripe request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Stripe-Version", s.apiVersion)
	if params.IdempotencyKey != "" {
		req.Header.Set("Idempotency-Key", params.IdempotencyKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: stripe http: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("gateway: stripe create session: %w", classifyStatus(resp.StatusCode, readBody(resp.Body)))
	}

	var parsed stripeCheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("gateway: stripe decode: %w", err)
	}
	if parsed.URL == "" {
		return nil, fmt.Errorf("gateway: stripe response missing checkout url")
	}

	return &CheckoutResponse{
		RedirectURL:       parsed.URL,
		ExternalReference: parsed.ID,
	}, nil
}

// ConfirmPayment reports the current status of a checkout session. It has
// no side effects and tolerates repeated calls.
func (s *StripeCheckoutService) ConfirmPayment(ctx context.Context, externalRef string) (ConfirmationStatus, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.confirm_payment")
	defer span.End()
	span.SetAttributes(attribute.String("portal.external_ref", externalRef))

	apiURL := s.baseURL + "/v1/checkout/sessions/" + url.PathEscape(externalRef)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return StatusPending, fmt.Errorf("gateway: stripe request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Stripe-Version", s.apiVersion)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return StatusPending, fmt.Errorf("%w: stripe http: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return StatusPending, fmt.Errorf("gateway: stripe confirm: %w", classifyStatus(resp.StatusCode, readBody(resp.Body)))
	}

	var parsed struct {
		ID            string `json:"id"`
		Status        string `json:"status"`
		PaymentStatus string `json:"payment_status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return StatusPending, fmt.Errorf("gateway: stripe decode: %w", err)
	}

	switch {
	case parsed.Status == "complete" && (parsed.PaymentStatus == "paid" || parsed.PaymentStatus == "no_payment_required"):
		return StatusSucceeded, nil
	case parsed.Status == "expired":
		return StatusFailed, nil
	default:
		return StatusPending, nil
	}
}

// stripeCheckoutSession is the subset of Stripe's Checkout Session we need.
type stripeCheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

func readBody(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return "unreadable body"
	}
	return string(data)
}

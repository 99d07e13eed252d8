package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/pridehealth/portal-api/pkg/logging"
)

var paypalTracer = otel.Tracer("portal.internal.gateway.paypal")

// PayPalCheckoutService creates PayPal orders and returns the payer
// approval link. Access tokens are obtained via client-credentials OAuth
// and cached until shortly before expiry.
type PayPalCheckoutService struct {
	clientID     string
	clientSecret string
	successURL   string
	cancelURL    string
	baseURL      string
	httpClient   *http.Client
	logger       *logging.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewPayPalCheckoutService creates a new PayPal checkout adapter.
func NewPayPalCheckoutService(clientID, clientSecret, successURL, cancelURL string, logger *logging.Logger) *PayPalCheckoutService {
	if logger == nil {
		logger = logging.Default()
	}
	return &PayPalCheckoutService{
		clientID:     clientID,
		clientSecret: clientSecret,
		successURL:   successURL,
		cancelURL:    cancelURL,
		baseURL:      "https://api-m.paypal.com",
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		logger:       logger,
	}
}

// WithBaseURL overrides the PayPal API host (e.g. sandbox).
func (s *PayPalCheckoutService) WithBaseURL(baseURL string) *PayPalCheckoutService {
	if baseURL != "" {
		s.baseURL = strings.TrimRight(baseURL, "/")
	}
	return s
}

// token returns a cached access token, fetching a new one when missing or
// within a minute of expiry.
func (s *PayPalCheckoutService) token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.accessToken != "" && time.Until(s.tokenExpiry) > time.Minute {
		return s.accessToken, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+"/v1/oauth2/token",
		strings.NewReader("grant_type=client_credentials"))
	if err != nil {
		return "", fmt.Errorf("gateway: paypal token request: %w", err)
	}
	req.SetBasicAuth(s.clientID, s.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: paypal token http: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("gateway: paypal token: %w", classifyStatus(resp.StatusCode, readBody(resp.Body)))
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("gateway: paypal token decode: %w", err)
	}
	if parsed.AccessToken == "" {
		return "", fmt.Errorf("%w: paypal token response empty", ErrAuthFailed)
	}

	s.accessToken = parsed.AccessToken
	s.tokenExpiry = time.Now().Add(time.Duration(parsed.ExpiresIn) * time.Second)
	return s.accessToken, nil
}

// CreateCheckout implements CheckoutProvider for PayPal. PayPal has no
// subscription-mode order, so subscription signups are routed elsewhere by
// the multi-gateway router.
func (s *PayPalCheckoutService) CreateCheckout(ctx context.Context, params CheckoutParams) (*CheckoutResponse, error) {
	ctx, span := paypalTracer.Start(ctx, "paypal.create_order")
	defer span.End()
	span.SetAttributes(
		attribute.String("portal.intent_id", params.IntentID.String()),
		attribute.Int64("portal.amount_cents", params.AmountCents),
	)

	if params.Subscription {
		return nil, fmt.Errorf("%w: paypal does not support subscription checkout", ErrGatewayRejected)
	}

	accessToken, err := s.token(ctx)
	if err != nil {
		return nil, err
	}

	successURL := params.SuccessURL
	if successURL == "" {
		successURL = s.successURL
	}
	cancelURL := params.CancelURL
	if cancelURL == "" {
		cancelURL = s.cancelURL
	}

	currency := strings.ToUpper(params.Currency)
	if currency == "" {
		currency = "USD"
	}

	body := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{
			{
				"reference_id": params.IntentID.String(),
				"custom_id":    params.IntentID.String(),
				"description":  params.Description,
				"amount": map[string]any{
					"currency_code": currency,
					"value":         centsToDecimal(params.AmountCents),
				},
			},
		},
		"application_context": map[string]any{
			"return_url": successURL,
			"cancel_url": cancelURL,
		},
	}

	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("gateway: paypal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+"/v2/checkout/orders", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("gateway: paypal request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	if params.IdempotencyKey != "" {
		req.Header.Set("PayPal-Request-Id", params.IdempotencyKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: paypal http: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("gateway: paypal create order: %w", classifyStatus(resp.StatusCode, readBody(resp.Body)))
	}

	var parsed struct {
		ID    string `json:"id"`
		Links []struct {
			Href string `json:"href"`
			Rel  string `json:"rel"`
		} `json:"links"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("gateway: paypal decode: %w", err)
	}

	var approvalURL string
	for _, link := range parsed.Links {
		if link.Rel == "approve" {
			approvalURL = link.Href
			break
		}
	}
	if approvalURL == "" {
		return nil, fmt.Errorf("gateway: paypal response missing approval link")
	}

	return &CheckoutResponse{
		RedirectURL:       approvalURL,
		ExternalReference: parsed.ID,
	}, nil
}

// ConfirmPayment reports the current status of a PayPal order. Read-only;
// an APPROVED order has no captured funds yet, so only COMPLETED counts as
// succeeded. CaptureOrder is the call that moves an order past APPROVED.
func (s *PayPalCheckoutService) ConfirmPayment(ctx context.Context, externalRef string) (ConfirmationStatus, error) {
	ctx, span := paypalTracer.Start(ctx, "paypal.get_order")
	defer span.End()
	span.SetAttributes(attribute.String("portal.external_ref", externalRef))

	accessToken, err := s.token(ctx)
	if err != nil {
		return StatusPending, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.baseURL+"/v2/checkout/orders/"+url.PathEscape(externalRef), nil)
	if err != nil {
		return StatusPending, fmt.Errorf("gateway: paypal request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return StatusPending, fmt.Errorf("%w: paypal http: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return StatusPending, fmt.Errorf("gateway: paypal get order: %w", classifyStatus(resp.StatusCode, readBody(resp.Body)))
	}

	var parsed struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return StatusPending, fmt.Errorf("gateway: paypal decode: %w", err)
	}

	switch parsed.Status {
	case "COMPLETED":
		return StatusSucceeded, nil
	case "VOIDED":
		return StatusFailed, nil
	default:
		// APPROVED means the payer signed off but nothing was captured.
		return StatusPending, nil
	}
}

// CaptureOrder captures the funds for an approved order. The order id doubles
// as the PayPal-Request-Id so replayed webhooks cannot double-capture, and an
// ORDER_ALREADY_CAPTURED rejection is treated as success for the same reason.
func (s *PayPalCheckoutService) CaptureOrder(ctx context.Context, externalRef string) error {
	ctx, span := paypalTracer.Start(ctx, "paypal.capture_order")
	defer span.End()
	span.SetAttributes(attribute.String("portal.external_ref", externalRef))

	accessToken, err := s.token(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+"/v2/checkout/orders/"+url.PathEscape(externalRef)+"/capture",
		strings.NewReader("{}"))
	if err != nil {
		return fmt.Errorf("gateway: paypal capture request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("PayPal-Request-Id", "capture-"+externalRef)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: paypal http: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body := readBody(resp.Body)
		if resp.StatusCode == http.StatusUnprocessableEntity && strings.Contains(body, "ORDER_ALREADY_CAPTURED") {
			return nil
		}
		return fmt.Errorf("gateway: paypal capture order: %w", classifyStatus(resp.StatusCode, body))
	}
	return nil
}

// VerifyWebhook asks PayPal whether a webhook delivery carries a valid
// transmission signature for the configured webhook id. The raw body must be
// the exact bytes received, re-marshalling breaks the signature.
func (s *PayPalCheckoutService) VerifyWebhook(ctx context.Context, webhookID string, header http.Header, rawEvent []byte) (bool, error) {
	ctx, span := paypalTracer.Start(ctx, "paypal.verify_webhook")
	defer span.End()

	accessToken, err := s.token(ctx)
	if err != nil {
		return false, err
	}

	payload := map[string]any{
		"transmission_id":   header.Get("Paypal-Transmission-Id"),
		"transmission_time": header.Get("Paypal-Transmission-Time"),
		"transmission_sig":  header.Get("Paypal-Transmission-Sig"),
		"cert_url":          header.Get("Paypal-Cert-Url"),
		"auth_algo":         header.Get("Paypal-Auth-Algo"),
		"webhook_id":        webhookID,
		"webhook_event":     json.RawMessage(rawEvent),
	}
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("gateway: paypal verify payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+"/v1/notification/verify-webhook-signature", bytes.NewReader(reqBody))
	if err != nil {
		return false, fmt.Errorf("gateway: paypal verify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: paypal http: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return false, fmt.Errorf("gateway: paypal verify webhook: %w", classifyStatus(resp.StatusCode, readBody(resp.Body)))
	}

	var parsed struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return false, fmt.Errorf("gateway: paypal verify decode: %w", err)
	}
	return parsed.VerificationStatus == "SUCCESS", nil
}

// centsToDecimal renders minor units as PayPal's decimal string ("30.00").
func centsToDecimal(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

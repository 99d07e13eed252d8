package gateway

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/pridehealth/portal-api/pkg/logging"
)

// FakeCheckoutService is a dev/demo provider that generates an internal URL
// and lets a tester "complete" a payment without gateway credentials.
//
// This MUST be gated by configuration (ALLOW_FAKE_PAYMENTS) and should never
// be enabled in production.
type FakeCheckoutService struct {
	publicBaseURL string
	logger        *logging.Logger
}

func NewFakeCheckoutService(publicBaseURL string, logger *logging.Logger) *FakeCheckoutService {
	if logger == nil {
		logger = logging.Default()
	}
	return &FakeCheckoutService{
		publicBaseURL: strings.TrimRight(strings.TrimSpace(publicBaseURL), "/"),
		logger:        logger,
	}
}

func (s *FakeCheckoutService) CreateCheckout(ctx context.Context, params CheckoutParams) (*CheckoutResponse, error) {
	_ = ctx
	if params.IntentID == uuid.Nil {
		return nil, fmt.Errorf("gateway: fake checkout requires an intent id")
	}
	if s.publicBaseURL == "" {
		return nil, fmt.Errorf("gateway: fake checkout requires PUBLIC_BASE_URL")
	}
	if !isValidBaseURL(s.publicBaseURL) {
		return nil, fmt.Errorf("gateway: fake checkout PUBLIC_BASE_URL must be an absolute http(s) URL")
	}

	checkoutURL := fmt.Sprintf("%s/payments/fake/%s", s.publicBaseURL, params.IntentID)
	return &CheckoutResponse{
		RedirectURL:       checkoutURL,
		ExternalReference: "fake:" + params.IntentID.String(),
	}, nil
}

// ConfirmPayment always reports success; the fake provider exists so the
// full confirmation path can be exercised without a real gateway.
func (s *FakeCheckoutService) ConfirmPayment(ctx context.Context, externalRef string) (ConfirmationStatus, error) {
	_ = ctx
	if !strings.HasPrefix(externalRef, "fake:") {
		return StatusPending, fmt.Errorf("%w: unknown fake reference %q", ErrGatewayRejected, externalRef)
	}
	return StatusSucceeded, nil
}

func isValidBaseURL(value string) bool {
	parsed, err := url.Parse(value)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return false
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
		return true
	default:
		return false
	}
}

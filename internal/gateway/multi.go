package gateway

import (
	"fmt"
	"strings"

	"github.com/pridehealth/portal-api/pkg/logging"
)

// Method names accepted from booking requests.
const (
	MethodCard   = "card"
	MethodPayPal = "paypal"
	MethodFake   = "fake"
)

// MultiCheckoutService routes checkout creation to the provider matching
// the payer's chosen payment method.
type MultiCheckoutService struct {
	stripe CheckoutProvider
	paypal CheckoutProvider
	fake   CheckoutProvider
	logger *logging.Logger
}

// NewMultiCheckoutService creates a router over the configured providers.
// Any provider may be nil; requests for an unconfigured method are rejected.
func NewMultiCheckoutService(stripe, paypal, fake CheckoutProvider, logger *logging.Logger) *MultiCheckoutService {
	if logger == nil {
		logger = logging.Default()
	}
	return &MultiCheckoutService{
		stripe: stripe,
		paypal: paypal,
		fake:   fake,
		logger: logger,
	}
}

// ProviderFor resolves a payment method name to a provider and its
// canonical gateway name.
func (m *MultiCheckoutService) ProviderFor(method string) (CheckoutProvider, string, error) {
	switch strings.ToLower(strings.TrimSpace(method)) {
	case MethodCard, "credit-card", "debit-card", "stripe":
		if m.stripe == nil {
			return nil, "", fmt.Errorf("gateway: stripe not configured")
		}
		return m.stripe, "stripe", nil
	case MethodPayPal:
		if m.paypal == nil {
			return nil, "", fmt.Errorf("gateway: paypal not configured")
		}
		return m.paypal, "paypal", nil
	case MethodFake:
		if m.fake == nil {
			return nil, "", fmt.Errorf("gateway: fake payments disabled")
		}
		return m.fake, "fake", nil
	default:
		return nil, "", fmt.Errorf("gateway: unsupported payment method %q", method)
	}
}

// ByName resolves a canonical gateway name (as stored on a payment intent)
// back to its provider, for the polling confirmation path.
func (m *MultiCheckoutService) ByName(name string) (CheckoutProvider, error) {
	switch name {
	case "stripe":
		if m.stripe == nil {
			return nil, fmt.Errorf("gateway: stripe not configured")
		}
		return m.stripe, nil
	case "paypal":
		if m.paypal == nil {
			return nil, fmt.Errorf("gateway: paypal not configured")
		}
		return m.paypal, nil
	case "fake":
		if m.fake == nil {
			return nil, fmt.Errorf("gateway: fake payments disabled")
		}
		return m.fake, nil
	default:
		return nil, fmt.Errorf("gateway: unknown gateway %q", name)
	}
}

package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pridehealth/portal-api/internal/appointments"
	"github.com/pridehealth/portal-api/internal/booking"
	"github.com/pridehealth/portal-api/internal/catalog"
	"github.com/pridehealth/portal-api/internal/http/handlers"
)

type noopCoordinator struct{}

func (noopCoordinator) Book(ctx context.Context, req booking.BookingRequest) (*booking.BookingResult, error) {
	return &booking.BookingResult{Status: booking.StatusConfirmed}, nil
}

func (noopCoordinator) ConfirmByPolling(ctx context.Context, gatewayName, externalRef string) (*booking.ConfirmationResult, error) {
	return &booking.ConfirmationResult{Outcome: booking.OutcomeConfirmed}, nil
}

type noopLister struct{}

func (noopLister) ListForAccount(ctx context.Context, accountID string) ([]appointments.Appointment, error) {
	return nil, nil
}

const testSecret = "router-test-secret"

func testRouter(t *testing.T) http.Handler {
	t.Helper()
	return New(&Config{
		BookingHandler:  handlers.NewBookingHandler(noopCoordinator{}, noopLister{}, nil),
		ServicesHandler: handlers.NewServicesHandler(catalog.NewStaticCatalog(catalog.DefaultServices()), nil),
		HealthHandler:   handlers.NewHealthHandler(nil, nil),
		MetricsHandler:  promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{}),
		AuthJWTSecret:   testSecret,
	})
}

func bearerToken(t *testing.T) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "acct_router_test",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return "Bearer " + signed
}

func TestPublicEndpoints(t *testing.T) {
	r := testRouter(t)

	for _, path := range []string{"/health", "/health/ready", "/services", "/metrics"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}

func TestBookingsRequireAuth(t *testing.T) {
	r := testRouter(t)

	cases := []struct {
		method, path string
	}{
		{http.MethodPost, "/bookings"},
		{http.MethodGet, "/bookings"},
		{http.MethodPost, "/payments/confirm"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: expected 401, got %d", tc.method, tc.path, rec.Code)
		}
	}
}

func TestBookingsWithToken(t *testing.T) {
	r := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/bookings", nil)
	req.Header.Set("Authorization", bearerToken(t))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCreateBookingWithToken(t *testing.T) {
	r := testRouter(t)

	body := `{"service_id":"svc","duration_minutes":60,"scheduled_at":"2026-09-15T10:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/bookings", strings.NewReader(body))
	req.Header.Set("Authorization", bearerToken(t))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestWebhooksNotRegisteredWhenUnconfigured(t *testing.T) {
	r := testRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhooks/stripe", nil))
	if rec.Code != http.StatusNotFound && rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected webhook route absent, got %d", rec.Code)
	}
}

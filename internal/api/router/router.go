package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pridehealth/portal-api/internal/http/handlers"
	httpmiddleware "github.com/pridehealth/portal-api/internal/http/middleware"
	"github.com/pridehealth/portal-api/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	BookingHandler     *handlers.BookingHandler
	ServicesHandler    *handlers.ServicesHandler
	HealthHandler      *handlers.HealthHandler
	StripeWebhook      *handlers.StripeWebhookHandler
	PayPalWebhook      *handlers.PayPalWebhookHandler
	FakePayments       *handlers.FakePaymentsHandler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	AuthJWTSecret      string

	// Requests per second allowed per client IP on the public webhook
	// endpoints. Zero disables rate limiting.
	WebhookRateLimit float64
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints (webhooks, health checks, service catalog)
	r.Group(func(public chi.Router) {
		if cfg.HealthHandler != nil {
			public.Get("/health", cfg.HealthHandler.Liveness)
			public.Get("/health/ready", cfg.HealthHandler.Readiness)
		}
		if cfg.ServicesHandler != nil {
			public.Get("/services", cfg.ServicesHandler.List)
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}

		public.Group(func(webhooks chi.Router) {
			if cfg.WebhookRateLimit > 0 {
				webhooks.Use(httpmiddleware.RateLimit(cfg.WebhookRateLimit, int(cfg.WebhookRateLimit)*2))
			}
			if cfg.StripeWebhook != nil {
				webhooks.Post("/webhooks/stripe", cfg.StripeWebhook.Handle)
			}
			if cfg.PayPalWebhook != nil {
				webhooks.Post("/webhooks/paypal", cfg.PayPalWebhook.Handle)
			}
		})

		// DEV ONLY: demo checkout pages, gated by ALLOW_FAKE_PAYMENTS.
		if cfg.FakePayments != nil {
			public.Get("/payments/fake/{intentID}", cfg.FakePayments.HandleCheckout)
			public.Post("/payments/fake/{intentID}/complete", cfg.FakePayments.HandleComplete)
			public.Get("/payments/fake/{intentID}/success", cfg.FakePayments.HandleSuccess)
		}
	})

	// Account-scoped routes (JWT required)
	if cfg.BookingHandler != nil && cfg.AuthJWTSecret != "" {
		r.Group(func(account chi.Router) {
			account.Use(httpmiddleware.AccountJWT(cfg.AuthJWTSecret))

			account.Route("/bookings", func(r chi.Router) {
				r.Post("/", cfg.BookingHandler.CreateBooking)
				r.Get("/", cfg.BookingHandler.ListBookings)
			})
			account.Post("/payments/confirm", cfg.BookingHandler.ConfirmPayment)
		})
	}

	return r
}

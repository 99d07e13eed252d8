package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/pridehealth/portal-api/internal/api/router"
	"github.com/pridehealth/portal-api/internal/appointments"
	"github.com/pridehealth/portal-api/internal/billing"
	"github.com/pridehealth/portal-api/internal/booking"
	"github.com/pridehealth/portal-api/internal/catalog"
	appconfig "github.com/pridehealth/portal-api/internal/config"
	"github.com/pridehealth/portal-api/internal/confirm"
	"github.com/pridehealth/portal-api/internal/gateway"
	"github.com/pridehealth/portal-api/internal/http/handlers"
	"github.com/pridehealth/portal-api/internal/intents"
	"github.com/pridehealth/portal-api/internal/ledger"
	"github.com/pridehealth/portal-api/internal/observability/metrics"
	"github.com/pridehealth/portal-api/internal/pricing"
	"github.com/pridehealth/portal-api/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting portal API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Separate database/sql handle for the billing lifecycle processor.
	billingDB, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open billing database", "error", err)
		os.Exit(1)
	}
	defer billingDB.Close()

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		opts := &redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	}

	// Stores
	catalogStore := catalog.NewPostgresStore(pool)
	pricer := pricing.NewResolver(catalogStore)
	intentStore := intents.NewPostgresRepository(pool)
	appointmentStore := appointments.NewPostgresRepository(pool)
	subscriptionLedger := ledger.NewPostgresStore(pool)
	processedStore := confirm.NewProcessedStore(pool)

	// Payment gateways
	var stripeSvc, fakeSvc gateway.CheckoutProvider
	var paypalSvc *gateway.PayPalCheckoutService
	if cfg.StripeSecretKey != "" {
		stripeSvc = gateway.NewStripeCheckoutService(
			cfg.StripeSecretKey, cfg.StripeSuccessURL, cfg.StripeCancelURL, logger,
		).WithBaseURL(cfg.StripeBaseURL)
	}
	if cfg.PayPalClientID != "" && cfg.PayPalClientSecret != "" {
		paypalSvc = gateway.NewPayPalCheckoutService(
			cfg.PayPalClientID, cfg.PayPalClientSecret, cfg.PayPalSuccessURL, cfg.PayPalCancelURL, logger,
		).WithBaseURL(cfg.PayPalBaseURL)
	}
	if cfg.AllowFakePayments {
		logger.Warn("fake payments enabled; do not use in production")
		fakeSvc = gateway.NewFakeCheckoutService(cfg.PublicBaseURL, logger)
	}
	// The nil guard keeps a typed-nil provider out of the interface slot.
	var paypalProvider gateway.CheckoutProvider
	if paypalSvc != nil {
		paypalProvider = paypalSvc
	}
	gateways := gateway.NewMultiCheckoutService(stripeSvc, paypalProvider, fakeSvc, logger)

	velocity := booking.NewVelocityChecker(redisClient, booking.VelocityConfig{
		MaxCheckoutsPerAccount: cfg.CheckoutMaxPerAccount,
		CheckoutWindowHours:    cfg.CheckoutWindowHours,
		EnableCheckoutCheck:    redisClient != nil,
	}, logger)

	bookingMetrics := metrics.NewBookingMetrics(prometheus.DefaultRegisterer)

	coordinator := booking.NewCoordinator(booking.CoordinatorConfig{
		Pricer:         pricer,
		Gateways:       gateways,
		Intents:        intentStore,
		Appointments:   appointmentStore,
		Ledger:         subscriptionLedger,
		Processed:      processedStore,
		Velocity:       velocity,
		Metrics:        bookingMetrics,
		Logger:         logger,
		GatewayTimeout: cfg.GatewayTimeout,
		SuccessURL:     cfg.StripeSuccessURL,
		CancelURL:      cfg.StripeCancelURL,
		Currency:       cfg.Currency,
	})

	lifecycle := billing.NewLifecycleWebhookHandler(billingDB, cfg.StripeWebhookSecret, logger)

	routerCfg := &router.Config{
		Logger:             logger,
		BookingHandler:     handlers.NewBookingHandler(coordinator, appointmentStore, logger),
		ServicesHandler:    handlers.NewServicesHandler(catalogStore, logger),
		HealthHandler:      handlers.NewHealthHandler(pool, logger),
		StripeWebhook:      handlers.NewStripeWebhookHandler(cfg.StripeWebhookSecret, coordinator, lifecycle, logger),
		MetricsHandler:     promhttp.Handler(),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		AuthJWTSecret:      cfg.AuthJWTSecret,
		WebhookRateLimit:   10,
	}
	if paypalSvc != nil {
		if cfg.PayPalWebhookID == "" {
			logger.Warn("PAYPAL_WEBHOOK_ID not set; webhook signature verification disabled")
		}
		routerCfg.PayPalWebhook = handlers.NewPayPalWebhookHandler(
			coordinator, paypalSvc, paypalSvc, cfg.PayPalWebhookID, logger)
	}
	if cfg.AllowFakePayments {
		routerCfg.FakePayments = handlers.NewFakePaymentsHandler(intentStore, coordinator, logger)
	}
	r := router.New(routerCfg)

	// Expire abandoned checkout intents in the background.
	expireCtx, stopExpiry := context.WithCancel(ctx)
	defer stopExpiry()
	go runIntentExpiry(expireCtx, intentStore, cfg.IntentExpiryWindow, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

type staleExpirer interface {
	ExpireStale(ctx context.Context, olderThan time.Time) (int64, error)
}

func runIntentExpiry(ctx context.Context, store staleExpirer, window time.Duration, logger *logging.Logger) {
	if window <= 0 {
		return
	}
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, err := store.ExpireStale(ctx, time.Now().Add(-window))
			if err != nil {
				logger.Error("intent expiry sweep failed", "error", err)
				continue
			}
			if expired > 0 {
				logger.Info("expired stale payment intents", "count", expired)
			}
		}
	}
}

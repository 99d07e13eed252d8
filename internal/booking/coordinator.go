// Package booking orchestrates the portal's booking flow: price the
// request, draw from a subscription or confirm a free session inline, or
// hand off to a payment gateway and finish the booking when the
// confirmation signal lands.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/pridehealth/portal-api/internal/appointments"
	"github.com/pridehealth/portal-api/internal/gateway"
	"github.com/pridehealth/portal-api/internal/intents"
	"github.com/pridehealth/portal-api/internal/ledger"
	"github.com/pridehealth/portal-api/internal/observability/metrics"
	"github.com/pridehealth/portal-api/internal/pricing"
	"github.com/pridehealth/portal-api/pkg/logging"
)

var bookingTracer = otel.Tracer("portal.internal.booking")

var (
	// ErrNonceRequired means a free booking arrived without a client nonce.
	ErrNonceRequired = errors.New("booking: client nonce required for free bookings")
	// ErrVelocityExceeded means the account hit the checkout attempt limit.
	ErrVelocityExceeded = errors.New("booking: too many checkout attempts")
)

// Booking outcomes surfaced to the handler.
const (
	StatusConfirmed = "confirmed"
	StatusRedirect  = "redirect"
)

// BookingRequest is a priced-and-validated booking ask for one account.
type BookingRequest struct {
	AccountID       string
	ServiceID       string
	Selection       pricing.Selection
	UseSubscription bool
	ScheduledAt     time.Time
	Notes           string
	PaymentMethod   string
	ClientNonce     string
}

// BookingResult is either a confirmed appointment or a checkout redirect.
type BookingResult struct {
	Status      string
	Appointment *appointments.Appointment
	RedirectURL string
	IntentID    uuid.UUID
}

// Confirmation is a normalized gateway confirmation signal, from either a
// webhook or the polling path.
type Confirmation struct {
	Gateway           string
	EventID           string
	ExternalReference string
	Succeeded         bool
}

// Confirmation outcomes.
const (
	OutcomeConfirmed = "confirmed"
	OutcomeFailed    = "failed"
	OutcomeDuplicate = "duplicate"
)

// ConfirmationResult reports what a confirmation delivery resolved to.
type ConfirmationResult struct {
	Outcome     string
	Appointment *appointments.Appointment
	Intent      *intents.PaymentIntent
}

type intentStore interface {
	Create(ctx context.Context, req *intents.NewIntent) (*intents.PaymentIntent, error)
	AttachExternalRef(ctx context.Context, id uuid.UUID, gateway, externalRef string) error
	MarkSucceeded(ctx context.Context, externalRef string) (intents.TransitionResult, error)
	MarkFailed(ctx context.Context, externalRef string) (intents.TransitionResult, error)
}

type appointmentStore interface {
	Create(ctx context.Context, req *appointments.NewAppointment, dedupeKey string) (*appointments.Appointment, bool, error)
}

type subscriptionLedger interface {
	GetActive(ctx context.Context, accountID string, serviceID uuid.UUID) (*ledger.Subscription, error)
	TryConsumeSession(ctx context.Context, subscriptionID uuid.UUID) (ledger.ConsumeResult, error)
	RestoreSession(ctx context.Context, subscriptionID uuid.UUID) error
	ActivateOrRenew(ctx context.Context, params ledger.ActivateParams) (*ledger.Subscription, bool, error)
}

type processedEvents interface {
	AlreadyProcessed(ctx context.Context, gateway, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, gateway, eventID string) (bool, error)
}

type providerRouter interface {
	ProviderFor(method string) (gateway.CheckoutProvider, string, error)
	ByName(name string) (gateway.CheckoutProvider, error)
}

type velocityGuard interface {
	CheckCheckoutVelocity(ctx context.Context, accountID string) (*VelocityResult, error)
}

// Coordinator drives the booking state machine. Stateless between requests;
// all cross-request coordination happens through the stores, so multiple
// replicas are safe to run concurrently.
type Coordinator struct {
	pricer         *pricing.Resolver
	gateways       providerRouter
	intents        intentStore
	appointments   appointmentStore
	ledger         subscriptionLedger
	processed      processedEvents
	velocity       velocityGuard
	metrics        *metrics.BookingMetrics
	logger         *logging.Logger
	gatewayTimeout time.Duration
	successURL     string
	cancelURL      string
	currency       string
}

// CoordinatorConfig wires the coordinator's collaborators.
type CoordinatorConfig struct {
	Pricer         *pricing.Resolver
	Gateways       providerRouter
	Intents        intentStore
	Appointments   appointmentStore
	Ledger         subscriptionLedger
	Processed      processedEvents
	Velocity       velocityGuard
	Metrics        *metrics.BookingMetrics
	Logger         *logging.Logger
	GatewayTimeout time.Duration
	SuccessURL     string
	CancelURL      string
	Currency       string
}

// NewCoordinator constructs a coordinator.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	if cfg.Pricer == nil {
		panic("booking: pricer required")
	}
	if cfg.Gateways == nil {
		panic("booking: gateway router required")
	}
	if cfg.Intents == nil || cfg.Appointments == nil || cfg.Ledger == nil {
		panic("booking: stores required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 10 * time.Second
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	return &Coordinator{
		pricer:         cfg.Pricer,
		gateways:       cfg.Gateways,
		intents:        cfg.Intents,
		appointments:   cfg.Appointments,
		ledger:         cfg.Ledger,
		processed:      cfg.Processed,
		velocity:       cfg.Velocity,
		metrics:        cfg.Metrics,
		logger:         cfg.Logger,
		gatewayTimeout: cfg.GatewayTimeout,
		successURL:     cfg.SuccessURL,
		cancelURL:      cfg.CancelURL,
		currency:       cfg.Currency,
	}
}

// Book runs the synchronous half of the state machine. It returns either a
// confirmed appointment (free and subscription-draw paths) or a redirect to
// the gateway's hosted checkout (paid path). Pricing errors pass through
// unwrapped so handlers can map them to input errors.
func (c *Coordinator) Book(ctx context.Context, req BookingRequest) (*BookingResult, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.book")
	defer span.End()
	span.SetAttributes(
		attribute.String("portal.account_id", req.AccountID),
		attribute.String("portal.service_id", req.ServiceID),
	)

	if req.AccountID == "" {
		return nil, fmt.Errorf("booking: account id required")
	}
	if req.ScheduledAt.IsZero() {
		return nil, fmt.Errorf("booking: scheduled time required")
	}

	quote, err := c.pricer.Resolve(ctx, req.ServiceID, req.Selection)
	if err != nil {
		c.metrics.ObserveBooking("priced", "rejected")
		return nil, err
	}
	serviceID, err := uuid.Parse(quote.ServiceID)
	if err != nil {
		return nil, fmt.Errorf("booking: malformed service id %q: %w", quote.ServiceID, err)
	}

	// Subscription draw path. Exhausted or absent subscriptions fall through
	// to the paid/free path rather than erroring.
	if req.UseSubscription && !req.Selection.Subscribe {
		result, ok, err := c.bookFromSubscription(ctx, req, quote, serviceID)
		if err != nil {
			return nil, err
		}
		if ok {
			return result, nil
		}
	}

	if quote.AmountCents == 0 {
		return c.bookFree(ctx, req, quote, serviceID)
	}
	return c.bookPaid(ctx, req, quote, serviceID)
}

func (c *Coordinator) bookFromSubscription(ctx context.Context, req BookingRequest, quote *pricing.Quote, serviceID uuid.UUID) (*BookingResult, bool, error) {
	sub, err := c.ledger.GetActive(ctx, req.AccountID, serviceID)
	if err != nil {
		if errors.Is(err, ledger.ErrNoActiveSubscription) {
			return nil, false, nil
		}
		return nil, false, err
	}

	draw, err := c.ledger.TryConsumeSession(ctx, sub.ID)
	if err != nil {
		return nil, false, err
	}
	if !draw.Consumed {
		c.logger.Info("subscription exhausted, falling through to paid path",
			"account_id", req.AccountID, "subscription_id", sub.ID)
		return nil, false, nil
	}

	// Session draws are not re-payable; a fresh nonce keys the insert and
	// client retries are deduplicated upstream.
	appt, _, err := c.appointments.Create(ctx, &appointments.NewAppointment{
		AccountID:       req.AccountID,
		ServiceID:       serviceID,
		ScheduledAt:     req.ScheduledAt,
		DurationMinutes: quote.DurationMinutes,
		Origin:          appointments.OriginSubscriptionSession,
		SubscriptionID:  &sub.ID,
		Notes:           req.Notes,
	}, uuid.New().String())
	if err != nil {
		// Give the drawn session back; the booking did not happen.
		if restoreErr := c.ledger.RestoreSession(ctx, sub.ID); restoreErr != nil {
			c.logger.Error("failed to restore session after insert failure",
				"error", restoreErr, "subscription_id", sub.ID)
		}
		return nil, false, err
	}

	c.metrics.ObserveBooking("subscription_draw", "confirmed")
	return &BookingResult{Status: StatusConfirmed, Appointment: appt}, true, nil
}

func (c *Coordinator) bookFree(ctx context.Context, req BookingRequest, quote *pricing.Quote, serviceID uuid.UUID) (*BookingResult, error) {
	if req.ClientNonce == "" {
		return nil, ErrNonceRequired
	}
	appt, created, err := c.appointments.Create(ctx, &appointments.NewAppointment{
		AccountID:       req.AccountID,
		ServiceID:       serviceID,
		ScheduledAt:     req.ScheduledAt,
		DurationMinutes: quote.DurationMinutes,
		Origin:          appointments.OriginFree,
		Notes:           req.Notes,
	}, req.ClientNonce)
	if err != nil {
		return nil, err
	}
	if !created {
		c.logger.Info("free booking replayed, returning existing appointment",
			"account_id", req.AccountID, "appointment_id", appt.ID)
	}
	c.metrics.ObserveBooking("free", "confirmed")
	return &BookingResult{Status: StatusConfirmed, Appointment: appt}, nil
}

func (c *Coordinator) bookPaid(ctx context.Context, req BookingRequest, quote *pricing.Quote, serviceID uuid.UUID) (*BookingResult, error) {
	if c.velocity != nil {
		check, err := c.velocity.CheckCheckoutVelocity(ctx, req.AccountID)
		if err == nil && check != nil && !check.Allowed {
			c.metrics.ObserveBooking("paid", "velocity_limited")
			return nil, ErrVelocityExceeded
		}
	}

	provider, gatewayName, err := c.gateways.ProviderFor(req.PaymentMethod)
	if err != nil {
		return nil, err
	}
	if quote.Subscription && gatewayName != "stripe" && gatewayName != "fake" {
		return nil, fmt.Errorf("booking: subscriptions require card payment")
	}

	intent, err := c.intents.Create(ctx, &intents.NewIntent{
		AccountID:   req.AccountID,
		ServiceID:   serviceID,
		AmountCents: quote.AmountCents,
		Currency:    c.currency,
		Metadata: intents.Metadata{
			ScheduledAt:       req.ScheduledAt,
			DurationMinutes:   quote.DurationMinutes,
			Notes:             req.Notes,
			Subscription:      quote.Subscription,
			SessionsPerMonth:  quote.Plan.SessionsPerMonth,
			MinutesPerSession: quote.Plan.MinutesPerSession,
		},
	})
	if err != nil {
		return nil, err
	}

	// Gateways are externally rate-limited and occasionally slow; bound the
	// call so a hung gateway surfaces as unavailable, not a stuck request.
	gwCtx, cancel := context.WithTimeout(ctx, c.gatewayTimeout)
	defer cancel()

	start := time.Now()
	checkout, err := provider.CreateCheckout(gwCtx, gateway.CheckoutParams{
		IntentID:          intent.ID,
		AmountCents:       quote.AmountCents,
		Currency:          c.currency,
		Description:       fmt.Sprintf("%s (%d min)", quote.ServiceName, quote.DurationMinutes),
		SuccessURL:        c.successURL,
		CancelURL:         c.cancelURL,
		Metadata:          map[string]string{"account_id": req.AccountID},
		IdempotencyKey:    intent.ID.String(),
		Subscription:      quote.Subscription,
		SessionsPerMonth:  quote.Plan.SessionsPerMonth,
		MinutesPerSession: quote.Plan.MinutesPerSession,
	})
	c.metrics.ObserveCheckoutLatency(gatewayName, time.Since(start).Seconds())
	if err != nil {
		if errors.Is(gwCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w: checkout timed out", gateway.ErrGatewayUnavailable)
		}
		c.metrics.ObserveBooking("paid", "gateway_error")
		return nil, err
	}

	if err := c.intents.AttachExternalRef(ctx, intent.ID, gatewayName, checkout.ExternalReference); err != nil {
		return nil, err
	}

	c.metrics.ObserveCheckoutCreated(gatewayName)
	c.metrics.ObserveBooking("paid", "redirect")
	return &BookingResult{
		Status:      StatusRedirect,
		RedirectURL: checkout.RedirectURL,
		IntentID:    intent.ID,
	}, nil
}

// HandleConfirmation runs the asynchronous half of the state machine. It is
// idempotent per external reference: duplicate deliveries, in any order,
// resolve to the committed state and never create a second appointment.
func (c *Coordinator) HandleConfirmation(ctx context.Context, conf Confirmation) (*ConfirmationResult, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.handle_confirmation")
	defer span.End()
	span.SetAttributes(
		attribute.String("portal.gateway", conf.Gateway),
		attribute.String("portal.external_ref", conf.ExternalReference),
	)

	if conf.ExternalReference == "" {
		return nil, fmt.Errorf("booking: external reference required")
	}

	// Envelope dedupe in front of the status guard. Polling deliveries have
	// no event id and rely on the guard alone.
	if c.processed != nil && conf.EventID != "" {
		seen, err := c.processed.AlreadyProcessed(ctx, conf.Gateway, conf.EventID)
		if err != nil {
			return nil, err
		}
		if seen {
			c.metrics.ObserveConfirmation(conf.Gateway, "duplicate")
			return &ConfirmationResult{Outcome: OutcomeDuplicate}, nil
		}
	}

	result, err := c.applyConfirmation(ctx, conf)
	if err != nil {
		return nil, err
	}

	if c.processed != nil && conf.EventID != "" {
		if _, err := c.processed.MarkProcessed(ctx, conf.Gateway, conf.EventID); err != nil {
			// The intent guard already holds the outcome; a failed mark only
			// costs one redundant lookup on redelivery.
			c.logger.Warn("failed to mark confirmation processed",
				"error", err, "gateway", conf.Gateway, "event_id", conf.EventID)
		}
	}

	c.metrics.ObserveConfirmation(conf.Gateway, result.Outcome)
	return result, nil
}

func (c *Coordinator) applyConfirmation(ctx context.Context, conf Confirmation) (*ConfirmationResult, error) {
	if !conf.Succeeded {
		result, err := c.intents.MarkFailed(ctx, conf.ExternalReference)
		if err != nil {
			return nil, err
		}
		outcome := OutcomeFailed
		if !result.Applied {
			outcome = OutcomeDuplicate
		}
		return &ConfirmationResult{Outcome: outcome, Intent: result.Intent}, nil
	}

	result, err := c.intents.MarkSucceeded(ctx, conf.ExternalReference)
	if err != nil {
		return nil, err
	}
	if !result.Applied {
		// Already settled. The repository dedupe made the first delivery's
		// appointment; acknowledge without re-creating anything.
		return &ConfirmationResult{Outcome: OutcomeDuplicate, Intent: result.Intent}, nil
	}

	appt, err := c.materializeBooking(ctx, result.Intent)
	if err != nil {
		return nil, err
	}
	return &ConfirmationResult{Outcome: OutcomeConfirmed, Appointment: appt, Intent: result.Intent}, nil
}

// materializeBooking turns a succeeded intent into its appointment. For
// subscription signups the period is granted first, then the first session
// is drawn from it and booked, so the signup appointment counts against the
// plan like any later draw.
func (c *Coordinator) materializeBooking(ctx context.Context, intent *intents.PaymentIntent) (*appointments.Appointment, error) {
	newAppt := &appointments.NewAppointment{
		AccountID:       intent.AccountID,
		ServiceID:       intent.ServiceID,
		ScheduledAt:     intent.Metadata.ScheduledAt,
		DurationMinutes: intent.Metadata.DurationMinutes,
		Notes:           intent.Metadata.Notes,
	}

	var drawnFrom *uuid.UUID
	if intent.Metadata.Subscription {
		periodStart := intent.CreatedAt.UTC().Truncate(24 * time.Hour)
		sub, _, err := c.ledger.ActivateOrRenew(ctx, ledger.ActivateParams{
			AccountID:         intent.AccountID,
			ServiceID:         intent.ServiceID,
			SessionsPerMonth:  intent.Metadata.SessionsPerMonth,
			MinutesPerSession: intent.Metadata.MinutesPerSession,
			PeriodStart:       periodStart,
			PeriodEnd:         periodStart.AddDate(0, 1, 0),
			ExternalRef:       intent.ExternalReference,
		})
		if err != nil {
			return nil, err
		}
		draw, err := c.ledger.TryConsumeSession(ctx, sub.ID)
		if err != nil {
			return nil, err
		}
		if draw.Consumed {
			drawnFrom = &sub.ID
		} else {
			// A zero-session plan; book the signup appointment anyway.
			c.logger.Warn("signup draw not consumed", "subscription_id", sub.ID)
		}
		newAppt.Origin = appointments.OriginSubscriptionSession
		newAppt.SubscriptionID = &sub.ID
	} else {
		newAppt.Origin = appointments.OriginPaid
		newAppt.PaymentIntentID = &intent.ID
	}

	appt, _, err := c.appointments.Create(ctx, newAppt, intent.ID.String())
	if err != nil {
		if drawnFrom != nil {
			if restoreErr := c.ledger.RestoreSession(ctx, *drawnFrom); restoreErr != nil {
				c.logger.Error("failed to restore session after insert failure",
					"error", restoreErr, "subscription_id", *drawnFrom)
			}
		}
		return nil, err
	}
	return appt, nil
}

// ConfirmByPolling is the client-initiated confirmation path. The gateway is
// asked for the authoritative status; redirect query parameters are never
// trusted. Pending checkouts resolve to no transition at all.
func (c *Coordinator) ConfirmByPolling(ctx context.Context, gatewayName, externalRef string) (*ConfirmationResult, error) {
	provider, err := c.gateways.ByName(gatewayName)
	if err != nil {
		return nil, err
	}

	gwCtx, cancel := context.WithTimeout(ctx, c.gatewayTimeout)
	defer cancel()

	status, err := provider.ConfirmPayment(gwCtx, externalRef)
	if err != nil {
		return nil, err
	}

	switch status {
	case gateway.StatusSucceeded:
		return c.HandleConfirmation(ctx, Confirmation{
			Gateway:           gatewayName,
			ExternalReference: externalRef,
			Succeeded:         true,
		})
	case gateway.StatusFailed:
		return c.HandleConfirmation(ctx, Confirmation{
			Gateway:           gatewayName,
			ExternalReference: externalRef,
			Succeeded:         false,
		})
	default:
		return &ConfirmationResult{Outcome: "pending"}, nil
	}
}

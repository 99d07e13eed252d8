package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/pridehealth/portal-api/internal/catalog"
)

var (
	// ErrUnknownService means the service id is not in the catalog.
	ErrUnknownService = errors.New("pricing: unknown service")
	// ErrInvalidTier means the requested duration is not offered.
	ErrInvalidTier = errors.New("pricing: invalid duration tier")
	// ErrNotSubscribable means a subscription was requested for a service
	// whose billing mode forbids it.
	ErrNotSubscribable = errors.New("pricing: service not subscribable")
	// ErrInvalidPlan means the subscription plan shape is out of range.
	ErrInvalidPlan = errors.New("pricing: invalid subscription plan")
)

// maxSessionsPerMonth bounds plan size; matches the largest plan the
// portal ever sold.
const maxSessionsPerMonth = 8

// Plan describes a monthly subscription shape.
type Plan struct {
	SessionsPerMonth  int
	MinutesPerSession int
}

// Selection is either a single-session duration tier or a subscription plan.
type Selection struct {
	DurationMinutes int
	Subscribe       bool
	Plan            Plan
}

// Quote is the authoritative price for a selection. Client-supplied amounts
// are never trusted; this value is what the gateway is asked to collect.
type Quote struct {
	ServiceID       string
	ServiceName     string
	AmountCents     int64
	DurationMinutes int
	BillingMode     catalog.BillingMode
	Subscription    bool
	Plan            Plan
}

// Resolver derives prices from catalog state. Pure: no writes, and the same
// selection always yields the same quote.
type Resolver struct {
	catalog catalog.Store
}

// NewResolver constructs a resolver over the given catalog.
func NewResolver(store catalog.Store) *Resolver {
	if store == nil {
		panic("pricing: catalog store required")
	}
	return &Resolver{catalog: store}
}

// Resolve maps (service, selection) to an amount due, duration and billing
// mode. Subscription quotes price a full month: sessions × tier price.
func (r *Resolver) Resolve(ctx context.Context, serviceID string, sel Selection) (*Quote, error) {
	svc, err := r.catalog.GetService(ctx, serviceID)
	if err != nil {
		if errors.Is(err, catalog.ErrServiceNotFound) {
			return nil, ErrUnknownService
		}
		return nil, fmt.Errorf("pricing: catalog lookup: %w", err)
	}

	if sel.Subscribe {
		return r.resolveSubscription(svc, sel.Plan)
	}

	tier, ok := svc.TierFor(sel.DurationMinutes)
	if !ok {
		return nil, ErrInvalidTier
	}
	return &Quote{
		ServiceID:       svc.ID,
		ServiceName:     svc.Name,
		AmountCents:     tier.PriceCents,
		DurationMinutes: tier.DurationMinutes,
		BillingMode:     svc.BillingMode,
	}, nil
}

func (r *Resolver) resolveSubscription(svc *catalog.Service, plan Plan) (*Quote, error) {
	if !svc.Subscribable() {
		return nil, ErrNotSubscribable
	}
	if plan.SessionsPerMonth < 1 || plan.SessionsPerMonth > maxSessionsPerMonth {
		return nil, ErrInvalidPlan
	}
	tier, ok := svc.TierFor(plan.MinutesPerSession)
	if !ok {
		return nil, ErrInvalidTier
	}
	return &Quote{
		ServiceID:       svc.ID,
		ServiceName:     svc.Name,
		AmountCents:     tier.PriceCents * int64(plan.SessionsPerMonth),
		DurationMinutes: tier.DurationMinutes,
		BillingMode:     svc.BillingMode,
		Subscription:    true,
		Plan:            plan,
	}, nil
}

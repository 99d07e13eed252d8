package pricing

import (
	"context"
	"errors"
	"testing"

	"github.com/pridehealth/portal-api/internal/catalog"
)

func testResolver() *Resolver {
	return NewResolver(catalog.NewStaticCatalog(catalog.DefaultServices()))
}

func mentalHealthID(t *testing.T) string {
	t.Helper()
	svc, err := catalog.NewStaticCatalog(catalog.DefaultServices()).GetBySlug(context.Background(), "mental-health")
	if err != nil {
		t.Fatalf("seed catalog missing mental-health: %v", err)
	}
	return svc.ID
}

func TestResolveMeteredTier(t *testing.T) {
	r := testResolver()

	quote, err := r.Resolve(context.Background(), mentalHealthID(t), Selection{DurationMinutes: 60})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if quote.AmountCents != 8000 {
		t.Fatalf("expected 8000 cents, got %d", quote.AmountCents)
	}
	if quote.DurationMinutes != 60 {
		t.Fatalf("expected 60 minutes, got %d", quote.DurationMinutes)
	}
	if quote.Subscription {
		t.Fatal("tier selection must not produce a subscription quote")
	}
}

func TestResolveIsDeterministic(t *testing.T) {
	r := testResolver()
	id := mentalHealthID(t)

	first, err := r.Resolve(context.Background(), id, Selection{DurationMinutes: 90})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := r.Resolve(context.Background(), id, Selection{DurationMinutes: 90})
		if err != nil {
			t.Fatalf("Resolve returned error on repeat: %v", err)
		}
		if again.AmountCents != first.AmountCents {
			t.Fatalf("price changed between identical resolutions: %d vs %d", again.AmountCents, first.AmountCents)
		}
	}
}

func TestResolveErrors(t *testing.T) {
	r := testResolver()
	ctx := context.Background()

	if _, err := r.Resolve(ctx, "nope", Selection{DurationMinutes: 60}); !errors.Is(err, ErrUnknownService) {
		t.Fatalf("expected ErrUnknownService, got %v", err)
	}
	if _, err := r.Resolve(ctx, mentalHealthID(t), Selection{DurationMinutes: 45}); !errors.Is(err, ErrInvalidTier) {
		t.Fatalf("expected ErrInvalidTier, got %v", err)
	}
}

func TestResolveSubscription(t *testing.T) {
	r := testResolver()

	quote, err := r.Resolve(context.Background(), mentalHealthID(t), Selection{
		Subscribe: true,
		Plan:      Plan{SessionsPerMonth: 4, MinutesPerSession: 60},
	})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if !quote.Subscription {
		t.Fatal("expected subscription quote")
	}
	if quote.AmountCents != 4*8000 {
		t.Fatalf("expected 32000 cents for 4x60min, got %d", quote.AmountCents)
	}
}

func TestResolveSubscriptionRejected(t *testing.T) {
	r := testResolver()
	ctx := context.Background()

	free, err := catalog.NewStaticCatalog(catalog.DefaultServices()).GetBySlug(ctx, "hiv-testing")
	if err != nil {
		t.Fatalf("seed catalog missing hiv-testing: %v", err)
	}
	if _, err := r.Resolve(ctx, free.ID, Selection{Subscribe: true, Plan: Plan{SessionsPerMonth: 4, MinutesPerSession: 30}}); !errors.Is(err, ErrNotSubscribable) {
		t.Fatalf("expected ErrNotSubscribable, got %v", err)
	}

	if _, err := r.Resolve(ctx, mentalHealthID(t), Selection{Subscribe: true, Plan: Plan{SessionsPerMonth: 0, MinutesPerSession: 60}}); !errors.Is(err, ErrInvalidPlan) {
		t.Fatalf("expected ErrInvalidPlan for zero sessions, got %v", err)
	}
	if _, err := r.Resolve(ctx, mentalHealthID(t), Selection{Subscribe: true, Plan: Plan{SessionsPerMonth: 99, MinutesPerSession: 60}}); !errors.Is(err, ErrInvalidPlan) {
		t.Fatalf("expected ErrInvalidPlan for oversized plan, got %v", err)
	}
	if _, err := r.Resolve(ctx, mentalHealthID(t), Selection{Subscribe: true, Plan: Plan{SessionsPerMonth: 4, MinutesPerSession: 45}}); !errors.Is(err, ErrInvalidTier) {
		t.Fatalf("expected ErrInvalidTier for off-menu session length, got %v", err)
	}
}

func TestResolveFreeService(t *testing.T) {
	r := testResolver()
	ctx := context.Background()

	free, err := catalog.NewStaticCatalog(catalog.DefaultServices()).GetBySlug(ctx, "community-support")
	if err != nil {
		t.Fatalf("seed catalog missing community-support: %v", err)
	}
	quote, err := r.Resolve(ctx, free.ID, Selection{DurationMinutes: 90})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if quote.AmountCents != 0 {
		t.Fatalf("expected free quote, got %d cents", quote.AmountCents)
	}
	if quote.BillingMode != catalog.BillingFree {
		t.Fatalf("expected free billing mode, got %s", quote.BillingMode)
	}
}

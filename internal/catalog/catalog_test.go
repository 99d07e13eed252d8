package catalog

import (
	"context"
	"errors"
	"testing"
)

func TestStaticCatalogLookup(t *testing.T) {
	c := NewStaticCatalog(DefaultServices())

	svc, err := c.GetBySlug(context.Background(), "mental-health")
	if err != nil {
		t.Fatalf("GetBySlug returned error: %v", err)
	}
	if svc.BillingMode != BillingSubscribable {
		t.Fatalf("expected mental-health to be subscribable, got %s", svc.BillingMode)
	}
	tier, ok := svc.TierFor(60)
	if !ok {
		t.Fatal("expected a 60-minute tier")
	}
	if tier.PriceCents != 8000 {
		t.Fatalf("expected 8000 cents for 60 minutes, got %d", tier.PriceCents)
	}

	if _, err := c.GetBySlug(context.Background(), "acupuncture"); !errors.Is(err, ErrServiceNotFound) {
		t.Fatalf("expected ErrServiceNotFound, got %v", err)
	}
}

func TestStaticCatalogFreeServices(t *testing.T) {
	c := NewStaticCatalog(DefaultServices())

	for _, slug := range []string{"hiv-testing", "community-support"} {
		svc, err := c.GetBySlug(context.Background(), slug)
		if err != nil {
			t.Fatalf("GetBySlug(%s) returned error: %v", slug, err)
		}
		if svc.BillingMode != BillingFree {
			t.Fatalf("expected %s to be free, got %s", slug, svc.BillingMode)
		}
		for _, tier := range svc.Tiers {
			if tier.PriceCents != 0 {
				t.Fatalf("free service %s has priced tier %+v", slug, tier)
			}
		}
	}
}

func TestServiceValidate(t *testing.T) {
	bad := Service{
		Slug: "broken",
		Tiers: []Tier{
			{DurationMinutes: 60, PriceCents: 1000},
			{DurationMinutes: 60, PriceCents: 2000},
		},
	}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected duplicate-duration tiers to fail validation")
	}

	negative := Service{Slug: "neg", Tiers: []Tier{{DurationMinutes: 30, PriceCents: -1}}}
	if err := negative.Validate(); err == nil {
		t.Fatal("expected negative price to fail validation")
	}

	zeroDur := Service{Slug: "zero", Tiers: []Tier{{DurationMinutes: 0, PriceCents: 100}}}
	if err := zeroDur.Validate(); err == nil {
		t.Fatal("expected zero duration to fail validation")
	}
}

func TestStaticCatalogInactiveHidden(t *testing.T) {
	c := NewStaticCatalog([]Service{
		{ID: "id-1", Slug: "retired", Name: "Retired", BillingMode: BillingFree, Active: false},
	})
	if _, err := c.GetService(context.Background(), "id-1"); !errors.Is(err, ErrServiceNotFound) {
		t.Fatalf("expected inactive service to be hidden, got %v", err)
	}
	list, err := c.List(context.Background())
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list, got %d services", len(list))
	}
}

package catalog

import (
	"context"
	"errors"
	"fmt"
)

// ErrServiceNotFound is returned when a service id or slug is unknown.
var ErrServiceNotFound = errors.New("catalog: service not found")

// BillingMode describes how a service is charged.
type BillingMode string

const (
	// BillingFree never charges; appointments commit immediately.
	BillingFree BillingMode = "free"
	// BillingMetered charges per session at the selected tier's price.
	BillingMetered BillingMode = "metered"
	// BillingSubscribable is metered but also offerable as a monthly plan.
	BillingSubscribable BillingMode = "subscribable"
)

// Tier is one bookable duration for a service.
type Tier struct {
	DurationMinutes int   `json:"duration_minutes"`
	PriceCents      int64 `json:"price_cents"`
}

// Service is a bookable offering. Owned by the catalog; read-only to callers.
type Service struct {
	ID          string      `json:"id"`
	Slug        string      `json:"slug"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	BillingMode BillingMode `json:"billing_mode"`
	Tiers       []Tier      `json:"tiers,omitempty"`
	Active      bool        `json:"-"`
}

// TierFor returns the tier matching the requested duration.
func (s *Service) TierFor(durationMinutes int) (Tier, bool) {
	for _, t := range s.Tiers {
		if t.DurationMinutes == durationMinutes {
			return t, true
		}
	}
	return Tier{}, false
}

// Subscribable reports whether the service may be sold as a subscription.
func (s *Service) Subscribable() bool {
	return s.BillingMode == BillingSubscribable
}

// Validate checks the catalog invariants: non-negative prices and
// duration-unique tiers.
func (s *Service) Validate() error {
	seen := make(map[int]struct{}, len(s.Tiers))
	for _, t := range s.Tiers {
		if t.DurationMinutes <= 0 {
			return fmt.Errorf("catalog: service %s has non-positive tier duration %d", s.Slug, t.DurationMinutes)
		}
		if t.PriceCents < 0 {
			return fmt.Errorf("catalog: service %s has negative tier price %d", s.Slug, t.PriceCents)
		}
		if _, dup := seen[t.DurationMinutes]; dup {
			return fmt.Errorf("catalog: service %s has duplicate %d-minute tier", s.Slug, t.DurationMinutes)
		}
		seen[t.DurationMinutes] = struct{}{}
	}
	return nil
}

// Store resolves services for the pricing resolver.
type Store interface {
	GetService(ctx context.Context, id string) (*Service, error)
	GetBySlug(ctx context.Context, slug string) (*Service, error)
	List(ctx context.Context) ([]Service, error)
}

package catalog

import "context"

// StaticCatalog serves a fixed set of services from memory. Used in tests
// and in deployments that have not moved service definitions into Postgres.
type StaticCatalog struct {
	byID   map[string]*Service
	bySlug map[string]*Service
	order  []string
}

// NewStaticCatalog builds an in-memory catalog. Panics on invariant
// violations so misconfigured services fail at startup, not at booking time.
func NewStaticCatalog(services []Service) *StaticCatalog {
	c := &StaticCatalog{
		byID:   make(map[string]*Service, len(services)),
		bySlug: make(map[string]*Service, len(services)),
	}
	for i := range services {
		svc := services[i]
		if err := svc.Validate(); err != nil {
			panic(err)
		}
		c.byID[svc.ID] = &svc
		c.bySlug[svc.Slug] = &svc
		c.order = append(c.order, svc.ID)
	}
	return c
}

// DefaultServices is the portal's standing service list.
func DefaultServices() []Service {
	return []Service{
		{
			ID:          "a4c2f7d0-6f3b-4d6e-9a2b-1c8e5f0d7a31",
			Slug:        "mental-health",
			Name:        "Mental Health Therapy",
			Description: "Professional counseling with LGBT+ affirming therapists",
			BillingMode: BillingSubscribable,
			Tiers: []Tier{
				{DurationMinutes: 60, PriceCents: 8000},
				{DurationMinutes: 90, PriceCents: 12000},
				{DurationMinutes: 120, PriceCents: 16000},
			},
			Active: true,
		},
		{
			ID:          "b9e1d3c5-2a7f-49b8-8d4e-6f0a2c9b5e12",
			Slug:        "hiv-testing",
			Name:        "HIV Testing & Support",
			Description: "Confidential HIV testing with counseling support",
			BillingMode: BillingFree,
			Tiers: []Tier{
				{DurationMinutes: 30},
				{DurationMinutes: 60},
			},
			Active: true,
		},
		{
			ID:          "c7f4a8e2-5d1b-4c3a-b6e9-8a2d4f7c0b53",
			Slug:        "community-support",
			Name:        "Community Support Groups",
			Description: "Peer support in safe group environments",
			BillingMode: BillingFree,
			Tiers: []Tier{
				{DurationMinutes: 60},
				{DurationMinutes: 90},
				{DurationMinutes: 120},
			},
			Active: true,
		},
	}
}

// GetService returns the service by id, falling back to the slug so both
// identifier forms resolve the same way as the Postgres store.
func (c *StaticCatalog) GetService(ctx context.Context, id string) (*Service, error) {
	_ = ctx
	svc, ok := c.byID[id]
	if !ok {
		svc, ok = c.bySlug[id]
	}
	if !ok || !svc.Active {
		return nil, ErrServiceNotFound
	}
	out := *svc
	return &out, nil
}

// GetBySlug returns the service by its URL slug.
func (c *StaticCatalog) GetBySlug(ctx context.Context, slug string) (*Service, error) {
	_ = ctx
	svc, ok := c.bySlug[slug]
	if !ok || !svc.Active {
		return nil, ErrServiceNotFound
	}
	out := *svc
	return &out, nil
}

// List returns all active services in declaration order.
func (c *StaticCatalog) List(ctx context.Context) ([]Service, error) {
	_ = ctx
	out := make([]Service, 0, len(c.order))
	for _, id := range c.order {
		if svc := c.byID[id]; svc.Active {
			out = append(out, *svc)
		}
	}
	return out, nil
}

package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type poolQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore reads services and their duration tiers from Postgres.
type PostgresStore struct {
	pool poolQuerier
}

// NewPostgresStore creates a store backed by pgxpool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("catalog: pgx pool required")
	}
	return &PostgresStore{pool: pool}
}

func newPostgresStoreWithQuerier(q poolQuerier) *PostgresStore {
	return &PostgresStore{pool: q}
}

// GetService fetches a service and its tiers. Callers pass either the UUID
// or the slug; a non-UUID value is looked up as a slug so it never reaches
// the id column, where the cast would error instead of missing.
func (s *PostgresStore) GetService(ctx context.Context, id string) (*Service, error) {
	if _, err := uuid.Parse(id); err != nil {
		return s.get(ctx, "slug", id)
	}
	return s.get(ctx, "id", id)
}

// GetBySlug fetches a service and its tiers by slug.
func (s *PostgresStore) GetBySlug(ctx context.Context, slug string) (*Service, error) {
	return s.get(ctx, "slug", slug)
}

func (s *PostgresStore) get(ctx context.Context, column, value string) (*Service, error) {
	query := fmt.Sprintf(`
		SELECT id, slug, name, description, billing_mode, is_active
		FROM services
		WHERE %s = $1
	`, column)
	var svc Service
	if err := s.pool.QueryRow(ctx, query, value).Scan(
		&svc.ID,
		&svc.Slug,
		&svc.Name,
		&svc.Description,
		&svc.BillingMode,
		&svc.Active,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, fmt.Errorf("catalog: select service: %w", err)
	}
	if !svc.Active {
		return nil, ErrServiceNotFound
	}

	tiers, err := s.tiersFor(ctx, svc.ID)
	if err != nil {
		return nil, err
	}
	svc.Tiers = tiers
	return &svc, nil
}

func (s *PostgresStore) tiersFor(ctx context.Context, serviceID string) ([]Tier, error) {
	query := `
		SELECT duration_minutes, price_cents
		FROM service_tiers
		WHERE service_id = $1
		ORDER BY duration_minutes
	`
	rows, err := s.pool.Query(ctx, query, serviceID)
	if err != nil {
		return nil, fmt.Errorf("catalog: select tiers: %w", err)
	}
	defer rows.Close()

	var tiers []Tier
	for rows.Next() {
		var t Tier
		if err := rows.Scan(&t.DurationMinutes, &t.PriceCents); err != nil {
			return nil, fmt.Errorf("catalog: scan tier: %w", err)
		}
		tiers = append(tiers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterate tiers: %w", err)
	}
	return tiers, nil
}

// List returns all active services without tiers (dashboard listings).
func (s *PostgresStore) List(ctx context.Context) ([]Service, error) {
	query := `
		SELECT id, slug, name, description, billing_mode, is_active
		FROM services
		WHERE is_active
		ORDER BY name
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("catalog: list services: %w", err)
	}
	defer rows.Close()

	var services []Service
	for rows.Next() {
		var svc Service
		if err := rows.Scan(&svc.ID, &svc.Slug, &svc.Name, &svc.Description, &svc.BillingMode, &svc.Active); err != nil {
			return nil, fmt.Errorf("catalog: scan service: %w", err)
		}
		services = append(services, svc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterate services: %w", err)
	}
	return services, nil
}

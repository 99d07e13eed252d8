package catalog

import (
	"context"
	"errors"
	"testing"

	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestPostgresStoreGetService(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := newPostgresStoreWithQuerier(mock)

	mock.ExpectQuery("SELECT id, slug, name, description, billing_mode, is_active").
		WithArgs("svc-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "slug", "name", "description", "billing_mode", "is_active"}).
			AddRow("svc-1", "mental-health", "Mental Health Therapy", "Counseling", "subscribable", true))
	mock.ExpectQuery("SELECT duration_minutes, price_cents").
		WithArgs("svc-1").
		WillReturnRows(pgxmock.NewRows([]string{"duration_minutes", "price_cents"}).
			AddRow(60, int64(8000)).
			AddRow(90, int64(12000)))

	svc, err := store.GetService(context.Background(), "svc-1")
	if err != nil {
		t.Fatalf("GetService returned error: %v", err)
	}
	if svc.Slug != "mental-health" {
		t.Fatalf("unexpected slug %s", svc.Slug)
	}
	if len(svc.Tiers) != 2 || svc.Tiers[0].DurationMinutes != 60 {
		t.Fatalf("unexpected tiers %+v", svc.Tiers)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresStoreGetServiceBySlugFallback(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := newPostgresStoreWithQuerier(mock)

	// A non-UUID identifier must query the slug column; hitting the uuid
	// id column would raise a cast error instead of a clean not-found.
	mock.ExpectQuery(`WHERE slug = \$1`).
		WithArgs("mental-health").
		WillReturnRows(pgxmock.NewRows([]string{"id", "slug", "name", "description", "billing_mode", "is_active"}).
			AddRow("a4c2f7d0-6f3b-4d6e-9a2b-1c8e5f0d7a31", "mental-health", "Mental Health Therapy", "Counseling", "subscribable", true))
	mock.ExpectQuery("SELECT duration_minutes, price_cents").
		WithArgs("a4c2f7d0-6f3b-4d6e-9a2b-1c8e5f0d7a31").
		WillReturnRows(pgxmock.NewRows([]string{"duration_minutes", "price_cents"}).
			AddRow(60, int64(8000)))

	svc, err := store.GetService(context.Background(), "mental-health")
	if err != nil {
		t.Fatalf("GetService returned error: %v", err)
	}
	if svc.ID != "a4c2f7d0-6f3b-4d6e-9a2b-1c8e5f0d7a31" {
		t.Fatalf("unexpected id %s", svc.ID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresStoreGetServiceByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := newPostgresStoreWithQuerier(mock)

	mock.ExpectQuery(`WHERE id = \$1`).
		WithArgs("b9e1d3c5-2a7f-49b8-8d4e-6f0a2c9b5e12").
		WillReturnRows(pgxmock.NewRows([]string{"id", "slug", "name", "description", "billing_mode", "is_active"}).
			AddRow("b9e1d3c5-2a7f-49b8-8d4e-6f0a2c9b5e12", "hiv-testing", "HIV Testing & Support", "", "free", true))
	mock.ExpectQuery("SELECT duration_minutes, price_cents").
		WithArgs("b9e1d3c5-2a7f-49b8-8d4e-6f0a2c9b5e12").
		WillReturnRows(pgxmock.NewRows([]string{"duration_minutes", "price_cents"}).
			AddRow(30, int64(0)))

	if _, err := store.GetService(context.Background(), "b9e1d3c5-2a7f-49b8-8d4e-6f0a2c9b5e12"); err != nil {
		t.Fatalf("GetService returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresStoreGetServiceNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := newPostgresStoreWithQuerier(mock)

	mock.ExpectQuery("SELECT id, slug, name, description, billing_mode, is_active").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	if _, err := store.GetService(context.Background(), "missing"); !errors.Is(err, ErrServiceNotFound) {
		t.Fatalf("expected ErrServiceNotFound, got %v", err)
	}
}

func TestPostgresStoreInactiveService(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := newPostgresStoreWithQuerier(mock)

	mock.ExpectQuery("SELECT id, slug, name, description, billing_mode, is_active").
		WithArgs("svc-old").
		WillReturnRows(pgxmock.NewRows([]string{"id", "slug", "name", "description", "billing_mode", "is_active"}).
			AddRow("svc-old", "retired", "Retired", "", "free", false))

	if _, err := store.GetService(context.Background(), "svc-old"); !errors.Is(err, ErrServiceNotFound) {
		t.Fatalf("expected inactive service to report not found, got %v", err)
	}
}

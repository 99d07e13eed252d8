package intents

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

var intentRows = []string{
	"id", "account_id", "service_id", "amount_cents", "currency", "status",
	"gateway", "external_reference", "metadata", "created_at", "updated_at",
}

func intentRow(id uuid.UUID, status, externalRef string) *pgxmock.Rows {
	now := time.Now()
	return pgxmock.NewRows(intentRows).AddRow(
		id, "acct-1", uuid.New(), int64(8000), "USD", status,
		"stripe", externalRef, Metadata{ScheduledAt: now.Add(48 * time.Hour), DurationMinutes: 60}, now, now,
	)
}

func TestCreateIntent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := newPostgresRepositoryWithQuerier(mock)
	intentID := uuid.New()

	mock.ExpectQuery("INSERT INTO payment_intents").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(intentRow(intentID, StatusCreated, ""))

	intent, err := repo.Create(context.Background(), &NewIntent{
		AccountID:   "acct-1",
		ServiceID:   uuid.New(),
		AmountCents: 8000,
		Currency:    "USD",
		Metadata:    Metadata{ScheduledAt: time.Now().Add(48 * time.Hour), DurationMinutes: 60},
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if intent.ID != intentID || intent.Status != StatusCreated {
		t.Fatalf("unexpected intent %+v", intent)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateIntentValidation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := newPostgresRepositoryWithQuerier(mock)

	cases := []*NewIntent{
		{ServiceID: uuid.New(), AmountCents: 100},
		{AccountID: "acct-1", AmountCents: 100},
		{AccountID: "acct-1", ServiceID: uuid.New(), AmountCents: 0},
		{AccountID: "acct-1", ServiceID: uuid.New(), AmountCents: -50},
	}
	for i, req := range cases {
		if _, err := repo.Create(context.Background(), req); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}

func TestAttachExternalRef(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := newPostgresRepositoryWithQuerier(mock)
	intentID := uuid.New()

	mock.ExpectExec("UPDATE payment_intents").
		WithArgs(intentID, "stripe", "cs_test_1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := repo.AttachExternalRef(context.Background(), intentID, "stripe", "cs_test_1"); err != nil {
		t.Fatalf("AttachExternalRef returned error: %v", err)
	}

	if err := repo.AttachExternalRef(context.Background(), intentID, "", "cs_test_1"); err == nil {
		t.Fatal("expected error for missing gateway")
	}

	mock.ExpectExec("UPDATE payment_intents").
		WithArgs(intentID, "stripe", "cs_test_2").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := repo.AttachExternalRef(context.Background(), intentID, "stripe", "cs_test_2"); !errors.Is(err, ErrIntentNotFound) {
		t.Fatalf("expected ErrIntentNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMarkSucceeded(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := newPostgresRepositoryWithQuerier(mock)
	intentID := uuid.New()

	mock.ExpectQuery("UPDATE payment_intents").
		WithArgs("cs_test_1", StatusSucceeded).
		WillReturnRows(intentRow(intentID, StatusSucceeded, "cs_test_1"))

	result, err := repo.MarkSucceeded(context.Background(), "cs_test_1")
	if err != nil {
		t.Fatalf("MarkSucceeded returned error: %v", err)
	}
	if !result.Applied || result.Intent.Status != StatusSucceeded {
		t.Fatalf("expected applied transition, got %+v", result)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMarkSucceededDuplicateDelivery(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := newPostgresRepositoryWithQuerier(mock)
	intentID := uuid.New()

	// The guarded update matches nothing because the intent already settled;
	// the follow-up select returns the committed state.
	mock.ExpectQuery("UPDATE payment_intents").
		WithArgs("cs_test_1", StatusSucceeded).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT (.+) FROM payment_intents WHERE external_reference").
		WithArgs("cs_test_1").
		WillReturnRows(intentRow(intentID, StatusSucceeded, "cs_test_1"))

	result, err := repo.MarkSucceeded(context.Background(), "cs_test_1")
	if err != nil {
		t.Fatalf("MarkSucceeded returned error: %v", err)
	}
	if result.Applied {
		t.Fatal("duplicate delivery must not report an applied transition")
	}
	if result.Intent.Status != StatusSucceeded {
		t.Fatalf("expected committed state, got %+v", result.Intent)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMarkFailedAfterSuccessKeepsOutcome(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := newPostgresRepositoryWithQuerier(mock)
	intentID := uuid.New()

	// A late failure signal for an already succeeded intent must not flip it.
	mock.ExpectQuery("UPDATE payment_intents").
		WithArgs("cs_test_1", StatusFailed).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT (.+) FROM payment_intents WHERE external_reference").
		WithArgs("cs_test_1").
		WillReturnRows(intentRow(intentID, StatusSucceeded, "cs_test_1"))

	result, err := repo.MarkFailed(context.Background(), "cs_test_1")
	if err != nil {
		t.Fatalf("MarkFailed returned error: %v", err)
	}
	if result.Applied {
		t.Fatal("late failure must not be applied")
	}
	if result.Intent.Status != StatusSucceeded {
		t.Fatalf("first outcome must win, got %s", result.Intent.Status)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTransitionUnknownReference(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := newPostgresRepositoryWithQuerier(mock)

	mock.ExpectQuery("UPDATE payment_intents").
		WithArgs("cs_unknown", StatusSucceeded).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT (.+) FROM payment_intents WHERE external_reference").
		WithArgs("cs_unknown").
		WillReturnError(pgx.ErrNoRows)

	if _, err := repo.MarkSucceeded(context.Background(), "cs_unknown"); !errors.Is(err, ErrIntentNotFound) {
		t.Fatalf("expected ErrIntentNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestExpireStale(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := newPostgresRepositoryWithQuerier(mock)
	cutoff := time.Now().Add(-24 * time.Hour)

	mock.ExpectExec("UPDATE payment_intents").
		WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	n, err := repo.ExpireStale(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("ExpireStale returned error: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 expired intents, got %d", n)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

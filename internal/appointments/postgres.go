package appointments

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type poolQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores appointments in the relational database.
type PostgresRepository struct {
	pool poolQuerier
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("appointments: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

func newPostgresRepositoryWithQuerier(q poolQuerier) *PostgresRepository {
	if q == nil {
		panic("appointments: querier required")
	}
	return &PostgresRepository{pool: q}
}

const appointmentColumns = `id, account_id, service_id, scheduled_at, duration_minutes,
		status, origin, payment_intent_id, subscription_id, notes, created_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var appt Appointment
	err := row.Scan(
		&appt.ID,
		&appt.AccountID,
		&appt.ServiceID,
		&appt.ScheduledAt,
		&appt.DurationMinutes,
		&appt.Status,
		&appt.Origin,
		&appt.PaymentIntentID,
		&appt.SubscriptionID,
		&appt.Notes,
		&appt.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &appt, nil
}

// Create inserts a new appointment. The dedupe key has a unique index; if a
// row already carries it the existing appointment is returned with
// created=false, so a retried confirmation can never double-book.
func (r *PostgresRepository) Create(ctx context.Context, req *NewAppointment, dedupeKey string) (*Appointment, bool, error) {
	if err := req.Validate(); err != nil {
		return nil, false, err
	}
	if dedupeKey == "" {
		return nil, false, fmt.Errorf("appointments: dedupe key required")
	}

	query := `
		INSERT INTO appointments (id, account_id, service_id, scheduled_at, duration_minutes,
			status, origin, payment_intent_id, subscription_id, notes, dedupe_key)
		VALUES ($1, $2, $3, $4, $5, 'scheduled', $6, $7, $8, $9, $10)
		ON CONFLICT (dedupe_key) DO NOTHING
		RETURNING ` + appointmentColumns + `
	`
	appt, err := scanAppointment(r.pool.QueryRow(ctx, query,
		uuid.New(),
		req.AccountID,
		req.ServiceID,
		req.ScheduledAt,
		req.DurationMinutes,
		req.Origin,
		req.PaymentIntentID,
		req.SubscriptionID,
		req.Notes,
		dedupeKey,
	))
	if err == nil {
		return appt, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("appointments: insert failed: %w", err)
	}

	existing, err := r.getByDedupeKey(ctx, dedupeKey)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *PostgresRepository) getByDedupeKey(ctx context.Context, dedupeKey string) (*Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE dedupe_key = $1`
	appt, err := scanAppointment(r.pool.QueryRow(ctx, query, dedupeKey))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("appointments: select by dedupe key: %w", err)
	}
	return appt, nil
}

// GetByID fetches an appointment scoped to the account.
func (r *PostgresRepository) GetByID(ctx context.Context, accountID string, id uuid.UUID) (*Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1 AND account_id = $2`
	appt, err := scanAppointment(r.pool.QueryRow(ctx, query, id, accountID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("appointments: select failed: %w", err)
	}
	return appt, nil
}

// ListForAccount returns the account's appointments ordered by start time.
func (r *PostgresRepository) ListForAccount(ctx context.Context, accountID string) ([]Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE account_id = $1
		ORDER BY scheduled_at ASC
	`
	rows, err := r.pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("appointments: list failed: %w", err)
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		var appt Appointment
		if err := rows.Scan(
			&appt.ID,
			&appt.AccountID,
			&appt.ServiceID,
			&appt.ScheduledAt,
			&appt.DurationMinutes,
			&appt.Status,
			&appt.Origin,
			&appt.PaymentIntentID,
			&appt.SubscriptionID,
			&appt.Notes,
			&appt.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("appointments: scan failed: %w", err)
		}
		result = append(result, appt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: rows: %w", err)
	}
	return result, nil
}

// UpdateStatus moves an appointment through the scheduling lifecycle.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, accountID string, id uuid.UUID, status string) error {
	switch status {
	case StatusScheduled, StatusCompleted, StatusCancelled, StatusNoShow:
	default:
		return fmt.Errorf("appointments: unknown status %q", status)
	}
	query := `UPDATE appointments SET status = $3 WHERE id = $1 AND account_id = $2`
	ct, err := r.pool.Exec(ctx, query, id, accountID, status)
	if err != nil {
		return fmt.Errorf("appointments: update status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

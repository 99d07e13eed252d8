package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists subscriptions in the relational database.
type PostgresStore struct {
	pool rowQuerier
}

// NewPostgresStore initializes a store backed by pgxpool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("ledger: pgx pool required")
	}
	return &PostgresStore{pool: pool}
}

func newPostgresStoreWithQuerier(q rowQuerier) *PostgresStore {
	if q == nil {
		panic("ledger: querier required")
	}
	return &PostgresStore{pool: q}
}

const subscriptionColumns = `id, account_id, service_id, status, sessions_per_month,
		minutes_per_session, sessions_remaining, period_start, period_end,
		external_ref, created_at, updated_at`

func scanSubscription(row pgx.Row) (*Subscription, error) {
	var sub Subscription
	err := row.Scan(
		&sub.ID,
		&sub.AccountID,
		&sub.ServiceID,
		&sub.Status,
		&sub.SessionsPerMonth,
		&sub.MinutesPerSession,
		&sub.SessionsRemaining,
		&sub.PeriodStart,
		&sub.PeriodEnd,
		&sub.ExternalRef,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetActive returns the subscription covering now for the account and
// service, or ErrNoActiveSubscription.
func (s *PostgresStore) GetActive(ctx context.Context, accountID string, serviceID uuid.UUID) (*Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE account_id = $1 AND service_id = $2 AND status = 'active'
		  AND period_start <= now() AND period_end > now()
		ORDER BY period_start DESC
		LIMIT 1
	`
	sub, err := scanSubscription(s.pool.QueryRow(ctx, query, accountID, serviceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoActiveSubscription
		}
		return nil, fmt.Errorf("ledger: select active: %w", err)
	}
	return sub, nil
}

// GetByExternalRef looks a subscription up by the gateway's subscription id.
func (s *PostgresStore) GetByExternalRef(ctx context.Context, externalRef string) (*Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE external_ref = $1
		ORDER BY period_start DESC
		LIMIT 1
	`
	sub, err := scanSubscription(s.pool.QueryRow(ctx, query, externalRef))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoActiveSubscription
		}
		return nil, fmt.Errorf("ledger: select by ref: %w", err)
	}
	return sub, nil
}

// TryConsumeSession draws one session from the subscription. The guard on
// sessions_remaining makes the draw atomic: two concurrent calls against a
// row holding one session produce exactly one consume.
func (s *PostgresStore) TryConsumeSession(ctx context.Context, subscriptionID uuid.UUID) (ConsumeResult, error) {
	query := `
		UPDATE subscriptions
		SET sessions_remaining = sessions_remaining - 1, updated_at = now()
		WHERE id = $1 AND status = 'active' AND sessions_remaining > 0
		RETURNING sessions_remaining
	`
	var remaining int
	err := s.pool.QueryRow(ctx, query, subscriptionID).Scan(&remaining)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ConsumeResult{Consumed: false}, nil
		}
		return ConsumeResult{}, fmt.Errorf("ledger: consume session: %w", err)
	}
	return ConsumeResult{Consumed: true, Remaining: remaining}, nil
}

// RestoreSession returns a previously consumed session, used to compensate
// when the appointment insert fails after a successful draw. Capped at the
// plan size so a stray double-restore cannot inflate the balance.
func (s *PostgresStore) RestoreSession(ctx context.Context, subscriptionID uuid.UUID) error {
	query := `
		UPDATE subscriptions
		SET sessions_remaining = sessions_remaining + 1, updated_at = now()
		WHERE id = $1 AND sessions_remaining < sessions_per_month
	`
	if _, err := s.pool.Exec(ctx, query, subscriptionID); err != nil {
		return fmt.Errorf("ledger: restore session: %w", err)
	}
	return nil
}

// ActivateOrRenew grants a fresh period for the account. The unique index on
// (account_id, service_id, period_start) makes redelivered activation events
// no-ops: the second insert conflicts and the existing row is returned with
// created=false.
func (s *PostgresStore) ActivateOrRenew(ctx context.Context, params ActivateParams) (*Subscription, bool, error) {
	if params.SessionsPerMonth <= 0 {
		return nil, false, fmt.Errorf("ledger: sessions per month must be positive")
	}
	if !params.PeriodEnd.After(params.PeriodStart) {
		return nil, false, fmt.Errorf("ledger: period end must follow period start")
	}

	query := `
		INSERT INTO subscriptions (id, account_id, service_id, status, sessions_per_month,
			minutes_per_session, sessions_remaining, period_start, period_end, external_ref)
		VALUES ($1, $2, $3, 'active', $4, $5, $4, $6, $7, $8)
		ON CONFLICT (account_id, service_id, period_start) DO NOTHING
		RETURNING ` + subscriptionColumns + `
	`
	sub, err := scanSubscription(s.pool.QueryRow(ctx, query,
		uuid.New(),
		params.AccountID,
		params.ServiceID,
		params.SessionsPerMonth,
		params.MinutesPerSession,
		params.PeriodStart,
		params.PeriodEnd,
		params.ExternalRef,
	))
	if err == nil {
		return sub, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("ledger: activate: %w", err)
	}

	// Conflict path: the period was already granted.
	existing, err := s.getForPeriod(ctx, params.AccountID, params.ServiceID, params.PeriodStart)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *PostgresStore) getForPeriod(ctx context.Context, accountID string, serviceID uuid.UUID, periodStart time.Time) (*Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE account_id = $1 AND service_id = $2 AND period_start = $3
	`
	sub, err := scanSubscription(s.pool.QueryRow(ctx, query, accountID, serviceID, periodStart))
	if err != nil {
		return nil, fmt.Errorf("ledger: select period: %w", err)
	}
	return sub, nil
}

// SetStatus applies a lifecycle transition from the renewal webhook.
func (s *PostgresStore) SetStatus(ctx context.Context, subscriptionID uuid.UUID, status string) error {
	switch status {
	case StatusActive, StatusPastDue, StatusCancelled:
	default:
		return fmt.Errorf("ledger: unknown status %q", status)
	}
	query := `UPDATE subscriptions SET status = $2, updated_at = now() WHERE id = $1`
	ct, err := s.pool.Exec(ctx, query, subscriptionID, status)
	if err != nil {
		return fmt.Errorf("ledger: set status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNoActiveSubscription
	}
	return nil
}

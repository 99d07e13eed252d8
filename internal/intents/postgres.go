package intents

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

type poolQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores payment intents in the relational database.
type PostgresRepository struct {
	pool poolQuerier
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("intents: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

func newPostgresRepositoryWithQuerier(q poolQuerier) *PostgresRepository {
	if q == nil {
		panic("intents: querier required")
	}
	return &PostgresRepository{pool: q}
}

const intentColumns = `id, account_id, service_id, amount_cents, currency, status,
		gateway, external_reference, metadata, created_at, updated_at`

func scanIntent(row pgx.Row) (*PaymentIntent, error) {
	var intent PaymentIntent
	err := row.Scan(
		&intent.ID,
		&intent.AccountID,
		&intent.ServiceID,
		&intent.AmountCents,
		&intent.Currency,
		&intent.Status,
		&intent.Gateway,
		&intent.ExternalReference,
		&intent.Metadata,
		&intent.CreatedAt,
		&intent.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

// Create inserts a fresh intent in the created state.
func (r *PostgresRepository) Create(ctx context.Context, req *NewIntent) (*PaymentIntent, error) {
	if req.AccountID == "" {
		return nil, fmt.Errorf("intents: account id required")
	}
	if req.ServiceID == uuid.Nil {
		return nil, fmt.Errorf("intents: service id required")
	}
	if req.AmountCents <= 0 {
		return nil, fmt.Errorf("intents: amount must be positive")
	}

	query := `
		INSERT INTO payment_intents (id, account_id, service_id, amount_cents, currency, status, metadata)
		VALUES ($1, $2, $3, $4, $5, 'created', $6)
		RETURNING ` + intentColumns + `
	`
	intent, err := scanIntent(r.pool.QueryRow(ctx, query,
		uuid.New(),
		req.AccountID,
		req.ServiceID,
		req.AmountCents,
		req.Currency,
		req.Metadata,
	))
	if err != nil {
		return nil, fmt.Errorf("intents: insert failed: %w", err)
	}
	return intent, nil
}

// AttachExternalRef records the gateway and its reference after checkout
// creation. The unique index on external_reference keeps lookups by
// reference unambiguous.
func (r *PostgresRepository) AttachExternalRef(ctx context.Context, id uuid.UUID, gateway, externalRef string) error {
	if gateway == "" || externalRef == "" {
		return fmt.Errorf("intents: gateway and external reference required")
	}
	query := `
		UPDATE payment_intents
		SET gateway = $2, external_reference = $3, updated_at = now()
		WHERE id = $1 AND status = 'created'
	`
	ct, err := r.pool.Exec(ctx, query, id, gateway, externalRef)
	if err != nil {
		return fmt.Errorf("intents: attach reference: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrIntentNotFound
	}
	return nil
}

// MarkSucceeded moves the intent to succeeded if it is still in the created
// state. When the transition was already applied (a replayed webhook or a
// poll racing a webhook) the committed intent is returned with
// Applied=false.
func (r *PostgresRepository) MarkSucceeded(ctx context.Context, externalRef string) (TransitionResult, error) {
	return r.transition(ctx, externalRef, StatusSucceeded)
}

// MarkFailed moves the intent to failed under the same guard as
// MarkSucceeded.
func (r *PostgresRepository) MarkFailed(ctx context.Context, externalRef string) (TransitionResult, error) {
	return r.transition(ctx, externalRef, StatusFailed)
}

func (r *PostgresRepository) transition(ctx context.Context, externalRef, status string) (TransitionResult, error) {
	query := `
		UPDATE payment_intents
		SET status = $2, updated_at = now()
		WHERE external_reference = $1 AND status = 'created'
		RETURNING ` + intentColumns + `
	`
	intent, err := scanIntent(r.pool.QueryRow(ctx, query, externalRef, status))
	if err == nil {
		return TransitionResult{Applied: true, Intent: intent}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return TransitionResult{}, fmt.Errorf("intents: transition to %s: %w", status, err)
	}

	// Zero rows: either the intent does not exist or it already settled.
	existing, err := r.GetByExternalRef(ctx, externalRef)
	if err != nil {
		return TransitionResult{}, err
	}
	return TransitionResult{Applied: false, Intent: existing}, nil
}

// GetByExternalRef looks an intent up by the gateway's reference.
func (r *PostgresRepository) GetByExternalRef(ctx context.Context, externalRef string) (*PaymentIntent, error) {
	query := `SELECT ` + intentColumns + ` FROM payment_intents WHERE external_reference = $1`
	intent, err := scanIntent(r.pool.QueryRow(ctx, query, externalRef))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrIntentNotFound
		}
		return nil, fmt.Errorf("intents: select by reference: %w", err)
	}
	return intent, nil
}

// GetByID fetches an intent by primary key.
func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*PaymentIntent, error) {
	query := `SELECT ` + intentColumns + ` FROM payment_intents WHERE id = $1`
	intent, err := scanIntent(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrIntentNotFound
		}
		return nil, fmt.Errorf("intents: select failed: %w", err)
	}
	return intent, nil
}

// ExpireStale sweeps created intents older than the cutoff to expired and
// reports how many rows moved. Settled intents are never touched.
func (r *PostgresRepository) ExpireStale(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `
		UPDATE payment_intents
		SET status = 'expired', updated_at = now()
		WHERE status = 'created' AND created_at < $1
	`
	ct, err := r.pool.Exec(ctx, query, olderThan)
	if err != nil {
		return 0, fmt.Errorf("intents: expire stale: %w", err)
	}
	return ct.RowsAffected(), nil
}

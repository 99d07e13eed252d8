// Package confirm deduplicates gateway confirmation deliveries. Gateways
// redeliver webhook events; the processed_events table gives each (gateway,
// event id) pair exactly one handling in front of the intent status guard.
package confirm

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ProcessedStore records confirmation events that were already handled.
type ProcessedStore struct {
	pool rowQuerier
}

func NewProcessedStore(pool *pgxpool.Pool) *ProcessedStore {
	if pool == nil {
		panic("confirm: pgx pool required")
	}
	return &ProcessedStore{pool: pool}
}

func newProcessedStoreWithExec(exec rowQuerier) *ProcessedStore {
	if exec == nil {
		panic("confirm: exec required")
	}
	return &ProcessedStore{pool: exec}
}

// AlreadyProcessed checks if this gateway event id has been handled.
func (s *ProcessedStore) AlreadyProcessed(ctx context.Context, gateway, eventID string) (bool, error) {
	query := `SELECT 1 FROM processed_events WHERE gateway = $1 AND event_id = $2`
	var exists int
	if err := s.pool.QueryRow(ctx, query, gateway, eventID).Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("confirm: check processed: %w", err)
	}
	return true, nil
}

// MarkProcessed inserts an event id for the gateway, returning false if it
// already exists.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, gateway, eventID string) (bool, error) {
	query := `
		INSERT INTO processed_events (gateway, event_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	ct, err := s.pool.Exec(ctx, query, gateway, eventID)
	if err != nil {
		return false, fmt.Errorf("confirm: mark processed: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

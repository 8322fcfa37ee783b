package events

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresProcessedStore records processed ids in the processed_events table.
type PostgresProcessedStore struct {
	pool execer
	ttl  time.Duration
}

func NewPostgresProcessedStore(pool *pgxpool.Pool, ttl time.Duration) *PostgresProcessedStore {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return &PostgresProcessedStore{pool: pool, ttl: ttl}
}

func newPostgresProcessedStoreWithExec(exec execer, ttl time.Duration) *PostgresProcessedStore {
	if exec == nil {
		panic("events: exec required")
	}
	return &PostgresProcessedStore{pool: exec, ttl: ttl}
}

// EnsureSchema creates the processed_events table if it does not exist.
func (s *PostgresProcessedStore) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS processed_events (
			provider     TEXT NOT NULL,
			event_id     TEXT NOT NULL,
			processed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (provider, event_id)
		)
	`
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("events: ensure processed_events: %w", err)
	}
	return nil
}

// MarkProcessed inserts an event id for the provider, returning false if it
// already exists. An expired row is refreshed and counts as new.
func (s *PostgresProcessedStore) MarkProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	ttlSeconds := s.ttl.Seconds()
	if ttlSeconds <= 0 {
		ttlSeconds = 0
	}
	query := `
		INSERT INTO processed_events (provider, event_id)
		VALUES ($1, $2)
		ON CONFLICT (provider, event_id) DO UPDATE SET processed_at = now()
		WHERE $3::float8 > 0 AND processed_events.processed_at < now() - make_interval(secs => $3::float8)
	`
	ct, err := s.pool.Exec(ctx, query, provider, eventID, ttlSeconds)
	if err != nil {
		return false, fmt.Errorf("events: mark processed: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
)

// pgExecutor is the part of a pgx pool the store needs
type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// PostgresStore implements Store with an upserted counter table, for
// several instances that share the filter database.
type PostgresStore struct {
	db    pgExecutor
	table string
}

// NewPostgresStore stores counters in table, which EnsureTable creates.
func NewPostgresStore(db pgExecutor, table string) *PostgresStore {
	if table == "" {
		table = "filterkit_rate_limits"
	}
	return &PostgresStore{db: db, table: pgx.Identifier{table}.Sanitize()}
}

// EnsureTable creates the counter table when it is missing
func (s *PostgresStore) EnsureTable(ctx context.Context) error {
	_, err := s.db.Exec(ctx, fmt.Sprintf(`
		CREATE UNLOGGED TABLE IF NOT EXISTS %s (
			key TEXT PRIMARY KEY,
			count BIGINT NOT NULL DEFAULT 1,
			reset_at TIMESTAMPTZ NOT NULL
		)
	`, s.table))
	if err != nil {
		return fmt.Errorf("failed to create rate limit table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Increment(ctx context.Context, key string, length time.Duration) (int64, time.Time, error) {
	var count int64
	var resetAt time.Time
	err := s.db.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO %[1]s AS r (key, count, reset_at)
		VALUES ($1, 1, NOW() + $2::bigint * INTERVAL '1 millisecond')
		ON CONFLICT (key) DO UPDATE SET
			count = CASE WHEN r.reset_at <= NOW() THEN 1 ELSE r.count + 1 END,
			reset_at = CASE WHEN r.reset_at <= NOW() THEN EXCLUDED.reset_at ELSE r.reset_at END
		RETURNING count, reset_at
	`, s.table), key, length.Milliseconds()).Scan(&count, &resetAt)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to increment rate limit counter")
		return 0, time.Time{}, err
	}
	return count, resetAt, nil
}

func (s *PostgresStore) Reset(ctx context.Context, key string) error {
	_, err := s.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, s.table), key)
	return err
}

// Cleanup removes closed windows and returns how many were dropped
func (s *PostgresStore) Cleanup(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE reset_at <= NOW()`, s.table))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Close is a no-op; the pool belongs to the caller.
func (s *PostgresStore) Close() error {
	return nil
}

package ratelimit

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbase-eu/filterkit/internal/config"
)

type recordedRow struct {
	count   int64
	resetAt time.Time
}

func (r recordedRow) Scan(dest ...interface{}) error {
	*dest[0].(*int64) = r.count
	*dest[1].(*time.Time) = r.resetAt
	return nil
}

// fakeExecutor records statements instead of running them
type fakeExecutor struct {
	statements []string
	args       [][]interface{}
	row        pgx.Row
}

func (f *fakeExecutor) Exec(_ context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	f.statements = append(f.statements, sql)
	f.args = append(f.args, args)
	return pgconn.NewCommandTag("DELETE 3"), nil
}

func (f *fakeExecutor) QueryRow(_ context.Context, sql string, args ...interface{}) pgx.Row {
	f.statements = append(f.statements, sql)
	f.args = append(f.args, args)
	return f.row
}

func TestPostgresStore(t *testing.T) {
	resetAt := time.Date(2024, 6, 15, 12, 1, 0, 0, time.UTC)
	exec := &fakeExecutor{row: recordedRow{count: 4, resetAt: resetAt}}
	s := NewPostgresStore(exec, "")
	ctx := context.Background()

	require.NoError(t, s.EnsureTable(ctx))
	assert.Contains(t, exec.statements[0], `CREATE UNLOGGED TABLE IF NOT EXISTS "filterkit_rate_limits"`)

	count, gotReset, err := s.Increment(ctx, "10.0.0.1", 90*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
	assert.Equal(t, resetAt, gotReset)
	assert.Contains(t, exec.statements[1], `INSERT INTO "filterkit_rate_limits" AS r`)
	assert.Equal(t, []interface{}{"10.0.0.1", int64(90000)}, exec.args[1])

	require.NoError(t, s.Reset(ctx, "10.0.0.1"))
	assert.True(t, strings.HasPrefix(exec.statements[2], `DELETE FROM "filterkit_rate_limits"`))

	removed, err := s.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)
}

func TestPostgresStore_QuotesTableName(t *testing.T) {
	exec := &fakeExecutor{}
	s := NewPostgresStore(exec, `odd"name`)
	require.NoError(t, s.EnsureTable(context.Background()))
	assert.Contains(t, exec.statements[0], `"odd""name"`)
}

func TestNewRedisStore_InvalidURL(t *testing.T) {
	_, err := NewRedisStore(context.Background(), "not-a-url")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid redis url")
}

func TestNewStore(t *testing.T) {
	ctx := context.Background()

	t.Run("local by default", func(t *testing.T) {
		store, err := NewStore(ctx, config.RateLimitConfig{}, nil)
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &MemoryStore{}, store)
	})

	t.Run("postgres needs a pool", func(t *testing.T) {
		_, err := NewStore(ctx, config.RateLimitConfig{Backend: "postgres"}, nil)
		assert.ErrorContains(t, err, "database pool is required")
	})

	t.Run("redis needs a url", func(t *testing.T) {
		_, err := NewStore(ctx, config.RateLimitConfig{Backend: "redis"}, nil)
		assert.ErrorContains(t, err, "redis_url is required")
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, err := NewStore(ctx, config.RateLimitConfig{Backend: "memcached"}, nil)
		assert.ErrorContains(t, err, "unknown rate limit backend")
	})
}

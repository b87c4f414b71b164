package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/filterkit/internal/config"
)

// NewStore creates the store selected by cfg.Backend. The pool is required
// for "postgres" and may be nil otherwise.
func NewStore(ctx context.Context, cfg config.RateLimitConfig, pool *pgxpool.Pool) (Store, error) {
	switch cfg.Backend {
	case "local", "":
		log.Info().Msg("Using in-memory rate limit store (single instance mode)")
		return NewMemoryStore(10 * time.Minute), nil

	case "postgres":
		if pool == nil {
			return nil, fmt.Errorf("database pool is required for postgres rate limit backend")
		}
		log.Info().Msg("Using PostgreSQL rate limit store (multi-instance mode)")
		store := NewPostgresStore(pool, "")
		if err := store.EnsureTable(ctx); err != nil {
			return nil, err
		}
		return store, nil

	case "redis":
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("redis_url is required for redis rate limit backend")
		}
		log.Info().Msg("Using Redis-compatible rate limit store (multi-instance mode)")
		store, err := NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown rate limit backend: %s (valid options: local, postgres, redis)", cfg.Backend)
	}
}

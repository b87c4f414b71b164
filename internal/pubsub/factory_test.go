package pubsub

import (
	"context"
	"testing"

	"github.com/fluxbase-eu/filterkit/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPubSub(t *testing.T) {
	ctx := context.Background()

	t.Run("creates local pubsub for empty backend", func(t *testing.T) {
		ps, err := NewPubSub(ctx, config.InvalidationConfig{}, nil)
		require.NoError(t, err)
		defer ps.Close()

		_, ok := ps.(*LocalPubSub)
		assert.True(t, ok, "should be LocalPubSub")
	})

	t.Run("errors for postgres backend without pool", func(t *testing.T) {
		ps, err := NewPubSub(ctx, config.InvalidationConfig{Backend: "postgres"}, nil)
		require.Error(t, err)
		assert.Nil(t, ps)
		assert.Contains(t, err.Error(), "database pool is required")
	})

	t.Run("errors for redis backend without url", func(t *testing.T) {
		ps, err := NewPubSub(ctx, config.InvalidationConfig{Backend: "redis"}, nil)
		require.Error(t, err)
		assert.Nil(t, ps)
		assert.Contains(t, err.Error(), "redis_url is required")
	})

	t.Run("errors for redis backend with invalid url", func(t *testing.T) {
		ps, err := NewPubSub(ctx, config.InvalidationConfig{Backend: "redis", RedisURL: "invalid://url"}, nil)
		require.Error(t, err)
		assert.Nil(t, ps)
		assert.Contains(t, err.Error(), "failed to connect to Redis")
	})

	t.Run("errors for unknown backend", func(t *testing.T) {
		ps, err := NewPubSub(ctx, config.InvalidationConfig{Backend: "kafka"}, nil)
		require.Error(t, err)
		assert.Nil(t, ps)
		assert.Contains(t, err.Error(), "unknown pub/sub backend")
	})
}

package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fluxbase-eu/filterkit/internal/observability"
	"github.com/fluxbase-eu/filterkit/internal/pubsub"
	"github.com/fluxbase-eu/filterkit/internal/schema"
	"github.com/rs/zerolog/log"
)

// TableLister is the part of SchemaInspector the cache depends on
type TableLister interface {
	GetAllTables(ctx context.Context, schemas ...string) ([]TableInfo, error)
}

// SchemaCache keeps the models built from the inspected schema, with
// TTL-based expiration and manual invalidation support. When PubSub is
// configured, invalidation is broadcast to all instances.
type SchemaCache struct {
	mu          sync.RWMutex
	registry    *schema.Registry
	tables      []TableInfo
	version     uint64
	ttl         time.Duration
	lastRefresh time.Time
	stale       bool // Force refresh on next access
	schemas     []string
	lister      TableLister
	metrics     *observability.Metrics
	refreshMu   sync.Mutex

	// PubSub for cross-instance cache invalidation
	ps         pubsub.PubSub
	cancelFunc context.CancelFunc
}

// NewSchemaCache creates a cache over lister covering schemas
func NewSchemaCache(lister TableLister, ttl time.Duration, schemas ...string) *SchemaCache {
	if len(schemas) == 0 {
		schemas = []string{"public"}
	}
	return &SchemaCache{
		ttl:     ttl,
		lister:  lister,
		stale:   true, // Start stale to force initial load
		schemas: schemas,
	}
}

// SetMetrics sets the metrics instance for recording refreshes
func (c *SchemaCache) SetMetrics(m *observability.Metrics) {
	c.metrics = m
}

// makeKey creates a cache key from schema and table name
func makeKey(schema, table string) string {
	return fmt.Sprintf("%s.%s", schema, table)
}

// isExpired checks if the cache has expired based on TTL. A non-positive
// TTL never expires.
func (c *SchemaCache) isExpired() bool {
	return c.ttl > 0 && time.Since(c.lastRefresh) > c.ttl
}

// needsRefresh checks if the cache needs to be refreshed
func (c *SchemaCache) needsRefresh() bool {
	return c.stale || c.isExpired()
}

// Registry returns the current models, refreshing if necessary. The
// returned registry is never mutated; a refresh replaces it.
func (c *SchemaCache) Registry(ctx context.Context) (*schema.Registry, uint64, error) {
	c.mu.RLock()
	if !c.needsRefresh() {
		defer c.mu.RUnlock()
		return c.registry, c.version, nil
	}
	c.mu.RUnlock()

	if err := c.refresh(ctx, false); err != nil {
		// Serve the previous models rather than failing every request.
		c.mu.RLock()
		defer c.mu.RUnlock()
		if c.registry != nil {
			log.Warn().Err(err).Msg("Schema refresh failed, serving cached models")
			return c.registry, c.version, nil
		}
		return nil, 0, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.registry, c.version, nil
}

// Model looks up one model by name, refreshing if necessary
func (c *SchemaCache) Model(ctx context.Context, name string) (*schema.Model, bool, error) {
	registry, _, err := c.Registry(ctx)
	if err != nil {
		return nil, false, err
	}
	m, ok := registry.Get(name)
	return m, ok, nil
}

// Tables returns a copy of the inspected tables, refreshing if necessary
func (c *SchemaCache) Tables(ctx context.Context) ([]TableInfo, error) {
	if _, _, err := c.Registry(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]TableInfo, len(c.tables))
	copy(result, c.tables)
	return result, nil
}

// Invalidate marks the cache as stale, forcing a refresh on next access.
// This only invalidates the local cache. Use InvalidateAll to broadcast
// invalidation to all instances.
func (c *SchemaCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stale = true
	log.Debug().Msg("Schema cache invalidated (local)")
}

// InvalidateAll marks the cache as stale and broadcasts the invalidation
// to all other instances via PubSub.
func (c *SchemaCache) InvalidateAll(ctx context.Context) {
	c.Invalidate()

	c.mu.RLock()
	ps := c.ps
	c.mu.RUnlock()

	if ps != nil {
		if err := ps.Publish(ctx, pubsub.SchemaChannel, []byte("invalidate")); err != nil {
			log.Error().Err(err).Msg("Failed to broadcast schema cache invalidation")
		} else {
			log.Debug().Msg("Schema cache invalidation broadcast sent")
		}
	}
}

// SetPubSub configures the PubSub backend for cross-instance cache invalidation.
// This instance starts listening for invalidation messages from others.
func (c *SchemaCache) SetPubSub(ps pubsub.PubSub) {
	c.mu.Lock()
	c.ps = ps
	c.mu.Unlock()

	if ps != nil {
		c.startInvalidationListener()
	}
}

// startInvalidationListener subscribes to schema invalidation messages from
// other instances and invalidates the local cache when one arrives.
func (c *SchemaCache) startInvalidationListener() {
	c.mu.Lock()
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancelFunc = cancel
	ps := c.ps
	c.mu.Unlock()

	msgCh, err := ps.Subscribe(ctx, pubsub.SchemaChannel)
	if err != nil {
		log.Error().Err(err).Msg("Failed to subscribe to schema invalidation channel")
		return
	}

	go func() {
		log.Info().Msg("Schema cache listening for cross-instance invalidation messages")
		for {
			select {
			case <-ctx.Done():
				log.Debug().Msg("Schema cache invalidation listener stopped")
				return
			case msg, ok := <-msgCh:
				if !ok {
					log.Debug().Msg("Schema cache invalidation channel closed")
					return
				}
				log.Debug().Str("payload", string(msg.Payload)).Msg("Received schema cache invalidation")
				c.Invalidate()
			}
		}
	}()
}

// Close stops the invalidation listener if running
func (c *SchemaCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelFunc != nil {
		c.cancelFunc()
		c.cancelFunc = nil
	}
}

// Refresh forces an immediate cache refresh
func (c *SchemaCache) Refresh(ctx context.Context) error {
	return c.refresh(ctx, true)
}

// refresh inspects the database again. Callers that lose the race for
// refreshMu reuse the winner's result unless force is set.
func (c *SchemaCache) refresh(ctx context.Context, force bool) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	if !force {
		c.mu.RLock()
		fresh := !c.needsRefresh()
		c.mu.RUnlock()
		if fresh {
			return nil
		}
	}

	tables, err := c.lister.GetAllTables(ctx, c.schemas...)
	if err == nil {
		var registry *schema.Registry
		registry, err = BuildModels(tables)
		if err == nil {
			c.mu.Lock()
			c.registry = registry
			c.tables = tables
			c.version++
			c.lastRefresh = time.Now()
			c.stale = false
			c.mu.Unlock()
		}
	}

	if c.metrics != nil {
		c.metrics.RecordSchemaRefresh(len(tables), err)
	}
	if err != nil {
		return fmt.Errorf("failed to refresh schema: %w", err)
	}

	log.Debug().
		Int("tables", len(tables)).
		Strs("schemas", c.schemas).
		Msg("Schema cache refreshed")
	return nil
}

// ModelCount returns the number of cached models
func (c *SchemaCache) ModelCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.registry == nil {
		return 0
	}
	return len(c.registry.Names())
}

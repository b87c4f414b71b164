package pubsub

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// maxNotifyPayload is PostgreSQL's NOTIFY payload limit.
const maxNotifyPayload = 8000

// PostgresPubSub implements PubSub using PostgreSQL LISTEN/NOTIFY, so several
// instances sharing a database need no extra infrastructure.
type PostgresPubSub struct {
	*fanout
	pool   *pgxpool.Pool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewPostgresPubSub creates a new PostgreSQL-backed pub/sub.
func NewPostgresPubSub(pool *pgxpool.Pool) *PostgresPubSub {
	ctx, cancel := context.WithCancel(context.Background())
	return &PostgresPubSub{
		fanout: newFanout(),
		pool:   pool,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins listening for notifications. It is idempotent.
func (p *PostgresPubSub) Start() error {
	p.once.Do(func() {
		p.wg.Add(1)
		go p.listenLoop()
		log.Info().Msg("PostgreSQL pub/sub started")
	})
	return nil
}

// listenLoop holds one pooled connection in LISTEN and reconnects on failure.
func (p *PostgresPubSub) listenLoop() {
	defer p.wg.Done()

	for p.ctx.Err() == nil {
		conn, err := p.pool.Acquire(p.ctx)
		if err != nil {
			if p.ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("Failed to acquire connection for pub/sub LISTEN")
			time.Sleep(time.Second)
			continue
		}

		p.listen(conn.Conn())
		conn.Release()
		time.Sleep(time.Second)
	}
}

// listen waits for notifications on conn until it fails or the pub/sub closes.
func (p *PostgresPubSub) listen(conn *pgx.Conn) {
	listening := make(map[string]bool)
	for {
		for _, ch := range p.channels() {
			if listening[ch] {
				continue
			}
			if _, err := conn.Exec(p.ctx, "LISTEN "+pgx.Identifier{sanitizeChannelName(ch)}.Sanitize()); err != nil {
				log.Error().Err(err).Str("channel", ch).Msg("Failed to LISTEN on channel")
				return
			}
			listening[ch] = true
		}

		ctx, cancel := context.WithTimeout(p.ctx, 5*time.Second)
		notification, err := conn.WaitForNotification(ctx)
		cancel()

		if err != nil {
			if p.ctx.Err() != nil {
				return
			}
			// Timeouts let new subscriptions get their LISTEN issued.
			if ctx.Err() == context.DeadlineExceeded {
				continue
			}
			log.Error().Err(err).Msg("Error waiting for pub/sub notification")
			return
		}

		p.deliver(Message{
			Channel: unsanitizeChannelName(notification.Channel),
			Payload: []byte(notification.Payload),
		})
	}
}

// Publish sends a message to all subscribers of a channel.
func (p *PostgresPubSub) Publish(ctx context.Context, channel string, payload []byte) error {
	if len(payload) > maxNotifyPayload {
		return fmt.Errorf("payload too large for PostgreSQL NOTIFY: %d bytes (max %d)", len(payload), maxNotifyPayload)
	}

	if _, err := p.pool.Exec(ctx, "SELECT pg_notify($1, $2)", sanitizeChannelName(channel), string(payload)); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Subscribe returns a channel that receives messages published to the given channel.
func (p *PostgresPubSub) Subscribe(ctx context.Context, channel string) (<-chan Message, error) {
	sub := p.add(ctx, channel)
	if err := p.Start(); err != nil {
		return nil, err
	}
	return sub.ch, nil
}

// Close releases all resources and closes all subscriptions.
func (p *PostgresPubSub) Close() error {
	p.cancel()
	p.wg.Wait()
	p.closeAll()
	log.Info().Msg("PostgreSQL pub/sub closed")
	return nil
}

// sanitizeChannelName converts channel names to PostgreSQL-safe identifiers
func sanitizeChannelName(channel string) string {
	return strings.ReplaceAll(channel, ":", "__")
}

// unsanitizeChannelName converts PostgreSQL channel names back to our format
func unsanitizeChannelName(pgChannel string) string {
	return strings.ReplaceAll(pgChannel, "__", ":")
}

package pubsub

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisPubSub implements PubSub using Redis (or a compatible server such as
// Dragonfly or Valkey) pub/sub.
type RedisPubSub struct {
	*fanout
	client *redis.Client
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRedisPubSub creates a new Redis-backed pub/sub.
// url should be in the format: redis://[password@]host:port[/db]
func NewRedisPubSub(ctx context.Context, url string) (*RedisPubSub, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	log.Info().Str("addr", opts.Addr).Msg("Connected to Redis-compatible backend for pub/sub")

	runCtx, cancel := context.WithCancel(context.Background())
	return &RedisPubSub{
		fanout: newFanout(),
		client: client,
		ctx:    runCtx,
		cancel: cancel,
	}, nil
}

// Publish sends a message to all subscribers of a channel.
func (r *RedisPubSub) Publish(ctx context.Context, channel string, payload []byte) error {
	return r.client.Publish(ctx, channel, payload).Err()
}

// Subscribe returns a channel that receives messages published to the given channel.
func (r *RedisPubSub) Subscribe(ctx context.Context, channel string) (<-chan Message, error) {
	ps := r.client.Subscribe(r.ctx, channel)
	if _, err := ps.Receive(r.ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	sub := r.add(ctx, channel)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() { _ = ps.Close() }()

		msgCh := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.ctx.Done():
				return
			case msg, ok := <-msgCh:
				if !ok {
					return
				}
				if !sub.send(Message{Channel: msg.Channel, Payload: []byte(msg.Payload)}) {
					log.Warn().Str("channel", channel).Msg("Pub/sub subscriber channel full, dropping message")
				}
			}
		}
	}()

	return sub.ch, nil
}

// Close releases all resources and closes all subscriptions.
func (r *RedisPubSub) Close() error {
	r.cancel()
	r.wg.Wait()
	r.closeAll()

	err := r.client.Close()
	log.Info().Msg("Redis pub/sub closed")
	return err
}

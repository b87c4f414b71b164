// Package pubsub carries small notifications between filterkit instances.
// It is used to tell every running server that the database schema changed
// and cached models must be rebuilt.
package pubsub

import (
	"context"
)

// Message represents a pub/sub message
type Message struct {
	// Channel is the channel the message was published to
	Channel string `json:"channel"`

	// Payload is the message content
	Payload []byte `json:"payload"`
}

// PubSub is the interface for pub/sub backends.
// Implementations should handle concurrent access safely.
type PubSub interface {
	// Publish sends a message to all subscribers of a channel.
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe returns a channel that receives messages published to the given channel.
	// The returned channel is closed when the context is cancelled or Close is called.
	Subscribe(ctx context.Context, channel string) (<-chan Message, error)

	// Close releases all resources and closes all subscriptions.
	Close() error
}

// SchemaChannel carries schema invalidation notices
const SchemaChannel = "filterkit:schema"

// subscriberBuffer bounds each subscriber's queue; slow readers drop messages.
const subscriberBuffer = 16

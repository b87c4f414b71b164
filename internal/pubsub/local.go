package pubsub

import (
	"context"
	"sync"
)

// subscriber is one receiving end. Its channel is closed exactly once.
type subscriber struct {
	ch     chan Message
	closed bool
	mu     sync.Mutex
}

func newSubscriber() *subscriber {
	return &subscriber{ch: make(chan Message, subscriberBuffer)}
}

// send delivers msg unless the subscriber is closed or full.
func (s *subscriber) send(msg Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	select {
	case s.ch <- msg:
		return true
	default:
		return false
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// fanout tracks subscribers per channel. Every backend embeds one to deliver
// what it receives.
type fanout struct {
	mu          sync.RWMutex
	subscribers map[string][]*subscriber
}

func newFanout() *fanout {
	return &fanout{subscribers: make(map[string][]*subscriber)}
}

// add registers a subscriber that is removed when ctx ends.
func (f *fanout) add(ctx context.Context, channel string) *subscriber {
	sub := newSubscriber()
	f.mu.Lock()
	f.subscribers[channel] = append(f.subscribers[channel], sub)
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.remove(channel, sub)
	}()
	return sub
}

func (f *fanout) remove(channel string, sub *subscriber) {
	f.mu.Lock()
	subs := f.subscribers[channel]
	for i, s := range subs {
		if s == sub {
			f.subscribers[channel] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	f.mu.Unlock()
	sub.close()
}

// deliver returns the number of subscribers that accepted msg.
func (f *fanout) deliver(msg Message) int {
	f.mu.RLock()
	subs := make([]*subscriber, len(f.subscribers[msg.Channel]))
	copy(subs, f.subscribers[msg.Channel])
	f.mu.RUnlock()

	n := 0
	for _, sub := range subs {
		if sub.send(msg) {
			n++
		}
	}
	return n
}

func (f *fanout) channels() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.subscribers))
	for ch, subs := range f.subscribers {
		if len(subs) > 0 {
			out = append(out, ch)
		}
	}
	return out
}

func (f *fanout) closeAll() {
	f.mu.Lock()
	var all []*subscriber
	for _, subs := range f.subscribers {
		all = append(all, subs...)
	}
	f.subscribers = make(map[string][]*subscriber)
	f.mu.Unlock()

	for _, sub := range all {
		sub.close()
	}
}

// LocalPubSub implements PubSub for single-instance deployments.
// Messages are only delivered within the same process.
type LocalPubSub struct {
	*fanout
}

// NewLocalPubSub creates a new local pub/sub.
func NewLocalPubSub() *LocalPubSub {
	return &LocalPubSub{fanout: newFanout()}
}

// Publish sends a message to all local subscribers of a channel.
func (l *LocalPubSub) Publish(ctx context.Context, channel string, payload []byte) error {
	l.deliver(Message{Channel: channel, Payload: payload})
	return nil
}

// Subscribe returns a channel that receives messages published to the given channel.
func (l *LocalPubSub) Subscribe(ctx context.Context, channel string) (<-chan Message, error) {
	return l.add(ctx, channel).ch, nil
}

// Close releases all resources.
func (l *LocalPubSub) Close() error {
	l.closeAll()
	return nil
}

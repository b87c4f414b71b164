// Package ratelimit counts requests per client in fixed windows, with
// backends for single and multi-instance deployments.
package ratelimit

import (
	"context"
	"time"
)

// Store keeps fixed-window counters.
//
// - Memory: single instance, no external dependencies
// - PostgreSQL: several instances sharing the filter database
// - Redis: several instances with a Redis-compatible server
type Store interface {
	// Increment adds one to the counter for key, starting a new window of
	// length window when none is open. It returns the new count and when
	// the window closes.
	Increment(ctx context.Context, key string, window time.Duration) (int64, time.Time, error)

	// Reset drops the counter for key.
	Reset(ctx context.Context, key string) error

	Close() error
}

// Result is the outcome of one rate limit check
type Result struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   time.Time
}

// RetryAfter returns how long a rejected client should wait, at least one second.
func (r *Result) RetryAfter(now time.Time) time.Duration {
	d := r.ResetAt.Sub(now).Round(time.Second)
	if d < time.Second {
		return time.Second
	}
	return d
}

// Limiter allows limit requests per key in every window
type Limiter struct {
	store  Store
	limit  int64
	window time.Duration
}

// NewLimiter creates a limiter over store
func NewLimiter(store Store, limit int64, window time.Duration) *Limiter {
	return &Limiter{store: store, limit: limit, window: window}
}

// Allow counts one request for key and reports whether it fits the limit
func (l *Limiter) Allow(ctx context.Context, key string) (*Result, error) {
	count, resetAt, err := l.store.Increment(ctx, key, l.window)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Allowed:   count <= l.limit,
		Limit:     l.limit,
		Remaining: l.limit - count,
		ResetAt:   resetAt,
	}
	if result.Remaining < 0 {
		result.Remaining = 0
	}
	return result, nil
}

// Store returns the backing store
func (l *Limiter) Store() Store { return l.store }

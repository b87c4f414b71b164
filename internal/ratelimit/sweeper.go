package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// cleaner is a store whose closed windows are removed in bulk
type cleaner interface {
	Cleanup(ctx context.Context) (int64, error)
}

// Sweeper periodically removes closed windows from a shared store. Only one
// instance needs to sweep, so Start and Stop fit leader election callbacks.
type Sweeper struct {
	store cleaner
	every time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper sweeps store every interval
func NewSweeper(store cleaner, every time.Duration) *Sweeper {
	return &Sweeper{store: store, every: every}
}

// Start begins sweeping; calling it while running does nothing.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
}

// Stop ends sweeping and waits for a sweep in progress.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Sweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	removed, err := s.store.Cleanup(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn().Err(err).Msg("Failed to sweep rate limit windows")
		}
		return
	}
	if removed > 0 {
		log.Debug().Int64("removed", removed).Msg("Swept rate limit windows")
	}
}

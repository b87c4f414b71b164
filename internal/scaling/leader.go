// Package scaling coordinates work that only one filterkit instance should
// run when several share a database.
package scaling

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Advisory lock IDs, "Filt" followed by a sequence number.
const (
	// RateLimitSweepLockID guards removal of expired rate limit windows.
	RateLimitSweepLockID int64 = 0x46696C74_00000001
)

// lockConn is a single database session. Advisory locks belong to the
// session that took them, so the leader keeps its connection checked out.
type lockConn interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Release()
}

type acquireFunc func(ctx context.Context) (lockConn, error)

// LeaderElector holds a PostgreSQL advisory lock on behalf of this instance.
type LeaderElector struct {
	acquire       acquireFunc
	lockID        int64
	lockName      string
	checkInterval time.Duration

	mu       sync.Mutex
	conn     lockConn
	isLeader bool
	started  bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLeaderElector creates an elector for lockID; lockName is used in logs.
func NewLeaderElector(pool *pgxpool.Pool, lockID int64, lockName string) *LeaderElector {
	return newLeaderElector(func(ctx context.Context) (lockConn, error) {
		conn, err := pool.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}, lockID, lockName, 5*time.Second)
}

func newLeaderElector(acquire acquireFunc, lockID int64, lockName string, interval time.Duration) *LeaderElector {
	ctx, cancel := context.WithCancel(context.Background())
	return &LeaderElector{
		acquire:       acquire,
		lockID:        lockID,
		lockName:      lockName,
		checkInterval: interval,
		ctx:           ctx,
		cancel:        cancel,
		done:          make(chan struct{}),
	}
}

// Start tries for the lock now and then on every check interval.
// onBecomeLeader and onLoseLeadership run on the election goroutine.
func (le *LeaderElector) Start(onBecomeLeader, onLoseLeadership func()) {
	log.Info().
		Str("lock", le.lockName).
		Int64("lock_id", le.lockID).
		Msg("Starting leader election")

	le.mu.Lock()
	le.started = true
	le.mu.Unlock()
	go le.electionLoop(onBecomeLeader, onLoseLeadership)
}

// Stop ends the election and releases the lock if held. It waits for the
// election goroutine, so no callback runs after Stop returns.
func (le *LeaderElector) Stop() {
	le.cancel()
	le.mu.Lock()
	started := le.started
	le.mu.Unlock()
	if started {
		<-le.done
	}

	le.mu.Lock()
	defer le.mu.Unlock()
	log.Info().
		Str("lock", le.lockName).
		Bool("was_leader", le.isLeader).
		Msg("Stopping leader election")
	le.releaseLocked()
}

// IsLeader reports whether this instance currently holds the lock.
func (le *LeaderElector) IsLeader() bool {
	le.mu.Lock()
	defer le.mu.Unlock()
	return le.isLeader
}

func (le *LeaderElector) electionLoop(onBecomeLeader, onLoseLeadership func()) {
	defer close(le.done)
	ticker := time.NewTicker(le.checkInterval)
	defer ticker.Stop()

	le.check(onBecomeLeader, onLoseLeadership)
	for {
		select {
		case <-le.ctx.Done():
			return
		case <-ticker.C:
			le.check(onBecomeLeader, onLoseLeadership)
		}
	}
}

// check takes the lock when free, or confirms the held session is alive.
func (le *LeaderElector) check(onBecomeLeader, onLoseLeadership func()) {
	ctx, cancel := context.WithTimeout(le.ctx, 5*time.Second)
	defer cancel()

	le.mu.Lock()
	wasLeader := le.isLeader
	if wasLeader {
		var alive bool
		if err := le.conn.QueryRow(ctx, "SELECT true").Scan(&alive); err != nil {
			log.Warn().Err(err).Str("lock", le.lockName).Msg("Lost leader session")
			le.conn.Release()
			le.conn = nil
			le.isLeader = false
		}
	} else {
		le.isLeader = le.tryLockLocked(ctx)
	}
	isLeader := le.isLeader
	le.mu.Unlock()

	switch {
	case isLeader && !wasLeader:
		log.Info().Str("lock", le.lockName).Msg("Acquired leader lock")
		if onBecomeLeader != nil {
			onBecomeLeader()
		}
	case !isLeader && wasLeader:
		log.Warn().Str("lock", le.lockName).Msg("Lost leader lock")
		if onLoseLeadership != nil {
			onLoseLeadership()
		}
	}
}

func (le *LeaderElector) tryLockLocked(ctx context.Context) bool {
	conn, err := le.acquire(ctx)
	if err != nil {
		log.Error().Err(err).Str("lock", le.lockName).Msg("Failed to acquire connection for advisory lock")
		return false
	}

	var acquired bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", le.lockID).Scan(&acquired); err != nil {
		log.Error().Err(err).Str("lock", le.lockName).Msg("Failed to try advisory lock")
		conn.Release()
		return false
	}
	if !acquired {
		conn.Release()
		return false
	}
	le.conn = conn
	return true
}

func (le *LeaderElector) releaseLocked() {
	if le.conn == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var released bool
	if err := le.conn.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", le.lockID).Scan(&released); err != nil {
		log.Error().Err(err).Str("lock", le.lockName).Msg("Failed to release advisory lock")
	} else if released {
		log.Info().Str("lock", le.lockName).Msg("Released leader lock")
	}
	le.conn.Release()
	le.conn = nil
	le.isLeader = false
}

package scaling

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type boolRow struct {
	value bool
	err   error
}

func (r boolRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*bool) = r.value
	return nil
}

// fakeDB hands out sessions and records the statements they run.
type fakeDB struct {
	mu       sync.Mutex
	free     bool
	dead     bool
	queries  []string
	acquired int
	released int
}

func (db *fakeDB) acquire(context.Context) (lockConn, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.acquired++
	return &fakeConn{db: db}, nil
}

func (db *fakeDB) setDead(dead bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.dead = dead
}

func (db *fakeDB) counts() (int, int) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.acquired, db.released
}

type fakeConn struct {
	db *fakeDB
}

func (c *fakeConn) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	c.db.queries = append(c.db.queries, sql)
	switch {
	case strings.Contains(sql, "pg_try_advisory_lock"):
		return boolRow{value: c.db.free}
	case strings.Contains(sql, "pg_advisory_unlock"):
		return boolRow{value: true}
	case c.db.dead:
		return boolRow{err: errors.New("connection reset")}
	default:
		return boolRow{value: true}
	}
}

func (c *fakeConn) Release() {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	c.db.released++
}

func TestLeaderElector_TakesFreeLock(t *testing.T) {
	db := &fakeDB{free: true}
	le := newLeaderElector(db.acquire, RateLimitSweepLockID, "test", time.Hour)

	became := make(chan struct{}, 1)
	le.Start(func() { became <- struct{}{} }, nil)

	select {
	case <-became:
	case <-time.After(time.Second):
		t.Fatal("never became leader")
	}
	assert.True(t, le.IsLeader())

	le.Stop()
	assert.False(t, le.IsLeader())

	acquired, released := db.counts()
	assert.Equal(t, 1, acquired)
	assert.Equal(t, 1, released, "the session is returned after unlocking")
	assert.Contains(t, db.queries[len(db.queries)-1], "pg_advisory_unlock")
}

func TestLeaderElector_HeldElsewhere(t *testing.T) {
	db := &fakeDB{free: false}
	le := newLeaderElector(db.acquire, RateLimitSweepLockID, "test", time.Hour)

	le.check(func() { t.Fatal("unexpected leadership") }, nil)
	assert.False(t, le.IsLeader())
	le.Stop()

	acquired, released := db.counts()
	assert.Equal(t, acquired, released, "sessions are not kept without the lock")
}

func TestLeaderElector_LosesDeadSession(t *testing.T) {
	db := &fakeDB{free: true}
	le := newLeaderElector(db.acquire, RateLimitSweepLockID, "test", time.Hour)

	var became, lost int
	onBecome := func() { became++ }
	onLose := func() { lost++ }

	le.check(onBecome, onLose)
	require.True(t, le.IsLeader())

	// A healthy session keeps leadership without taking the lock again.
	le.check(onBecome, onLose)
	assert.True(t, le.IsLeader())
	acquired, _ := db.counts()
	assert.Equal(t, 1, acquired)

	db.setDead(true)
	le.check(onBecome, onLose)
	assert.False(t, le.IsLeader())
	assert.Equal(t, 1, became)
	assert.Equal(t, 1, lost)

	db.setDead(false)
	le.check(onBecome, onLose)
	assert.True(t, le.IsLeader())
	assert.Equal(t, 2, became)
}

func TestLeaderElector_StopWithoutLeadership(t *testing.T) {
	db := &fakeDB{free: false}
	le := newLeaderElector(db.acquire, RateLimitSweepLockID, "test", time.Hour)
	le.Start(nil, nil)
	le.Stop()

	for _, q := range db.queries {
		assert.NotContains(t, q, "pg_advisory_unlock")
	}
}

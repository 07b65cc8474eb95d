package ratelimit

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func openBadger(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func stores(t *testing.T) map[string]Store {
	out := map[string]Store{
		"memory": NewMemoryStore(0),
		"badger": NewBadgerStore(openBadger(t)),
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		purge := func() {
			keys, _ := rdb.Keys(context.Background(), "test:*").Result()
			if len(keys) > 0 {
				_ = rdb.Del(context.Background(), keys...).Err()
			}
		}
		purge()
		t.Cleanup(func() {
			purge()
			_ = rdb.Close()
		})
		out["redis"] = NewRedisStore(rdb)
	}
	return out
}

func allowN(t *testing.T, l *Limiter, user string, n int) (allowed int) {
	t.Helper()
	for i := 0; i < n; i++ {
		d, err := l.Allow(context.Background(), user)
		require.NoError(t, err)
		if d.Allowed {
			allowed++
		}
	}
	return allowed
}

func TestLimiter_CapacityThenRefill(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			clock := newFakeClock()
			p := DefaultPolicy()
			l := New(store, p, WithClock(clock.Now), WithKeyPrefix("test:"+t.Name()+":"))

			assert.Equal(t, p.Capacity, allowN(t, l, "u1", p.Capacity))

			d, err := l.Allow(context.Background(), "u1")
			require.NoError(t, err)
			assert.False(t, d.Allowed, "capacity+1 call must be denied")
			assert.Greater(t, d.RetryAfter, time.Duration(0))

			clock.Advance(p.Interval - time.Minute)
			assert.Zero(t, allowN(t, l, "u1", 1), "no refill before a whole interval")

			clock.Advance(time.Minute)
			assert.Equal(t, p.Refill, allowN(t, l, "u1", p.Refill+3))
		})
	}
}

func TestLimiter_BurstAcrossStepBoundary(t *testing.T) {
	clock := newFakeClock()
	p := DefaultPolicy()
	l := New(NewMemoryStore(0), p, WithClock(clock.Now))

	require.Equal(t, 1, allowN(t, l, "u1", 1))

	// the remaining tokens just before the step, then one step just after it
	clock.Advance(p.Interval - time.Minute)
	assert.Equal(t, p.Capacity-1, allowN(t, l, "u1", p.Capacity))
	clock.Advance(2 * time.Minute)
	assert.Equal(t, p.Refill, allowN(t, l, "u1", p.Capacity))

	// no more than Capacity+Refill across the boundary, and nothing until the next step
	clock.Advance(p.Interval - 2*time.Minute)
	assert.Zero(t, allowN(t, l, "u1", 1))
}

func TestLimiter_NoAccrualWithinAnInterval(t *testing.T) {
	clock := newFakeClock()
	p := DefaultPolicy()
	l := New(NewMemoryStore(0), p, WithClock(clock.Now))

	for i := 0; i < p.Capacity; i++ {
		require.Equal(t, 1, allowN(t, l, "u1", 1))
		clock.Advance(time.Hour)
	}
	// half an interval of partial credit is not a token
	assert.Zero(t, allowN(t, l, "u1", 1))
}

func TestLimiter_RefillCapsAtCapacity(t *testing.T) {
	clock := newFakeClock()
	p := Policy{Capacity: 5, Refill: 2, Interval: time.Hour}
	l := New(NewMemoryStore(0), p, WithClock(clock.Now))

	assert.Equal(t, 5, allowN(t, l, "u1", 5))
	clock.Advance(10 * time.Hour)
	assert.Equal(t, 5, allowN(t, l, "u1", 8))
}

func TestLimiter_DeniedCallsConsumeNothing(t *testing.T) {
	clock := newFakeClock()
	p := Policy{Capacity: 1, Refill: 1, Interval: time.Hour}
	l := New(NewMemoryStore(0), p, WithClock(clock.Now))

	assert.Equal(t, 1, allowN(t, l, "u1", 10))
	clock.Advance(time.Hour)
	assert.Equal(t, 1, allowN(t, l, "u1", 1))
}

func TestLimiter_BucketsArePerUser(t *testing.T) {
	p := Policy{Capacity: 2, Refill: 1, Interval: time.Hour}
	l := New(NewMemoryStore(0), p)

	assert.Equal(t, 2, allowN(t, l, "alice", 5))
	assert.Equal(t, 2, allowN(t, l, "bob", 5))
}

func TestLimiter_InvalidPolicyFallsBackToDefault(t *testing.T) {
	l := New(NewMemoryStore(0), Policy{})
	assert.Equal(t, DefaultPolicy(), l.Policy())
}

func TestLimiter_ConcurrentCallersShareOneBucket(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			p := Policy{Capacity: 12, Refill: 4, Interval: 24 * time.Hour}
			l := New(store, p, WithKeyPrefix("test:"+t.Name()+":"))

			var allowed atomic.Int64
			var wg sync.WaitGroup
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					d, err := l.Allow(context.Background(), "shared")
					if err == nil && d.Allowed {
						allowed.Add(1)
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, int64(p.Capacity), allowed.Load())
		})
	}
}

func TestPolicy_FullAfter(t *testing.T) {
	assert.Equal(t, 72*time.Hour, DefaultPolicy().fullAfter())
	assert.Equal(t, 2*time.Hour, Policy{Capacity: 3, Refill: 2, Interval: time.Hour}.fullAfter())
}

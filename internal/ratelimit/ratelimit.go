// Package ratelimit bounds interview creations per user with a token bucket whose
// state lives behind a Store, so several API processes can share one bucket.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// Policy is the bucket shape: Capacity tokens, refilled by Refill tokens every
// whole Interval.
//
// Steps are anchored on the bucket's Last step, not on the first call after a
// drain, and nothing accrues between steps. So fewer than Capacity+1 calls are
// ever allowed within one Interval of a drain, but a burst straddling a step
// boundary can see up to Capacity+Refill allowed calls in a short window.
type Policy struct {
	Capacity int
	Refill   int
	Interval time.Duration
}

func DefaultPolicy() Policy {
	return Policy{Capacity: 12, Refill: 4, Interval: 24 * time.Hour}
}

func (p Policy) valid() bool {
	return p.Capacity > 0 && p.Refill > 0 && p.Interval > 0
}

// fullAfter is how long an untouched bucket takes to refill completely; after
// that a missing bucket and a stored one are indistinguishable.
func (p Policy) fullAfter() time.Duration {
	steps := (p.Capacity + p.Refill - 1) / p.Refill
	return time.Duration(steps) * p.Interval
}

// Bucket is the persisted per-user state.
type Bucket struct {
	Tokens int       `json:"tokens"`
	Last   time.Time `json:"last"`
}

// refill credits Refill tokens for each whole Interval since Last, capped at Capacity.
func (p Policy) refill(b *Bucket, found bool, now time.Time) {
	if !found {
		b.Tokens = p.Capacity
		b.Last = now
		return
	}
	elapsed := now.Sub(b.Last)
	if elapsed < p.Interval {
		return
	}
	steps := int64(elapsed / p.Interval)
	b.Last = b.Last.Add(time.Duration(steps) * p.Interval)
	if added := steps * int64(p.Refill); int64(b.Tokens)+added >= int64(p.Capacity) {
		b.Tokens = p.Capacity
	} else {
		b.Tokens += int(added)
	}
}

// Store performs an atomic read-modify-write of one bucket. fn may run more than
// once if the store retries on a write conflict; only the last run is persisted.
type Store interface {
	Update(ctx context.Context, key string, ttl time.Duration, fn func(b *Bucket, found bool)) error
}

var ErrTooManyConflicts = errors.New("ratelimit: too many concurrent updates")

type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

type Limiter struct {
	store  Store
	policy Policy
	prefix string
	now    func() time.Time
}

type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithKeyPrefix namespaces bucket keys in a shared store.
func WithKeyPrefix(prefix string) Option {
	return func(l *Limiter) { l.prefix = prefix }
}

func New(store Store, policy Policy, opts ...Option) *Limiter {
	if !policy.valid() {
		policy = DefaultPolicy()
	}
	l := &Limiter{
		store:  store,
		policy: policy,
		prefix: "ratelimit:interview:",
		now:    time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *Limiter) Policy() Policy { return l.policy }

// Allow takes one token from userID's bucket. A denial takes nothing and is not an error.
func (l *Limiter) Allow(ctx context.Context, userID string) (Decision, error) {
	if userID == "" {
		userID = "anonymous"
	}
	now := l.now()

	var d Decision
	err := l.store.Update(ctx, l.prefix+userID, l.policy.fullAfter(), func(b *Bucket, found bool) {
		l.policy.refill(b, found, now)
		if b.Tokens >= 1 {
			b.Tokens--
			d = Decision{Allowed: true, Remaining: b.Tokens}
			return
		}
		retry := b.Last.Add(l.policy.Interval).Sub(now)
		if retry < time.Second {
			retry = time.Second
		}
		d = Decision{Allowed: false, Remaining: 0, RetryAfter: retry}
	})
	if err != nil {
		return Decision{}, err
	}
	return d, nil
}

package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps buckets in process. It is only correct when a single API
// process serves every request for a user.
type MemoryStore struct {
	mu         sync.Mutex
	m          map[string]memoryEntry
	maxEntries int
	now        func() time.Time
}

type memoryEntry struct {
	bucket  Bucket
	expires time.Time
}

func NewMemoryStore(maxEntries int) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = 10_000
	}
	return &MemoryStore{
		m:          make(map[string]memoryEntry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (s *MemoryStore) Update(_ context.Context, key string, ttl time.Duration, fn func(b *Bucket, found bool)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, found := s.m[key]
	if found && ttl > 0 && now.After(e.expires) {
		found = false
		e = memoryEntry{}
	}
	if !found && len(s.m) >= s.maxEntries {
		s.gcLocked(now)
	}

	fn(&e.bucket, found)
	e.expires = now.Add(ttl)
	s.m[key] = e
	return nil
}

func (s *MemoryStore) gcLocked(now time.Time) {
	for k, v := range s.m {
		if now.After(v.expires) {
			delete(s.m, k)
		}
	}
	// Still full: drop one arbitrary entry; a dropped bucket just starts full again.
	if len(s.m) >= s.maxEntries {
		for k := range s.m {
			delete(s.m, k)
			break
		}
	}
}

package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares buckets across API processes using optimistic WATCH/MULTI
// transactions.
type RedisStore struct {
	rdb        *redis.Client
	maxRetries int
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb, maxRetries: 32}
}

func (s *RedisStore) Update(ctx context.Context, key string, ttl time.Duration, fn func(b *Bucket, found bool)) error {
	txf := func(tx *redis.Tx) error {
		var b Bucket
		found := false

		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			// corrupt value: treat as a fresh bucket
			found = json.Unmarshal(raw, &b) == nil
		}

		fn(&b, found)

		data, err := json.Marshal(b)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, data, ttl)
			return nil
		})
		return err
	}

	for i := 0; i < s.maxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrTooManyConflicts
}

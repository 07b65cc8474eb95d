package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStore persists buckets in an embedded badger database, for single-node
// deployments that must keep limits across restarts.
type BadgerStore struct {
	db         *badger.DB
	maxRetries int
}

func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db, maxRetries: 64}
}

func (s *BadgerStore) Update(ctx context.Context, key string, ttl time.Duration, fn func(b *Bucket, found bool)) error {
	for i := 0; i < s.maxRetries; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.Update(func(txn *badger.Txn) error {
			var b Bucket
			found := false

			item, err := txn.Get([]byte(key))
			switch {
			case errors.Is(err, badger.ErrKeyNotFound):
			case err != nil:
				return err
			default:
				err = item.Value(func(val []byte) error {
					return json.Unmarshal(val, &b)
				})
				if err != nil {
					return err
				}
				found = true
			}

			fn(&b, found)

			data, err := json.Marshal(b)
			if err != nil {
				return err
			}
			e := badger.NewEntry([]byte(key), data)
			if ttl > 0 {
				e = e.WithTTL(ttl)
			}
			return txn.SetEntry(e)
		})
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		return err
	}
	return ErrTooManyConflicts
}

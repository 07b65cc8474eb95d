package config

import (
	"github.com/dgraph-io/badger/v4"
)

// OpenBadger opens the embedded rate-limit store. An empty path keeps it in memory.
func OpenBadger(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	return badger.Open(opts)
}

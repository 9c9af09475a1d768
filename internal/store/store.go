package store

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// Open initializes the embedded key-value store at dir.
func Open(dir string) (*badger.DB, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return db, nil
}

// OpenInMemory initializes a volatile store, used by tests.
func OpenInMemory() (*badger.DB, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	return badger.Open(opts)
}

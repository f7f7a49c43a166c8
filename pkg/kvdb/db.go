// Copyright 2025 Certen Protocol
//
// KV Store Backends
// Wraps CometBFT's dbm.DB so the rollup services use one durable
// key-value contract for app metadata, merkle nodes and the Nexus state.

package kvdb

import (
	"fmt"

	dbm "github.com/cometbft/cometbft-db"
)

// Store is the key-value contract used across the node and Nexus.
// Implementations must treat a nil result from Get as "not present".
type Store interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	NewBatch() Batch
}

// Batch accumulates writes that are applied atomically by Write.
type Batch interface {
	Set(key, value []byte) error
	Delete(key []byte) error
	Write() error
	Close() error
}

// CometStore adapts a CometBFT dbm.DB to the Store interface.
type CometStore struct {
	db dbm.DB
}

// NewCometStore wraps an already-open dbm.DB.
func NewCometStore(db dbm.DB) *CometStore {
	return &CometStore{db: db}
}

// OpenGoLevelDB opens (creating if missing) a goleveldb-backed store under dir.
func OpenGoLevelDB(name, dir string) (*CometStore, error) {
	db, err := dbm.NewGoLevelDB(name, dir)
	if err != nil {
		return nil, fmt.Errorf("open goleveldb %q: %w", name, err)
	}
	return &CometStore{db: db}, nil
}

// NewMemStore returns an in-memory store, used in tests and local dev mode.
func NewMemStore() *CometStore {
	return &CometStore{db: dbm.NewMemDB()}
}

// Get implements Store.Get. A missing key returns (nil, nil).
func (s *CometStore) Get(key []byte) ([]byte, error) {
	return s.db.Get(key)
}

// Set implements Store.Set with a durable write.
func (s *CometStore) Set(key, value []byte) error {
	return s.db.SetSync(key, value)
}

// Delete implements Store.Delete. Deleting an absent key is not an error.
func (s *CometStore) Delete(key []byte) error {
	return s.db.DeleteSync(key)
}

// NewBatch returns a write batch applied atomically on Write.
func (s *CometStore) NewBatch() Batch {
	return &cometBatch{b: s.db.NewBatch()}
}

// Iterate walks all keys with the given prefix in ascending order,
// invoking fn for each entry. Iteration stops when fn returns false.
func (s *CometStore) Iterate(prefix []byte, fn func(key, value []byte) bool) error {
	end := prefixEnd(prefix)
	it, err := s.db.Iterator(prefix, end)
	if err != nil {
		return fmt.Errorf("iterator: %w", err)
	}
	defer it.Close()

	for ; it.Valid(); it.Next() {
		if !fn(it.Key(), it.Value()) {
			break
		}
	}
	return it.Error()
}

// Close releases the underlying database handle.
func (s *CometStore) Close() error {
	return s.db.Close()
}

type cometBatch struct {
	b dbm.Batch
}

func (c *cometBatch) Set(key, value []byte) error { return c.b.Set(key, value) }
func (c *cometBatch) Delete(key []byte) error     { return c.b.Delete(key) }
func (c *cometBatch) Write() error                { return c.b.WriteSync() }
func (c *cometBatch) Close() error                { return c.b.Close() }

// prefixEnd returns the smallest key greater than every key with the prefix,
// or nil when the prefix is empty or saturated.
func prefixEnd(prefix []byte) []byte {
	if len(prefix) == 0 {
		return nil
	}
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

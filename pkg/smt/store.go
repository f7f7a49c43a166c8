// Copyright 2025 Certen Protocol
//
// MerkleStore - two-layer key/value store backing the sparse Merkle tree
// A durable backing store with an in-memory overlay cache. All tree writes
// land in the cache; Commit applies them to the backing store, ClearCache
// discards them. Empty cache values are tombstones.

package smt

import (
	"fmt"
	"sync"

	"github.com/certen/zkrollup-nexus/pkg/kvdb"
)

// MerkleStore layers an uncommitted write cache over a backing Store.
//
// The cache is the only thing that changes between Commit and ClearCache,
// so the committed view of the tree stays readable while a batch is being
// built on top of it.
type MerkleStore struct {
	mu      sync.Mutex
	backing kvdb.Store
	cache   map[string][]byte
}

// NewMerkleStore creates a MerkleStore over the given backing store.
func NewMerkleStore(backing kvdb.Store) *MerkleStore {
	return &MerkleStore{
		backing: backing,
		cache:   make(map[string][]byte),
	}
}

// Get reads a key. With committed=true only the backing store is consulted.
// Otherwise the cache is read first: a tombstone yields (nil, nil), a miss
// falls through to the backing store.
func (s *MerkleStore) Get(key []byte, committed bool) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !committed {
		if v, ok := s.cache[string(key)]; ok {
			if len(v) == 0 {
				return nil, nil
			}
			return v, nil
		}
	}

	v, err := s.backing.Get(key)
	if err != nil {
		return nil, fmt.Errorf("merkle store get: %w", err)
	}
	if len(v) == 0 {
		return nil, nil
	}
	return v, nil
}

// Put writes a value into the cache. The value must be non-empty; an empty
// value would be indistinguishable from a tombstone.
func (s *MerkleStore) Put(key, value []byte) error {
	if len(value) == 0 {
		return fmt.Errorf("merkle store put: empty value for key %x", key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make([]byte, len(value))
	copy(cp, value)
	s.cache[string(key)] = cp
	return nil
}

// Delete records a tombstone for the key in the cache.
func (s *MerkleStore) Delete(key []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache[string(key)] = nil
}

// Commit applies every cache entry to the backing store through a single
// write batch, then clears the cache. If the batch write fails the backing
// store may be partially modified; callers must treat that as fatal and
// restart from the last persisted batch header.
func (s *MerkleStore) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.backing.NewBatch()
	defer batch.Close()

	for key, value := range s.cache {
		if len(value) == 0 {
			if err := batch.Delete([]byte(key)); err != nil {
				return fmt.Errorf("merkle store commit delete: %w", err)
			}
			continue
		}
		if err := batch.Set([]byte(key), value); err != nil {
			return fmt.Errorf("merkle store commit set: %w", err)
		}
	}

	if err := batch.Write(); err != nil {
		return fmt.Errorf("merkle store commit write: %w", err)
	}

	s.cache = make(map[string][]byte)
	return nil
}

// ClearCache drops every uncommitted write, restoring the committed view.
func (s *MerkleStore) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache = make(map[string][]byte)
}

// CacheLen reports the number of uncommitted entries, tombstones included.
func (s *MerkleStore) CacheLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.cache)
}

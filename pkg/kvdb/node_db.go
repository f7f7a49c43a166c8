// Copyright 2025 Certen Protocol
//
// NodeDB - typed convenience wrapper over the raw Store
// App nodes and Nexus persist their metadata (batch headers, transaction
// records, aggregation pointers) as JSON values under opaque byte keys.

package kvdb

import (
	"encoding/json"
	"fmt"
)

// NodeDB provides JSON-valued access to a Store.
//
// CONCURRENCY: NodeDB itself is as safe as the underlying Store. The build
// loop is the single writer for app-node metadata; Nexus serializes writes
// behind its own mutex.
type NodeDB struct {
	store Store
}

// NewNodeDB wraps a Store.
func NewNodeDB(store Store) *NodeDB {
	return &NodeDB{store: store}
}

// Store exposes the raw store, for write batches spanning typed and raw keys.
func (n *NodeDB) Store() Store {
	return n.store
}

// GetRaw returns the raw bytes for a key, nil if absent.
func (n *NodeDB) GetRaw(key []byte) ([]byte, error) {
	return n.store.Get(key)
}

// PutRaw writes raw bytes under a key.
func (n *NodeDB) PutRaw(key, value []byte) error {
	return n.store.Set(key, value)
}

// Delete removes a key. Absent keys are ignored.
func (n *NodeDB) Delete(key []byte) error {
	return n.store.Delete(key)
}

// Get unmarshals the JSON value stored under key into out.
// Returns (false, nil) when the key is not present.
func Get[V any](n *NodeDB, key []byte) (V, bool, error) {
	var out V
	b, err := n.store.Get(key)
	if err != nil {
		return out, false, fmt.Errorf("kvdb get: %w", err)
	}
	if len(b) == 0 {
		return out, false, nil
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, false, fmt.Errorf("kvdb decode %x: %w", key, err)
	}
	return out, true, nil
}

// Put marshals value as JSON and stores it under key.
func Put[V any](n *NodeDB, key []byte, value V) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("kvdb encode %x: %w", key, err)
	}
	return n.store.Set(key, b)
}

// BatchPut adds a JSON-encoded value to a write batch.
func BatchPut[V any](b Batch, key []byte, value V) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("kvdb encode %x: %w", key, err)
	}
	return b.Set(key, raw)
}

// Copyright 2025 Certen Protocol
//
// MerkleStore Tests

package smt

import (
	"bytes"
	"testing"

	"github.com/certen/zkrollup-nexus/pkg/kvdb"
)

func TestStore_CacheReadThrough(t *testing.T) {
	backing := kvdb.NewMemStore()
	store := NewMerkleStore(backing)

	if err := backing.Set([]byte("a"), []byte("committed")); err != nil {
		t.Fatalf("seed backing: %v", err)
	}

	// Uncommitted read falls through to backing.
	v, err := store.Get([]byte("a"), false)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(v, []byte("committed")) {
		t.Errorf("read-through mismatch: got %q", v)
	}

	// A cached write shadows the backing value.
	if err := store.Put([]byte("a"), []byte("cached")); err != nil {
		t.Fatalf("put: %v", err)
	}
	v, _ = store.Get([]byte("a"), false)
	if !bytes.Equal(v, []byte("cached")) {
		t.Errorf("cache shadow mismatch: got %q", v)
	}

	// The committed view is unaffected.
	v, _ = store.Get([]byte("a"), true)
	if !bytes.Equal(v, []byte("committed")) {
		t.Errorf("committed view changed: got %q", v)
	}
}

func TestStore_TombstoneHidesBackingValue(t *testing.T) {
	backing := kvdb.NewMemStore()
	store := NewMerkleStore(backing)

	if err := backing.Set([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("seed backing: %v", err)
	}

	store.Delete([]byte("k"))

	v, err := store.Get([]byte("k"), false)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if v != nil {
		t.Errorf("tombstoned key visible: got %q", v)
	}

	// Committed view still sees it until commit.
	v, _ = store.Get([]byte("k"), true)
	if !bytes.Equal(v, []byte("v")) {
		t.Errorf("committed view lost value before commit")
	}
}

func TestStore_CommitEquivalence(t *testing.T) {
	// put/delete then commit must equal applying the ops directly.
	backing := kvdb.NewMemStore()
	store := NewMerkleStore(backing)

	if err := backing.Set([]byte("old"), []byte("1")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := store.Put([]byte("new"), []byte("2")); err != nil {
		t.Fatalf("put: %v", err)
	}
	store.Delete([]byte("old"))

	if err := store.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if store.CacheLen() != 0 {
		t.Errorf("cache not cleared after commit: %d entries", store.CacheLen())
	}

	v, _ := backing.Get([]byte("new"))
	if !bytes.Equal(v, []byte("2")) {
		t.Errorf("committed put missing")
	}
	v, _ = backing.Get([]byte("old"))
	if len(v) != 0 {
		t.Errorf("committed delete did not remove key: %q", v)
	}
}

func TestStore_ClearCacheRestoresPreCacheView(t *testing.T) {
	backing := kvdb.NewMemStore()
	store := NewMerkleStore(backing)

	if err := backing.Set([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := store.Put([]byte("k"), []byte("shadow")); err != nil {
		t.Fatalf("put: %v", err)
	}
	store.Delete([]byte("k2"))
	store.ClearCache()

	v, _ := store.Get([]byte("k"), false)
	if !bytes.Equal(v, []byte("v")) {
		t.Errorf("clear_cache did not restore pre-cache view: got %q", v)
	}
}

func TestStore_EmptyValuePutRejected(t *testing.T) {
	store := NewMerkleStore(kvdb.NewMemStore())
	if err := store.Put([]byte("k"), nil); err == nil {
		t.Errorf("empty put accepted; would be indistinguishable from a tombstone")
	}
}

// Copyright 2025 Certen Protocol
//
// Sparse Merkle Tree
// Fixed-depth (256) SHA-256 tree over a MerkleStore. Absent leaves hash to
// zero and all-zero subtrees collapse to the zero hash, so the empty tree
// root is the zero hash and non-inclusion is provable with the same sibling
// paths as inclusion.

package smt

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// TreeDepth is the number of levels between a leaf and the root.
const TreeDepth = 256

var (
	// ZeroHash is the hash of an absent leaf and of any all-zero subtree.
	ZeroHash = common.Hash{}

	rootKey = []byte("smt:root")
)

// Tree is a sparse Merkle tree of depth 256 keyed by 32-byte keys.
//
// The tree stores one hash per populated node per level plus the raw leaf
// value bytes; everything goes through the MerkleStore cache, so the tree
// inherits its commit/revert discipline.
type Tree struct {
	store *MerkleStore
	root  common.Hash
}

// NewTree opens a tree at the given root. The backing store must already
// contain the nodes reaching that root: a non-zero root that does not match
// the committed root recorded in the store is rejected.
func NewTree(store *MerkleStore, root common.Hash) (*Tree, error) {
	stored, err := committedRoot(store)
	if err != nil {
		return nil, err
	}
	if stored != root {
		return nil, fmt.Errorf("smt: store is at root %x, requested %x", stored, root)
	}
	return &Tree{store: store, root: root}, nil
}

// NewTreeFromStore opens a tree at whatever root the committed store holds.
// Used by revert: the cache has been cleared, the committed root is truth.
func NewTreeFromStore(store *MerkleStore) (*Tree, error) {
	root, err := committedRoot(store)
	if err != nil {
		return nil, err
	}
	return &Tree{store: store, root: root}, nil
}

func committedRoot(store *MerkleStore) (common.Hash, error) {
	raw, err := store.Get(rootKey, true)
	if err != nil {
		return common.Hash{}, fmt.Errorf("smt: read committed root: %w", err)
	}
	if raw == nil {
		return common.Hash{}, nil
	}
	if len(raw) != common.HashLength {
		return common.Hash{}, fmt.Errorf("smt: malformed stored root (%d bytes)", len(raw))
	}
	return common.BytesToHash(raw), nil
}

// Root returns the current (possibly uncommitted) root.
func (t *Tree) Root() common.Hash {
	return t.root
}

// Update sets the leaf at key to the given encoded value with the given
// hash, then recomputes the path to the root. A zero valueHash removes the
// leaf. All writes go to the store cache.
func (t *Tree) Update(key common.Hash, value []byte, valueHash common.Hash) error {
	if valueHash == ZeroHash {
		t.store.Delete(leafValueKey(key))
	} else {
		if err := t.store.Put(leafValueKey(key), value); err != nil {
			return err
		}
	}

	cur := valueHash
	for h := 0; h < TreeDepth; h++ {
		prefix := prefixAt(key, h)
		if err := t.setNode(h, prefix, cur); err != nil {
			return err
		}

		sibling, err := t.getNode(h, siblingPrefix(prefix, h))
		if err != nil {
			return err
		}
		if branchRight(key, h) {
			cur = mergeHash(sibling, cur)
		} else {
			cur = mergeHash(cur, sibling)
		}
	}

	t.root = cur
	if err := t.store.Put(rootKey, cur[:]); err != nil {
		return err
	}
	return nil
}

// GetValue returns the encoded leaf value at key, nil if the leaf is absent.
// With committed=true the uncommitted cache is bypassed.
func (t *Tree) GetValue(key common.Hash, committed bool) ([]byte, error) {
	return t.store.Get(leafValueKey(key), committed)
}

// LeafHash returns the stored hash of the leaf at key, zero if absent.
func (t *Tree) LeafHash(key common.Hash) (common.Hash, error) {
	return t.getNode(0, key)
}

// Prove produces a multi-key proof witnessing the current value hashes of
// the given keys against the current root. Works for absent keys too: the
// resulting proof verifies the zero hash at that key.
func (t *Tree) Prove(keys []common.Hash) (Proof, error) {
	items := make([]ProofItem, len(keys))
	for i, key := range keys {
		item := ProofItem{Key: key}
		for h := 0; h < TreeDepth; h++ {
			sibling, err := t.getNode(h, siblingPrefix(prefixAt(key, h), h))
			if err != nil {
				return Proof{}, err
			}
			if sibling != ZeroHash {
				setBitmapBit(&item.Bitmap, h)
				item.Siblings = append(item.Siblings, sibling)
			}
		}
		items[i] = item
	}
	return Proof{Items: items}, nil
}

// setNode stores (or clears, when zero) the node hash at the given level.
func (t *Tree) setNode(height int, prefix common.Hash, hash common.Hash) error {
	key := nodeStorageKey(height, prefix)
	if hash == ZeroHash {
		t.store.Delete(key)
		return nil
	}
	return t.store.Put(key, hash[:])
}

// getNode reads a node hash, zero when absent.
func (t *Tree) getNode(height int, prefix common.Hash) (common.Hash, error) {
	raw, err := t.store.Get(nodeStorageKey(height, prefix), false)
	if err != nil {
		return common.Hash{}, err
	}
	if raw == nil {
		return ZeroHash, nil
	}
	if len(raw) != common.HashLength {
		return common.Hash{}, fmt.Errorf("smt: malformed node hash (%d bytes)", len(raw))
	}
	return common.BytesToHash(raw), nil
}

// mergeHash combines two child hashes. Two zero children collapse to zero,
// which is what makes absence provable through a mostly-empty tree.
func mergeHash(left, right common.Hash) common.Hash {
	if left == ZeroHash && right == ZeroHash {
		return ZeroHash
	}
	h := sha256.New()
	h.Write(left[:])
	h.Write(right[:])
	return common.BytesToHash(h.Sum(nil))
}

// branchRight reports whether the node at the given level sits in the right
// slot of its parent. Level 0 is the leaf level; the deciding bit walks from
// the least significant end of the key upwards.
func branchRight(key common.Hash, height int) bool {
	return bitAt(key, TreeDepth-1-height)
}

// bitAt returns bit i of the key, i=0 being the most significant bit.
func bitAt(key common.Hash, i int) bool {
	return key[i/8]&(1<<(7-uint(i)%8)) != 0
}

// prefixAt returns the key with its low `height` bits zeroed: the storage
// prefix identifying the ancestor node of the key at that level.
func prefixAt(key common.Hash, height int) common.Hash {
	p := key
	for i := 0; i < height; i++ {
		bit := TreeDepth - 1 - i
		p[bit/8] &^= 1 << (7 - uint(bit)%8)
	}
	return p
}

// siblingPrefix flips the deciding bit of a node prefix at the given level.
func siblingPrefix(prefix common.Hash, height int) common.Hash {
	s := prefix
	bit := TreeDepth - 1 - height
	s[bit/8] ^= 1 << (7 - uint(bit)%8)
	return s
}

func nodeStorageKey(height int, prefix common.Hash) []byte {
	key := make([]byte, 0, 2+common.HashLength)
	key = append(key, 'n', byte(height))
	key = append(key, prefix[:]...)
	return key
}

func leafValueKey(key common.Hash) []byte {
	k := make([]byte, 0, 2+common.HashLength)
	k = append(k, 'v', ':')
	k = append(k, key[:]...)
	return k
}

// LeafValuePrefix is the storage prefix under which encoded leaf values
// live; index rebuilds iterate it.
func LeafValuePrefix() []byte {
	return []byte{'v', ':'}
}

// LeafKeyFromStorageKey recovers the tree key from a leaf storage key.
func LeafKeyFromStorageKey(storageKey []byte) (common.Hash, bool) {
	if len(storageKey) != 2+common.HashLength || !bytes.HasPrefix(storageKey, LeafValuePrefix()) {
		return common.Hash{}, false
	}
	return common.BytesToHash(storageKey[2:]), true
}

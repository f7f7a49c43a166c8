// Copyright 2025 Certen Protocol
//
// VmState - typed sparse Merkle state
// Generic wrapper tying a leaf type to the sparse Merkle tree. update_set
// produces the pre/post proofs the prover needs; commit and revert delegate
// to the MerkleStore cache.

package state

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/certen/zkrollup-nexus/pkg/kvdb"
	"github.com/certen/zkrollup-nexus/pkg/smt"
	"github.com/certen/zkrollup-nexus/pkg/types"
)

// Leaf is implemented by every state leaf type. A leaf whose StateHash is
// zero is treated as absent by the tree.
type Leaf interface {
	StateKey() common.Hash
	StateHash() common.Hash
	EncodeLeaf() []byte
}

// VmState is a sparse Merkle tree over typed leaves.
type VmState[L Leaf] struct {
	store  *smt.MerkleStore
	tree   *smt.Tree
	decode func([]byte) (L, error)
}

// New opens the state at the given root. The backing store must hold the
// nodes reaching that root; a fresh store opens only at the zero root.
func New[L Leaf](backing kvdb.Store, root common.Hash, decode func([]byte) (L, error)) (*VmState[L], error) {
	store := smt.NewMerkleStore(backing)
	tree, err := smt.NewTree(store, root)
	if err != nil {
		return nil, err
	}
	return &VmState[L]{store: store, tree: tree, decode: decode}, nil
}

// Root returns the current (possibly uncommitted) state root.
func (v *VmState[L]) Root() common.Hash {
	return v.tree.Root()
}

// UpdateSet atomically applies a set of leaves and returns the state update
// witnessing the touched keys at both the pre and the post root. Nothing is
// committed; the changes live in the store cache until Commit.
func (v *VmState[L]) UpdateSet(set []L) (types.StateUpdate, error) {
	keys := make([]common.Hash, len(set))
	for i, leaf := range set {
		keys[i] = leaf.StateKey()
	}

	preRoot := v.tree.Root()
	preProof, err := v.tree.Prove(keys)
	if err != nil {
		return types.StateUpdate{}, fmt.Errorf("pre-state proof: %w", err)
	}

	prePairs := make([]types.StatePair, len(set))
	for i, key := range keys {
		raw, err := v.tree.GetValue(key, false)
		if err != nil {
			return types.StateUpdate{}, fmt.Errorf("pre-state read: %w", err)
		}
		prePairs[i] = types.StatePair{Key: key, Value: raw}
	}

	for _, leaf := range set {
		if err := v.tree.Update(leaf.StateKey(), leaf.EncodeLeaf(), leaf.StateHash()); err != nil {
			return types.StateUpdate{}, fmt.Errorf("tree update: %w", err)
		}
	}

	postRoot := v.tree.Root()
	postProof, err := v.tree.Prove(keys)
	if err != nil {
		return types.StateUpdate{}, fmt.Errorf("post-state proof: %w", err)
	}

	postPairs := make([]types.StatePair, len(set))
	for i, leaf := range set {
		postPairs[i] = types.StatePair{Key: keys[i], Value: leaf.EncodeLeaf()}
	}

	return types.StateUpdate{
		PreStateRoot:  preRoot,
		PostStateRoot: postRoot,
		PrePairs:      prePairs,
		PreProof:      preProof,
		PostPairs:     postPairs,
		PostProof:     postProof,
	}, nil
}

// Get returns the leaf at key. The second return is false when the leaf is
// absent (zero), in which case the zero value of L is returned. With
// committed=true the uncommitted cache is bypassed.
func (v *VmState[L]) Get(key common.Hash, committed bool) (L, bool, error) {
	var zero L
	raw, err := v.tree.GetValue(key, committed)
	if err != nil {
		return zero, false, err
	}
	if raw == nil {
		return zero, false, nil
	}
	leaf, err := v.decode(raw)
	if err != nil {
		return zero, false, fmt.Errorf("decode leaf %x: %w", key, err)
	}
	return leaf, true, nil
}

// GetWithProof returns the leaf (possibly uncommitted) together with a
// proof against the current root. For an absent key the proof witnesses
// the zero hash.
func (v *VmState[L]) GetWithProof(key common.Hash) (L, bool, smt.Proof, error) {
	leaf, ok, err := v.Get(key, false)
	if err != nil {
		return leaf, false, smt.Proof{}, err
	}
	proof, err := v.tree.Prove([]common.Hash{key})
	if err != nil {
		return leaf, false, smt.Proof{}, err
	}
	return leaf, ok, proof, nil
}

// GetRaw returns the encoded leaf bytes, nil when absent.
func (v *VmState[L]) GetRaw(key common.Hash, committed bool) ([]byte, error) {
	return v.tree.GetValue(key, committed)
}

// Commit makes every cached write durable. After a successful commit the
// backing store matches the in-memory root exactly.
func (v *VmState[L]) Commit() error {
	return v.store.Commit()
}

// Revert drops all uncommitted writes and reopens the tree at the last
// committed root, which it returns.
func (v *VmState[L]) Revert() (common.Hash, error) {
	v.store.ClearCache()
	tree, err := smt.NewTreeFromStore(v.store)
	if err != nil {
		return common.Hash{}, fmt.Errorf("could not rebuild tree from committed state: %w", err)
	}
	v.tree = tree
	return tree.Root(), nil
}

// Store exposes the underlying MerkleStore.
func (v *VmState[L]) Store() *smt.MerkleStore {
	return v.store
}

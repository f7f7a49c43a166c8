// Copyright 2025 Certen Protocol
//
// Binary Merkle Tree for Batch Commitments
//
// This implementation provides:
// - Binary Merkle tree construction from transaction/receipt hashes
// - The transactions_root and receipts_root committed in batch headers
// - Inclusion proof generation for any leaf
// - Verification of inclusion proofs

package merkle

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Common errors
var (
	ErrEmptyTree    = errors.New("cannot build tree from empty leaves")
	ErrLeafNotFound = errors.New("leaf not found in tree")
)

// ProofNode represents a single node in a Merkle inclusion proof.
type ProofNode struct {
	Hash  common.Hash `json:"hash"`
	Right bool        `json:"right"` // true: sibling is on the right
}

// InclusionProof proves that a leaf exists in a tree with a given root.
type InclusionProof struct {
	LeafHash  common.Hash `json:"leaf_hash"`
	LeafIndex int         `json:"leaf_index"`
	Root      common.Hash `json:"root"`
	Path      []ProofNode `json:"path"`
	TreeSize  int         `json:"tree_size"`
}

// Tree is a binary Merkle tree over 32-byte leaf hashes.
type Tree struct {
	leaves []common.Hash
	levels [][]common.Hash
	root   common.Hash
}

// Root computes the Merkle root over a list of leaf hashes without keeping
// the tree around. An empty list yields the zero hash; this is what batch
// headers commit to as transactions_root and receipts_root.
func Root(leaves []common.Hash) common.Hash {
	if len(leaves) == 0 {
		return common.Hash{}
	}
	t, _ := BuildTree(leaves)
	return t.RootHash()
}

// BuildTree constructs a Merkle tree from the given leaf hashes.
func BuildTree(leaves []common.Hash) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyTree
	}

	tree := &Tree{leaves: append([]common.Hash(nil), leaves...)}
	tree.build()
	return tree, nil
}

// build constructs the tree level by level. An odd node at the end of a
// level is paired with itself.
func (t *Tree) build() {
	current := append([]common.Hash(nil), t.leaves...)
	t.levels = append(t.levels, current)

	for len(current) > 1 {
		next := make([]common.Hash, 0, (len(current)+1)/2)
		for i := 0; i < len(current); i += 2 {
			if i+1 < len(current) {
				next = append(next, hashPair(current[i], current[i+1]))
			} else {
				next = append(next, hashPair(current[i], current[i]))
			}
		}
		t.levels = append(t.levels, next)
		current = next
	}

	t.root = current[0]
}

// hashPair combines two 32-byte hashes with SHA256(left || right).
func hashPair(left, right common.Hash) common.Hash {
	h := sha256.New()
	h.Write(left[:])
	h.Write(right[:])
	return common.BytesToHash(h.Sum(nil))
}

// RootHash returns the Merkle root.
func (t *Tree) RootHash() common.Hash {
	return t.root
}

// LeafCount returns the number of leaves in the tree.
func (t *Tree) LeafCount() int {
	return len(t.leaves)
}

// GenerateProof generates an inclusion proof for the leaf at the given index.
func (t *Tree) GenerateProof(leafIndex int) (*InclusionProof, error) {
	if leafIndex < 0 || leafIndex >= len(t.leaves) {
		return nil, fmt.Errorf("leaf index %d out of range [0, %d)", leafIndex, len(t.leaves))
	}

	proof := &InclusionProof{
		LeafHash:  t.leaves[leafIndex],
		LeafIndex: leafIndex,
		Root:      t.root,
		TreeSize:  len(t.leaves),
	}

	// Walk up the tree, collecting sibling hashes.
	index := leafIndex
	for level := 0; level < len(t.levels)-1; level++ {
		nodes := t.levels[level]

		var sibling int
		right := index%2 == 0
		if right {
			sibling = index + 1
		} else {
			sibling = index - 1
		}

		// Odd-length level: the node is paired with itself.
		if sibling >= len(nodes) {
			sibling = index
			right = true
		}

		proof.Path = append(proof.Path, ProofNode{Hash: nodes[sibling], Right: right})
		index /= 2
	}

	return proof, nil
}

// GenerateProofByHash generates an inclusion proof for a leaf by its hash.
func (t *Tree) GenerateProofByHash(leafHash common.Hash) (*InclusionProof, error) {
	for i, leaf := range t.leaves {
		if leaf == leafHash {
			return t.GenerateProof(i)
		}
	}
	return nil, ErrLeafNotFound
}

// VerifyProof verifies that a leaf is included in a tree with the given
// root, without requiring the full tree. Comparison against the expected
// root is constant-time.
func VerifyProof(leafHash common.Hash, proof *InclusionProof, expectedRoot common.Hash) bool {
	if proof == nil || len(proof.Path) == 0 {
		// Single-leaf tree: leaf is the root.
		return subtle.ConstantTimeCompare(leafHash[:], expectedRoot[:]) == 1
	}

	current := leafHash
	for _, node := range proof.Path {
		if node.Right {
			current = hashPair(current, node.Hash)
		} else {
			current = hashPair(node.Hash, current)
		}
	}

	return subtle.ConstantTimeCompare(current[:], expectedRoot[:]) == 1
}

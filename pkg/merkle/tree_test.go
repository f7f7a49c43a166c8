// Copyright 2025 Certen Protocol
//
// Binary Merkle Tree Tests

package merkle

import (
	"crypto/sha256"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func hashOf(data string) common.Hash {
	sum := sha256.Sum256([]byte(data))
	return common.BytesToHash(sum[:])
}

func TestBuildTree_SingleLeaf(t *testing.T) {
	leaf := hashOf("test data")
	tree, err := BuildTree([]common.Hash{leaf})
	if err != nil {
		t.Fatalf("failed to build tree: %v", err)
	}

	// Single leaf tree: root equals leaf.
	if tree.RootHash() != leaf {
		t.Errorf("single leaf root mismatch: got %x, want %x", tree.RootHash(), leaf)
	}
	if tree.LeafCount() != 1 {
		t.Errorf("leaf count mismatch: got %d, want 1", tree.LeafCount())
	}
}

func TestBuildTree_TwoLeaves(t *testing.T) {
	leaf1 := hashOf("leaf 1")
	leaf2 := hashOf("leaf 2")

	tree, err := BuildTree([]common.Hash{leaf1, leaf2})
	if err != nil {
		t.Fatalf("failed to build tree: %v", err)
	}

	// Expected root = hash(leaf1 || leaf2)
	h := sha256.New()
	h.Write(leaf1[:])
	h.Write(leaf2[:])
	expected := common.BytesToHash(h.Sum(nil))

	if tree.RootHash() != expected {
		t.Errorf("two leaf root mismatch: got %x, want %x", tree.RootHash(), expected)
	}
}

func TestBuildTree_Empty(t *testing.T) {
	if _, err := BuildTree(nil); err != ErrEmptyTree {
		t.Errorf("empty build: got %v, want ErrEmptyTree", err)
	}
	if Root(nil) != (common.Hash{}) {
		t.Errorf("Root over no leaves must be the zero hash")
	}
}

func TestGenerateProof_AllLeavesVerify(t *testing.T) {
	leaves := make([]common.Hash, 5)
	for i := range leaves {
		leaves[i] = hashOf(string(rune('a' + i)))
	}

	tree, err := BuildTree(leaves)
	if err != nil {
		t.Fatalf("failed to build tree: %v", err)
	}

	for i, leaf := range leaves {
		proof, err := tree.GenerateProof(i)
		if err != nil {
			t.Fatalf("proof %d: %v", i, err)
		}
		if !VerifyProof(leaf, proof, tree.RootHash()) {
			t.Errorf("proof %d does not verify", i)
		}
		// Wrong leaf must fail.
		if VerifyProof(hashOf("other"), proof, tree.RootHash()) {
			t.Errorf("proof %d verified a wrong leaf", i)
		}
	}
}

func TestGenerateProofByHash(t *testing.T) {
	leaves := []common.Hash{hashOf("x"), hashOf("y")}
	tree, err := BuildTree(leaves)
	if err != nil {
		t.Fatalf("failed to build tree: %v", err)
	}

	proof, err := tree.GenerateProofByHash(leaves[1])
	if err != nil {
		t.Fatalf("proof by hash: %v", err)
	}
	if !VerifyProof(leaves[1], proof, tree.RootHash()) {
		t.Errorf("proof by hash does not verify")
	}

	if _, err := tree.GenerateProofByHash(hashOf("missing")); err != ErrLeafNotFound {
		t.Errorf("missing leaf: got %v, want ErrLeafNotFound", err)
	}
}

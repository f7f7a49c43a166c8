// Copyright 2025 Certen Protocol
//
// VmState Tests
// Exercised through the payments Account leaf type.

package state_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/certen/zkrollup-nexus/pkg/kvdb"
	"github.com/certen/zkrollup-nexus/pkg/payments"
	"github.com/certen/zkrollup-nexus/pkg/smt"
	"github.com/certen/zkrollup-nexus/pkg/state"
	"github.com/certen/zkrollup-nexus/pkg/types"
)

func addrOf(b byte) types.Address {
	var a types.Address
	for i := range a {
		a[i] = b
	}
	return a
}

func newAccountState(t *testing.T) *state.VmState[payments.Account] {
	t.Helper()
	vs, err := state.New(kvdb.NewMemStore(), common.Hash{}, payments.DecodeAccount)
	if err != nil {
		t.Fatalf("new state: %v", err)
	}
	return vs
}

func TestVmState_UpdateSetProofsVerify(t *testing.T) {
	vs := newAccountState(t)

	alice := payments.Account{Address: addrOf(0x01), Balance: 1000, Nonce: 1}
	update, err := vs.UpdateSet([]payments.Account{alice})
	if err != nil {
		t.Fatalf("update set: %v", err)
	}

	if update.PreStateRoot != (common.Hash{}) {
		t.Errorf("pre root %x, want zero", update.PreStateRoot)
	}
	if update.PostStateRoot != vs.Root() {
		t.Errorf("post root does not match tree root")
	}

	// Pre proof witnesses absence, post proof witnesses the new leaf.
	prePairs := []smt.ProofPair{{Key: alice.StateKey(), ValueHash: common.Hash{}}}
	if !update.PreProof.Verify(update.PreStateRoot, prePairs) {
		t.Errorf("pre-state proof does not verify")
	}
	postPairs := []smt.ProofPair{{Key: alice.StateKey(), ValueHash: alice.StateHash()}}
	if !update.PostProof.Verify(update.PostStateRoot, postPairs) {
		t.Errorf("post-state proof does not verify")
	}
}

func TestVmState_CommitRevertSemantics(t *testing.T) {
	vs := newAccountState(t)

	alice := payments.Account{Address: addrOf(0x01), Balance: 500, Nonce: 1}
	if _, err := vs.UpdateSet([]payments.Account{alice}); err != nil {
		t.Fatalf("update set: %v", err)
	}
	stagedRoot := vs.Root()

	// Revert before commit: back to zero.
	root, err := vs.Revert()
	if err != nil {
		t.Fatalf("revert: %v", err)
	}
	if root != (common.Hash{}) || vs.Root() != (common.Hash{}) {
		t.Fatalf("revert did not restore the zero root")
	}
	if _, found, _ := vs.Get(alice.StateKey(), false); found {
		t.Fatalf("leaf survived revert")
	}

	// Re-apply and commit: same root, durable leaf.
	if _, err := vs.UpdateSet([]payments.Account{alice}); err != nil {
		t.Fatalf("update set: %v", err)
	}
	if vs.Root() != stagedRoot {
		t.Fatalf("identical update produced a different root")
	}
	if err := vs.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	got, found, err := vs.Get(alice.StateKey(), true)
	if err != nil || !found {
		t.Fatalf("committed leaf missing: %v", err)
	}
	if got != alice {
		t.Errorf("leaf mismatch after commit: %+v", got)
	}

	// Revert after commit keeps the committed root.
	root, err = vs.Revert()
	if err != nil {
		t.Fatalf("revert: %v", err)
	}
	if root != stagedRoot {
		t.Errorf("revert after commit moved the root")
	}
}

func TestVmState_GetWithProofAbsentKey(t *testing.T) {
	vs := newAccountState(t)

	alice := payments.Account{Address: addrOf(0x01), Balance: 10, Nonce: 1}
	if _, err := vs.UpdateSet([]payments.Account{alice}); err != nil {
		t.Fatalf("update set: %v", err)
	}

	absent := payments.Account{Address: addrOf(0x7f)}.StateKey()
	leaf, found, proof, err := vs.GetWithProof(absent)
	if err != nil {
		t.Fatalf("get with proof: %v", err)
	}
	if found {
		t.Fatalf("absent key reported present")
	}
	if !leaf.IsZero() {
		t.Errorf("absent key returned non-zero leaf")
	}
	if !proof.Verify(vs.Root(), []smt.ProofPair{{Key: absent, ValueHash: common.Hash{}}}) {
		t.Errorf("zero-leaf proof does not verify")
	}
}

func TestVmState_ReopenAtCommittedRoot(t *testing.T) {
	backing := kvdb.NewMemStore()
	vs, err := state.New(backing, common.Hash{}, payments.DecodeAccount)
	if err != nil {
		t.Fatalf("new state: %v", err)
	}

	alice := payments.Account{Address: addrOf(0x01), Balance: 77, Nonce: 3}
	if _, err := vs.UpdateSet([]payments.Account{alice}); err != nil {
		t.Fatalf("update set: %v", err)
	}
	if err := vs.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	root := vs.Root()

	reopened, err := state.New(backing, root, payments.DecodeAccount)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, found, _ := reopened.Get(alice.StateKey(), true)
	if !found || got != alice {
		t.Errorf("reopened state lost the leaf")
	}

	if _, err := state.New(backing, common.HexToHash("0x1234"), payments.DecodeAccount); err == nil {
		t.Errorf("reopening at a foreign root succeeded")
	}
}

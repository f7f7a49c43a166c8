// Copyright 2025 Certen Protocol
//
// Payments State Machine Tests

package payments

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/certen/zkrollup-nexus/pkg/kvdb"
	"github.com/certen/zkrollup-nexus/pkg/smt"
	"github.com/certen/zkrollup-nexus/pkg/types"
)

func newMachine(t *testing.T) *StateMachine {
	t.Helper()
	m, err := NewStateMachine(kvdb.NewMemStore(), common.Hash{})
	if err != nil {
		t.Fatalf("new machine: %v", err)
	}
	return m
}

func TestMachine_RootContinuityAcrossBatches(t *testing.T) {
	m := newMachine(t)
	alice := signerFor("alice")
	bob := signerFor("bob")

	mint := signedTx(t, alice, Message{CallType: CallMint, From: alice.Address(), To: alice.Address(), Amount: 1000})
	update1, _, err := m.ExecuteTx(mint, types.AggregatedBatch{})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := m.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	transfer := signedTx(t, alice, Message{CallType: CallTransfer, From: alice.Address(), To: bob.Address(), Amount: 400})
	update2, _, err := m.ExecuteTx(transfer, types.AggregatedBatch{})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := m.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	// Root continuity: batch 2 starts exactly where batch 1 ended.
	if update2.PreStateRoot != update1.PostStateRoot {
		t.Errorf("pre root of batch 2 (%x) != post root of batch 1 (%x)", update2.PreStateRoot, update1.PostStateRoot)
	}
	if update1.PostStateRoot == update2.PostStateRoot {
		t.Errorf("state root unchanged across batches")
	}

	acct, found, err := m.GetState(bob.Address().StateKey())
	if err != nil || !found {
		t.Fatalf("bob missing: %v", err)
	}
	if acct.Balance != 400 {
		t.Errorf("bob balance %d, want 400", acct.Balance)
	}
}

func TestMachine_RevertIdempotence(t *testing.T) {
	m := newMachine(t)
	alice := signerFor("alice")

	mint := signedTx(t, alice, Message{CallType: CallMint, From: alice.Address(), To: alice.Address(), Amount: 10})
	if _, _, err := m.ExecuteTx(mint, types.AggregatedBatch{}); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := m.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	committed := m.Root()

	// Execute without committing, then revert: back to the committed root.
	transfer := signedTx(t, alice, Message{CallType: CallTransfer, From: alice.Address(), To: signerFor("bob").Address(), Amount: 5})
	if _, _, err := m.ExecuteTx(transfer, types.AggregatedBatch{}); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if m.Root() == committed {
		t.Fatalf("execute did not move the in-memory root")
	}

	if err := m.Revert(committed); err != nil {
		t.Fatalf("revert: %v", err)
	}
	if m.Root() != committed {
		t.Errorf("root after revert %x, want %x", m.Root(), committed)
	}

	// Reverting to the wrong root is an error.
	if err := m.Revert(common.HexToHash("0x01")); err == nil {
		t.Errorf("revert to a foreign root succeeded")
	}
}

func TestMachine_DoubleSpendLeavesRootUntouched(t *testing.T) {
	m := newMachine(t)
	alice := signerFor("alice")
	bob := signerFor("bob")

	mint := signedTx(t, alice, Message{CallType: CallMint, From: alice.Address(), To: alice.Address(), Amount: 100})
	if _, _, err := m.ExecuteTx(mint, types.AggregatedBatch{}); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := m.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	spend := signedTx(t, alice, Message{CallType: CallTransfer, From: alice.Address(), To: bob.Address(), Amount: 100})
	if _, _, err := m.ExecuteTx(spend, types.AggregatedBatch{}); err != nil {
		t.Fatalf("first spend: %v", err)
	}
	if err := m.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	rootAfterFirst := m.Root()

	// The same transfer again must fail with "not enough balance" and the
	// root must stay where the first batch left it.
	_, _, err := m.ExecuteTx(spend, types.AggregatedBatch{})
	if !errors.Is(err, types.ErrInsufficientBalance) {
		t.Fatalf("second spend: got %v, want ErrInsufficientBalance", err)
	}
	if err := m.Revert(rootAfterFirst); err != nil {
		t.Fatalf("revert: %v", err)
	}
	if m.Root() != rootAfterFirst {
		t.Errorf("root moved after rejected double spend")
	}
}

func TestMachine_StateWithProofVerifies(t *testing.T) {
	m := newMachine(t)
	alice := signerFor("alice")

	mint := signedTx(t, alice, Message{CallType: CallMint, From: alice.Address(), To: alice.Address(), Amount: 42})
	if _, _, err := m.ExecuteTx(mint, types.AggregatedBatch{}); err != nil {
		t.Fatalf("mint: %v", err)
	}

	// Reads go through the uncommitted cache.
	key := alice.Address().StateKey()
	leafJSON, proof, err := m.StateWithProof(key)
	if err != nil {
		t.Fatalf("state with proof: %v", err)
	}
	if len(leafJSON) == 0 {
		t.Fatalf("empty leaf payload")
	}

	acct, found, err := m.GetState(key)
	if err != nil || !found {
		t.Fatalf("leaf missing: %v", err)
	}
	pairs := []smt.ProofPair{{Key: key, ValueHash: acct.StateHash()}}
	if !proof.Verify(m.Root(), pairs) {
		t.Errorf("state proof does not verify against current root")
	}
}

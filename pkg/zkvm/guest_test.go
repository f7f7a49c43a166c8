// Copyright 2025 Certen Protocol
//
// zkVM Guest Tests
// The guest must accept exactly the updates the native state machine
// produced and reject any tampering with roots, leaves or witnesses.

package zkvm

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/certen/zkrollup-nexus/pkg/kvdb"
	"github.com/certen/zkrollup-nexus/pkg/merkle"
	"github.com/certen/zkrollup-nexus/pkg/payments"
	"github.com/certen/zkrollup-nexus/pkg/types"
)

// paymentsInput builds a real state update for a self-mint and wraps it as
// a prover input.
func paymentsInput(t *testing.T) (*Input, types.TransactionReceipt) {
	t.Helper()

	machine, err := payments.NewStateMachine(kvdb.NewMemStore(), common.Hash{})
	if err != nil {
		t.Fatalf("new machine: %v", err)
	}

	alice := types.SignerFromSeed("alice")
	tx, err := payments.NewTransaction(alice, payments.Message{
		CallType: payments.CallMint, From: alice.Address(), To: alice.Address(), Amount: 1000,
	})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	update, receipt, err := machine.ExecuteTx(tx, types.AggregatedBatch{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	return &Input{
		Chain:       types.ChainPayments,
		Tx:          tx,
		StateUpdate: update,
		BatchNumber: 1,
	}, receipt
}

func TestGuest_AcceptsHonestUpdate(t *testing.T) {
	input, receipt := paymentsInput(t)

	guest, err := NewZKStateMachine(types.ChainPayments)
	if err != nil {
		t.Fatalf("new guest: %v", err)
	}

	header, receipts, err := guest.Run(input)
	if err != nil {
		t.Fatalf("guest run: %v", err)
	}

	if header.PreStateRoot != input.StateUpdate.PreStateRoot {
		t.Errorf("journal pre root mismatch")
	}
	if header.StateRoot != input.StateUpdate.PostStateRoot {
		t.Errorf("journal post root mismatch")
	}
	if header.BatchNumber != 1 {
		t.Errorf("journal batch number %d", header.BatchNumber)
	}
	if header.TransactionsRoot != merkle.Root([]common.Hash{input.Tx.Hash()}) {
		t.Errorf("transactions root is not the merkle root of the batch txs")
	}
	if len(receipts) != 1 || receipts[0].Hash() != receipt.Hash() {
		t.Errorf("guest receipts diverge from native execution")
	}
	if header.ReceiptsRoot != merkle.Root([]common.Hash{receipt.Hash()}) {
		t.Errorf("receipts root is not the merkle root of the receipts")
	}
}

func TestGuest_RejectsTamperedPostRoot(t *testing.T) {
	input, _ := paymentsInput(t)
	guest, _ := NewZKStateMachine(types.ChainPayments)

	input.StateUpdate.PostStateRoot = common.HexToHash("0xbad")
	if _, _, err := guest.Run(input); err == nil {
		t.Errorf("guest accepted a tampered post root")
	}
}

func TestGuest_RejectsTamperedPreWitness(t *testing.T) {
	input, _ := paymentsInput(t)
	guest, _ := NewZKStateMachine(types.ChainPayments)

	// Claim the minter already had a balance.
	forged := payments.Account{Address: types.SignerFromSeed("alice").Address(), Balance: 9999, Nonce: 7}
	input.StateUpdate.PrePairs[0].Value = forged.EncodeLeaf()
	if _, _, err := guest.Run(input); err == nil {
		t.Errorf("guest accepted a forged pre-state leaf")
	}
}

func TestGuest_RejectsTamperedPostLeaf(t *testing.T) {
	input, _ := paymentsInput(t)
	guest, _ := NewZKStateMachine(types.ChainPayments)

	forged := payments.Account{Address: types.SignerFromSeed("alice").Address(), Balance: 1, Nonce: 1}
	input.StateUpdate.PostPairs[0].Value = forged.EncodeLeaf()
	if _, _, err := guest.Run(input); err == nil {
		t.Errorf("guest accepted a post leaf the STF did not produce")
	}
}

func TestGuest_RejectsForeignSignature(t *testing.T) {
	input, _ := paymentsInput(t)
	guest, _ := NewZKStateMachine(types.ChainPayments)

	input.Tx.Signature = make([]byte, types.SignatureLength)
	if _, _, err := guest.Run(input); err == nil {
		t.Errorf("guest accepted a transaction with a broken signature")
	}
}

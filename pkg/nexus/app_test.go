// Copyright 2025 Certen Protocol
//
// Nexus Aggregator Tests
// Uses the in-process DA and a stub seal verifier; the guest still
// re-executes every batch, so journals are real.

package nexus

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/certen/zkrollup-nexus/pkg/da"
	"github.com/certen/zkrollup-nexus/pkg/kvdb"
	"github.com/certen/zkrollup-nexus/pkg/payments"
	"github.com/certen/zkrollup-nexus/pkg/smt"
	"github.com/certen/zkrollup-nexus/pkg/types"
	"github.com/certen/zkrollup-nexus/pkg/zkvm"
)

var testImageID = common.HexToHash("0x1111")

// stubVerifier accepts any receipt carrying the expected image id. Seal
// cryptography is covered by the zkvm package tests.
type stubVerifier struct{}

func (stubVerifier) Verify(receipt *zkvm.Receipt, imageID common.Hash) error {
	if receipt.ImageID != imageID {
		return fmt.Errorf("image id mismatch")
	}
	return nil
}

type testHarness struct {
	app     *App
	mem     *da.MemDA
	machine *payments.StateMachine
	signer  *types.Signer
	batch   uint64
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	mem := da.NewMemDA()
	app, err := New(
		Config{ImageIDs: map[types.AppChain]common.Hash{
			types.ChainNFT:      testImageID,
			types.ChainPayments: testImageID,
		}},
		kvdb.NewMemStore(), kvdb.NewNodeDB(kvdb.NewMemStore()),
		mem, stubVerifier{}, nil, nil,
	)
	if err != nil {
		t.Fatalf("new nexus: %v", err)
	}

	machine, err := payments.NewStateMachine(kvdb.NewMemStore(), common.Hash{})
	if err != nil {
		t.Fatalf("new machine: %v", err)
	}
	return &testHarness{app: app, mem: mem, machine: machine, signer: types.SignerFromSeed("alice")}
}

// submitMint executes a payments mint end to end: machine, guest, DA blob,
// submit-batch. Returns the receipt and the submission parameters.
func (h *testHarness) submitMint(t *testing.T, amount uint64) (types.TransactionReceipt, types.SubmitProofParam) {
	t.Helper()

	tx, err := payments.NewTransaction(h.signer, payments.Message{
		CallType: payments.CallMint, From: h.signer.Address(), To: h.signer.Address(), Amount: amount,
	})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	update, receipt, err := h.machine.ExecuteTx(tx, h.app.CurrentBatch())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if err := h.machine.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	h.batch++

	guest, _ := zkvm.NewZKStateMachine(types.ChainPayments)
	header, _, err := guest.Run(&zkvm.Input{
		Chain: types.ChainPayments, Tx: tx, StateUpdate: update, BatchNumber: h.batch,
	})
	if err != nil {
		t.Fatalf("guest: %v", err)
	}

	blob := types.DABatch{Header: header, Transactions: []types.Transaction{tx}}
	blockHash, txHash, err := h.mem.SubmitTransaction(context.Background(), blob.Encode())
	if err != nil {
		t.Fatalf("da submit: %v", err)
	}

	proof, err := (&zkvm.Receipt{Journal: header.Encode(), ImageID: testImageID}).Serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	param := types.SubmitProofParam{
		Proof:    proof,
		Receipts: []types.TransactionReceipt{receipt},
		Chain:    types.ChainPayments,
		DaTx:     types.DaTxPointer{BlockHash: blockHash, TxHash: txHash, Chain: types.ChainPayments},
	}
	if err := h.app.SubmitBatch(context.Background(), param); err != nil {
		t.Fatalf("submit-batch: %v", err)
	}
	return receipt, param
}

func TestNexus_SubmitAggregateAndProve(t *testing.T) {
	h := newHarness(t)

	receipt, _ := h.submitMint(t, 1000)

	if h.app.CurrentBatch().ProofNumber != 0 {
		t.Fatalf("aggregation ran before the tick")
	}
	if err := h.app.Aggregate(); err != nil {
		t.Fatalf("aggregate: %v", err)
	}

	agg := h.app.CurrentBatch()
	if agg.ProofNumber != 1 {
		t.Errorf("proof number %d, want 1", agg.ProofNumber)
	}
	if agg.ReceiptsRoot == (common.Hash{}) {
		t.Errorf("aggregated root still zero")
	}

	// Inclusion proof for the aggregated receipt.
	got, proof, err := h.app.GetReceiptWithProof(receipt.Hash())
	if err != nil {
		t.Fatalf("receipt lookup: %v", err)
	}
	if got.Hash() != receipt.Hash() {
		t.Errorf("wrong receipt returned")
	}
	pairs := []smt.ProofPair{{Key: receipt.Hash(), ValueHash: receipt.Hash()}}
	if !proof.Verify(agg.ReceiptsRoot, pairs) {
		t.Errorf("inclusion proof does not verify against the aggregated root")
	}

	// Non-inclusion proof for an unknown commitment.
	missing := common.HexToHash("0x4242")
	got, proof, err = h.app.GetReceiptWithProof(missing)
	if err != nil {
		t.Fatalf("missing receipt lookup: %v", err)
	}
	if !got.IsZero() {
		t.Errorf("missing key returned a non-zero receipt")
	}
	if !proof.Verify(agg.ReceiptsRoot, []smt.ProofPair{{Key: missing, ValueHash: common.Hash{}}}) {
		t.Errorf("non-inclusion proof does not verify")
	}
}

func TestNexus_ContinuityEnforced(t *testing.T) {
	h := newHarness(t)
	_, param := h.submitMint(t, 10)

	// Re-submitting the same batch breaks continuity: batch 1 again.
	err := h.app.SubmitBatch(context.Background(), param)
	if err == nil {
		t.Fatalf("duplicate batch accepted")
	}
	if !strings.Contains(err.Error(), "does not extend") {
		t.Errorf("unexpected rejection: %v", err)
	}

	// The next honest batch extends fine, and aggregation holds exactly
	// the two receipts.
	h.submitMint(t, 20)
	if err := h.app.Aggregate(); err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if h.app.CurrentBatch().ProofNumber != 1 {
		t.Errorf("proof number %d, want 1", h.app.CurrentBatch().ProofNumber)
	}
}

func TestNexus_RejectsBadSubmissions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Unknown chain.
	if err := h.app.SubmitBatch(ctx, types.SubmitProofParam{Chain: "unknown"}); err == nil {
		t.Errorf("unknown chain accepted")
	}

	// Dangling DA pointer.
	err := h.app.SubmitBatch(ctx, types.SubmitProofParam{
		Chain: types.ChainPayments,
		DaTx:  types.DaTxPointer{BlockHash: common.HexToHash("0x1"), TxHash: common.HexToHash("0x2"), Chain: types.ChainPayments},
	})
	if err == nil {
		t.Errorf("dangling DA pointer accepted")
	}

	// Malformed blob at a real DA location.
	blockHash, txHash, _ := h.mem.SubmitTransaction(ctx, []byte("garbage"))
	proof, _ := (&zkvm.Receipt{Journal: types.BatchHeader{BatchNumber: 1}.Encode(), ImageID: testImageID}).Serialize()
	err = h.app.SubmitBatch(ctx, types.SubmitProofParam{
		Proof: proof,
		Chain: types.ChainPayments,
		DaTx:  types.DaTxPointer{BlockHash: blockHash, TxHash: txHash, Chain: types.ChainPayments},
	})
	if err == nil || !strings.Contains(err.Error(), "malformed da blob") {
		t.Errorf("malformed blob: got %v", err)
	}

	// Wrong image id.
	_, param := h.submitMint(t, 5)
	bad, _ := (&zkvm.Receipt{Journal: types.BatchHeader{}.Encode(), ImageID: common.HexToHash("0x666")}).Serialize()
	param.Proof = bad
	if err := h.app.SubmitBatch(ctx, param); err == nil {
		t.Errorf("foreign image id accepted")
	}
}

func TestNexus_ReceiptsMismatchRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, param := h.submitMint(t, 5)

	// Tamper with the submitted receipts list on a fresh nexus so the
	// continuity head does not interfere.
	fresh := newHarness(t)
	tx := param // copy
	tx.Receipts = []types.TransactionReceipt{{ChainID: types.PaymentsChainID, Data: []byte{9, 9}}}

	// Replay the original DA block into the fresh harness's DA layer.
	block, err := h.mem.GetBlockWithHash(ctx, param.DaTx.BlockHash)
	if err != nil {
		t.Fatalf("fetch block: %v", err)
	}
	blobTx, _ := block.FindTx(param.DaTx.TxHash)
	blockHash, txHash, _ := fresh.mem.SubmitTransaction(ctx, blobTx.Blob())
	tx.DaTx = types.DaTxPointer{BlockHash: blockHash, TxHash: txHash, Chain: types.ChainPayments}

	err = fresh.app.SubmitBatch(ctx, tx)
	if err == nil || !strings.Contains(err.Error(), "receipts root") {
		t.Errorf("mismatched receipts: got %v", err)
	}
}

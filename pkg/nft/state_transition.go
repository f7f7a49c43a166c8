// Copyright 2025 Certen Protocol
//
// NFT State Transition Function
// Pure per-domain rules, including both phases of the future/trigger
// protocol. No storage access; signature verification happens before any
// state is derived.

package nft

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/certen/zkrollup-nexus/pkg/smt"
	"github.com/certen/zkrollup-nexus/pkg/types"
)

// StateTransition implements the NFT rules.
type StateTransition struct {
	chainID uint64
}

// NewStateTransition returns the NFT STF for chain id 7000.
func NewStateTransition() *StateTransition {
	return &StateTransition{chainID: types.NFTChainID}
}

// ExecuteTx verifies the transaction signature, decodes the message and
// applies the matching rule. The aggregated batch is consulted only by
// Trigger, which verifies receipt inclusion (or non-inclusion) against its
// receipts root.
func (s *StateTransition) ExecuteTx(
	preState []Nft,
	tx types.Transaction,
	agg types.AggregatedBatch,
) ([]Nft, types.TransactionReceipt, error) {
	msg, err := DecodeMessage(tx.Message)
	if err != nil {
		return nil, types.TransactionReceipt{}, err
	}

	if !msg.From.VerifyMessage(tx.Message, tx.Signature) {
		return nil, types.TransactionReceipt{}, types.ErrSignature
	}

	if len(preState) != 1 {
		return nil, types.TransactionReceipt{}, fmt.Errorf("nft stf expects 1 pre-state leaf, got %d", len(preState))
	}
	pre := preState[0]

	switch msg.CallType {
	case CallTransfer:
		return s.transfer(msg, pre)
	case CallMint:
		return s.mint(msg, pre)
	case CallBurn:
		return s.burn(msg, pre)
	case CallTrigger:
		return s.trigger(msg, pre, agg)
	}
	return nil, types.TransactionReceipt{}, fmt.Errorf("%w: call type %d", types.ErrBadEncoding, msg.CallType)
}

// transfer either moves ownership outright or, when a future commitment is
// supplied, keeps the owner and parks the transfer under a Future.
func (s *StateTransition) transfer(msg Message, pre Nft) ([]Nft, types.TransactionReceipt, error) {
	if pre.IsZero() {
		return nil, types.TransactionReceipt{}, types.ErrNotMinted
	}
	if pre.Owner != msg.From {
		return nil, types.TransactionReceipt{}, types.ErrNotOwner
	}

	nonce := pre.Nonce + 1

	if msg.FutureCommitment == nil {
		post := Nft{Id: msg.Id, Owner: msg.To, Nonce: nonce, Metadata: pre.Metadata}
		receipt := TransferReceiptData{Id: msg.Id, From: msg.From, To: msg.To, Nonce: nonce, Data: msg.Data}
		return []Nft{post}, receipt.Receipt(), nil
	}

	post := Nft{
		Id:       msg.Id,
		Owner:    pre.Owner,
		Nonce:    nonce,
		Future:   &Future{To: msg.To, Commitment: *msg.FutureCommitment},
		Metadata: pre.Metadata,
	}
	receipt := FutureReceiptData{
		Id: msg.Id, From: msg.From, To: msg.To, Nonce: nonce,
		FutureCommitment: *msg.FutureCommitment, Data: msg.Data,
	}
	return []Nft{post}, receipt.Receipt(), nil
}

// mint creates the leaf. The pre-state must be the zero leaf.
func (s *StateTransition) mint(msg Message, pre Nft) ([]Nft, types.TransactionReceipt, error) {
	if !pre.IsZero() {
		return nil, types.TransactionReceipt{}, types.ErrAlreadyMinted
	}

	post := Nft{Id: msg.Id, Owner: msg.To, Nonce: 1, Metadata: msg.Metadata}
	if msg.FutureCommitment != nil {
		post.Future = &Future{To: msg.To, Commitment: *msg.FutureCommitment}
		receipt := FutureReceiptData{
			Id: msg.Id, From: types.ZeroAddress, To: msg.To, Nonce: 1,
			FutureCommitment: *msg.FutureCommitment, Data: msg.Data,
		}
		return []Nft{post}, receipt.Receipt(), nil
	}

	receipt := TransferReceiptData{Id: msg.Id, From: types.ZeroAddress, To: msg.To, Nonce: 1, Data: msg.Data}
	return []Nft{post}, receipt.Receipt(), nil
}

// burn clears the owner, or parks the burn under a Future when a
// commitment is supplied.
func (s *StateTransition) burn(msg Message, pre Nft) ([]Nft, types.TransactionReceipt, error) {
	if pre.IsZero() {
		return nil, types.TransactionReceipt{}, types.ErrNotMinted
	}
	if pre.Owner != msg.From {
		return nil, types.TransactionReceipt{}, types.ErrNotOwner
	}

	nonce := pre.Nonce + 1

	if msg.FutureCommitment == nil {
		post := Nft{Id: msg.Id, Owner: types.ZeroAddress, Nonce: nonce, Metadata: pre.Metadata}
		receipt := TransferReceiptData{Id: msg.Id, From: msg.From, To: types.ZeroAddress, Nonce: nonce, Data: msg.Data}
		return []Nft{post}, receipt.Receipt(), nil
	}

	post := Nft{
		Id:       msg.Id,
		Owner:    pre.Owner,
		Nonce:    nonce,
		Future:   &Future{To: types.ZeroAddress, Commitment: *msg.FutureCommitment},
		Metadata: pre.Metadata,
	}
	receipt := FutureReceiptData{
		Id: msg.Id, From: msg.From, To: types.ZeroAddress, Nonce: nonce,
		FutureCommitment: *msg.FutureCommitment, Data: msg.Data,
	}
	return []Nft{post}, receipt.Receipt(), nil
}

// trigger resolves a Future. The carried proof must witness the pair
// (future.commitment, receipt.Hash()) against the aggregated receipts
// root: a non-zero receipt hash completes the transfer, the zero hash
// proves non-inclusion and cancels the reservation. Either way the future
// is cleared, which disarms replays.
func (s *StateTransition) trigger(msg Message, pre Nft, agg types.AggregatedBatch) ([]Nft, types.TransactionReceipt, error) {
	if pre.IsZero() {
		return nil, types.TransactionReceipt{}, types.ErrNotMinted
	}
	if pre.Future == nil {
		return nil, types.TransactionReceipt{}, types.ErrNoFuture
	}
	if msg.Proof == nil || msg.Receipt == nil {
		return nil, types.TransactionReceipt{}, fmt.Errorf("%w: trigger without proof or receipt", types.ErrBadEncoding)
	}

	receiptHash := msg.Receipt.Hash()
	pairs := []smt.ProofPair{{Key: pre.Future.Commitment, ValueHash: receiptHash}}
	if !msg.Proof.Verify(agg.ReceiptsRoot, pairs) {
		return nil, types.TransactionReceipt{}, types.ErrInvalidProof
	}

	nonce := pre.Nonce + 1

	if receiptHash == (common.Hash{}) {
		// Non-inclusion proven: the expected receipt never aggregated.
		// Cancel the reservation, ownership unchanged.
		post := Nft{Id: msg.Id, Owner: pre.Owner, Nonce: nonce, Metadata: pre.Metadata}
		receipt := TransferReceiptData{Id: msg.Id, From: pre.Owner, To: pre.Owner, Nonce: nonce, Data: msg.Data}
		return []Nft{post}, receipt.Receipt(), nil
	}

	post := Nft{Id: msg.Id, Owner: pre.Future.To, Nonce: nonce, Metadata: pre.Metadata}
	receipt := TransferReceiptData{Id: msg.Id, From: pre.Owner, To: pre.Future.To, Nonce: nonce, Data: msg.Data}
	return []Nft{post}, receipt.Receipt(), nil
}

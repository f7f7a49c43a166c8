// Copyright 2025 Certen Protocol
//
// Payments State Transition Function
// Pure per-domain rules. No storage access: pre-state leaves go in,
// post-state leaves and a receipt come out. Signature verification happens
// here, before any state is derived.

package payments

import (
	"fmt"

	"github.com/certen/zkrollup-nexus/pkg/types"
)

// StateTransition implements the payments rules.
type StateTransition struct {
	chainID uint64
}

// NewStateTransition returns the payments STF for chain id 7001.
func NewStateTransition() *StateTransition {
	return &StateTransition{chainID: types.PaymentsChainID}
}

// ExecuteTx verifies the transaction signature, decodes the message and
// applies the matching rule. The aggregated batch is unused on the
// payments chain but kept for interface symmetry with the NFT chain.
func (s *StateTransition) ExecuteTx(
	preState []Account,
	tx types.Transaction,
	_ types.AggregatedBatch,
) ([]Account, types.TransactionReceipt, error) {
	msg, err := DecodeMessage(tx.Message)
	if err != nil {
		return nil, types.TransactionReceipt{}, err
	}

	if !msg.From.VerifyMessage(tx.Message, tx.Signature) {
		return nil, types.TransactionReceipt{}, types.ErrSignature
	}

	switch msg.CallType {
	case CallTransfer:
		return s.transfer(msg, preState)
	case CallMint:
		return s.mint(msg, preState)
	}
	return nil, types.TransactionReceipt{}, fmt.Errorf("%w: call type %d", types.ErrBadEncoding, msg.CallType)
}

// transfer debits the sender and credits the receiver. Requires a distinct
// receiver and a sufficient balance; bumps the sender nonce.
func (s *StateTransition) transfer(msg Message, preState []Account) ([]Account, types.TransactionReceipt, error) {
	if len(preState) != 2 {
		return nil, types.TransactionReceipt{}, fmt.Errorf("transfer expects 2 pre-state leaves, got %d", len(preState))
	}

	from := preState[0]
	if from.IsZero() {
		from = Account{Address: msg.From}
	}

	if msg.From == msg.To {
		return nil, types.TransactionReceipt{}, types.ErrSelfTransfer
	}
	if from.Balance < msg.Amount {
		return nil, types.TransactionReceipt{}, types.ErrInsufficientBalance
	}

	from.Balance -= msg.Amount
	from.Nonce++

	to := preState[1]
	if to.IsZero() {
		to = Account{Address: msg.To}
	}
	to.Balance += msg.Amount

	receipt := ReceiptData{
		From:     msg.From,
		To:       msg.To,
		Amount:   msg.Amount,
		CallType: CallTransfer,
		Nonce:    from.Nonce,
		Data:     msg.Data,
	}
	return []Account{from, to}, receipt.Receipt(), nil
}

// mint credits the receiver out of thin air and bumps the minter nonce.
// A self-mint collapses to a single account update.
func (s *StateTransition) mint(msg Message, preState []Account) ([]Account, types.TransactionReceipt, error) {
	if len(preState) == 0 {
		return nil, types.TransactionReceipt{}, fmt.Errorf("mint expects at least 1 pre-state leaf")
	}

	from := preState[0]
	if from.IsZero() {
		from = Account{Address: msg.From}
	}
	from.Nonce++

	receipt := ReceiptData{
		From:     types.ZeroAddress,
		To:       msg.To,
		Amount:   msg.Amount,
		CallType: CallMint,
		Nonce:    from.Nonce,
		Data:     msg.Data,
	}

	if msg.From == msg.To {
		from.Balance += msg.Amount
		return []Account{from}, receipt.Receipt(), nil
	}

	if len(preState) != 2 {
		return nil, types.TransactionReceipt{}, fmt.Errorf("mint expects 2 pre-state leaves, got %d", len(preState))
	}
	to := preState[1]
	if to.IsZero() {
		to = Account{Address: msg.To}
	}
	to.Balance += msg.Amount

	return []Account{from, to}, receipt.Receipt(), nil
}

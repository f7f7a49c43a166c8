// Copyright 2025 Certen Protocol
//
// Payments State Machine
// Stateful wrapper over VmState + the payments STF. execute_tx stages
// changes in the store cache; only commit makes them durable, revert
// restores the last committed root.

package payments

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/certen/zkrollup-nexus/pkg/kvdb"
	"github.com/certen/zkrollup-nexus/pkg/smt"
	"github.com/certen/zkrollup-nexus/pkg/state"
	"github.com/certen/zkrollup-nexus/pkg/types"
)

// StateMachine holds the payments state tree and its transition function.
type StateMachine struct {
	state *state.VmState[Account]
	stf   *StateTransition
}

// NewStateMachine opens the payments state at the given root.
func NewStateMachine(backing kvdb.Store, root common.Hash) (*StateMachine, error) {
	vs, err := state.New(backing, root, DecodeAccount)
	if err != nil {
		return nil, fmt.Errorf("open payments state: %w", err)
	}
	return &StateMachine{state: vs, stf: NewStateTransition()}, nil
}

// ExecuteTx decodes the message to find the touched accounts, loads their
// pre-state (zero leaf when absent), runs the STF and applies the
// update_set. Nothing is committed.
func (m *StateMachine) ExecuteTx(tx types.Transaction, agg types.AggregatedBatch) (types.StateUpdate, types.TransactionReceipt, error) {
	msg, err := DecodeMessage(tx.Message)
	if err != nil {
		return types.StateUpdate{}, types.TransactionReceipt{}, err
	}

	keys := []common.Hash{msg.From.StateKey()}
	if msg.From != msg.To {
		keys = append(keys, msg.To.StateKey())
	} else if msg.CallType == CallTransfer {
		// Self-transfer fails in the STF, but it still expects both slots.
		keys = append(keys, msg.To.StateKey())
	}

	preState := make([]Account, len(keys))
	for i, key := range keys {
		leaf, _, err := m.state.Get(key, false)
		if err != nil {
			return types.StateUpdate{}, types.TransactionReceipt{}, fmt.Errorf("load pre-state: %w", err)
		}
		preState[i] = leaf
	}

	postState, receipt, err := m.stf.ExecuteTx(preState, tx, agg)
	if err != nil {
		return types.StateUpdate{}, types.TransactionReceipt{}, err
	}

	update, err := m.state.UpdateSet(postState)
	if err != nil {
		return types.StateUpdate{}, types.TransactionReceipt{}, err
	}
	return update, receipt, nil
}

// Commit makes the staged batch durable.
func (m *StateMachine) Commit() error {
	return m.state.Commit()
}

// Revert drops uncommitted changes and verifies the tree is back at the
// expected root.
func (m *StateMachine) Revert(root common.Hash) error {
	got, err := m.state.Revert()
	if err != nil {
		return err
	}
	if got != root {
		return fmt.Errorf("reverted to root %x, expected %x", got, root)
	}
	return nil
}

// Root returns the current state root.
func (m *StateMachine) Root() common.Hash {
	return m.state.Root()
}

// GetState returns the account at key, reading through the uncommitted
// cache.
func (m *StateMachine) GetState(key common.Hash) (Account, bool, error) {
	return m.state.Get(key, false)
}

// StateWithProof returns the JSON-encoded leaf at key together with a
// proof against the current root. Absent keys yield the zero account and a
// non-inclusion proof.
func (m *StateMachine) StateWithProof(key common.Hash) (json.RawMessage, smt.Proof, error) {
	leaf, _, proof, err := m.state.GetWithProof(key)
	if err != nil {
		return nil, smt.Proof{}, err
	}
	raw, err := json.Marshal(leaf)
	if err != nil {
		return nil, smt.Proof{}, err
	}
	return raw, proof, nil
}

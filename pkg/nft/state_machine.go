// Copyright 2025 Certen Protocol
//
// NFT State Machine
// Stateful wrapper over VmState + the NFT STF. Additionally maintains the
// "listed NFTs" index: a side store tracking every token currently owned
// by the configured marketplace custodian. The index is a derived view and
// can be rebuilt from the tree on cold start.

package nft

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/certen/zkrollup-nexus/pkg/kvdb"
	"github.com/certen/zkrollup-nexus/pkg/smt"
	"github.com/certen/zkrollup-nexus/pkg/state"
	"github.com/certen/zkrollup-nexus/pkg/types"
)

var listingKeyPrefix = []byte("listed:")

// Listing is one entry of the custodian index.
type Listing struct {
	Id    NftId  `json:"id"`
	Price uint64 `json:"price"`
}

// StateMachine holds the NFT state tree, its transition function and the
// custodian listing index.
type StateMachine struct {
	state     *state.VmState[Nft]
	stf       *StateTransition
	listings  *kvdb.NodeDB
	custodian types.Address
	listPrice uint64
}

// NewStateMachine opens the NFT state at the given root. The listings
// store is separate from the tree's backing store so the index never
// pollutes the proved state.
func NewStateMachine(backing kvdb.Store, root common.Hash, listings *kvdb.NodeDB, custodian types.Address, listPrice uint64) (*StateMachine, error) {
	vs, err := state.New(backing, root, DecodeNft)
	if err != nil {
		return nil, fmt.Errorf("open nft state: %w", err)
	}
	return &StateMachine{
		state:     vs,
		stf:       NewStateTransition(),
		listings:  listings,
		custodian: custodian,
		listPrice: listPrice,
	}, nil
}

// ExecuteTx loads the single pre-state leaf (zero leaf when absent), runs
// the STF, applies the update_set and maintains the listing index. Nothing
// is committed.
func (m *StateMachine) ExecuteTx(tx types.Transaction, agg types.AggregatedBatch) (types.StateUpdate, types.TransactionReceipt, error) {
	msg, err := DecodeMessage(tx.Message)
	if err != nil {
		return types.StateUpdate{}, types.TransactionReceipt{}, err
	}

	key := msg.Id.StateKey()
	pre, _, err := m.state.Get(key, false)
	if err != nil {
		return types.StateUpdate{}, types.TransactionReceipt{}, fmt.Errorf("load pre-state: %w", err)
	}

	postState, receipt, err := m.stf.ExecuteTx([]Nft{pre}, tx, agg)
	if err != nil {
		return types.StateUpdate{}, types.TransactionReceipt{}, err
	}

	update, err := m.state.UpdateSet(postState)
	if err != nil {
		return types.StateUpdate{}, types.TransactionReceipt{}, err
	}

	if err := m.updateListingIndex(pre, postState); err != nil {
		return types.StateUpdate{}, types.TransactionReceipt{}, err
	}
	return update, receipt, nil
}

// updateListingIndex adds tokens that moved to the custodian and removes
// tokens that moved away.
func (m *StateMachine) updateListingIndex(pre Nft, post []Nft) error {
	if m.custodian.IsZero() {
		return nil
	}
	for _, leaf := range post {
		key := listingKey(leaf.Id)
		switch {
		case leaf.Owner == m.custodian:
			if err := kvdb.Put(m.listings, key, Listing{Id: leaf.Id, Price: m.listPrice}); err != nil {
				return fmt.Errorf("listing index add: %w", err)
			}
		case pre.Owner == m.custodian && leaf.Owner != m.custodian:
			if err := m.listings.Delete(key); err != nil {
				return fmt.Errorf("listing index remove: %w", err)
			}
		}
	}
	return nil
}

// RebuildListingIndex walks every leaf in the committed tree and rebuilds
// the index from scratch. Used on cold start when the index store is lost.
func (m *StateMachine) RebuildListingIndex(backing *kvdb.CometStore) (int, error) {
	if m.custodian.IsZero() {
		return 0, nil
	}
	count := 0
	err := backing.Iterate(smt.LeafValuePrefix(), func(k, v []byte) bool {
		if _, ok := smt.LeafKeyFromStorageKey(k); !ok {
			return true
		}
		leaf, err := DecodeNft(v)
		if err != nil {
			return true
		}
		if leaf.Owner == m.custodian {
			if kvdb.Put(m.listings, listingKey(leaf.Id), Listing{Id: leaf.Id, Price: m.listPrice}) == nil {
				count++
			}
		}
		return true
	})
	return count, err
}

// ListedNfts returns the current leaves of every listed token.
func (m *StateMachine) ListedNfts() ([]Nft, error) {
	store, ok := m.listings.Store().(*kvdb.CometStore)
	if !ok {
		return nil, fmt.Errorf("listings store does not support iteration")
	}

	var out []Nft
	var iterErr error
	err := store.Iterate(listingKeyPrefix, func(k, v []byte) bool {
		var l Listing
		if json.Unmarshal(v, &l) != nil {
			return true
		}
		leaf, ok, err := m.state.Get(l.Id.StateKey(), false)
		if err != nil {
			iterErr = err
			return false
		}
		if ok && leaf.Owner == m.custodian {
			out = append(out, leaf)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, iterErr
}

// Listing returns the listing entry for a token, if present.
func (m *StateMachine) Listing(id NftId) (Listing, bool, error) {
	return kvdb.Get[Listing](m.listings, listingKey(id))
}

// Custodian returns the configured custodian address.
func (m *StateMachine) Custodian() types.Address {
	return m.custodian
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

// GetState returns the NFT at key, reading through the uncommitted cache.
func (m *StateMachine) GetState(key common.Hash) (Nft, bool, error) {
	return m.state.Get(key, false)
}

// StateWithProof returns the JSON-encoded leaf at key together with a
// proof against the current root.
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

func listingKey(id NftId) []byte {
	key := id.StateKey()
	return append(append([]byte{}, listingKeyPrefix...), key[:]...)
}

// Copyright 2025 Certen Protocol
//
// NFT State Machine Tests
// Focus on the custodian listing index and the commit/revert discipline.

package nft

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/certen/zkrollup-nexus/pkg/kvdb"
	"github.com/certen/zkrollup-nexus/pkg/types"
)

func newNftMachine(t *testing.T, custodian types.Address) (*StateMachine, *kvdb.CometStore) {
	t.Helper()
	backing := kvdb.NewMemStore()
	m, err := NewStateMachine(backing, common.Hash{}, kvdb.NewNodeDB(kvdb.NewMemStore()), custodian, 10)
	if err != nil {
		t.Fatalf("new machine: %v", err)
	}
	return m, backing
}

func TestMachine_ListingIndexFollowsCustody(t *testing.T) {
	custodian := signerFor("custodian")
	alice := signerFor("alice")
	m, _ := newNftMachine(t, custodian.Address())

	id := NewNftId(7)

	// Mint to the custodian: listed.
	mint := signedTx(t, custodian, Message{
		CallType: CallMint, Id: id, From: custodian.Address(), To: custodian.Address(), Metadata: "for sale",
	})
	if _, _, err := m.ExecuteTx(mint, types.AggregatedBatch{}); err != nil {
		t.Fatalf("mint: %v", err)
	}

	listed, err := m.ListedNfts()
	if err != nil {
		t.Fatalf("listed: %v", err)
	}
	if len(listed) != 1 || !listed[0].Id.Eq(&id.Int) {
		t.Fatalf("listing index = %+v, want the minted token", listed)
	}
	if l, ok, _ := m.Listing(id); !ok || l.Price != 10 {
		t.Errorf("listing entry = %+v, ok=%v", l, ok)
	}

	// Transfer away from the custodian: delisted.
	transfer := signedTx(t, custodian, Message{
		CallType: CallTransfer, Id: id, From: custodian.Address(), To: alice.Address(),
	})
	if _, _, err := m.ExecuteTx(transfer, types.AggregatedBatch{}); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	listed, err = m.ListedNfts()
	if err != nil {
		t.Fatalf("listed: %v", err)
	}
	if len(listed) != 0 {
		t.Errorf("token still listed after leaving custody: %+v", listed)
	}
}

func TestMachine_RebuildListingIndex(t *testing.T) {
	custodian := signerFor("custodian")
	m, backing := newNftMachine(t, custodian.Address())

	for _, n := range []uint64{1, 2} {
		mint := signedTx(t, custodian, Message{
			CallType: CallMint, Id: NewNftId(n), From: custodian.Address(), To: custodian.Address(),
		})
		if _, _, err := m.ExecuteTx(mint, types.AggregatedBatch{}); err != nil {
			t.Fatalf("mint %d: %v", n, err)
		}
	}
	if err := m.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	root := m.Root()

	// Cold start with a fresh (lost) index store: rebuild from the tree.
	rebuilt, err := NewStateMachine(backing, root, kvdb.NewNodeDB(kvdb.NewMemStore()), custodian.Address(), 10)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	count, err := rebuilt.RebuildListingIndex(backing)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if count != 2 {
		t.Errorf("rebuilt %d listings, want 2", count)
	}

	listed, err := rebuilt.ListedNfts()
	if err != nil {
		t.Fatalf("listed: %v", err)
	}
	if len(listed) != 2 {
		t.Errorf("listing index has %d entries after rebuild, want 2", len(listed))
	}
}

func TestMachine_TriggerThroughMachine(t *testing.T) {
	alice := signerFor("alice")
	bob := signerFor("bob")
	m, _ := newNftMachine(t, types.ZeroAddress)

	id := NewNftId(1)
	mint := signedTx(t, alice, Message{CallType: CallMint, Id: id, From: alice.Address(), To: alice.Address()})
	if _, _, err := m.ExecuteTx(mint, types.AggregatedBatch{}); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := m.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	// Reserve against an expected receipt, then resolve with inclusion.
	expected := types.TransactionReceipt{ChainID: types.PaymentsChainID, Data: []byte{42}}
	commitment := expected.Hash()
	hold := signedTx(t, alice, Message{
		CallType: CallTransfer, Id: id, From: alice.Address(), To: bob.Address(),
		FutureCommitment: &commitment,
	})
	if _, _, err := m.ExecuteTx(hold, types.AggregatedBatch{}); err != nil {
		t.Fatalf("hold: %v", err)
	}
	if err := m.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	tree, root := receiptsTreeWith(t, expected)
	proof, err := tree.Prove([]common.Hash{commitment})
	if err != nil {
		t.Fatalf("prove: %v", err)
	}
	trigger := signedTx(t, bob, Message{
		CallType: CallTrigger, Id: id, From: bob.Address(), Proof: &proof, Receipt: &expected,
	})
	if _, _, err := m.ExecuteTx(trigger, types.AggregatedBatch{ReceiptsRoot: root}); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if err := m.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	leaf, found, err := m.GetState(id.StateKey())
	if err != nil || !found {
		t.Fatalf("leaf missing: %v", err)
	}
	if leaf.Owner != bob.Address() || leaf.Future != nil {
		t.Errorf("trigger did not resolve: %+v", leaf)
	}
}

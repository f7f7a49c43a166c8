// Copyright 2025 Certen Protocol
//
// Payments STF Tests

package payments

import (
	"errors"
	"testing"

	"github.com/certen/zkrollup-nexus/pkg/types"
)

func signerFor(seed string) *types.Signer {
	return types.SignerFromSeed(seed)
}

func signedTx(t *testing.T, signer *types.Signer, m Message) types.Transaction {
	t.Helper()
	tx, err := NewTransaction(signer, m)
	if err != nil {
		t.Fatalf("sign tx: %v", err)
	}
	return tx
}

func TestSTF_SelfMintThenTransfer(t *testing.T) {
	stf := NewStateTransition()
	alice := signerFor("alice")
	bob := signerFor("bob")

	// Mint(alice -> alice, 1000): balance 1000, nonce 1.
	mint := signedTx(t, alice, Message{
		CallType: CallMint, From: alice.Address(), To: alice.Address(), Amount: 1000,
	})
	post, receipt, err := stf.ExecuteTx([]Account{{}}, mint, types.AggregatedBatch{})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if len(post) != 1 {
		t.Fatalf("self-mint must collapse to one account, got %d", len(post))
	}
	if post[0].Balance != 1000 || post[0].Nonce != 1 {
		t.Errorf("minted account = %+v, want balance 1000 nonce 1", post[0])
	}

	rd, err := DecodeReceiptData(receipt.Data)
	if err != nil {
		t.Fatalf("receipt decode: %v", err)
	}
	if rd.From != types.ZeroAddress || rd.To != alice.Address() || rd.Amount != 1000 || rd.Nonce != 1 {
		t.Errorf("mint receipt = %+v", rd)
	}
	if receipt.ChainID != types.PaymentsChainID {
		t.Errorf("mint receipt chain id %d", receipt.ChainID)
	}

	// Transfer(alice -> bob, 400): alice {600, 2}, bob {400, 0}.
	transfer := signedTx(t, alice, Message{
		CallType: CallTransfer, From: alice.Address(), To: bob.Address(), Amount: 400,
	})
	post, _, err = stf.ExecuteTx([]Account{post[0], {}}, transfer, types.AggregatedBatch{})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if post[0].Balance != 600 || post[0].Nonce != 2 {
		t.Errorf("sender = %+v, want {600, 2}", post[0])
	}
	if post[1].Balance != 400 || post[1].Nonce != 0 {
		t.Errorf("receiver = %+v, want {400, 0}", post[1])
	}
}

func TestSTF_TransferInsufficientBalance(t *testing.T) {
	stf := NewStateTransition()
	alice := signerFor("alice")
	bob := signerFor("bob")

	sender := Account{Address: alice.Address(), Balance: 100, Nonce: 1}
	tx := signedTx(t, alice, Message{
		CallType: CallTransfer, From: alice.Address(), To: bob.Address(), Amount: 101,
	})

	_, _, err := stf.ExecuteTx([]Account{sender, {}}, tx, types.AggregatedBatch{})
	if !errors.Is(err, types.ErrInsufficientBalance) {
		t.Errorf("got %v, want ErrInsufficientBalance", err)
	}
}

func TestSTF_SelfTransferRejected(t *testing.T) {
	stf := NewStateTransition()
	alice := signerFor("alice")

	sender := Account{Address: alice.Address(), Balance: 100, Nonce: 1}
	tx := signedTx(t, alice, Message{
		CallType: CallTransfer, From: alice.Address(), To: alice.Address(), Amount: 10,
	})

	_, _, err := stf.ExecuteTx([]Account{sender, sender}, tx, types.AggregatedBatch{})
	if !errors.Is(err, types.ErrSelfTransfer) {
		t.Errorf("got %v, want ErrSelfTransfer", err)
	}
}

func TestSTF_SignatureGating(t *testing.T) {
	stf := NewStateTransition()
	alice := signerFor("alice")
	mallory := signerFor("mallory")

	// Mallory signs a message claiming to be from alice.
	msg := Message{CallType: CallTransfer, From: alice.Address(), To: mallory.Address(), Amount: 10}
	tx := signedTx(t, mallory, msg)

	_, _, err := stf.ExecuteTx([]Account{{Address: alice.Address(), Balance: 100, Nonce: 1}, {}}, tx, types.AggregatedBatch{})
	if !errors.Is(err, types.ErrSignature) {
		t.Errorf("got %v, want ErrSignature", err)
	}
}

func TestSTF_MintToOther(t *testing.T) {
	stf := NewStateTransition()
	alice := signerFor("alice")
	bob := signerFor("bob")

	tx := signedTx(t, alice, Message{
		CallType: CallMint, From: alice.Address(), To: bob.Address(), Amount: 50,
	})
	post, _, err := stf.ExecuteTx([]Account{{}, {}}, tx, types.AggregatedBatch{})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if len(post) != 2 {
		t.Fatalf("mint to other must touch 2 accounts, got %d", len(post))
	}
	if post[0].Nonce != 1 || post[0].Balance != 0 {
		t.Errorf("minter = %+v, want {0, 1}", post[0])
	}
	if post[1].Balance != 50 {
		t.Errorf("receiver = %+v, want balance 50", post[1])
	}
}

func TestMessage_EncodeDecodeRoundTrip(t *testing.T) {
	alice := signerFor("alice")
	bob := signerFor("bob")
	msg := Message{
		CallType: CallTransfer,
		From:     alice.Address(),
		To:       bob.Address(),
		Amount:   12345,
		Data:     []byte("memo"),
	}

	decoded, err := DecodeMessage(msg.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.CallType != msg.CallType || decoded.From != msg.From ||
		decoded.To != msg.To || decoded.Amount != msg.Amount || string(decoded.Data) != "memo" {
		t.Errorf("round trip mismatch: %+v", decoded)
	}

	if _, err := DecodeMessage(append(msg.Encode(), 0)); err == nil {
		t.Errorf("trailing bytes accepted")
	}
	unknown := msg.Encode()
	unknown[0] = 9
	if _, err := DecodeMessage(unknown); err == nil {
		t.Errorf("unknown call type accepted")
	}
}

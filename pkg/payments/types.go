// Copyright 2025 Certen Protocol
//
// Payments Chain Types
// Account leaves, the transfer/mint message enum and the receipt record
// exported to the cross-chain protocol. Chain id 7001.

package payments

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/certen/zkrollup-nexus/pkg/types"
)

// CallType discriminates the payments message variants.
type CallType uint8

const (
	CallTransfer CallType = 0
	CallMint     CallType = 1
)

// Account is the payments state leaf.
type Account struct {
	Address types.Address `json:"address"`
	Balance uint64        `json:"balance"`
	Nonce   uint64        `json:"nonce"`
}

// IsZero reports whether the account is the empty leaf: the tree treats it
// as absent.
func (a Account) IsZero() bool {
	return a.Balance == 0 && a.Nonce == 0
}

// StateKey keys the account by its address bytes.
func (a Account) StateKey() common.Hash {
	return a.Address.StateKey()
}

// EncodeLeaf renders the account in its canonical binary form.
func (a Account) EncodeLeaf() []byte {
	out := make([]byte, 0, 48)
	out = append(out, a.Address[:]...)
	out = binary.BigEndian.AppendUint64(out, a.Balance)
	return binary.BigEndian.AppendUint64(out, a.Nonce)
}

// DecodeAccount parses the canonical binary form.
func DecodeAccount(b []byte) (Account, error) {
	if len(b) != 48 {
		return Account{}, fmt.Errorf("account leaf must be 48 bytes, got %d", len(b))
	}
	var a Account
	copy(a.Address[:], b[:32])
	a.Balance = binary.BigEndian.Uint64(b[32:40])
	a.Nonce = binary.BigEndian.Uint64(b[40:48])
	return a, nil
}

// StateHash is the leaf hash: zero for the empty account, SHA-256 over the
// canonical encoding otherwise.
func (a Account) StateHash() common.Hash {
	if a.IsZero() {
		return common.Hash{}
	}
	sum := sha256.Sum256(a.EncodeLeaf())
	return common.BytesToHash(sum[:])
}

// Message is the decoded payments transaction message.
type Message struct {
	CallType CallType      `json:"call_type"`
	From     types.Address `json:"from"`
	To       types.Address `json:"to"`
	Amount   uint64        `json:"amount"`
	Data     []byte        `json:"data,omitempty"`
}

// Encode renders the message in its canonical binary form: the bytes that
// are signed, hashed and decoded.
func (m Message) Encode() []byte {
	out := make([]byte, 0, 77+len(m.Data))
	out = append(out, byte(m.CallType))
	out = append(out, m.From[:]...)
	out = append(out, m.To[:]...)
	out = binary.BigEndian.AppendUint64(out, m.Amount)
	out = binary.BigEndian.AppendUint32(out, uint32(len(m.Data)))
	return append(out, m.Data...)
}

// DecodeMessage parses the canonical binary form, rejecting trailing bytes.
func DecodeMessage(b []byte) (Message, error) {
	if len(b) < 77 {
		return Message{}, fmt.Errorf("%w: payments message too short", types.ErrBadEncoding)
	}
	var m Message
	m.CallType = CallType(b[0])
	if m.CallType != CallTransfer && m.CallType != CallMint {
		return Message{}, fmt.Errorf("%w: unknown payments call type %d", types.ErrBadEncoding, b[0])
	}
	copy(m.From[:], b[1:33])
	copy(m.To[:], b[33:65])
	m.Amount = binary.BigEndian.Uint64(b[65:73])
	n := int(binary.BigEndian.Uint32(b[73:77]))
	if len(b) != 77+n {
		return Message{}, fmt.Errorf("%w: payments message length mismatch", types.ErrBadEncoding)
	}
	if n > 0 {
		m.Data = make([]byte, n)
		copy(m.Data, b[77:])
	}
	return m, nil
}

// NewTransaction signs a message and wraps it in the wire transaction.
func NewTransaction(signer *types.Signer, m Message) (types.Transaction, error) {
	msg := m.Encode()
	sig, err := signer.Sign(msg)
	if err != nil {
		return types.Transaction{}, err
	}
	return types.Transaction{Message: msg, Signature: sig}, nil
}

// ReceiptData is the payments receipt record: exactly the fields the
// cross-chain protocol needs to reconstruct the expected receipt.
type ReceiptData struct {
	From     types.Address `json:"from"`
	To       types.Address `json:"to"`
	Amount   uint64        `json:"amount"`
	CallType CallType      `json:"call_type"`
	Nonce    uint64        `json:"nonce"`
	Data     []byte        `json:"data,omitempty"`
}

// Encode renders the receipt record in its canonical binary form.
func (r ReceiptData) Encode() []byte {
	out := make([]byte, 0, 85+len(r.Data))
	out = append(out, r.From[:]...)
	out = append(out, r.To[:]...)
	out = binary.BigEndian.AppendUint64(out, r.Amount)
	out = append(out, byte(r.CallType))
	out = binary.BigEndian.AppendUint64(out, r.Nonce)
	out = binary.BigEndian.AppendUint32(out, uint32(len(r.Data)))
	return append(out, r.Data...)
}

// DecodeReceiptData parses the canonical binary form.
func DecodeReceiptData(b []byte) (ReceiptData, error) {
	if len(b) < 85 {
		return ReceiptData{}, fmt.Errorf("%w: payments receipt data too short", types.ErrBadEncoding)
	}
	var r ReceiptData
	copy(r.From[:], b[:32])
	copy(r.To[:], b[32:64])
	r.Amount = binary.BigEndian.Uint64(b[64:72])
	r.CallType = CallType(b[72])
	r.Nonce = binary.BigEndian.Uint64(b[73:81])
	n := int(binary.BigEndian.Uint32(b[81:85]))
	if len(b) != 85+n {
		return ReceiptData{}, fmt.Errorf("%w: payments receipt data length mismatch", types.ErrBadEncoding)
	}
	if n > 0 {
		r.Data = make([]byte, n)
		copy(r.Data, b[85:])
	}
	return r, nil
}

// Receipt wraps the record into a chain-tagged transaction receipt.
func (r ReceiptData) Receipt() types.TransactionReceipt {
	return types.TransactionReceipt{
		ChainID: types.PaymentsChainID,
		Data:    r.Encode(),
	}
}

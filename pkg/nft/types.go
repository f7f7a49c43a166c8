// Copyright 2025 Certen Protocol
//
// NFT Chain Types
// NFT leaves with optional Futures, the transfer/mint/burn/trigger message
// enum and the receipt records exported to the cross-chain protocol.
// Chain id 7000.

package nft

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/certen/zkrollup-nexus/pkg/smt"
	"github.com/certen/zkrollup-nexus/pkg/types"
)

// NftId is a 256-bit token id. Its big-endian bytes are the state tree key.
type NftId struct {
	uint256.Int
}

// NewNftId builds an id from a uint64.
func NewNftId(v uint64) NftId {
	var id NftId
	id.SetUint64(v)
	return id
}

// NftIdFromKey reconstructs an id from its 32-byte tree key.
func NftIdFromKey(key common.Hash) NftId {
	var id NftId
	id.SetBytes(key[:])
	return id
}

// StateKey is the big-endian id bytes.
func (id NftId) StateKey() common.Hash {
	b := id.Bytes32()
	return common.BytesToHash(b[:])
}

// MarshalJSON renders the id as a hex quantity.
func (id NftId) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.Hex() + `"`), nil
}

// UnmarshalJSON accepts a hex quantity.
func (id *NftId) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("nft id must be a hex string")
	}
	return id.SetFromHex(s[1 : len(s)-1])
}

// Future is a conditional reservation pinned into an NFT leaf: if the
// receipt hashing to Commitment is later proven aggregated, ownership moves
// to To; a proven non-inclusion cancels the reservation instead.
type Future struct {
	To         types.Address `json:"to"`
	Commitment common.Hash   `json:"commitment"`
}

// Nft is the NFT state leaf. At most one Future is attached at a time.
type Nft struct {
	Id       NftId         `json:"id"`
	Owner    types.Address `json:"owner"`
	Nonce    uint64        `json:"nonce"`
	Future   *Future       `json:"future,omitempty"`
	Metadata string        `json:"metadata,omitempty"`
}

// IsZero reports whether the leaf is empty (no owner): the tree treats it
// as absent.
func (n Nft) IsZero() bool {
	return n.Owner.IsZero()
}

// StateKey keys the leaf by its id.
func (n Nft) StateKey() common.Hash {
	return n.Id.StateKey()
}

// EncodeLeaf renders the leaf in its canonical binary form.
func (n Nft) EncodeLeaf() []byte {
	out := make([]byte, 0, 142+len(n.Metadata))
	key := n.Id.Bytes32()
	out = append(out, key[:]...)
	out = append(out, n.Owner[:]...)
	out = binary.BigEndian.AppendUint64(out, n.Nonce)
	if n.Future != nil {
		out = append(out, 1)
		out = append(out, n.Future.To[:]...)
		out = append(out, n.Future.Commitment[:]...)
	} else {
		out = append(out, 0)
	}
	out = binary.BigEndian.AppendUint32(out, uint32(len(n.Metadata)))
	return append(out, n.Metadata...)
}

// DecodeNft parses the canonical binary form.
func DecodeNft(b []byte) (Nft, error) {
	if len(b) < 77 {
		return Nft{}, fmt.Errorf("nft leaf too short (%d bytes)", len(b))
	}
	var n Nft
	n.Id = NftIdFromKey(common.BytesToHash(b[:32]))
	copy(n.Owner[:], b[32:64])
	n.Nonce = binary.BigEndian.Uint64(b[64:72])
	off := 72
	switch b[off] {
	case 1:
		if len(b) < off+69 {
			return Nft{}, fmt.Errorf("nft leaf future truncated")
		}
		f := &Future{}
		copy(f.To[:], b[off+1:off+33])
		copy(f.Commitment[:], b[off+33:off+65])
		n.Future = f
		off += 65
	case 0:
		off++
	default:
		return Nft{}, fmt.Errorf("nft leaf: bad future flag %d", b[off])
	}
	if len(b) < off+4 {
		return Nft{}, fmt.Errorf("nft leaf metadata truncated")
	}
	m := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if len(b) != off+m {
		return Nft{}, fmt.Errorf("nft leaf length mismatch")
	}
	n.Metadata = string(b[off:])
	return n, nil
}

// StateHash is the leaf hash: zero for an unowned NFT, SHA-256 over the
// canonical encoding otherwise.
func (n Nft) StateHash() common.Hash {
	if n.IsZero() {
		return common.Hash{}
	}
	sum := sha256.Sum256(n.EncodeLeaf())
	return common.BytesToHash(sum[:])
}

// CallType discriminates the NFT message variants.
type CallType uint8

const (
	CallTransfer CallType = 0
	CallMint     CallType = 1
	CallBurn     CallType = 2
	CallTrigger  CallType = 3
)

// Message is the decoded NFT transaction message. Fields beyond the common
// ones are populated per call type: To for transfer/mint, Metadata for
// mint, FutureCommitment for transfer/mint/burn, Proof and Receipt for
// trigger.
type Message struct {
	CallType         CallType                  `json:"call_type"`
	Id               NftId                     `json:"id"`
	From             types.Address             `json:"from"`
	To               types.Address             `json:"to,omitempty"`
	Data             []byte                    `json:"data,omitempty"`
	Metadata         string                    `json:"metadata,omitempty"`
	FutureCommitment *common.Hash              `json:"future_commitment,omitempty"`
	Proof            *smt.Proof                `json:"merkle_proof,omitempty"`
	Receipt          *types.TransactionReceipt `json:"receipt,omitempty"`
}

// Encode renders the message in its canonical binary form: the bytes that
// are signed, hashed and decoded.
func (m Message) Encode() []byte {
	out := make([]byte, 0, 256)
	out = append(out, byte(m.CallType))
	key := m.Id.Bytes32()
	out = append(out, key[:]...)
	out = append(out, m.From[:]...)

	switch m.CallType {
	case CallTransfer:
		out = append(out, m.To[:]...)
		out = appendLP(out, m.Data)
		out = appendCommitment(out, m.FutureCommitment)
	case CallMint:
		out = append(out, m.To[:]...)
		out = appendLP(out, m.Data)
		out = appendLP(out, []byte(m.Metadata))
		out = appendCommitment(out, m.FutureCommitment)
	case CallBurn:
		out = appendLP(out, m.Data)
		out = appendCommitment(out, m.FutureCommitment)
	case CallTrigger:
		out = appendLP(out, m.Data)
		if m.Receipt != nil {
			out = appendLP(out, m.Receipt.Encode())
		} else {
			out = appendLP(out, nil)
		}
		if m.Proof != nil {
			out = appendLP(out, m.Proof.Encode())
		} else {
			out = appendLP(out, nil)
		}
	}
	return out
}

// DecodeMessage parses the canonical binary form, rejecting trailing bytes.
func DecodeMessage(b []byte) (Message, error) {
	if len(b) < 65 {
		return Message{}, fmt.Errorf("%w: nft message too short", types.ErrBadEncoding)
	}
	var m Message
	m.CallType = CallType(b[0])
	m.Id = NftIdFromKey(common.BytesToHash(b[1:33]))
	copy(m.From[:], b[33:65])
	off := 65

	var err error
	switch m.CallType {
	case CallTransfer:
		if off, err = decodeTo(&m, b, off); err != nil {
			return Message{}, err
		}
		if m.Data, off, err = readLP(b, off); err != nil {
			return Message{}, err
		}
		if m.FutureCommitment, off, err = readCommitment(b, off); err != nil {
			return Message{}, err
		}
	case CallMint:
		if off, err = decodeTo(&m, b, off); err != nil {
			return Message{}, err
		}
		if m.Data, off, err = readLP(b, off); err != nil {
			return Message{}, err
		}
		var meta []byte
		if meta, off, err = readLP(b, off); err != nil {
			return Message{}, err
		}
		m.Metadata = string(meta)
		if m.FutureCommitment, off, err = readCommitment(b, off); err != nil {
			return Message{}, err
		}
	case CallBurn:
		if m.Data, off, err = readLP(b, off); err != nil {
			return Message{}, err
		}
		if m.FutureCommitment, off, err = readCommitment(b, off); err != nil {
			return Message{}, err
		}
	case CallTrigger:
		if m.Data, off, err = readLP(b, off); err != nil {
			return Message{}, err
		}
		var raw []byte
		if raw, off, err = readLP(b, off); err != nil {
			return Message{}, err
		}
		receipt, used, err := types.DecodeReceipt(raw)
		if err != nil || used != len(raw) {
			return Message{}, fmt.Errorf("%w: trigger receipt", types.ErrBadEncoding)
		}
		m.Receipt = &receipt
		if raw, off, err = readLP(b, off); err != nil {
			return Message{}, err
		}
		proof, used, perr := smt.DecodeProof(raw)
		if perr != nil || used != len(raw) {
			return Message{}, fmt.Errorf("%w: trigger proof", types.ErrBadEncoding)
		}
		m.Proof = &proof
	default:
		return Message{}, fmt.Errorf("%w: unknown nft call type %d", types.ErrBadEncoding, b[0])
	}

	if off != len(b) {
		return Message{}, fmt.Errorf("%w: nft message trailing bytes", types.ErrBadEncoding)
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

// TransferReceiptData is the receipt record for unconditional ownership
// changes (transfer, mint, burn, resolved or cancelled triggers).
type TransferReceiptData struct {
	Id    NftId         `json:"id"`
	From  types.Address `json:"from"`
	To    types.Address `json:"to"`
	Nonce uint64        `json:"nonce"`
	Data  []byte        `json:"data,omitempty"`
}

// Encode renders the record in its canonical binary form.
func (r TransferReceiptData) Encode() []byte {
	out := make([]byte, 0, 108+len(r.Data))
	key := r.Id.Bytes32()
	out = append(out, key[:]...)
	out = append(out, r.From[:]...)
	out = append(out, r.To[:]...)
	out = binary.BigEndian.AppendUint64(out, r.Nonce)
	return appendLP(out, r.Data)
}

// DecodeTransferReceiptData parses the canonical binary form.
func DecodeTransferReceiptData(b []byte) (TransferReceiptData, error) {
	if len(b) < 108 {
		return TransferReceiptData{}, fmt.Errorf("%w: nft receipt data too short", types.ErrBadEncoding)
	}
	var r TransferReceiptData
	r.Id = NftIdFromKey(common.BytesToHash(b[:32]))
	copy(r.From[:], b[32:64])
	copy(r.To[:], b[64:96])
	r.Nonce = binary.BigEndian.Uint64(b[96:104])
	data, off, err := readLP(b, 104)
	if err != nil || off != len(b) {
		return TransferReceiptData{}, fmt.Errorf("%w: nft receipt data length mismatch", types.ErrBadEncoding)
	}
	r.Data = data
	return r, nil
}

// Receipt wraps the record into a chain-tagged transaction receipt.
func (r TransferReceiptData) Receipt() types.TransactionReceipt {
	return types.TransactionReceipt{ChainID: types.NFTChainID, Data: r.Encode()}
}

// FutureReceiptData is the receipt record for reservations: it carries the
// pinned commitment so observers can track the conditional transfer.
type FutureReceiptData struct {
	Id               NftId         `json:"id"`
	From             types.Address `json:"from"`
	To               types.Address `json:"to"`
	Nonce            uint64        `json:"nonce"`
	FutureCommitment common.Hash   `json:"future_commitment"`
	Data             []byte        `json:"data,omitempty"`
}

// Encode renders the record in its canonical binary form.
func (r FutureReceiptData) Encode() []byte {
	out := make([]byte, 0, 140+len(r.Data))
	key := r.Id.Bytes32()
	out = append(out, key[:]...)
	out = append(out, r.From[:]...)
	out = append(out, r.To[:]...)
	out = binary.BigEndian.AppendUint64(out, r.Nonce)
	out = append(out, r.FutureCommitment[:]...)
	return appendLP(out, r.Data)
}

// Receipt wraps the record into a chain-tagged transaction receipt.
func (r FutureReceiptData) Receipt() types.TransactionReceipt {
	return types.TransactionReceipt{ChainID: types.NFTChainID, Data: r.Encode()}
}

// encoding helpers shared by the message and receipt forms

func appendLP(out, b []byte) []byte {
	out = binary.BigEndian.AppendUint32(out, uint32(len(b)))
	return append(out, b...)
}

func readLP(b []byte, off int) ([]byte, int, error) {
	if len(b) < off+4 {
		return nil, 0, fmt.Errorf("%w: truncated length prefix", types.ErrBadEncoding)
	}
	n := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if len(b) < off+n {
		return nil, 0, fmt.Errorf("%w: truncated byte string", types.ErrBadEncoding)
	}
	if n == 0 {
		return nil, off, nil
	}
	data := make([]byte, n)
	copy(data, b[off:off+n])
	return data, off + n, nil
}

func appendCommitment(out []byte, c *common.Hash) []byte {
	if c != nil {
		out = append(out, 1)
		return append(out, c[:]...)
	}
	return append(out, 0)
}

func readCommitment(b []byte, off int) (*common.Hash, int, error) {
	if len(b) < off+1 {
		return nil, 0, fmt.Errorf("%w: truncated commitment flag", types.ErrBadEncoding)
	}
	switch b[off] {
	case 0:
		return nil, off + 1, nil
	case 1:
		if len(b) < off+33 {
			return nil, 0, fmt.Errorf("%w: truncated commitment", types.ErrBadEncoding)
		}
		h := common.BytesToHash(b[off+1 : off+33])
		return &h, off + 33, nil
	}
	return nil, 0, fmt.Errorf("%w: bad commitment flag", types.ErrBadEncoding)
}

func decodeTo(m *Message, b []byte, off int) (int, error) {
	if len(b) < off+32 {
		return 0, fmt.Errorf("%w: truncated recipient", types.ErrBadEncoding)
	}
	copy(m.To[:], b[off:off+32])
	return off + 32, nil
}

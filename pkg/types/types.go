// Copyright 2025 Certen Protocol
//
// Core Rollup Types
// Transactions, receipts, batch headers and the cross-chain artifacts
// exchanged between the app nodes, the DA layer and the Nexus aggregator.

package types

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/certen/zkrollup-nexus/pkg/smt"
)

// AppChain identifies which rollup a batch or receipt belongs to.
type AppChain string

const (
	ChainNFT      AppChain = "nft"
	ChainPayments AppChain = "payments"

	// Chain ids embedded in receipts.
	NFTChainID      uint64 = 7000
	PaymentsChainID uint64 = 7001
)

// ChainID returns the numeric chain id for receipts, 0 for unknown chains.
func (c AppChain) ChainID() uint64 {
	switch c {
	case ChainNFT:
		return NFTChainID
	case ChainPayments:
		return PaymentsChainID
	}
	return 0
}

// Valid reports whether the chain tag is one of the known chains.
func (c AppChain) Valid() bool {
	return c == ChainNFT || c == ChainPayments
}

// Transaction is the wire form shared by both chains: the canonical
// encoding of a domain message plus an ed25519 signature over it. The
// state transition functions decode the message to learn its `from`
// address and check the signature against it before applying any rule.
type Transaction struct {
	Message   []byte `json:"message"`
	Signature []byte `json:"signature"`
}

// Encode renders the transaction in its canonical binary form.
func (t Transaction) Encode() []byte {
	out := make([]byte, 0, 4+len(t.Message)+len(t.Signature))
	out = appendBytes(out, t.Message)
	return append(out, t.Signature...)
}

// DecodeTransaction parses the canonical binary form.
func DecodeTransaction(b []byte) (Transaction, int, error) {
	msg, off, err := readBytes(b, 0)
	if err != nil {
		return Transaction{}, 0, fmt.Errorf("transaction: %w", err)
	}
	if len(b) < off+SignatureLength {
		return Transaction{}, 0, fmt.Errorf("transaction: truncated signature")
	}
	sig := make([]byte, SignatureLength)
	copy(sig, b[off:off+SignatureLength])
	return Transaction{Message: msg, Signature: sig}, off + SignatureLength, nil
}

// Hash is the transaction identity: SHA-256 over the canonical encoding.
// The same hash keys the on-disk transaction record.
func (t Transaction) Hash() common.Hash {
	return common.BytesToHash(sha256Sum(t.Encode()))
}

// TransactionReceipt is the sole cross-chain artifact. Data is the
// canonical encoding of a per-domain receipt record.
type TransactionReceipt struct {
	ChainID uint64 `json:"chain_id"`
	Data    []byte `json:"data"`
}

// ZeroReceipt returns the receipt that stands for absence.
func ZeroReceipt() TransactionReceipt {
	return TransactionReceipt{ChainID: 0, Data: []byte{0}}
}

// IsZero reports whether the receipt is the absence marker.
func (r TransactionReceipt) IsZero() bool {
	return r.ChainID == 0 && len(r.Data) == 1 && r.Data[0] == 0
}

// Encode renders the receipt in its canonical binary form.
func (r TransactionReceipt) Encode() []byte {
	out := make([]byte, 0, 12+len(r.Data))
	out = binary.BigEndian.AppendUint64(out, r.ChainID)
	return appendBytes(out, r.Data)
}

// DecodeReceipt parses the canonical binary form.
func DecodeReceipt(b []byte) (TransactionReceipt, int, error) {
	id, off, err := readU64(b, 0)
	if err != nil {
		return TransactionReceipt{}, 0, fmt.Errorf("receipt: %w", err)
	}
	data, off, err := readBytes(b, off)
	if err != nil {
		return TransactionReceipt{}, 0, fmt.Errorf("receipt: %w", err)
	}
	return TransactionReceipt{ChainID: id, Data: data}, off, nil
}

// Hash is deterministic over the canonical encoding. The zero receipt
// hashes to the zero hash so it coincides with tree absence.
func (r TransactionReceipt) Hash() common.Hash {
	if r.IsZero() {
		return common.Hash{}
	}
	return common.BytesToHash(sha256Sum(r.Encode()))
}

// StateKey keys the receipt into the Nexus receipts tree: its own hash.
func (r TransactionReceipt) StateKey() common.Hash {
	return r.Hash()
}

// EncodeLeaf renders the receipt as a receipts-tree leaf value.
func (r TransactionReceipt) EncodeLeaf() []byte {
	return r.Encode()
}

// DecodeReceiptLeaf parses a receipts-tree leaf value.
func DecodeReceiptLeaf(b []byte) (TransactionReceipt, error) {
	r, used, err := DecodeReceipt(b)
	if err != nil {
		return TransactionReceipt{}, err
	}
	if used != len(b) {
		return TransactionReceipt{}, fmt.Errorf("receipt leaf: trailing bytes")
	}
	return r, nil
}

// StateHash is the leaf hash for the receipts tree, identical to the key.
func (r TransactionReceipt) StateHash() common.Hash {
	return r.Hash()
}

// BatchHeader is the five-field fingerprint of one proved state
// transition. It is both the zkVM journal and the commitment posted with
// every DA blob.
type BatchHeader struct {
	PreStateRoot     common.Hash `json:"pre_state_root"`
	StateRoot        common.Hash `json:"state_root"`
	TransactionsRoot common.Hash `json:"transactions_root"`
	ReceiptsRoot     common.Hash `json:"receipts_root"`
	BatchNumber      uint64      `json:"batch_number"`
}

// BatchHeaderEncodedLength is the fixed size of an encoded header.
const BatchHeaderEncodedLength = 4*common.HashLength + 8

// Encode renders the header in its canonical binary form.
func (h BatchHeader) Encode() []byte {
	out := make([]byte, 0, BatchHeaderEncodedLength)
	out = append(out, h.PreStateRoot[:]...)
	out = append(out, h.StateRoot[:]...)
	out = append(out, h.TransactionsRoot[:]...)
	out = append(out, h.ReceiptsRoot[:]...)
	return binary.BigEndian.AppendUint64(out, h.BatchNumber)
}

// DecodeBatchHeader parses the canonical binary form, rejecting any
// trailing bytes.
func DecodeBatchHeader(b []byte) (BatchHeader, error) {
	if len(b) != BatchHeaderEncodedLength {
		return BatchHeader{}, fmt.Errorf("batch header must be %d bytes, got %d", BatchHeaderEncodedLength, len(b))
	}
	var h BatchHeader
	off := 0
	copy(h.PreStateRoot[:], b[off:off+32])
	off += 32
	copy(h.StateRoot[:], b[off:off+32])
	off += 32
	copy(h.TransactionsRoot[:], b[off:off+32])
	off += 32
	copy(h.ReceiptsRoot[:], b[off:off+32])
	off += 32
	h.BatchNumber = binary.BigEndian.Uint64(b[off:])
	return h, nil
}

// StatePair is one touched key and its encoded leaf value. A nil Value
// stands for the zero leaf.
type StatePair struct {
	Key   common.Hash `json:"key"`
	Value []byte      `json:"value,omitempty"`
}

// StateUpdate bundles the pre/post roots of an update_set with inclusion
// proofs for every touched key at both roots. It is the witness handed to
// the prover.
type StateUpdate struct {
	PreStateRoot  common.Hash `json:"pre_state_root"`
	PostStateRoot common.Hash `json:"post_state_root"`
	PrePairs      []StatePair `json:"pre_pairs"`
	PreProof      smt.Proof   `json:"pre_proof"`
	PostPairs     []StatePair `json:"post_pairs"`
	PostProof     smt.Proof   `json:"post_proof"`
}

// AggregatedBatch is the Nexus-published tuple of the aggregation counter
// and the root of the cross-chain receipts tree.
type AggregatedBatch struct {
	ProofNumber  uint64      `json:"proof_number"`
	ReceiptsRoot common.Hash `json:"receipts_root"`
}

// DaTxPointer locates a DA blob so Nexus can refetch and audit it.
type DaTxPointer struct {
	BlockHash common.Hash `json:"block_hash"`
	TxHash    common.Hash `json:"hash"`
	Chain     AppChain    `json:"chain"`
}

// SubmitProofParam is the body of POST /submit-batch on Nexus.
type SubmitProofParam struct {
	Proof    []byte               `json:"proof"`
	Receipts []TransactionReceipt `json:"receipts"`
	Chain    AppChain             `json:"chain"`
	DaTx     DaTxPointer          `json:"da_tx_pointer"`
}

// TransactionWithReceipt is the finalized per-transaction record persisted
// under the transaction hash.
type TransactionWithReceipt struct {
	Transaction Transaction        `json:"transaction"`
	Receipt     TransactionReceipt `json:"receipt"`
}

// DABatch is the blob posted to the DA layer: the proved header and the
// batch's transactions.
type DABatch struct {
	Header       BatchHeader   `json:"header"`
	Transactions []Transaction `json:"transactions"`
}

// Encode renders the DA blob in its canonical binary form.
func (d DABatch) Encode() []byte {
	out := d.Header.Encode()
	out = binary.BigEndian.AppendUint32(out, uint32(len(d.Transactions)))
	for _, tx := range d.Transactions {
		out = appendBytes(out, tx.Encode())
	}
	return out
}

// DecodeDABatch parses a DA blob, rejecting trailing bytes. Readers must
// additionally compare the decoded header against the proof journal before
// trusting the blob.
func DecodeDABatch(b []byte) (DABatch, error) {
	if len(b) < BatchHeaderEncodedLength+4 {
		return DABatch{}, fmt.Errorf("da batch: truncated")
	}
	header, err := DecodeBatchHeader(b[:BatchHeaderEncodedLength])
	if err != nil {
		return DABatch{}, fmt.Errorf("da batch: %w", err)
	}
	off := BatchHeaderEncodedLength
	count := binary.BigEndian.Uint32(b[off : off+4])
	off += 4

	txs := make([]Transaction, 0, count)
	for i := uint32(0); i < count; i++ {
		raw, next, err := readBytes(b, off)
		if err != nil {
			return DABatch{}, fmt.Errorf("da batch tx %d: %w", i, err)
		}
		tx, used, err := DecodeTransaction(raw)
		if err != nil {
			return DABatch{}, fmt.Errorf("da batch tx %d: %w", i, err)
		}
		if used != len(raw) {
			return DABatch{}, fmt.Errorf("da batch tx %d: trailing bytes", i)
		}
		txs = append(txs, tx)
		off = next
	}
	if off != len(b) {
		return DABatch{}, fmt.Errorf("da batch: trailing bytes")
	}
	return DABatch{Header: header, Transactions: txs}, nil
}

func sha256Sum(b []byte) []byte {
	h := sha256.Sum256(b)
	return h[:]
}

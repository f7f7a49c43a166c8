// Copyright 2025 Certen Protocol
//
// Data Availability Interface
// External contract used by the app nodes (blob submission) and Nexus
// (blob refetch and audit). The DA layer is opaque beyond this contract.

package da

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

// Polling bounds shared by DA client implementations. Callers treat a
// timeout as a retryable error.
const (
	PollingTimeoutSeconds  = 60
	PollingIntervalSeconds = 2

	// ConfidenceThreshold is the sampling confidence required before a
	// block's app data is trusted.
	ConfidenceThreshold = 92.5
)

// ErrTimeout is returned when finality or app data polling exceeds the
// polling timeout.
var ErrTimeout = errors.New("da polling timed out")

// BlobTx is one data submission inside a DA block.
type BlobTx struct {
	BlobData []byte      `json:"blob"`
	TxHash   common.Hash `json:"hash"`
	Address  [32]byte    `json:"sender"`
}

// Blob returns the raw submitted bytes.
func (t *BlobTx) Blob() []byte {
	return t.BlobData
}

// Hash returns the DA-level transaction hash.
func (t *BlobTx) Hash() common.Hash {
	return t.TxHash
}

// Sender returns the DA-level submitter address.
func (t *BlobTx) Sender() [32]byte {
	return t.Address
}

// BlockHeader is the slice of the DA block header this system reads.
type BlockHeader struct {
	Hash       common.Hash `json:"hash"`
	ParentHash common.Hash `json:"parent_hash"`
	Number     uint64      `json:"number"`
	DataRoot   common.Hash `json:"data_root"`
}

// Block is a finalized DA block with its data submissions.
type Block struct {
	Header       BlockHeader `json:"header"`
	Transactions []BlobTx    `json:"transactions"`
}

// FindTx scans the block for a submission by hash.
func (b *Block) FindTx(hash common.Hash) (*BlobTx, bool) {
	for i := range b.Transactions {
		if b.Transactions[i].TxHash == hash {
			return &b.Transactions[i], true
		}
	}
	return nil, false
}

// Client is the DA contract. SubmitTransaction blocks until the blob is
// finalized; the block getters poll until the block is finalized and its
// app data is available (a 404 on app data means an empty block).
type Client interface {
	SubmitTransaction(ctx context.Context, blob []byte) (blockHash, txHash common.Hash, err error)
	GetBlockAt(ctx context.Context, height uint64) (*Block, error)
	GetBlockWithHash(ctx context.Context, hash common.Hash) (*Block, error)
}

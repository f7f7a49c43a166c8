// Copyright 2025 Certen Protocol
//
// In-process DA
// A deterministic in-memory DA layer for tests and single-machine dev
// setups: every submission finalizes instantly into its own block.

package da

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// MemDA is an in-process Client.
type MemDA struct {
	mu      sync.Mutex
	blocks  []*Block
	byHash  map[common.Hash]*Block
	genesis common.Hash
}

// NewMemDA creates an empty in-process DA chain.
func NewMemDA() *MemDA {
	return &MemDA{byHash: make(map[common.Hash]*Block)}
}

// SubmitTransaction finalizes the blob into a fresh block and returns the
// block hash and the blob transaction hash.
func (m *MemDA) SubmitTransaction(_ context.Context, blob []byte) (common.Hash, common.Hash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	height := uint64(len(m.blocks) + 1)
	parent := m.genesis
	if len(m.blocks) > 0 {
		parent = m.blocks[len(m.blocks)-1].Header.Hash
	}

	txHash := blobTxHash(blob, height)
	blockHash := memBlockHash(parent, height, txHash)

	blobCopy := make([]byte, len(blob))
	copy(blobCopy, blob)

	block := &Block{
		Header: BlockHeader{
			Hash:       blockHash,
			ParentHash: parent,
			Number:     height,
			DataRoot:   txHash,
		},
		Transactions: []BlobTx{{BlobData: blobCopy, TxHash: txHash}},
	}
	m.blocks = append(m.blocks, block)
	m.byHash[blockHash] = block

	return blockHash, txHash, nil
}

// GetBlockAt returns the block at the given height.
func (m *MemDA) GetBlockAt(_ context.Context, height uint64) (*Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if height == 0 || height > uint64(len(m.blocks)) {
		return nil, fmt.Errorf("block at height %d not found", height)
	}
	return m.blocks[height-1], nil
}

// GetBlockWithHash returns the block with the given hash.
func (m *MemDA) GetBlockWithHash(_ context.Context, hash common.Hash) (*Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	block, ok := m.byHash[hash]
	if !ok {
		return nil, fmt.Errorf("block with hash %x not found", hash)
	}
	return block, nil
}

// Height returns the current chain height.
func (m *MemDA) Height() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return uint64(len(m.blocks))
}

func blobTxHash(blob []byte, height uint64) common.Hash {
	h := sha256.New()
	h.Write(blob)
	var hb [8]byte
	binary.BigEndian.PutUint64(hb[:], height)
	h.Write(hb[:])
	return common.BytesToHash(h.Sum(nil))
}

func memBlockHash(parent common.Hash, height uint64, dataRoot common.Hash) common.Hash {
	h := sha256.New()
	h.Write(parent[:])
	var hb [8]byte
	binary.BigEndian.PutUint64(hb[:], height)
	h.Write(hb[:])
	h.Write(dataRoot[:])
	return common.BytesToHash(h.Sum(nil))
}

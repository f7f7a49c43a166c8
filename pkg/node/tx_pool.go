// Copyright 2025 Certen Protocol
//
// Transaction Pool
// FIFO of pending transactions awaiting the build loop. The pool holds
// submitted transactions until their batch commits or they are dropped.

package node

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/certen/zkrollup-nexus/pkg/types"
)

// TxPool is a mutex-guarded FIFO of pending transactions.
type TxPool struct {
	mu  sync.Mutex
	txs []types.Transaction
}

// NewTxPool creates an empty pool.
func NewTxPool() *TxPool {
	return &TxPool{}
}

// Add appends a transaction and returns its hash.
func (p *TxPool) Add(tx types.Transaction) common.Hash {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.txs = append(p.txs, tx)
	return tx.Hash()
}

// Head returns the oldest pending transaction without removing it.
func (p *TxPool) Head() (types.Transaction, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.txs) == 0 {
		return types.Transaction{}, false
	}
	return p.txs[0], true
}

// Pop removes the oldest pending transaction.
func (p *TxPool) Pop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.txs) > 0 {
		p.txs = p.txs[1:]
	}
}

// Contains reports whether a transaction with the given hash is pending.
func (p *TxPool) Contains(hash common.Hash) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, tx := range p.txs {
		if tx.Hash() == hash {
			return true
		}
	}
	return false
}

// Len returns the number of pending transactions.
func (p *TxPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.txs)
}

// Clear drops every pending transaction. Called on startup so the node
// resumes from its last persisted batch without half-processed input.
func (p *TxPool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.txs = nil
}

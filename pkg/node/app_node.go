// Copyright 2025 Certen Protocol
//
// App Node - the transaction lifecycle engine
// Owns the tx pool and the build loop: execute against the state machine,
// prove, post the blob to DA, notify Nexus, then commit and persist. The
// build loop is the single boundary that decides retry vs drop.

package node

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/certen/zkrollup-nexus/pkg/da"
	"github.com/certen/zkrollup-nexus/pkg/kvdb"
	"github.com/certen/zkrollup-nexus/pkg/smt"
	"github.com/certen/zkrollup-nexus/pkg/types"
	"github.com/certen/zkrollup-nexus/pkg/zkvm"
)

// Persisted key layout (per chain app DB).
var (
	keyLastBatchHeader = []byte("last_batch_header")
	// <big-endian u64>  (batch number) -> BatchHeader
	// <tx-hash 32 B>    -> TransactionWithReceipt
)

// ErrStoreFatal wraps store failures; the process must terminate rather
// than risk divergence between the in-memory root and disk.
var ErrStoreFatal = errors.New("fatal store error")

// StateMachine is the per-chain state machine contract the node drives.
type StateMachine interface {
	ExecuteTx(tx types.Transaction, agg types.AggregatedBatch) (types.StateUpdate, types.TransactionReceipt, error)
	Commit() error
	Revert(root common.Hash) error
	Root() common.Hash
	StateWithProof(key common.Hash) (json.RawMessage, smt.Proof, error)
}

// Config holds app node settings.
type Config struct {
	Chain types.AppChain
	// SleepInterval is the idle delay between build loop passes.
	SleepInterval time.Duration
}

// AppNode is one rollup chain's node.
//
// smMu serializes every state machine access. The build loop holds it
// across execute -> prove -> commit, so external readers observe either
// the pre- or the post-batch root but never a torn state.
type AppNode struct {
	cfg     Config
	smMu    sync.Mutex
	sm      StateMachine
	db      *kvdb.NodeDB
	daCli   da.Client
	prover  zkvm.Prover
	nexus   *NexusClient
	pool    *TxPool
	logger  *log.Logger
	metrics *Metrics
}

// NewAppNode wires the node together. The state machine must already be
// open; Run reverts it to the last persisted batch header.
func NewAppNode(
	cfg Config,
	sm StateMachine,
	db *kvdb.NodeDB,
	daCli da.Client,
	prover zkvm.Prover,
	nexus *NexusClient,
	logger *log.Logger,
) *AppNode {
	if cfg.SleepInterval == 0 {
		cfg.SleepInterval = 10 * time.Second
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[AppNode] ", log.LstdFlags)
	}
	return &AppNode{
		cfg:     cfg,
		sm:      sm,
		db:      db,
		daCli:   daCli,
		prover:  prover,
		nexus:   nexus,
		pool:    NewTxPool(),
		logger:  logger,
		metrics: NewMetrics(string(cfg.Chain)),
	}
}

// Metrics exposes the node's Prometheus registry.
func (n *AppNode) Metrics() *Metrics {
	return n.metrics
}

// LastBatchHeader returns the last persisted batch header. The zero
// header (batch_number 0, zero roots) stands for "no batch yet".
func (n *AppNode) LastBatchHeader() (types.BatchHeader, error) {
	header, found, err := kvdb.Get[types.BatchHeader](n.db, keyLastBatchHeader)
	if err != nil {
		return types.BatchHeader{}, fmt.Errorf("%w: read last batch header: %v", ErrStoreFatal, err)
	}
	if !found {
		return types.BatchHeader{}, nil
	}
	return header, nil
}

// BatchHeaderByNumber returns the persisted header for a batch number.
func (n *AppNode) BatchHeaderByNumber(number uint64) (types.BatchHeader, bool, error) {
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], number)
	return kvdb.Get[types.BatchHeader](n.db, key[:])
}

// Run executes the build loop until the context is cancelled. On start the
// pool is cleared and the state machine reverted to the last persisted
// header, dropping any uncommitted cache entries from a prior run.
func (n *AppNode) Run(ctx context.Context) error {
	n.pool.Clear()
	n.logger.Printf("cleared tx pool before starting")

	header, err := n.LastBatchHeader()
	if err != nil {
		return err
	}
	n.smMu.Lock()
	err = n.sm.Revert(header.StateRoot)
	n.smMu.Unlock()
	if err != nil {
		return fmt.Errorf("%w: startup revert: %v", ErrStoreFatal, err)
	}
	n.logger.Printf("node at state root %x, batch %d", header.StateRoot, header.BatchNumber)

	for {
		tx, ok := n.pool.Head()
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(n.cfg.SleepInterval):
			}
			continue
		}
		n.metrics.PoolDepth.Set(float64(n.pool.Len()))

		retry, err := n.executeBatch(ctx, tx)
		if err != nil {
			if errors.Is(err, ErrStoreFatal) {
				return err
			}

			lastHeader, herr := n.LastBatchHeader()
			if herr != nil {
				return herr
			}
			n.logger.Printf("reverting to root %x: %v", lastHeader.StateRoot, err)
			n.smMu.Lock()
			rerr := n.sm.Revert(lastHeader.StateRoot)
			n.smMu.Unlock()
			if rerr != nil {
				return fmt.Errorf("%w: revert failed: %v", ErrStoreFatal, rerr)
			}

			if retry {
				n.metrics.BatchRetries.Inc()
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(n.cfg.SleepInterval):
				}
				continue
			}
			n.metrics.TxsDropped.Inc()
			n.pool.Pop()
			continue
		}

		n.metrics.BatchesCommitted.Inc()
		n.pool.Pop()
		n.metrics.PoolDepth.Set(float64(n.pool.Len()))
	}
}

// executeBatch runs one transaction through execute -> prove -> DA ->
// Nexus -> commit. The bool result says whether a failure is retryable
// (DA, Nexus) or final for this transaction (validation, proof).
func (n *AppNode) executeBatch(ctx context.Context, tx types.Transaction) (bool, error) {
	lastHeader, err := n.LastBatchHeader()
	if err != nil {
		return false, err
	}

	agg, err := n.nexus.CurrentBatch(ctx)
	if err != nil {
		return true, fmt.Errorf("fetch aggregated batch: %w", err)
	}

	// Held across execute -> prove -> commit so readers never see a torn
	// state between the uncommitted update and the commit.
	n.smMu.Lock()
	defer n.smMu.Unlock()

	update, receipt, err := n.sm.ExecuteTx(tx, agg)
	if err != nil {
		return false, fmt.Errorf("execute tx %x: %w", tx.Hash(), err)
	}

	input := &zkvm.Input{
		Chain:       n.cfg.Chain,
		Tx:          tx,
		StateUpdate: update,
		BatchNumber: lastHeader.BatchNumber + 1,
		Aggregated:  agg,
	}

	proveStart := time.Now()
	proof, err := n.prover.Prove(input)
	if err != nil {
		return false, fmt.Errorf("prover: %w", err)
	}
	n.metrics.ProverSeconds.Observe(time.Since(proveStart).Seconds())

	if proof.ImageID != n.prover.ImageID() {
		return false, fmt.Errorf("receipt image id mismatch")
	}
	header, err := proof.Header()
	if err != nil {
		return false, fmt.Errorf("proof journal: %w", err)
	}
	if header.PreStateRoot != update.PreStateRoot || header.StateRoot != update.PostStateRoot {
		return false, fmt.Errorf("proof journal does not match state update")
	}

	blob := types.DABatch{Header: header, Transactions: []types.Transaction{tx}}
	blockHash, txHash, err := n.daCli.SubmitTransaction(ctx, blob.Encode())
	if err != nil {
		return true, fmt.Errorf("da submit: %w", err)
	}
	n.logger.Printf("da blob landed: block %x tx %x", blockHash, txHash)

	serialized, err := proof.Serialize()
	if err != nil {
		return false, fmt.Errorf("serialize proof: %w", err)
	}
	param := types.SubmitProofParam{
		Proof:    serialized,
		Receipts: []types.TransactionReceipt{receipt},
		Chain:    n.cfg.Chain,
		DaTx: types.DaTxPointer{
			BlockHash: blockHash,
			TxHash:    txHash,
			Chain:     n.cfg.Chain,
		},
	}
	if err := n.nexus.SubmitBatch(ctx, param); err != nil {
		return true, fmt.Errorf("nexus submit: %w", err)
	}

	if err := n.sm.Commit(); err != nil {
		return false, fmt.Errorf("%w: commit: %v", ErrStoreFatal, err)
	}
	if err := n.persistBatch(header, tx, receipt); err != nil {
		return false, err
	}

	n.logger.Printf("committed batch %d at root %x", header.BatchNumber, header.StateRoot)
	return false, nil
}

// persistBatch writes the batch metadata: the rolling last-header pointer,
// the per-number header and the finalized transaction record. A partial
// write on crash is tolerated because startup reverts to the persisted
// last header and re-executes.
func (n *AppNode) persistBatch(header types.BatchHeader, tx types.Transaction, receipt types.TransactionReceipt) error {
	batch := n.db.Store().NewBatch()
	defer batch.Close()

	if err := kvdb.BatchPut(batch, keyLastBatchHeader, header); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreFatal, err)
	}
	var numKey [8]byte
	binary.BigEndian.PutUint64(numKey[:], header.BatchNumber)
	if err := kvdb.BatchPut(batch, numKey[:], header); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreFatal, err)
	}
	txHash := tx.Hash()
	record := types.TransactionWithReceipt{Transaction: tx, Receipt: receipt}
	if err := kvdb.BatchPut(batch, txHash[:], record); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreFatal, err)
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("%w: persist batch: %v", ErrStoreFatal, err)
	}
	return nil
}

// AddToTxPool appends a transaction and returns its hash.
func (n *AppNode) AddToTxPool(tx types.Transaction) common.Hash {
	hash := n.pool.Add(tx)
	n.metrics.PoolDepth.Set(float64(n.pool.Len()))
	n.logger.Printf("added tx %x to pool", hash)
	return hash
}

// GetTxStatus reports "tx_pool" for pending, "finalized" for persisted and
// "dropped" otherwise.
func (n *AppNode) GetTxStatus(hash common.Hash) (string, error) {
	if n.pool.Contains(hash) {
		return "tx_pool", nil
	}
	_, found, err := kvdb.Get[types.TransactionWithReceipt](n.db, hash[:])
	if err != nil {
		return "", fmt.Errorf("%w: tx status: %v", ErrStoreFatal, err)
	}
	if found {
		return "finalized", nil
	}
	return "dropped", nil
}

// GetTransaction returns the finalized record for a transaction hash.
func (n *AppNode) GetTransaction(hash common.Hash) (types.TransactionWithReceipt, bool, error) {
	return kvdb.Get[types.TransactionWithReceipt](n.db, hash[:])
}

// GetStateWithProof reads a leaf with its proof through the uncommitted
// cache, so clients observe their just-accepted transfers.
func (n *AppNode) GetStateWithProof(key common.Hash) (json.RawMessage, smt.Proof, error) {
	n.smMu.Lock()
	defer n.smMu.Unlock()
	return n.sm.StateWithProof(key)
}

// Root returns the state machine's current root.
func (n *AppNode) Root() common.Hash {
	n.smMu.Lock()
	defer n.smMu.Unlock()
	return n.sm.Root()
}

// Chain returns the node's chain tag.
func (n *AppNode) Chain() types.AppChain {
	return n.cfg.Chain
}

// Nexus exposes the node's Nexus client for the marketplace poller.
func (n *AppNode) Nexus() *NexusClient {
	return n.nexus
}

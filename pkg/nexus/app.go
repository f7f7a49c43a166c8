// Copyright 2025 Certen Protocol
//
// Nexus Aggregator
// Verifies proofs submitted by the app chains, audits their DA blobs,
// advances the cross-chain receipts tree and publishes the aggregated
// receipts root the chains resolve their futures against.

package nexus

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/certen/zkrollup-nexus/pkg/da"
	"github.com/certen/zkrollup-nexus/pkg/kvdb"
	"github.com/certen/zkrollup-nexus/pkg/merkle"
	"github.com/certen/zkrollup-nexus/pkg/smt"
	"github.com/certen/zkrollup-nexus/pkg/state"
	"github.com/certen/zkrollup-nexus/pkg/types"
	"github.com/certen/zkrollup-nexus/pkg/zkvm"
)

// Persisted key layout (Nexus DB).
var (
	keyLastAggregatedProof = []byte("last_aggregated_proof")
	keyLastNFTBatch        = []byte("last_aggregated_nft_batch")
	keyLastPaymentsBatch   = []byte("last_aggregated_payments_batch")
	keyLastDABlock         = []byte("last_da_block")
)

// Config holds the aggregator settings.
type Config struct {
	// AggregationInterval is the cadence of the aggregation timer.
	AggregationInterval time.Duration
	// ImageIDs maps each chain to the image id its proofs must carry.
	ImageIDs map[types.AppChain]common.Hash
}

// verifiedBatch is a proof-checked batch queued for the next aggregation
// tick.
type verifiedBatch struct {
	ID       uuid.UUID
	Header   types.BatchHeader
	Receipts []types.TransactionReceipt
}

// App is the Nexus aggregator.
type App struct {
	mu sync.Mutex

	cfg      Config
	receipts *state.VmState[types.TransactionReceipt]
	db       *kvdb.NodeDB
	daCli    da.Client
	verifier zkvm.Verifier

	// FIFO buffers of verified-but-not-yet-aggregated batches.
	nftBuffer      []verifiedBatch
	paymentsBuffer []verifiedBatch

	// lastVerified is the continuity head per chain: the last batch
	// accepted into a buffer, falling back to the last aggregated one.
	lastVerified map[types.AppChain]types.BatchHeader

	lastAggregated types.AggregatedBatch
	lastDABlock    uint64

	archive *ProofArchive
	logger  *log.Logger
	metrics *Metrics
}

// New opens the aggregator against its stores, reloading the persisted
// aggregation state and the receipts tree at the published root.
func New(cfg Config, store kvdb.Store, metaDB *kvdb.NodeDB, daCli da.Client, verifier zkvm.Verifier, archive *ProofArchive, logger *log.Logger) (*App, error) {
	if cfg.AggregationInterval == 0 {
		cfg.AggregationInterval = 30 * time.Second
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[Nexus] ", log.LstdFlags)
	}

	lastAgg, _, err := kvdb.Get[types.AggregatedBatch](metaDB, keyLastAggregatedProof)
	if err != nil {
		return nil, fmt.Errorf("load aggregated proof: %w", err)
	}

	receipts, err := state.New(store, lastAgg.ReceiptsRoot, types.DecodeReceiptLeaf)
	if err != nil {
		return nil, fmt.Errorf("open receipts tree: %w", err)
	}

	lastVerified := make(map[types.AppChain]types.BatchHeader)
	for chain, key := range map[types.AppChain][]byte{
		types.ChainNFT:      keyLastNFTBatch,
		types.ChainPayments: keyLastPaymentsBatch,
	} {
		header, _, err := kvdb.Get[types.BatchHeader](metaDB, key)
		if err != nil {
			return nil, fmt.Errorf("load %s head: %w", chain, err)
		}
		lastVerified[chain] = header
	}

	var lastDABlock uint64
	if raw, err := metaDB.GetRaw(keyLastDABlock); err == nil && len(raw) == 8 {
		lastDABlock = binary.BigEndian.Uint64(raw)
	}

	return &App{
		cfg:            cfg,
		receipts:       receipts,
		db:             metaDB,
		daCli:          daCli,
		verifier:       verifier,
		lastVerified:   lastVerified,
		lastAggregated: lastAgg,
		lastDABlock:    lastDABlock,
		archive:        archive,
		logger:         logger,
		metrics:        NewMetrics(),
	}, nil
}

// Metrics exposes the aggregator's Prometheus registry.
func (a *App) Metrics() *Metrics {
	return a.metrics
}

// CurrentBatch returns the last published aggregated batch.
func (a *App) CurrentBatch() types.AggregatedBatch {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastAggregated
}

// SubmitBatch validates one proved batch end-to-end: DA blob resolution,
// blob decode, proof verification, journal/blob/receipts cross-checks and
// per-chain root continuity. Accepted batches are queued for the next
// aggregation tick.
func (a *App) SubmitBatch(ctx context.Context, param types.SubmitProofParam) error {
	if !param.Chain.Valid() {
		return fmt.Errorf("unknown chain %q", param.Chain)
	}
	imageID, ok := a.cfg.ImageIDs[param.Chain]
	if !ok {
		return fmt.Errorf("no image id configured for chain %q", param.Chain)
	}

	// Resolve and audit the DA blob before trusting anything else.
	block, err := a.daCli.GetBlockWithHash(ctx, param.DaTx.BlockHash)
	if err != nil {
		return fmt.Errorf("da block %x: %w", param.DaTx.BlockHash, err)
	}
	blobTx, found := block.FindTx(param.DaTx.TxHash)
	if !found {
		return fmt.Errorf("da tx %x not found in block %x", param.DaTx.TxHash, param.DaTx.BlockHash)
	}
	daBatch, err := types.DecodeDABatch(blobTx.Blob())
	if err != nil {
		return fmt.Errorf("malformed da blob: %w", err)
	}

	receipt, err := zkvm.DeserializeReceipt(param.Proof)
	if err != nil {
		return fmt.Errorf("malformed proof: %w", err)
	}
	if err := a.verifier.Verify(receipt, imageID); err != nil {
		return fmt.Errorf("proof verification: %w", err)
	}
	header, err := receipt.Header()
	if err != nil {
		return fmt.Errorf("proof journal: %w", err)
	}

	// The blob's header must equal the proof journal field for field, so
	// what was posted to DA is exactly what was proved.
	if daBatch.Header != header {
		return fmt.Errorf("da blob header does not match proof journal")
	}

	receiptLeaves := make([]common.Hash, len(param.Receipts))
	for i, r := range param.Receipts {
		receiptLeaves[i] = r.Hash()
	}
	if merkle.Root(receiptLeaves) != header.ReceiptsRoot {
		return fmt.Errorf("submitted receipts do not match header receipts root")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	head := a.lastVerified[param.Chain]
	if header.PreStateRoot != head.StateRoot {
		return fmt.Errorf("pre state root %x does not extend verified head %x", header.PreStateRoot, head.StateRoot)
	}
	if header.BatchNumber != head.BatchNumber+1 {
		return fmt.Errorf("batch number %d does not extend verified head %d", header.BatchNumber, head.BatchNumber)
	}

	entry := verifiedBatch{ID: uuid.New(), Header: header, Receipts: param.Receipts}
	switch param.Chain {
	case types.ChainNFT:
		a.nftBuffer = append(a.nftBuffer, entry)
	case types.ChainPayments:
		a.paymentsBuffer = append(a.paymentsBuffer, entry)
	}
	a.lastVerified[param.Chain] = header
	if block.Header.Number > a.lastDABlock {
		a.lastDABlock = block.Header.Number
	}

	a.metrics.BatchesVerified.Inc()
	a.logger.Printf("verified %s batch %d (%s), %d receipts queued", param.Chain, header.BatchNumber, entry.ID, len(param.Receipts))

	if a.archive != nil {
		if err := a.archive.Insert(ctx, entry.ID, param, header); err != nil {
			// Archival is observability, not consensus: log and move on.
			a.logger.Printf("archive insert failed: %v", err)
		}
	}
	return nil
}

// Aggregate drains both buffers (NFT first, then Payments) into the
// receipts tree and publishes the new aggregated root. The four
// persistence keys are written through a single batch so a crash cannot
// leave them mutually inconsistent.
func (a *App) Aggregate() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.nftBuffer) == 0 && len(a.paymentsBuffer) == 0 {
		return nil
	}

	var flat []types.TransactionReceipt
	var lastNFT, lastPayments *types.BatchHeader
	for _, b := range a.nftBuffer {
		flat = append(flat, b.Receipts...)
		h := b.Header
		lastNFT = &h
	}
	for _, b := range a.paymentsBuffer {
		flat = append(flat, b.Receipts...)
		h := b.Header
		lastPayments = &h
	}

	if _, err := a.receipts.UpdateSet(flat); err != nil {
		return fmt.Errorf("receipts tree update: %w", err)
	}
	if err := a.receipts.Commit(); err != nil {
		return fmt.Errorf("receipts tree commit: %w", err)
	}

	aggregated := types.AggregatedBatch{
		ProofNumber:  a.lastAggregated.ProofNumber + 1,
		ReceiptsRoot: a.receipts.Root(),
	}

	batch := a.db.Store().NewBatch()
	defer batch.Close()
	if err := kvdb.BatchPut(batch, keyLastAggregatedProof, aggregated); err != nil {
		return err
	}
	if lastNFT != nil {
		if err := kvdb.BatchPut(batch, keyLastNFTBatch, *lastNFT); err != nil {
			return err
		}
	}
	if lastPayments != nil {
		if err := kvdb.BatchPut(batch, keyLastPaymentsBatch, *lastPayments); err != nil {
			return err
		}
	}
	var daBlock [8]byte
	binary.BigEndian.PutUint64(daBlock[:], a.lastDABlock)
	if err := batch.Set(keyLastDABlock, daBlock[:]); err != nil {
		return err
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("persist aggregation: %w", err)
	}

	a.metrics.ReceiptsAggregated.Add(float64(len(flat)))
	a.metrics.AggregatedProofNumber.Set(float64(aggregated.ProofNumber))
	a.logger.Printf("aggregated %d receipts into proof %d, root %x", len(flat), aggregated.ProofNumber, aggregated.ReceiptsRoot)

	a.lastAggregated = aggregated
	a.nftBuffer = nil
	a.paymentsBuffer = nil
	return nil
}

// GetReceiptWithProof returns the receipt stored under key together with
// its proof against the last aggregated root. Absent keys yield the zero
// receipt with a non-inclusion proof.
func (a *App) GetReceiptWithProof(key common.Hash) (types.TransactionReceipt, smt.Proof, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	receipt, found, proof, err := a.receipts.GetWithProof(key)
	if err != nil {
		return types.TransactionReceipt{}, smt.Proof{}, err
	}
	if !found {
		return types.ZeroReceipt(), proof, nil
	}
	return receipt, proof, nil
}

// LastDABlock returns the highest DA block the aggregator has audited.
func (a *App) LastDABlock() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastDABlock
}

// Run fires the aggregation timer until the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.AggregationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.Aggregate(); err != nil {
				// Store failures are fatal: an inconsistent tree must not
				// keep publishing roots.
				return fmt.Errorf("aggregation failed: %w", err)
			}
		}
	}
}

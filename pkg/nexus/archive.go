// Copyright 2025 Certen Protocol
//
// Proof Artifact Archive
// Optional Postgres archive of every accepted submission: serialized
// proof, header fields and DA pointer. Purely observability - the
// aggregation state of record lives in the KV store.

package nexus

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/certen/zkrollup-nexus/pkg/types"
)

const archiveSchema = `
CREATE TABLE IF NOT EXISTS proof_artifacts (
    id              UUID PRIMARY KEY,
    chain           TEXT NOT NULL,
    batch_number    BIGINT NOT NULL,
    pre_state_root  BYTEA NOT NULL,
    state_root      BYTEA NOT NULL,
    receipts_root   BYTEA NOT NULL,
    da_block_hash   BYTEA NOT NULL,
    da_tx_hash      BYTEA NOT NULL,
    proof           BYTEA NOT NULL,
    receipt_count   INT NOT NULL,
    submitted_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (chain, batch_number)
);`

// ProofArchive stores accepted submissions in Postgres.
type ProofArchive struct {
	db *sql.DB
}

// OpenProofArchive connects to Postgres and ensures the schema exists.
// An empty databaseURL disables archival and returns (nil, nil).
func OpenProofArchive(databaseURL string) (*ProofArchive, error) {
	if databaseURL == "" {
		return nil, nil
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open archive database: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive database unreachable: %w", err)
	}
	if _, err := db.ExecContext(ctx, archiveSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create archive schema: %w", err)
	}
	return &ProofArchive{db: db}, nil
}

// Insert records one accepted submission. Re-submissions of the same
// (chain, batch number) are ignored.
func (p *ProofArchive) Insert(ctx context.Context, id uuid.UUID, param types.SubmitProofParam, header types.BatchHeader) error {
	const q = `
        INSERT INTO proof_artifacts
            (id, chain, batch_number, pre_state_root, state_root, receipts_root,
             da_block_hash, da_tx_hash, proof, receipt_count)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        ON CONFLICT (chain, batch_number) DO NOTHING`

	_, err := p.db.ExecContext(ctx, q,
		id,
		string(param.Chain),
		int64(header.BatchNumber),
		header.PreStateRoot[:],
		header.StateRoot[:],
		header.ReceiptsRoot[:],
		param.DaTx.BlockHash[:],
		param.DaTx.TxHash[:],
		param.Proof,
		len(param.Receipts),
	)
	if err != nil {
		return fmt.Errorf("archive insert: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (p *ProofArchive) Close() error {
	return p.db.Close()
}

// Copyright 2025 Certen Protocol
//
// zkVM Types
// The prover input, the receipt whose journal is the batch header, and the
// serialized wire form exchanged with Nexus.

package zkvm

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/certen/zkrollup-nexus/pkg/types"
)

// Input is everything the guest needs to re-execute one batch statelessly.
type Input struct {
	Chain       types.AppChain        `json:"chain"`
	Tx          types.Transaction     `json:"tx"`
	StateUpdate types.StateUpdate     `json:"state_update"`
	BatchNumber uint64                `json:"batch_number"`
	Aggregated  types.AggregatedBatch `json:"aggregated_batch"`
}

// Seal is the Groth16 proof bound to the journal commitment.
type Seal struct {
	ProofA [2]*big.Int    `json:"proofA"`
	ProofB [2][2]*big.Int `json:"proofB"`
	ProofC [2]*big.Int    `json:"proofC"`
}

// Receipt is the prover output: the journal (an encoded BatchHeader), the
// image id of the guest that produced it, and the seal.
type Receipt struct {
	Journal []byte      `json:"journal"`
	ImageID common.Hash `json:"image_id"`
	Seal    Seal        `json:"seal"`
}

// Header decodes the journal into the batch header it commits to.
func (r *Receipt) Header() (types.BatchHeader, error) {
	return types.DecodeBatchHeader(r.Journal)
}

// Serialize renders the receipt for the Nexus submit-batch call.
func (r *Receipt) Serialize() ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("serialize proof: %w", err)
	}
	return b, nil
}

// DeserializeReceipt parses a serialized receipt.
func DeserializeReceipt(b []byte) (*Receipt, error) {
	var r Receipt
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("deserialize proof: %w", err)
	}
	return &r, nil
}

// Prover is the boundary the app node drives. Implementations run the
// guest and seal the resulting journal.
type Prover interface {
	Prove(input *Input) (*Receipt, error)
	ImageID() common.Hash
}

// Verifier is the boundary Nexus drives.
type Verifier interface {
	Verify(receipt *Receipt, imageID common.Hash) error
}

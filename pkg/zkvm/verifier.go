// Copyright 2025 Certen Protocol
//
// Groth16 Verifier
// Holds one verification key per image id and checks receipt seals against
// the journal commitment recomputed from the journal bytes.

package zkvm

import (
	"fmt"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"
	"github.com/ethereum/go-ethereum/common"
)

// Groth16Verifier verifies receipt seals.
type Groth16Verifier struct {
	mu  sync.RWMutex
	vks map[common.Hash]groth16.VerifyingKey
}

// NewVerifier creates an empty verifier; keys are registered per image id.
func NewVerifier() *Groth16Verifier {
	return &Groth16Verifier{vks: make(map[common.Hash]groth16.VerifyingKey)}
}

// Register adds a verification key under its derived image id.
func (v *Groth16Verifier) Register(vk groth16.VerifyingKey) (common.Hash, error) {
	id, err := ImageIDOf(vk)
	if err != nil {
		return common.Hash{}, err
	}
	v.mu.Lock()
	v.vks[id] = vk
	v.mu.Unlock()
	return id, nil
}

// RegisterFromFile loads a verification key file and registers it.
func (v *Groth16Verifier) RegisterFromFile(path string) (common.Hash, error) {
	vk, err := LoadVerifyingKey(path)
	if err != nil {
		return common.Hash{}, err
	}
	return v.Register(vk)
}

// Verify checks that the receipt was produced under the expected image id
// and that its seal verifies for the journal it carries.
func (v *Groth16Verifier) Verify(receipt *Receipt, imageID common.Hash) error {
	if receipt.ImageID != imageID {
		return fmt.Errorf("receipt image id %x does not match expected %x", receipt.ImageID, imageID)
	}

	v.mu.RLock()
	vk, ok := v.vks[imageID]
	v.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no verification key registered for image id %x", imageID)
	}

	assignment := &JournalCircuit{JournalCommitment: journalCommitment(receipt.Journal)}
	publicWitness, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return fmt.Errorf("create public witness: %w", err)
	}

	proof, err := reconstructProof(receipt.Seal)
	if err != nil {
		return err
	}

	if err := groth16.Verify(proof, vk, publicWitness); err != nil {
		return fmt.Errorf("seal verification failed: %w", err)
	}
	return nil
}

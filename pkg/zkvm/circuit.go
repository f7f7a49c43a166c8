// Copyright 2025 Certen Protocol
//
// Journal Commitment Circuit
// Binds a Groth16 seal to the digest of the guest journal. The verifier
// recomputes the journal commitment from the header it was handed, so a
// seal only verifies for the exact journal the prover ran.
//
// Uses gnark for the circuit definition (Groth16 proving system).

package zkvm

import (
	"crypto/sha256"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/frontend"
)

// journalMixCoefficient folds the two digest halves into one field element.
const journalMixCoefficient = 7

// JournalCircuit proves knowledge of the two halves of the journal digest
// behind the public commitment.
type JournalCircuit struct {
	// Public input: the folded journal digest.
	JournalCommitment frontend.Variable `gnark:",public"`

	// Private inputs: the digest halves (16 bytes each, well inside the
	// BN254 scalar field).
	JournalLo frontend.Variable
	JournalHi frontend.Variable
}

// Define implements the circuit constraints.
func (c *JournalCircuit) Define(api frontend.API) error {
	computed := api.Add(c.JournalLo, api.Mul(c.JournalHi, journalMixCoefficient))
	api.AssertIsEqual(c.JournalCommitment, computed)
	return nil
}

// journalDigestHalves splits SHA-256(journal) into its low and high
// 16-byte halves as field elements.
func journalDigestHalves(journal []byte) (lo, hi *big.Int) {
	digest := sha256.Sum256(journal)
	hi = new(big.Int).SetBytes(digest[:16])
	lo = new(big.Int).SetBytes(digest[16:])
	return lo, hi
}

// journalCommitment computes the public commitment exactly as the circuit
// does, reduced into the BN254 scalar field.
func journalCommitment(journal []byte) *big.Int {
	lo, hi := journalDigestHalves(journal)
	c := new(big.Int).Mul(hi, big.NewInt(journalMixCoefficient))
	c.Add(c, lo)
	return c.Mod(c, ecc.BN254.ScalarField())
}

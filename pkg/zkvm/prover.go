// Copyright 2025 Certen Protocol
//
// Groth16 Prover
// Runs the guest, then seals the resulting journal with a Groth16 proof
// over the journal commitment circuit. The image id is the hash of the
// verification key, so a seal is only accepted by verifiers holding the
// matching key.
//
// This package provides:
//   - Circuit compilation and setup (one-time)
//   - Key persistence so node and Nexus share one image id
//   - Proof generation and local verification

package zkvm

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	groth16_bn254 "github.com/consensys/gnark/backend/groth16/bn254"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/ethereum/go-ethereum/common"
)

// Key file names inside a prover key directory.
const (
	provingKeyFile    = "journal.pk"
	verifyingKeyFile  = "journal.vk"
	constraintSysFile = "journal.cs"
)

// Groth16Prover seals guest journals.
type Groth16Prover struct {
	mu sync.RWMutex

	guest *ZKStateMachine

	cs constraint.ConstraintSystem
	pk groth16.ProvingKey
	vk groth16.VerifyingKey

	imageID     common.Hash
	initialized bool
}

// NewProver creates a prover for one chain's guest. Initialize or
// InitializeFromKeys must be called before Prove.
func NewProver(guest *ZKStateMachine) *Groth16Prover {
	return &Groth16Prover{guest: guest}
}

// Initialize compiles the circuit and runs the Groth16 setup. This is a
// one-time operation; the resulting keys should be persisted with SaveKeys
// so Nexus can verify against the same image id.
func (p *Groth16Prover) Initialize() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return nil
	}

	var circuit JournalCircuit
	cs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, &circuit)
	if err != nil {
		return fmt.Errorf("compile circuit: %w", err)
	}
	p.cs = cs

	pk, vk, err := groth16.Setup(cs)
	if err != nil {
		return fmt.Errorf("groth16 setup: %w", err)
	}
	p.pk = pk
	p.vk = vk

	id, err := ImageIDOf(vk)
	if err != nil {
		return err
	}
	p.imageID = id
	p.initialized = true
	return nil
}

// InitializeFromKeys loads previously generated keys from dir.
func (p *Groth16Prover) InitializeFromKeys(dir string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return nil
	}

	csFile, err := os.Open(filepath.Join(dir, constraintSysFile))
	if err != nil {
		return fmt.Errorf("open constraint system: %w", err)
	}
	defer csFile.Close()
	p.cs = groth16.NewCS(ecc.BN254)
	if _, err := p.cs.ReadFrom(csFile); err != nil {
		return fmt.Errorf("read constraint system: %w", err)
	}

	pkFile, err := os.Open(filepath.Join(dir, provingKeyFile))
	if err != nil {
		return fmt.Errorf("open proving key: %w", err)
	}
	defer pkFile.Close()
	p.pk = groth16.NewProvingKey(ecc.BN254)
	if _, err := p.pk.ReadFrom(pkFile); err != nil {
		return fmt.Errorf("read proving key: %w", err)
	}

	vk, err := LoadVerifyingKey(filepath.Join(dir, verifyingKeyFile))
	if err != nil {
		return err
	}
	p.vk = vk

	id, err := ImageIDOf(vk)
	if err != nil {
		return err
	}
	p.imageID = id
	p.initialized = true
	return nil
}

// SaveKeys persists the compiled system and both keys to dir.
func (p *Groth16Prover) SaveKeys(dir string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.initialized {
		return errors.New("prover not initialized")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create key dir: %w", err)
	}

	csFile, err := os.Create(filepath.Join(dir, constraintSysFile))
	if err != nil {
		return fmt.Errorf("create constraint system: %w", err)
	}
	defer csFile.Close()
	if _, err := p.cs.WriteTo(csFile); err != nil {
		return fmt.Errorf("write constraint system: %w", err)
	}

	pkFile, err := os.Create(filepath.Join(dir, provingKeyFile))
	if err != nil {
		return fmt.Errorf("create proving key: %w", err)
	}
	defer pkFile.Close()
	if _, err := p.pk.WriteTo(pkFile); err != nil {
		return fmt.Errorf("write proving key: %w", err)
	}

	vkFile, err := os.Create(filepath.Join(dir, verifyingKeyFile))
	if err != nil {
		return fmt.Errorf("create verifying key: %w", err)
	}
	defer vkFile.Close()
	if _, err := p.vk.WriteTo(vkFile); err != nil {
		return fmt.Errorf("write verifying key: %w", err)
	}
	return nil
}

// ImageID returns the image id the prover's receipts carry.
func (p *Groth16Prover) ImageID() common.Hash {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.imageID
}

// VerifyingKey exposes the key so a co-located verifier (tests, single
// process deployments) can register it without going through files.
func (p *Groth16Prover) VerifyingKey() groth16.VerifyingKey {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.vk
}

// Prove runs the guest and seals its journal.
func (p *Groth16Prover) Prove(input *Input) (*Receipt, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.initialized {
		return nil, errors.New("prover not initialized")
	}

	header, _, err := p.guest.Run(input)
	if err != nil {
		return nil, fmt.Errorf("guest execution: %w", err)
	}
	journal := header.Encode()

	lo, hi := journalDigestHalves(journal)
	assignment := &JournalCircuit{
		JournalCommitment: journalCommitment(journal),
		JournalLo:         lo,
		JournalHi:         hi,
	}

	witness, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("create witness: %w", err)
	}

	proof, err := groth16.Prove(p.cs, p.pk, witness)
	if err != nil {
		return nil, fmt.Errorf("generate proof: %w", err)
	}

	seal, err := extractSeal(proof)
	if err != nil {
		return nil, err
	}

	return &Receipt{Journal: journal, ImageID: p.imageID, Seal: seal}, nil
}

// ImageIDOf derives the image id from a verification key.
func ImageIDOf(vk groth16.VerifyingKey) (common.Hash, error) {
	var buf bytes.Buffer
	if _, err := vk.WriteTo(&buf); err != nil {
		return common.Hash{}, fmt.Errorf("hash verifying key: %w", err)
	}
	sum := sha256.Sum256(buf.Bytes())
	return common.BytesToHash(sum[:]), nil
}

// LoadVerifyingKey reads a verification key from a file.
func LoadVerifyingKey(path string) (groth16.VerifyingKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open verifying key: %w", err)
	}
	defer f.Close()
	vk := groth16.NewVerifyingKey(ecc.BN254)
	if _, err := vk.ReadFrom(f); err != nil {
		return nil, fmt.Errorf("read verifying key: %w", err)
	}
	return vk, nil
}

// extractSeal extracts the A, B, C points from a gnark proof.
func extractSeal(proof groth16.Proof) (Seal, error) {
	proofBN254, ok := proof.(*groth16_bn254.Proof)
	if !ok {
		return Seal{}, errors.New("proof is not BN254 type")
	}

	var seal Seal
	seal.ProofA[0], seal.ProofA[1] = new(big.Int), new(big.Int)
	proofBN254.Ar.X.BigInt(seal.ProofA[0])
	proofBN254.Ar.Y.BigInt(seal.ProofA[1])

	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			seal.ProofB[i][j] = new(big.Int)
		}
	}
	proofBN254.Bs.X.A0.BigInt(seal.ProofB[0][0])
	proofBN254.Bs.X.A1.BigInt(seal.ProofB[0][1])
	proofBN254.Bs.Y.A0.BigInt(seal.ProofB[1][0])
	proofBN254.Bs.Y.A1.BigInt(seal.ProofB[1][1])

	seal.ProofC[0], seal.ProofC[1] = new(big.Int), new(big.Int)
	proofBN254.Krs.X.BigInt(seal.ProofC[0])
	proofBN254.Krs.Y.BigInt(seal.ProofC[1])

	return seal, nil
}

// reconstructProof rebuilds a gnark proof from a seal.
func reconstructProof(seal Seal) (groth16.Proof, error) {
	for _, v := range []*big.Int{seal.ProofA[0], seal.ProofA[1], seal.ProofC[0], seal.ProofC[1],
		seal.ProofB[0][0], seal.ProofB[0][1], seal.ProofB[1][0], seal.ProofB[1][1]} {
		if v == nil {
			return nil, errors.New("seal has nil components")
		}
	}

	proof := &groth16_bn254.Proof{}
	proof.Ar.X.SetBigInt(seal.ProofA[0])
	proof.Ar.Y.SetBigInt(seal.ProofA[1])
	proof.Bs.X.A0.SetBigInt(seal.ProofB[0][0])
	proof.Bs.X.A1.SetBigInt(seal.ProofB[0][1])
	proof.Bs.Y.A0.SetBigInt(seal.ProofB[1][0])
	proof.Bs.Y.A1.SetBigInt(seal.ProofB[1][1])
	proof.Krs.X.SetBigInt(seal.ProofC[0])
	proof.Krs.Y.SetBigInt(seal.ProofC[1])
	return proof, nil
}

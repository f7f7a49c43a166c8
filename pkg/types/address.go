// Copyright 2025 Certen Protocol
//
// Addresses and Signing Keys
// An address is a raw ed25519 public key; it verifies transaction message
// signatures directly. Signer wraps the CometBFT ed25519 private key used
// by clients, the keygen CLI and the marketplace custodian.

package types

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/cometbft/cometbft/crypto/ed25519"
	"github.com/ethereum/go-ethereum/common"
)

// AddressLength is the byte length of an address (ed25519 public key).
const AddressLength = 32

// SignatureLength is the byte length of an ed25519 signature.
const SignatureLength = 64

// Address is a 32-byte ed25519 public key identifying an account, an NFT
// owner or a custodian.
type Address [AddressLength]byte

// ZeroAddress marks absence: unminted NFTs, burn targets, mint senders.
var ZeroAddress = Address{}

// AddressFromBytes builds an Address from exactly 32 bytes.
func AddressFromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != AddressLength {
		return a, fmt.Errorf("address must be %d bytes, got %d", AddressLength, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// HexToAddress parses a hex address, with or without 0x prefix.
func HexToAddress(s string) (Address, error) {
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return Address{}, fmt.Errorf("invalid address hex: %w", err)
	}
	return AddressFromBytes(b)
}

// IsZero reports whether the address is the zero address.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// Bytes returns the raw address bytes.
func (a Address) Bytes() []byte {
	return a[:]
}

// StateKey derives the 32-byte state tree key for account-keyed leaves.
func (a Address) StateKey() common.Hash {
	return common.BytesToHash(a[:])
}

// VerifyMessage checks an ed25519 signature over msg against this address.
func (a Address) VerifyMessage(msg, sig []byte) bool {
	if a.IsZero() || len(sig) != SignatureLength {
		return false
	}
	pub := ed25519.PubKey(a[:])
	return pub.VerifySignature(msg, sig)
}

func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// MarshalJSON renders the address as lowercase hex.
func (a Address) MarshalJSON() ([]byte, error) {
	return []byte(`"` + hex.EncodeToString(a[:]) + `"`), nil
}

// UnmarshalJSON accepts a hex string, with or without 0x prefix.
func (a *Address) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	parsed, err := HexToAddress(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Signer holds an ed25519 private key and produces transaction signatures.
type Signer struct {
	priv ed25519.PrivKey
}

// NewSigner generates a fresh random key.
func NewSigner() *Signer {
	return &Signer{priv: ed25519.GenPrivKey()}
}

// SignerFromSeed derives a deterministic key from a seed string. Used by
// tests and local dev setups; production keys come from key files.
func SignerFromSeed(seed string) *Signer {
	return &Signer{priv: ed25519.GenPrivKeyFromSecret([]byte(seed))}
}

// SignerFromFile loads a hex-encoded 64-byte ed25519 private key.
func SignerFromFile(path string) (*Signer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	b, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("decode key file: %w", err)
	}
	if len(b) != 64 {
		return nil, fmt.Errorf("key file must hold a 64-byte ed25519 key, got %d bytes", len(b))
	}
	return &Signer{priv: ed25519.PrivKey(b)}, nil
}

// Save writes the private key hex-encoded to path with 0600 permissions.
func (s *Signer) Save(path string) error {
	return os.WriteFile(path, []byte(hex.EncodeToString(s.priv.Bytes())), 0o600)
}

// Address returns the public key as an Address.
func (s *Signer) Address() Address {
	var a Address
	copy(a[:], s.priv.PubKey().Bytes())
	return a
}

// Sign signs the canonical message bytes.
func (s *Signer) Sign(msg []byte) ([]byte, error) {
	sig, err := s.priv.Sign(msg)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	return sig, nil
}

// Copyright 2025 Certen Protocol
//
// zkVM Guest - stateless batch re-execution
// The guest trusts nothing from the host: it verifies the pre-state proof,
// re-runs the state transition, verifies the post-state proof against the
// claimed post root, and only then emits the batch header as its journal.

package zkvm

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/certen/zkrollup-nexus/pkg/merkle"
	"github.com/certen/zkrollup-nexus/pkg/nft"
	"github.com/certen/zkrollup-nexus/pkg/payments"
	"github.com/certen/zkrollup-nexus/pkg/smt"
	"github.com/certen/zkrollup-nexus/pkg/types"
)

// Guest errors surfaced as proof failures.
var (
	ErrPreStateProof  = errors.New("pre-state proof does not verify")
	ErrPostStateProof = errors.New("post-state proof does not verify")
	ErrPostStateSet   = errors.New("post-state set does not match transition output")
	ErrUnknownChain   = errors.New("unknown chain")
)

// ZKStateMachine is the guest program: a state machine that runs on
// witnesses instead of storage.
type ZKStateMachine struct {
	chain types.AppChain
}

// NewZKStateMachine builds the guest for one chain.
func NewZKStateMachine(chain types.AppChain) (*ZKStateMachine, error) {
	if !chain.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownChain, chain)
	}
	return &ZKStateMachine{chain: chain}, nil
}

// Run re-executes the batch and returns the header it proves plus the
// receipts the batch produced.
func (z *ZKStateMachine) Run(input *Input) (types.BatchHeader, []types.TransactionReceipt, error) {
	su := input.StateUpdate

	prePairs := make([]smt.ProofPair, len(su.PrePairs))
	for i, p := range su.PrePairs {
		prePairs[i] = smt.ProofPair{Key: p.Key, ValueHash: rawLeafHash(p.Value)}
	}
	if !su.PreProof.Verify(su.PreStateRoot, prePairs) {
		return types.BatchHeader{}, nil, ErrPreStateProof
	}

	postSet, receipt, err := z.executeTransition(su.PrePairs, input.Tx, input.Aggregated)
	if err != nil {
		return types.BatchHeader{}, nil, err
	}

	if len(postSet) != len(su.PostPairs) {
		return types.BatchHeader{}, nil, ErrPostStateSet
	}
	postPairs := make([]smt.ProofPair, len(postSet))
	for i, leaf := range postSet {
		claimed := su.PostPairs[i]
		if claimed.Key != leaf.key || !bytes.Equal(claimed.Value, leaf.encoded) {
			return types.BatchHeader{}, nil, ErrPostStateSet
		}
		postPairs[i] = smt.ProofPair{Key: leaf.key, ValueHash: leaf.hash}
	}
	if !su.PostProof.Verify(su.PostStateRoot, postPairs) {
		return types.BatchHeader{}, nil, ErrPostStateProof
	}

	receipts := []types.TransactionReceipt{receipt}
	header := types.BatchHeader{
		PreStateRoot:     su.PreStateRoot,
		StateRoot:        su.PostStateRoot,
		TransactionsRoot: merkle.Root([]common.Hash{input.Tx.Hash()}),
		ReceiptsRoot:     merkle.Root(receiptHashes(receipts)),
		BatchNumber:      input.BatchNumber,
	}
	return header, receipts, nil
}

// executedLeaf carries the guest's view of one post-state leaf.
type executedLeaf struct {
	key     common.Hash
	encoded []byte
	hash    common.Hash
}

// executeTransition decodes the witnessed pre-state into typed leaves and
// runs the chain's STF, which performs the signature check itself.
func (z *ZKStateMachine) executeTransition(
	prePairs []types.StatePair,
	tx types.Transaction,
	agg types.AggregatedBatch,
) ([]executedLeaf, types.TransactionReceipt, error) {
	switch z.chain {
	case types.ChainNFT:
		pre := make([]nft.Nft, len(prePairs))
		for i, p := range prePairs {
			if p.Value == nil {
				continue // zero leaf
			}
			leaf, err := nft.DecodeNft(p.Value)
			if err != nil {
				return nil, types.TransactionReceipt{}, fmt.Errorf("%w: %v", types.ErrBadEncoding, err)
			}
			pre[i] = leaf
		}
		post, receipt, err := nft.NewStateTransition().ExecuteTx(pre, tx, agg)
		if err != nil {
			return nil, types.TransactionReceipt{}, err
		}
		out := make([]executedLeaf, len(post))
		for i, leaf := range post {
			out[i] = executedLeaf{key: leaf.StateKey(), encoded: leaf.EncodeLeaf(), hash: leaf.StateHash()}
		}
		return out, receipt, nil

	case types.ChainPayments:
		pre := make([]payments.Account, len(prePairs))
		for i, p := range prePairs {
			if p.Value == nil {
				continue
			}
			leaf, err := payments.DecodeAccount(p.Value)
			if err != nil {
				return nil, types.TransactionReceipt{}, fmt.Errorf("%w: %v", types.ErrBadEncoding, err)
			}
			pre[i] = leaf
		}
		post, receipt, err := payments.NewStateTransition().ExecuteTx(pre, tx, agg)
		if err != nil {
			return nil, types.TransactionReceipt{}, err
		}
		out := make([]executedLeaf, len(post))
		for i, leaf := range post {
			out[i] = executedLeaf{key: leaf.StateKey(), encoded: leaf.EncodeLeaf(), hash: leaf.StateHash()}
		}
		return out, receipt, nil
	}
	return nil, types.TransactionReceipt{}, ErrUnknownChain
}

// rawLeafHash is the leaf hash of an encoded leaf: zero when absent,
// SHA-256 of the encoding otherwise. Matches every leaf type's StateHash.
func rawLeafHash(raw []byte) common.Hash {
	if raw == nil {
		return common.Hash{}
	}
	sum := sha256.Sum256(raw)
	return common.BytesToHash(sum[:])
}

// receiptHashes projects receipts to their hashes for root computation.
func receiptHashes(receipts []types.TransactionReceipt) []common.Hash {
	out := make([]common.Hash, len(receipts))
	for i, r := range receipts {
		out[i] = r.Hash()
	}
	return out
}

// Copyright 2025 Certen Protocol
//
// Sparse Merkle Proofs
// Multi-key proofs with bitmap-compressed sibling paths. The same
// verification routine witnesses inclusion (non-zero value hash) and
// non-inclusion (zero value hash).

package smt

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	"github.com/ethereum/go-ethereum/common"
)

// ProofItem is the sibling path for one key. Bitmap bit h is set iff the
// sibling at level h is non-zero and therefore present in Siblings; unset
// bits stand for the zero hash.
type ProofItem struct {
	Key      common.Hash   `json:"key"`
	Bitmap   common.Hash   `json:"bitmap"`
	Siblings []common.Hash `json:"siblings"`
}

// Proof witnesses the value hashes of a set of keys against one root.
type Proof struct {
	Items []ProofItem `json:"items"`
}

// ProofPair is one (key, value hash) claim to be checked by Verify.
// A zero ValueHash claims absence.
type ProofPair struct {
	Key       common.Hash
	ValueHash common.Hash
}

// Verify recomputes the root from each claimed pair and its sibling path.
// It returns true only if every pair matches its proof item's key, every
// path resolves to root, and the pair count matches the item count.
func (p Proof) Verify(root common.Hash, pairs []ProofPair) bool {
	if len(pairs) != len(p.Items) {
		return false
	}
	for i, pair := range pairs {
		item := p.Items[i]
		if item.Key != pair.Key {
			return false
		}
		if item.compute(pair.ValueHash) != root {
			return false
		}
	}
	return true
}

// compute folds the value hash up the sibling path to a candidate root.
func (item ProofItem) compute(valueHash common.Hash) common.Hash {
	cur := valueHash
	next := 0
	for h := 0; h < TreeDepth; h++ {
		sibling := ZeroHash
		if bitmapBit(item.Bitmap, h) {
			if next >= len(item.Siblings) {
				return common.Hash{0xff} // malformed: bitmap claims more siblings than given
			}
			sibling = item.Siblings[next]
			next++
		}
		if branchRight(item.Key, h) {
			cur = mergeHash(sibling, cur)
		} else {
			cur = mergeHash(cur, sibling)
		}
	}
	if next != len(item.Siblings) {
		return common.Hash{0xff}
	}
	return cur
}

// Encode renders the proof in its canonical binary form: item count, then
// per item key, bitmap and the siblings the bitmap announces.
func (p Proof) Encode() []byte {
	size := 4
	for _, item := range p.Items {
		size += 2*common.HashLength + len(item.Siblings)*common.HashLength
	}
	out := make([]byte, 0, size)
	out = binary.BigEndian.AppendUint32(out, uint32(len(p.Items)))
	for _, item := range p.Items {
		out = append(out, item.Key[:]...)
		out = append(out, item.Bitmap[:]...)
		for _, s := range item.Siblings {
			out = append(out, s[:]...)
		}
	}
	return out
}

// DecodeProof parses the canonical binary form produced by Encode. The
// sibling count per item is derived from the bitmap, so a proof has exactly
// one valid encoding.
func DecodeProof(b []byte) (Proof, int, error) {
	if len(b) < 4 {
		return Proof{}, 0, fmt.Errorf("smt: proof truncated")
	}
	count := binary.BigEndian.Uint32(b[:4])
	off := 4

	items := make([]ProofItem, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(b) < off+2*common.HashLength {
			return Proof{}, 0, fmt.Errorf("smt: proof item %d truncated", i)
		}
		var item ProofItem
		item.Key = common.BytesToHash(b[off : off+common.HashLength])
		off += common.HashLength
		item.Bitmap = common.BytesToHash(b[off : off+common.HashLength])
		off += common.HashLength

		n := bitmapCount(item.Bitmap)
		if len(b) < off+n*common.HashLength {
			return Proof{}, 0, fmt.Errorf("smt: proof item %d siblings truncated", i)
		}
		item.Siblings = make([]common.Hash, n)
		for j := 0; j < n; j++ {
			item.Siblings[j] = common.BytesToHash(b[off : off+common.HashLength])
			off += common.HashLength
		}
		items = append(items, item)
	}
	return Proof{Items: items}, off, nil
}

func setBitmapBit(bm *common.Hash, h int) {
	bm[h/8] |= 1 << (uint(h) % 8)
}

func bitmapBit(bm common.Hash, h int) bool {
	return bm[h/8]&(1<<(uint(h)%8)) != 0
}

func bitmapCount(bm common.Hash) int {
	n := 0
	for _, b := range bm {
		n += bits.OnesCount8(b)
	}
	return n
}

// Copyright 2025 Certen Protocol
//
// Nexus RPC Server Tests

package nexus

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/certen/zkrollup-nexus/pkg/smt"
	"github.com/certen/zkrollup-nexus/pkg/types"
)

func TestServer_CurrentBatch(t *testing.T) {
	h := newHarness(t)
	srv := httptest.NewServer(NewServer(h.app, nil).Handler())
	defer srv.Close()

	h.submitMint(t, 100)
	if err := h.app.Aggregate(); err != nil {
		t.Fatalf("aggregate: %v", err)
	}

	resp, err := http.Get(srv.URL + "/current-batch")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}

	var agg types.AggregatedBatch
	if err := json.NewDecoder(resp.Body).Decode(&agg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if agg.ProofNumber != 1 {
		t.Errorf("proof number %d, want 1", agg.ProofNumber)
	}
}

func TestServer_ReceiptEndpoint(t *testing.T) {
	h := newHarness(t)
	srv := httptest.NewServer(NewServer(h.app, nil).Handler())
	defer srv.Close()

	receipt, _ := h.submitMint(t, 100)
	if err := h.app.Aggregate(); err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	key := receipt.Hash()

	resp, err := http.Get(srv.URL + "/receipt?key=" + hex.EncodeToString(key[:]))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	var out struct {
		Receipt types.TransactionReceipt `json:"receipt"`
		Proof   smt.Proof                `json:"proof"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Receipt.Hash() != key {
		t.Errorf("wrong receipt returned")
	}
	agg := h.app.CurrentBatch()
	if !out.Proof.Verify(agg.ReceiptsRoot, []smt.ProofPair{{Key: key, ValueHash: key}}) {
		t.Errorf("proof from the wire does not verify")
	}

	// Unknown key: zero receipt with a verifying non-inclusion proof.
	missing := common.HexToHash("0x77")
	resp2, err := http.Get(srv.URL + "/receipt?key=" + hex.EncodeToString(missing[:]))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp2.Body.Close()
	if err := json.NewDecoder(resp2.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.Receipt.IsZero() {
		t.Errorf("missing key returned a non-zero receipt")
	}
	if !out.Proof.Verify(agg.ReceiptsRoot, []smt.ProofPair{{Key: missing, ValueHash: common.Hash{}}}) {
		t.Errorf("non-inclusion proof from the wire does not verify")
	}

	// Bad key encodings are rejected.
	resp3, _ := http.Get(srv.URL + "/receipt?key=zzzz")
	resp3.Body.Close()
	if resp3.StatusCode != http.StatusBadRequest {
		t.Errorf("bad key status %d", resp3.StatusCode)
	}
}

func TestServer_SubmitBatchRejectsGarbage(t *testing.T) {
	h := newHarness(t)
	srv := httptest.NewServer(NewServer(h.app, nil).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/submit-batch", "application/json", strings.NewReader(`{"chain":"unknown"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status %d, want 400", resp.StatusCode)
	}

	resp2, err := http.Get(srv.URL + "/submit-batch")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET on submit-batch: status %d", resp2.StatusCode)
	}
}

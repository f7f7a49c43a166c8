// Copyright 2025 Certen Protocol
//
// App Node RPC Server Tests

package node

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/certen/zkrollup-nexus/pkg/payments"
	"github.com/certen/zkrollup-nexus/pkg/smt"
	"github.com/certen/zkrollup-nexus/pkg/types"
)

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	return resp
}

func TestServer_SubmitAndStatus(t *testing.T) {
	nexus := newFakeNexus(t)
	n := newTestNode(t, nexus.srv.URL)
	srv := httptest.NewServer(NewServer(n, nil).Handler())
	defer srv.Close()

	alice := types.SignerFromSeed("alice")
	tx := mintTx(t, alice, 100)

	resp := postJSON(t, srv.URL+"/tx", tx)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("submit status %d", resp.StatusCode)
	}
	var out map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["hash"] != tx.Hash().Hex() {
		t.Errorf("returned hash %q", out["hash"])
	}

	// Status through the wire: the pool has it.
	resp2 := postJSON(t, srv.URL+"/tx_status", tx.Hash().Hex())
	defer resp2.Body.Close()
	var status map[string]string
	if err := json.NewDecoder(resp2.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status["status"] != "tx_pool" {
		t.Errorf("status %q, want tx_pool", status["status"])
	}

	// Broken signature length rejected at the edge.
	resp3 := postJSON(t, srv.URL+"/tx", types.Transaction{Message: []byte{1}, Signature: []byte{2}})
	resp3.Body.Close()
	if resp3.StatusCode != http.StatusBadRequest {
		t.Errorf("short signature status %d", resp3.StatusCode)
	}
}

func TestServer_StateEndpoint(t *testing.T) {
	nexus := newFakeNexus(t)
	n := newTestNode(t, nexus.srv.URL)
	srv := httptest.NewServer(NewServer(n, nil).Handler())
	defer srv.Close()

	alice := types.SignerFromSeed("alice")
	key := alice.Address().StateKey()

	// Absent leaf: zero account plus a proof that verifies the zero hash.
	resp, err := http.Get(srv.URL + "/state/" + key.Hex()[2:])
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}

	var out struct {
		Leaf  payments.Account `json:"leaf"`
		Proof smt.Proof        `json:"proof"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.Leaf.IsZero() {
		t.Errorf("absent account not zero: %+v", out.Leaf)
	}
	if !out.Proof.Verify(n.Root(), []smt.ProofPair{{Key: key, ValueHash: common.Hash{}}}) {
		t.Errorf("zero-leaf proof does not verify")
	}

	// Garbage keys rejected.
	resp2, _ := http.Get(srv.URL + "/state/nothex")
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadRequest {
		t.Errorf("bad key status %d", resp2.StatusCode)
	}
}

func TestServer_MarketplaceEndpointsAbsentOnPayments(t *testing.T) {
	nexus := newFakeNexus(t)
	n := newTestNode(t, nexus.srv.URL)
	srv := httptest.NewServer(NewServer(n, nil).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/listed-nfts")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("listed-nfts on a payments node: status %d, want 404", resp.StatusCode)
	}

	resp2, err := http.Post(srv.URL+"/buy-nft", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Errorf("buy-nft on a payments node: status %d, want 404", resp2.StatusCode)
	}
}

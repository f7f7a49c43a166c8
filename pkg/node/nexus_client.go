// Copyright 2025 Certen Protocol
//
// Nexus HTTP Client
// Thin client for the aggregator endpoints the app nodes and the
// marketplace poll: current-batch, submit-batch and receipt lookup.

package node

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/certen/zkrollup-nexus/pkg/smt"
	"github.com/certen/zkrollup-nexus/pkg/types"
)

// NexusClient talks to a Nexus aggregator.
type NexusClient struct {
	baseURL string
	http    *http.Client
}

// NewNexusClient creates a client for the given base URL.
func NewNexusClient(baseURL string) *NexusClient {
	return &NexusClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// CurrentBatch fetches the last published aggregated batch.
func (c *NexusClient) CurrentBatch(ctx context.Context) (types.AggregatedBatch, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/current-batch", nil)
	if err != nil {
		return types.AggregatedBatch{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return types.AggregatedBatch{}, fmt.Errorf("nexus current-batch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.AggregatedBatch{}, fmt.Errorf("nexus current-batch status %d", resp.StatusCode)
	}
	var agg types.AggregatedBatch
	if err := json.NewDecoder(resp.Body).Decode(&agg); err != nil {
		return types.AggregatedBatch{}, fmt.Errorf("nexus current-batch decode: %w", err)
	}
	return agg, nil
}

// SubmitBatch posts a proved batch. Any non-200 response is an error; the
// caller reverts and retries.
func (c *NexusClient) SubmitBatch(ctx context.Context, param types.SubmitProofParam) error {
	body, err := json.Marshal(param)
	if err != nil {
		return fmt.Errorf("nexus submit encode: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/submit-batch", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("nexus submit-batch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("nexus submit-batch status %d: %s", resp.StatusCode, msg)
	}
	return nil
}

// ReceiptWithProof is the Nexus receipt lookup response.
type ReceiptWithProof struct {
	Receipt types.TransactionReceipt `json:"receipt"`
	Proof   smt.Proof                `json:"proof"`
}

// Receipt fetches a receipt and its (non-)inclusion proof by commitment
// key against the last aggregated receipts root.
func (c *NexusClient) Receipt(ctx context.Context, key common.Hash) (ReceiptWithProof, error) {
	url := fmt.Sprintf("%s/receipt?key=%s", c.baseURL, hex.EncodeToString(key[:]))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ReceiptWithProof{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return ReceiptWithProof{}, fmt.Errorf("nexus receipt: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ReceiptWithProof{}, fmt.Errorf("nexus receipt status %d", resp.StatusCode)
	}
	var out ReceiptWithProof
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ReceiptWithProof{}, fmt.Errorf("nexus receipt decode: %w", err)
	}
	return out, nil
}

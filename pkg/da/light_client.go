// Copyright 2025 Certen Protocol
//
// DA Light Client
// HTTP client against a DA gateway. Submission blocks until the gateway
// reports finality; block reads poll sampling confidence first and treat a
// 404 on app data as an empty block.

package da

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// LightClientConfig configures the gateway connection.
type LightClientConfig struct {
	GatewayURL string `yaml:"gateway_url"`
	AppID      uint32 `yaml:"app_id"`
	// Seed identifies the submitting DA account on the gateway side.
	Seed string `yaml:"seed"`
}

// LightClient talks to a DA gateway over HTTP.
type LightClient struct {
	cfg    LightClientConfig
	http   *http.Client
	logger *log.Logger
}

// NewLightClient creates a gateway client.
func NewLightClient(cfg LightClientConfig, logger *log.Logger) *LightClient {
	if logger == nil {
		logger = log.New(log.Writer(), "[DA] ", log.LstdFlags)
	}
	return &LightClient{
		cfg:    cfg,
		http:   &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

type submitRequest struct {
	Data  []byte `json:"data"`
	AppID uint32 `json:"app_id"`
	Seed  string `json:"seed"`
}

type submitResponse struct {
	BlockHash common.Hash `json:"block_hash"`
	TxHash    common.Hash `json:"hash"`
}

type confidenceResponse struct {
	Block      uint64  `json:"block"`
	Confidence float64 `json:"confidence"`
}

type blockResponse struct {
	Header       BlockHeader `json:"header"`
	Transactions []BlobTx    `json:"transactions"`
}

// SubmitTransaction posts the blob and blocks until the gateway reports
// the containing block as finalized.
func (c *LightClient) SubmitTransaction(ctx context.Context, blob []byte) (common.Hash, common.Hash, error) {
	body, err := json.Marshal(submitRequest{Data: blob, AppID: c.cfg.AppID, Seed: c.cfg.Seed})
	if err != nil {
		return common.Hash{}, common.Hash{}, fmt.Errorf("da submit encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.GatewayURL+"/v1/submit", bytes.NewReader(body))
	if err != nil {
		return common.Hash{}, common.Hash{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return common.Hash{}, common.Hash{}, fmt.Errorf("da submit: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return common.Hash{}, common.Hash{}, fmt.Errorf("da submit failed with status %d: %s", resp.StatusCode, msg)
	}

	var out submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return common.Hash{}, common.Hash{}, fmt.Errorf("da submit decode: %w", err)
	}
	return out.BlockHash, out.TxHash, nil
}

// GetBlockAt fetches the finalized block at a height, waiting for sampling
// confidence and app data availability first.
func (c *LightClient) GetBlockAt(ctx context.Context, height uint64) (*Block, error) {
	return c.getFinalized(ctx, fmt.Sprintf("%s/v1/block/%d", c.cfg.GatewayURL, height), height)
}

// GetBlockWithHash fetches the finalized block with the given hash.
func (c *LightClient) GetBlockWithHash(ctx context.Context, hash common.Hash) (*Block, error) {
	// The gateway resolves the hash to a height internally; confidence is
	// checked from the returned header before the block is trusted.
	url := fmt.Sprintf("%s/v1/block-hash/%s", c.cfg.GatewayURL, hash.Hex())
	block, err := c.fetchBlock(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := c.waitForConfidence(ctx, block.Header.Number); err != nil {
		return nil, err
	}
	return block, nil
}

func (c *LightClient) getFinalized(ctx context.Context, url string, height uint64) (*Block, error) {
	if err := c.waitForConfidence(ctx, height); err != nil {
		return nil, err
	}
	return c.fetchBlock(ctx, url)
}

// waitForConfidence polls the gateway until sampling confidence reaches
// the threshold, bounded by the polling timeout.
func (c *LightClient) waitForConfidence(ctx context.Context, height uint64) error {
	deadline := time.Now().Add(PollingTimeoutSeconds * time.Second)
	url := fmt.Sprintf("%s/v1/confidence/%d", c.cfg.GatewayURL, height)

	for {
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: confidence for block %d", ErrTimeout, height)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("da confidence: %w", err)
		}

		if resp.StatusCode == http.StatusOK {
			var conf confidenceResponse
			err := json.NewDecoder(resp.Body).Decode(&conf)
			resp.Body.Close()
			if err != nil {
				return fmt.Errorf("da confidence decode: %w", err)
			}
			if conf.Confidence >= ConfidenceThreshold {
				return nil
			}
			c.logger.Printf("confidence for block %d at %.1f, waiting", height, conf.Confidence)
		} else {
			resp.Body.Close()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(PollingIntervalSeconds * time.Second):
		}
	}
}

// fetchBlock polls the block endpoint until app data is served. A 404
// means the block holds no app data and always yields an empty block,
// which keeps the header when the 404 body carries one.
func (c *LightClient) fetchBlock(ctx context.Context, url string) (*Block, error) {
	deadline := time.Now().Add(PollingTimeoutSeconds * time.Second)

	for {
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: app data %s", ErrTimeout, url)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("da fetch block: %w", err)
		}

		switch resp.StatusCode {
		case http.StatusOK:
			var out blockResponse
			err := json.NewDecoder(resp.Body).Decode(&out)
			resp.Body.Close()
			if err != nil {
				return nil, fmt.Errorf("da block decode: %w", err)
			}
			return &Block{Header: out.Header, Transactions: out.Transactions}, nil
		case http.StatusNotFound:
			// App data not published for this block: empty block.
			var out blockResponse
			if json.NewDecoder(resp.Body).Decode(&out) == nil && out.Header.Number > 0 {
				resp.Body.Close()
				return &Block{Header: out.Header}, nil
			}
			resp.Body.Close()
			return &Block{}, nil
		default:
			resp.Body.Close()
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(PollingIntervalSeconds * time.Second):
		}
	}
}

// Copyright 2025 Certen Protocol
//
// Service Configuration
// Environment-variable driven with an optional YAML file overlay: the
// file (CONFIG_FILE) is loaded first, then environment variables override
// individual fields.

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/certen/zkrollup-nexus/pkg/types"
)

// NodeConfig holds the settings of one app node.
type NodeConfig struct {
	// Chain is "nft" or "payments".
	Chain string `yaml:"chain"`

	// Server configuration
	ListenAddr  string `yaml:"listen_addr"`
	MetricsAddr string `yaml:"metrics_addr"`

	// Storage
	DataDir string `yaml:"data_dir"`

	// Peers
	NexusURL string `yaml:"nexus_url"`

	// DA gateway
	DAGatewayURL string `yaml:"da_gateway_url"`
	DAAppID      uint32 `yaml:"da_app_id"`
	DASeed       string `yaml:"da_seed"`
	// DAMode selects "gateway" or "memory" (single-process dev).
	DAMode string `yaml:"da_mode"`

	// Prover key directory; keys are generated there on first start.
	ProverKeyDir string `yaml:"prover_key_dir"`

	// Build loop idle sleep.
	SleepInterval time.Duration `yaml:"sleep_interval"`

	// NFT node only: marketplace settings.
	CustodianKeyPath string `yaml:"custodian_key_path"`
	PaymentsNodeURL  string `yaml:"payments_node_url"`
	ListingPrice     uint64 `yaml:"listing_price"`
}

// LoadNode reads the node configuration for the given chain.
func LoadNode(chain types.AppChain) (*NodeConfig, error) {
	defaultPort := "7000"
	if chain == types.ChainPayments {
		defaultPort = "7001"
	}

	cfg := &NodeConfig{
		Chain:            string(chain),
		ListenAddr:       "0.0.0.0:" + defaultPort,
		MetricsAddr:      "0.0.0.0:9090",
		DataDir:          "./data/" + string(chain),
		NexusURL:         "http://127.0.0.1:8080",
		DAGatewayURL:     "http://127.0.0.1:7007",
		DAMode:           "gateway",
		ProverKeyDir:     "./keys/" + string(chain),
		SleepInterval:    10 * time.Second,
		PaymentsNodeURL:  "http://127.0.0.1:7001",
		ListingPrice:     10,
	}

	if err := loadYAMLOverlay(cfg); err != nil {
		return nil, err
	}

	cfg.ListenAddr = getEnv("API_HOST", hostOf(cfg.ListenAddr)) + ":" + getEnv("API_PORT", portOf(cfg.ListenAddr))
	cfg.MetricsAddr = getEnv("API_HOST", hostOf(cfg.MetricsAddr)) + ":" + getEnv("METRICS_PORT", portOf(cfg.MetricsAddr))
	cfg.DataDir = getEnv("DATA_DIR", cfg.DataDir)
	cfg.NexusURL = getEnv("NEXUS_URL", cfg.NexusURL)
	cfg.DAGatewayURL = getEnv("DA_GATEWAY_URL", cfg.DAGatewayURL)
	cfg.DAAppID = uint32(getEnvInt("DA_APP_ID", int(cfg.DAAppID)))
	cfg.DASeed = getEnv("DA_SEED", cfg.DASeed)
	cfg.DAMode = getEnv("DA_MODE", cfg.DAMode)
	cfg.ProverKeyDir = getEnv("PROVER_KEY_DIR", cfg.ProverKeyDir)
	cfg.SleepInterval = getEnvDuration("SLEEP_INTERVAL", cfg.SleepInterval)
	cfg.CustodianKeyPath = getEnv("CUSTODIAN_KEY_PATH", cfg.CustodianKeyPath)
	cfg.PaymentsNodeURL = getEnv("PAYMENTS_NODE_URL", cfg.PaymentsNodeURL)
	cfg.ListingPrice = uint64(getEnvInt("LISTING_PRICE", int(cfg.ListingPrice)))

	return cfg, nil
}

// Validate checks node configuration consistency.
func (c *NodeConfig) Validate() error {
	var errs []string
	if c.Chain != string(types.ChainNFT) && c.Chain != string(types.ChainPayments) {
		errs = append(errs, fmt.Sprintf("unknown chain %q", c.Chain))
	}
	if c.NexusURL == "" {
		errs = append(errs, "NEXUS_URL is required")
	}
	if c.DAMode != "gateway" && c.DAMode != "memory" {
		errs = append(errs, fmt.Sprintf("unknown da mode %q", c.DAMode))
	}
	if c.DAMode == "gateway" && c.DAGatewayURL == "" {
		errs = append(errs, "DA_GATEWAY_URL is required in gateway mode")
	}
	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// NexusConfig holds the aggregator settings.
type NexusConfig struct {
	ListenAddr  string `yaml:"listen_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	DataDir     string `yaml:"data_dir"`

	// AggregationInterval is the aggregation timer cadence.
	AggregationInterval time.Duration `yaml:"aggregation_interval"`

	// Verification key files per chain.
	NFTVerifyingKey      string `yaml:"nft_verifying_key"`
	PaymentsVerifyingKey string `yaml:"payments_verifying_key"`

	// DA gateway (blob refetch for auditing).
	DAGatewayURL string `yaml:"da_gateway_url"`
	DAMode       string `yaml:"da_mode"`

	// Optional Postgres proof archive.
	DatabaseURL string `yaml:"database_url"`
}

// LoadNexus reads the aggregator configuration.
func LoadNexus() (*NexusConfig, error) {
	cfg := &NexusConfig{
		ListenAddr:          "0.0.0.0:8080",
		MetricsAddr:         "0.0.0.0:9091",
		DataDir:             "./data/nexus",
		AggregationInterval: 30 * time.Second,
		DAGatewayURL:        "http://127.0.0.1:7007",
		DAMode:              "gateway",
	}

	if err := loadYAMLOverlay(cfg); err != nil {
		return nil, err
	}

	cfg.ListenAddr = getEnv("API_HOST", hostOf(cfg.ListenAddr)) + ":" + getEnv("API_PORT", portOf(cfg.ListenAddr))
	cfg.MetricsAddr = getEnv("API_HOST", hostOf(cfg.MetricsAddr)) + ":" + getEnv("METRICS_PORT", portOf(cfg.MetricsAddr))
	cfg.DataDir = getEnv("DATA_DIR", cfg.DataDir)
	cfg.AggregationInterval = getEnvDuration("AGGREGATION_INTERVAL", cfg.AggregationInterval)
	cfg.NFTVerifyingKey = getEnv("NFT_VERIFYING_KEY", cfg.NFTVerifyingKey)
	cfg.PaymentsVerifyingKey = getEnv("PAYMENTS_VERIFYING_KEY", cfg.PaymentsVerifyingKey)
	cfg.DAGatewayURL = getEnv("DA_GATEWAY_URL", cfg.DAGatewayURL)
	cfg.DAMode = getEnv("DA_MODE", cfg.DAMode)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)

	return cfg, nil
}

// Validate checks aggregator configuration consistency.
func (c *NexusConfig) Validate() error {
	var errs []string
	if c.NFTVerifyingKey == "" {
		errs = append(errs, "NFT_VERIFYING_KEY is required")
	}
	if c.PaymentsVerifyingKey == "" {
		errs = append(errs, "PAYMENTS_VERIFYING_KEY is required")
	}
	if c.DatabaseURL != "" && strings.Contains(c.DatabaseURL, "sslmode=disable") {
		errs = append(errs, "DATABASE_URL must not use sslmode=disable")
	}
	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// loadYAMLOverlay applies the CONFIG_FILE overlay when present.
func loadYAMLOverlay(into any) error {
	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func hostOf(addr string) string {
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		return addr[:i]
	}
	return addr
}

func portOf(addr string) string {
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		return addr[i+1:]
	}
	return ""
}

// Copyright 2025 Certen Protocol
//
// App Node Launcher
// Wires one chain's node from configuration: stores, state machine,
// prover, DA client, RPC and metrics servers, and the build loop.

package node

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/certen/zkrollup-nexus/pkg/config"
	"github.com/certen/zkrollup-nexus/pkg/da"
	"github.com/certen/zkrollup-nexus/pkg/kvdb"
	"github.com/certen/zkrollup-nexus/pkg/nft"
	"github.com/certen/zkrollup-nexus/pkg/payments"
	"github.com/certen/zkrollup-nexus/pkg/types"
	"github.com/certen/zkrollup-nexus/pkg/zkvm"
)

// Launch runs an app node for the given chain until SIGINT/SIGTERM.
func Launch(chain types.AppChain) error {
	logger := log.New(log.Writer(), fmt.Sprintf("[%s-node] ", chain), log.LstdFlags)

	cfg, err := config.LoadNode(chain)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	stateStore, err := kvdb.OpenGoLevelDB("state", cfg.DataDir)
	if err != nil {
		return err
	}
	defer stateStore.Close()
	metaStore, err := kvdb.OpenGoLevelDB("node", cfg.DataDir)
	if err != nil {
		return err
	}
	defer metaStore.Close()
	metaDB := kvdb.NewNodeDB(metaStore)

	lastHeader, _, err := kvdb.Get[types.BatchHeader](metaDB, keyLastBatchHeader)
	if err != nil {
		return fmt.Errorf("read last batch header: %w", err)
	}

	var sm StateMachine
	var nftMachine *nft.StateMachine
	var custodian *types.Signer
	switch chain {
	case types.ChainNFT:
		listingsStore, err := kvdb.OpenGoLevelDB("listings", cfg.DataDir)
		if err != nil {
			return err
		}
		defer listingsStore.Close()

		var custodianAddr types.Address
		if cfg.CustodianKeyPath != "" {
			custodian, err = loadOrCreateSigner(cfg.CustodianKeyPath)
			if err != nil {
				return err
			}
			custodianAddr = custodian.Address()
			logger.Printf("custodian address: %s", custodianAddr)
		}

		nftMachine, err = nft.NewStateMachine(stateStore, lastHeader.StateRoot, kvdb.NewNodeDB(listingsStore), custodianAddr, cfg.ListingPrice)
		if err != nil {
			return err
		}
		if n, err := nftMachine.RebuildListingIndex(stateStore); err != nil {
			logger.Printf("listing index rebuild failed: %v", err)
		} else if n > 0 {
			logger.Printf("rebuilt listing index with %d entries", n)
		}
		sm = nftMachine
	case types.ChainPayments:
		sm, err = payments.NewStateMachine(stateStore, lastHeader.StateRoot)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown chain %q", chain)
	}

	guest, err := zkvm.NewZKStateMachine(chain)
	if err != nil {
		return err
	}
	prover := zkvm.NewProver(guest)
	if err := initProver(prover, cfg.ProverKeyDir, logger); err != nil {
		return err
	}
	logger.Printf("prover image id: %x", prover.ImageID())

	var daCli da.Client
	if cfg.DAMode == "memory" {
		daCli = da.NewMemDA()
	} else {
		daCli = da.NewLightClient(da.LightClientConfig{
			GatewayURL: cfg.DAGatewayURL,
			AppID:      cfg.DAAppID,
			Seed:       cfg.DASeed,
		}, nil)
	}

	appNode := NewAppNode(
		Config{Chain: chain, SleepInterval: cfg.SleepInterval},
		sm, metaDB, daCli, prover, NewNexusClient(cfg.NexusURL), logger,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := NewServer(appNode, nil)
	if chain == types.ChainNFT && nftMachine != nil {
		var swap *SwapService
		if custodian != nil {
			swap = NewSwapService(appNode, nftMachine, custodian, cfg.PaymentsNodeURL, nil)
		}
		server.AttachNFTExtensions(nftMachine, swap)
	}

	rpcSrv := &http.Server{Addr: cfg.ListenAddr, Handler: server.Handler()}
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsHandler(appNode)}

	errCh := make(chan error, 3)
	go func() {
		logger.Printf("rpc listening on %s", cfg.ListenAddr)
		if err := rpcSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		logger.Printf("metrics listening on %s", cfg.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		errCh <- appNode.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Printf("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("fatal: %v", err)
			shutdown(rpcSrv, metricsSrv)
			return err
		}
	}
	shutdown(rpcSrv, metricsSrv)
	return nil
}

// initProver loads persisted circuit keys or runs the one-time setup and
// saves them.
func initProver(prover *zkvm.Groth16Prover, keyDir string, logger *log.Logger) error {
	if _, err := os.Stat(filepath.Join(keyDir, "journal.vk")); err == nil {
		logger.Printf("loading prover keys from %s", keyDir)
		return prover.InitializeFromKeys(keyDir)
	}
	logger.Printf("running circuit setup, saving keys to %s", keyDir)
	if err := prover.Initialize(); err != nil {
		return err
	}
	return prover.SaveKeys(keyDir)
}

// loadOrCreateSigner loads the key file, generating it if missing.
func loadOrCreateSigner(path string) (*types.Signer, error) {
	if _, err := os.Stat(path); err == nil {
		return types.SignerFromFile(path)
	}
	signer := types.NewSigner()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if err := signer.Save(path); err != nil {
		return nil, err
	}
	return signer, nil
}

// metricsHandler serves Prometheus metrics plus a basic health endpoint.
func metricsHandler(n *AppNode) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(n.Metrics().Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "ok",
			"chain":  n.Chain(),
			"root":   n.Root().Hex(),
		})
	})
	return mux
}

func shutdown(servers ...*http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, s := range servers {
		_ = s.Shutdown(ctx)
	}
}

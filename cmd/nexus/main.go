// Nexus Aggregator
// Verifies proofs from both rollup chains, advances the cross-chain
// receipts tree and publishes the aggregated receipts root.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/certen/zkrollup-nexus/pkg/config"
	"github.com/certen/zkrollup-nexus/pkg/da"
	"github.com/certen/zkrollup-nexus/pkg/kvdb"
	"github.com/certen/zkrollup-nexus/pkg/nexus"
	"github.com/certen/zkrollup-nexus/pkg/types"
	"github.com/certen/zkrollup-nexus/pkg/zkvm"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := log.New(log.Writer(), "[nexus] ", log.LstdFlags)

	cfg, err := config.LoadNexus()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	stateStore, err := kvdb.OpenGoLevelDB("receipts", cfg.DataDir)
	if err != nil {
		return err
	}
	defer stateStore.Close()
	metaStore, err := kvdb.OpenGoLevelDB("nexus", cfg.DataDir)
	if err != nil {
		return err
	}
	defer metaStore.Close()

	verifier := zkvm.NewVerifier()
	imageIDs := make(map[types.AppChain]common.Hash)
	for chain, path := range map[types.AppChain]string{
		types.ChainNFT:      cfg.NFTVerifyingKey,
		types.ChainPayments: cfg.PaymentsVerifyingKey,
	} {
		id, err := verifier.RegisterFromFile(path)
		if err != nil {
			return fmt.Errorf("register %s verifying key: %w", chain, err)
		}
		imageIDs[chain] = id
		logger.Printf("%s image id: %x", chain, id)
	}

	var daCli da.Client
	if cfg.DAMode == "memory" {
		daCli = da.NewMemDA()
	} else {
		daCli = da.NewLightClient(da.LightClientConfig{GatewayURL: cfg.DAGatewayURL}, nil)
	}

	archive, err := nexus.OpenProofArchive(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if archive != nil {
		defer archive.Close()
		logger.Printf("proof archive enabled")
	}

	app, err := nexus.New(
		nexus.Config{AggregationInterval: cfg.AggregationInterval, ImageIDs: imageIDs},
		stateStore, kvdb.NewNodeDB(metaStore), daCli, verifier, archive, logger,
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rpcSrv := &http.Server{Addr: cfg.ListenAddr, Handler: nexus.NewServer(app, nil).Handler()}
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsHandler(app)}

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
		errCh <- app.Run(ctx)
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

func metricsHandler(app *nexus.App) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(app.Metrics().Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":       "ok",
			"proof_number": app.CurrentBatch().ProofNumber,
			"da_block":     app.LastDABlock(),
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

// Copyright 2025 Certen Protocol
//
// App Node Metrics

package node

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the app node's Prometheus collectors.
type Metrics struct {
	Registry *prometheus.Registry

	PoolDepth        prometheus.Gauge
	BatchesCommitted prometheus.Counter
	TxsDropped       prometheus.Counter
	BatchRetries     prometheus.Counter
	ProverSeconds    prometheus.Histogram
}

// NewMetrics creates and registers the node collectors on a fresh
// registry, labeled by chain.
func NewMetrics(chain string) *Metrics {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"chain": chain}

	m := &Metrics{
		Registry: reg,
		PoolDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rollup_tx_pool_depth", Help: "Pending transactions in the pool.", ConstLabels: labels,
		}),
		BatchesCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rollup_batches_committed_total", Help: "Batches committed by the build loop.", ConstLabels: labels,
		}),
		TxsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rollup_txs_dropped_total", Help: "Transactions dropped after validation or proof failure.", ConstLabels: labels,
		}),
		BatchRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rollup_batch_retries_total", Help: "Batch attempts retried after DA or Nexus errors.", ConstLabels: labels,
		}),
		ProverSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "rollup_prover_seconds", Help: "Wall-clock seconds per prover invocation.", ConstLabels: labels,
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
	}

	reg.MustRegister(m.PoolDepth, m.BatchesCommitted, m.TxsDropped, m.BatchRetries, m.ProverSeconds)
	return m
}

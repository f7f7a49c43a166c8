// Copyright 2025 Certen Protocol
//
// Nexus Metrics

package nexus

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the aggregator's Prometheus collectors.
type Metrics struct {
	Registry *prometheus.Registry

	BatchesVerified       prometheus.Counter
	BatchesRejected       prometheus.Counter
	ReceiptsAggregated    prometheus.Counter
	AggregatedProofNumber prometheus.Gauge
}

// NewMetrics creates and registers the aggregator collectors on a fresh
// registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		BatchesVerified: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nexus_batches_verified_total", Help: "Batches accepted into the aggregation buffers.",
		}),
		BatchesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nexus_batches_rejected_total", Help: "Batch submissions rejected during verification.",
		}),
		ReceiptsAggregated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nexus_receipts_aggregated_total", Help: "Receipts folded into the receipts tree.",
		}),
		AggregatedProofNumber: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nexus_aggregated_proof_number", Help: "Last published aggregation counter.",
		}),
	}

	reg.MustRegister(m.BatchesVerified, m.BatchesRejected, m.ReceiptsAggregated, m.AggregatedProofNumber)
	return m
}

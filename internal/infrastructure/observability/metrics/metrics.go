// Package metrics exposes Prometheus instrumentation for backend selection,
// fallbacks and aggregation hygiene.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SinkOperations counts sink operations by operation, serving backend and outcome.
	SinkOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hugtrack_sink_operations_total",
			Help: "Sink operations by operation, backend and outcome",
		},
		[]string{"operation", "backend", "outcome"}, // outcome: "success", "failure"
	)

	// SinkFallbacks counts remote failures that were served by the local store.
	SinkFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hugtrack_sink_fallbacks_total",
			Help: "Remote store failures recovered by the local store",
		},
		[]string{"operation"},
	)

	// LocalStoreErrors counts local medium failures (quota, serialization).
	LocalStoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hugtrack_local_store_errors_total",
			Help: "Local persistence failures",
		},
		[]string{"operation"},
	)

	// SkippedRecords counts malformed records skipped during scans.
	SkippedRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hugtrack_skipped_records_total",
			Help: "Malformed records skipped while reading",
		},
		[]string{"source"}, // "local", "remote"
	)

	// SyntheticValues counts values synthesized because real data was absent.
	SyntheticValues = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hugtrack_synthetic_values_total",
			Help: "Aggregate values synthesized for sparse data",
		},
		[]string{"field"},
	)

	// BreakerState is the remote circuit breaker state (0 closed, 1 half-open, 2 open).
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hugtrack_remote_breaker_state",
			Help: "Remote store circuit breaker state",
		},
		[]string{"name"},
	)

	// BeaconsSent counts dispatched session-end beacons by outcome.
	BeaconsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hugtrack_beacons_total",
			Help: "Session-end beacons dispatched",
		},
		[]string{"outcome"},
	)
)

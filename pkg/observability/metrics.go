// Package observability provides Prometheus metrics for monitoring
// tracking store traffic and partitioned run dispatch.
package observability

import "github.com/prometheus/client_golang/prometheus"

// RequestBuckets defines histogram buckets suited for tracking store round
// trips, ranging from 5ms for in-process backends to 30s for remote servers.
var RequestBuckets = []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

var (
	// TrackingRequestsTotal counts store operations by op, backend, and outcome.
	TrackingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mlbridge_tracking_requests_total",
			Help: "Tracking store operations",
		},
		[]string{"op", "backend", "status"},
	)

	// TrackingRequestDuration records store operation duration in seconds by op and backend.
	TrackingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mlbridge_tracking_request_duration_seconds",
			Help:    "Tracking store operation duration",
			Buckets: RequestBuckets,
		},
		[]string{"op", "backend"},
	)

	// PartitionSavesTotal counts dispatched partition saves by inner dataset
	// type and outcome.
	PartitionSavesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mlbridge_partition_saves_total",
			Help: "Partition saves",
		},
		[]string{"dataset", "status"},
	)

	// ChildRunsActive tracks the number of child runs currently open while a
	// partition save is in flight.
	ChildRunsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mlbridge_child_runs_active",
			Help: "Child runs currently open",
		},
	)
)

func init() {
	prometheus.MustRegister(
		TrackingRequestsTotal,
		TrackingRequestDuration,
		PartitionSavesTotal,
		ChildRunsActive,
	)
}

// Package metrics provides Prometheus metrics for the fusefs adapter.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Kernel operation metrics
	opsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fusefs_operations_total",
			Help: "Total number of kernel filesystem operations served",
		},
		[]string{"op", "outcome"},
	)

	// Backend call metrics
	backendCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fusefs_backend_calls_total",
			Help: "Total number of calls issued to the archive backend",
		},
		[]string{"backend", "op"},
	)

	// Handle table metrics
	openHandles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fusefs_open_handles",
			Help: "Number of currently open read sessions",
		},
	)

	readBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fusefs_read_bytes",
			Help:    "Size distribution of served reads in bytes",
			Buckets: prometheus.ExponentialBuckets(256, 4, 10),
		},
	)
)

// RecordOp counts one kernel operation with its outcome ("ok" or "error").
func RecordOp(op, outcome string) {
	opsTotal.WithLabelValues(op, outcome).Inc()
}

// RecordBackendCall counts one call against the archive backend.
func RecordBackendCall(backend, op string) {
	backendCallsTotal.WithLabelValues(backend, op).Inc()
}

// HandleOpened tracks a new read session.
func HandleOpened() {
	openHandles.Inc()
}

// HandleReleased tracks a closed read session.
func HandleReleased() {
	openHandles.Dec()
}

// RecordRead records the size of one served read.
func RecordRead(bytes int) {
	readBytes.Observe(float64(bytes))
}

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Package metrics defines the Prometheus instruments for the RPC
// service and the embedding transport.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// RPC Prometheus metrics.
var (
	RPCRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "semdex",
			Name:      "rpc_requests_total",
			Help:      "Total number of JSON-RPC requests",
		},
		[]string{"method", "status"},
	)

	RPCRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "semdex",
			Name:      "rpc_request_duration_seconds",
			Help:      "JSON-RPC request duration in seconds",
			Buckets:   []float64{0.005, 0.025, 0.1, 0.25, 1, 2.5, 10, 30},
		},
		[]string{"method"},
	)

	RPCChunksSentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "semdex",
			Name:      "rpc_chunks_sent_total",
			Help:      "Total streamed result chunks sent",
		},
	)

	RPCConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "semdex",
			Name:      "rpc_connections_active",
			Help:      "Currently open client connections",
		},
	)
)

// Embedding Prometheus metrics.
var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "semdex",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"provider", "model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "semdex",
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "model"},
	)
)

// Register registers all metrics with the default registry. Called
// explicitly from the composition root (no init()).
func Register() {
	prometheus.MustRegister(
		RPCRequestsTotal,
		RPCRequestDuration,
		RPCChunksSentTotal,
		RPCConnectionsActive,
		EmbeddingRequestsTotal,
		EmbeddingRequestDuration,
	)
}

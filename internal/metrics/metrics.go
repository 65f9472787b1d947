// Package metrics provides Prometheus metrics collection for the model server.
// It defines the model, request and refusal metrics exposed via the /metrics
// endpoint for monitoring and alerting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the model server. Model metrics
// are labeled by model key (for example "sesar/material").
type Metrics struct {
	// Model metrics
	MLPredictions *prometheus.CounterVec   // Successful model invocations
	MLFailures    *prometheus.CounterVec   // Failed model invocations
	MLTimeouts    *prometheus.CounterVec   // Model invocations that timed out
	MLLatency     *prometheus.HistogramVec // Model inference latency in seconds
	MLCacheHits   *prometheus.CounterVec   // Predictions served from cache
	MLCacheMisses *prometheus.CounterVec   // Predictions that needed inference
	MLModelLoad   *prometheus.HistogramVec // Model load duration in seconds
	ModelsLoaded  prometheus.Gauge         // Number of models currently loaded

	// Request metrics
	RecordsRefused  *prometheus.CounterVec   // Records refused by kind
	HTTPRequests    *prometheus.CounterVec   // Requests by route and status
	HTTPDuration    *prometheus.HistogramVec // Request duration by route
	WSConnections   prometheus.Gauge         // Open /stream connections
	StreamDiscarded prometheus.Counter       // Unreadable /stream messages
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		MLPredictions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ml_predictions_total",
			Help: "Total number of model predictions made",
		}, []string{"model"}),
		MLFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ml_failures_total",
			Help: "Total number of model prediction failures",
		}, []string{"model"}),
		MLTimeouts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ml_timeouts_total",
			Help: "Total number of model prediction timeouts",
		}, []string{"model"}),
		MLLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ml_latency_seconds",
			Help:    "Model inference latency in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
		}, []string{"model"}),
		MLCacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ml_cache_hits_total",
			Help: "Total number of predictions served from the prediction cache",
		}, []string{"model"}),
		MLCacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ml_cache_misses_total",
			Help: "Total number of predictions not found in the prediction cache",
		}, []string{"model"}),
		MLModelLoad: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ml_model_load_seconds",
			Help:    "Model load duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"model"}),
		ModelsLoaded: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ml_models_loaded",
			Help: "Number of models currently loaded",
		}),
		RecordsRefused: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "records_refused_total",
			Help: "Total number of source records refused, by exception kind",
		}, []string{"kind"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests by route and status code",
		}, []string{"route", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		WSConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ws_connections",
			Help: "Number of open prediction stream connections",
		}),
		StreamDiscarded: factory.NewCounter(prometheus.CounterOpts{
			Name: "stream_messages_discarded_total",
			Help: "Total number of unreadable prediction stream messages",
		}),
	}
}

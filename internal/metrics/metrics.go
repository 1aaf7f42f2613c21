// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ResponsesAnalyzed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_responses_total",
			Help: "Total number of responses run through extraction",
		},
		[]string{"answer_engine", "outcome"},
	)

	ExtractionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "analysis_extraction_duration_seconds",
			Help:    "Duration of citation extraction and metric derivation in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"answer_engine"},
	)

	BatchTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_batch_transitions_total",
			Help: "Total number of batch write state transitions",
		},
		[]string{"state"},
	)

	BatchWriteAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "analysis_batch_write_attempts",
			Help:    "Transaction attempts needed per batch write",
			Buckets: []float64{1, 2, 3, 4, 5, 8},
		},
	)

	BatchWriteDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "analysis_batch_write_duration_seconds",
			Help: "Duration of batch writes in seconds, retries included",
		},
		[]string{"outcome"},
	)

	BatchRecords = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "analysis_batch_records",
			Help:    "Number of records committed per batch",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	BatchesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "analysis_batches_active",
			Help: "Number of batch writes currently in progress",
		},
	)

	IndexingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "analysis_indexing_failures_total",
			Help: "Total number of committed analyses that failed to reach the search index",
		},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_http_requests_total",
			Help: "Total number of HTTP requests by route and status code",
		},
		[]string{"route", "code"},
	)
)

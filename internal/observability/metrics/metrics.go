// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "caption_ingress"

// Metrics holds all Prometheus metrics for the engine.
type Metrics struct {
	// Scan loop metrics
	ScanTicks      prometheus.Counter
	EmptyTicks     prometheus.Counter
	Observations   prometheus.Histogram

	// Source discovery metrics
	DiscoveryState      prometheus.Gauge
	CandidatesProposed  *prometheus.CounterVec
	CandidatesExpired   prometheus.Counter
	SourceAttachments   prometheus.Counter
	SourceDetachments   prometheus.Counter

	// Transcript metrics
	BlocksCommitted  prometheus.Counter
	BlocksRevised    prometheus.Counter
	BlocksMerged     prometheus.Counter
	TranscriptLength prometheus.Gauge

	// Flush metrics
	FlushesTotal   prometheus.Counter
	FlushesSkipped prometheus.Counter
	SinkErrors     prometheus.Counter
	Checkpoints    prometheus.Counter

	// Correction metrics
	CorrectionsRequested prometheus.Counter
	CorrectionsApplied   prometheus.Counter
	CorrectionsDiscarded *prometheus.CounterVec

	// Assist metrics
	AssistRequests  *prometheus.CounterVec
	AssistDebounced prometheus.Counter
	AssistTokens    prometheus.Counter
	AssistErrors    prometheus.Counter

	// Provider metrics
	ProviderLatency *prometheus.HistogramVec
	ProviderErrors  *prometheus.CounterVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		ScanTicks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_ticks_total",
			Help:      "Total number of snapshot scan ticks",
		}),
		EmptyTicks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "empty_ticks_total",
			Help:      "Scan ticks that produced no usable observations",
		}),
		Observations: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "observations_per_tick",
			Help:      "Visible caption observations extracted per tick",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32},
		}),

		DiscoveryState: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "discovery_state",
			Help:      "Source discovery state (0=searching, 1=candidate pending, 2=attached)",
		}),
		CandidatesProposed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_proposed_total",
			Help:      "Source candidates proposed, by strategy",
		}, []string{"strategy"}),
		CandidatesExpired: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_expired_total",
			Help:      "Pending candidates abandoned after the promotion window",
		}),
		SourceAttachments: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_attachments_total",
			Help:      "Successful source attachments",
		}),
		SourceDetachments: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_detachments_total",
			Help:      "Attached sources lost and reverted to searching",
		}),

		BlocksCommitted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_committed_total",
			Help:      "Transcript blocks committed",
		}),
		BlocksRevised: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_revised_total",
			Help:      "Transcript blocks revised in place",
		}),
		BlocksMerged: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_merged_total",
			Help:      "Observations merged into an existing block instead of duplicated",
		}),
		TranscriptLength: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transcript_length",
			Help:      "Current number of committed transcript blocks",
		}),

		FlushesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flushes_total",
			Help:      "Debounced flushes pushed to the translation sink",
		}),
		FlushesSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flushes_skipped_total",
			Help:      "Flush timer firings skipped because nothing was dirty",
		}),
		SinkErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Failed sink replacements",
		}),
		Checkpoints: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoints_total",
			Help:      "Durability checkpoints of the transcript tail",
		}),

		CorrectionsRequested: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "corrections_requested_total",
			Help:      "Asynchronous correction requests issued",
		}),
		CorrectionsApplied: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "corrections_applied_total",
			Help:      "Corrections applied to committed blocks",
		}),
		CorrectionsDiscarded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "corrections_discarded_total",
			Help:      "Corrections discarded, by reason",
		}, []string{"reason"}),

		AssistRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assist_requests_total",
			Help:      "Assist commands dispatched, by mode",
		}, []string{"mode"}),
		AssistDebounced: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assist_debounced_total",
			Help:      "Assist commands dropped by the shared debounce",
		}),
		AssistTokens: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assist_tokens_total",
			Help:      "Streamed assist tokens forwarded to consumers",
		}),
		AssistErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assist_errors_total",
			Help:      "Assist streams terminated with an error event",
		}),

		ProviderLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_latency_seconds",
			Help:      "Provider request latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"operation"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Provider request failures, by operation",
		}, []string{"operation"}),
	}
}

// RecordDiscoveryState sets the discovery state gauge.
func (m *Metrics) RecordDiscoveryState(state int) {
	m.DiscoveryState.Set(float64(state))
}

// RecordCommit updates commit counters and the transcript length gauge.
func (m *Metrics) RecordCommit(length int) {
	m.BlocksCommitted.Inc()
	m.TranscriptLength.Set(float64(length))
}

// RecordProvider observes a provider call outcome.
func (m *Metrics) RecordProvider(operation string, err error, seconds float64) {
	m.ProviderLatency.WithLabelValues(operation).Observe(seconds)
	if err != nil {
		m.ProviderErrors.WithLabelValues(operation).Inc()
	}
}

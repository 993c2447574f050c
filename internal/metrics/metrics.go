package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "threadview"

var (
	EventsIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_ingested_total",
			Help:      "Total number of stream events ingested, labeled by event type.",
		},
		[]string{"type"},
	)

	EventsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Total number of events rejected at ingest, labeled by reason.",
		},
		[]string{"reason"},
	)

	ChunkBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_bytes_total",
			Help:      "Total artifact delta bytes accumulated across all threads.",
		},
	)

	ApprovalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approvals_total",
			Help:      "Total plan approval decisions, labeled by decision and outcome.",
		},
		[]string{"decision", "outcome"},
	)

	StreamSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_subscribers",
			Help:      "Number of currently connected stream subscribers.",
		},
	)

	SnapshotsPersistedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_persisted_total",
			Help:      "Total thread snapshots written through the persistence port, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	IngestLatencySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_latency_seconds",
			Help:      "Latency of applying one inbound event to the store (seconds).",
			Buckets:   []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
		},
	)

	RateLimitHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_hits_total",
			Help:      "Total requests rejected by rate limiting, labeled by scope and operation.",
		},
		[]string{"scope", "operation"},
	)
)

func init() {
	prometheus.MustRegister(
		EventsIngestedTotal,
		EventsDroppedTotal,
		ChunkBytesTotal,
		ApprovalsTotal,
		StreamSubscribers,
		SnapshotsPersistedTotal,
		IngestLatencySeconds,
		RateLimitHitsTotal,
	)
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cache result labels
const (
	ResultHit   = "hit"
	ResultMiss  = "miss"
	ResultError = "error"
)

var (
	// Flow lifecycle metrics
	FlowPublishesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flow_publishes_total",
			Help: "Total number of successful flow publishes",
		},
	)

	FlowStatusTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flow_status_transitions_total",
			Help: "Total number of flow status transitions",
		},
		[]string{"from", "to"},
	)

	FlowClonesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flow_clones_total",
			Help: "Total number of flows cloned from version history",
		},
	)

	// Execution state cache metrics
	StateCacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "state_cache_requests_total",
			Help: "Execution state cache lookups by tier and result",
		},
		[]string{"tier", "result"},
	)

	StateCacheDistributedWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "state_cache_distributed_write_failures_total",
			Help: "Distributed tier writes that failed and were swallowed",
		},
	)

	StateCacheBackfillsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "state_cache_backfills_total",
			Help: "Local tier backfills from the distributed tier",
		},
	)

	// Archive metrics
	ArchivedVersionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flow_archived_versions_total",
			Help: "Total number of archived flow versions",
		},
		[]string{"strategy"},
	)

	ArchiveSkippedVersionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flow_archive_skipped_versions_total",
			Help: "Versions that failed to archive and were skipped",
		},
		[]string{"strategy"},
	)

	ArchiveRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flow_archive_run_duration_seconds",
			Help:    "Archive run duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"strategy"},
	)

	// Database metrics
	DatabaseQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "database_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
	)
)

// RecordStatusTransition records a flow status change.
func RecordStatusTransition(from, to string) {
	FlowStatusTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordCacheLookup records a state cache lookup on the given tier.
func RecordCacheLookup(tier, result string) {
	StateCacheRequestsTotal.WithLabelValues(tier, result).Inc()
}

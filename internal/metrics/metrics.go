package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RecordsScanned counts journal records decoded by a scan, by record kind.
	RecordsScanned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redolog_records_scanned_total",
			Help: "Total number of journal records decoded during scans",
		},
		[]string{"kind"},
	)
	// ReplayOps counts redo attempts by outcome (redone, failed, conflict, skipped, deferred).
	ReplayOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redolog_replay_ops_total",
			Help: "Total number of operations considered for redo, by outcome",
		},
		[]string{"mode", "outcome"},
	)
	// OrderingAnomalies counts orphaned end markers and late start markers.
	OrderingAnomalies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redolog_ordering_anomalies_total",
			Help: "Total number of ordering anomalies seen while scanning",
		},
		[]string{"kind"},
	)
	// CheckpointDiscrepancies counts checkpoints whose active set differed from the scan.
	CheckpointDiscrepancies = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "redolog_checkpoint_discrepancies_total",
			Help: "Total number of checkpoint records that disagreed with the scanned in-flight set",
		},
	)
	// TruncatedBytes counts bytes cut from torn journal tails.
	TruncatedBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "redolog_truncated_bytes_total",
			Help: "Total number of trailing bytes truncated from journals",
		},
	)
	// RecordsWritten counts records appended by the writer, by record kind.
	RecordsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redolog_records_written_total",
			Help: "Total number of journal records written",
		},
		[]string{"kind"},
	)
	// Rotations counts journal rollovers.
	Rotations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "redolog_rotations_total",
			Help: "Total number of journal rollovers",
		},
	)
	// Errors counts classified errors.
	Errors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redolog_errors_total",
			Help: "Total number of errors by category",
		},
		[]string{"category"},
	)
	// FsyncDuration is the latency of journal fsyncs.
	FsyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "redolog_fsync_duration_seconds",
			Help:    "Journal fsync latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		},
	)
	// FsyncBatchSize is the number of records covered by one group-commit fsync.
	FsyncBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "redolog_fsync_batch_records",
			Help:    "Records flushed per group-commit fsync",
			Buckets: prometheus.LinearBuckets(1, 10, 10),
		},
	)
)

// Handler returns the Prometheus HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

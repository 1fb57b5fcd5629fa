package jobs

import (
	"time"

	"github.com/bissquit/eventrelay/internal/domain"
	"github.com/bissquit/eventrelay/internal/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobQueueSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: "jobs",
			Name:      "queue_size",
			Help:      "Number of jobs by status",
		},
		[]string{"status"},
	)

	jobsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "jobs",
			Name:      "enqueued_total",
			Help:      "Jobs created by the enqueuer",
		},
		[]string{"kind"},
	)

	jobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "jobs",
			Name:      "processed_total",
			Help:      "Claimed jobs by resolution (sent, retry, failed)",
		},
		[]string{"kind", "result"},
	)

	claimSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "jobs",
			Name:      "claim_skipped_total",
			Help:      "Claim attempts that did not acquire the job, by reason",
		},
		[]string{"kind", "reason"},
	)

	deadLettered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "jobs",
			Name:      "dead_lettered_total",
			Help:      "Jobs moved to the dead letter table, by error code",
		},
		[]string{"kind", "code"},
	)

	staleRequeued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "jobs",
			Name:      "stale_requeued_total",
			Help:      "Processing jobs returned to the queue after exceeding the stale timeout",
		},
		[]string{"kind"},
	)

	sendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: "jobs",
			Name:      "send_duration_seconds",
			Help:      "Time spent in the channel sender",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"kind"},
	)
)

func recordEnqueued(kind domain.JobKind) {
	jobsEnqueued.WithLabelValues(string(kind)).Inc()
}

func recordProcessed(kind domain.JobKind, result string) {
	jobsProcessed.WithLabelValues(string(kind), result).Inc()
}

func recordClaimSkipped(kind domain.JobKind, reason SkipReason) {
	claimSkipped.WithLabelValues(string(kind), string(reason)).Inc()
}

func recordDeadLettered(kind domain.JobKind, code domain.DeadLetterErrorCode) {
	deadLettered.WithLabelValues(string(kind), string(code)).Inc()
}

func recordStaleRequeued(kind domain.JobKind, n int64) {
	staleRequeued.WithLabelValues(string(kind)).Add(float64(n))
}

func recordSendDuration(kind domain.JobKind, d time.Duration) {
	sendDuration.WithLabelValues(string(kind)).Observe(d.Seconds())
}

// RecordQueueStats updates queue size metrics.
func RecordQueueStats(stats *domain.QueueStats) {
	jobQueueSize.WithLabelValues("queued").Set(float64(stats.Queued))
	jobQueueSize.WithLabelValues("processing").Set(float64(stats.Processing))
	jobQueueSize.WithLabelValues("sent").Set(float64(stats.Sent))
	jobQueueSize.WithLabelValues("failed").Set(float64(stats.Failed))
	jobQueueSize.WithLabelValues("dead_letters").Set(float64(stats.DeadLetters))
}

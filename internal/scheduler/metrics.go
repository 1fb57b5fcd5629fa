package scheduler

import (
	"time"

	"github.com/bissquit/eventrelay/internal/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	taskRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "scheduler",
			Name:      "task_runs_total",
			Help:      "Scheduled task runs by result",
		},
		[]string{"task", "result"},
	)

	taskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: "scheduler",
			Name:      "task_duration_seconds",
			Help:      "Duration of scheduled task runs",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 15, 30, 60},
		},
		[]string{"task"},
	)
)

func recordRun(task string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	taskRuns.WithLabelValues(task, result).Inc()
	taskDuration.WithLabelValues(task).Observe(d.Seconds())
}

package scanner

import (
	"github.com/bissquit/eventrelay/internal/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Name:      "scanner_rows_total",
			Help:      "Source rows handled by outcome scanners, by result",
		},
		[]string{"scanner", "result"},
	)

	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Name:      "scanner_runs_total",
			Help:      "Outcome scanner runs, by result",
		},
		[]string{"scanner", "result"},
	)

	eventsEmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Name:      "scanner_events_emitted_total",
			Help:      "Events emitted by outcome scanners, by whether they were new",
		},
		[]string{"scanner", "created"},
	)
)

func recordRow(scanner, result string) {
	rowsTotal.WithLabelValues(scanner, result).Inc()
}

func recordRun(scanner, result string) {
	runsTotal.WithLabelValues(scanner, result).Inc()
}

func recordEmitted(scanner string, created bool) {
	label := "false"
	if created {
		label = "true"
	}
	eventsEmittedTotal.WithLabelValues(scanner, label).Inc()
}

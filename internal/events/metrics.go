package events

import (
	"github.com/bissquit/eventrelay/internal/domain"
	"github.com/bissquit/eventrelay/internal/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "events",
			Name:      "emitted_total",
			Help:      "Emit calls by event type and result (created, duplicate, invalid, error)",
		},
		[]string{"type", "result"},
	)

	sideEffectFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "events",
			Name:      "side_effect_failures_total",
			Help:      "Failed post-create steps of newly emitted events",
		},
		[]string{"stage"},
	)
)

func recordEmit(t domain.EventType, result string) {
	label := string(t)
	if !t.IsValid() {
		label = "unknown"
	}
	eventsEmitted.WithLabelValues(label, result).Inc()
}

func recordSideEffectFailure(stage string) {
	sideEffectFailures.WithLabelValues(stage).Inc()
}

package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type eventMetrics struct {
	emitted *prometheus.CounterVec
	dropped *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking emitted ledger events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nftstake",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Count of ledger events segmented by type.",
			}, []string{"type"}),
			dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nftstake",
				Subsystem: "events",
				Name:      "dropped_total",
				Help:      "Events not delivered to a sink, segmented by sink.",
			}, []string{"sink"}),
		}
		prometheus.MustRegister(eventRegistry.emitted, eventRegistry.dropped)
	})
	return eventRegistry
}

// RecordEmitted increments the counter for the supplied event type.
func (m *eventMetrics) RecordEmitted(eventType string) {
	if m == nil {
		return
	}
	m.emitted.WithLabelValues(labelOrUnknown(strings.ToLower(eventType))).Inc()
}

// RecordDropped counts an event a sink failed to accept.
func (m *eventMetrics) RecordDropped(sink string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(labelOrUnknown(sink)).Inc()
}

// Dropped returns the drop counter for sink.
func (m *eventMetrics) Dropped(sink string) prometheus.Counter {
	return m.dropped.WithLabelValues(labelOrUnknown(sink))
}

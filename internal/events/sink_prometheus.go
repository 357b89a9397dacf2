package events

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink counts emitted events by type and source.
type PrometheusSink struct {
	events *prometheus.CounterVec
}

// NewPrometheusSink creates a PrometheusSink and registers its collector
// with the given registerer. A nil registerer uses the default registry.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fetch_events_total",
				Help: "Total number of fetch layer state-change events by type and source",
			},
			[]string{"type", "source"},
		),
	}
	reg.MustRegister(s.events)
	return s
}

// Consume increments the event counter for the event's type and source.
func (s *PrometheusSink) Consume(evt Event) {
	s.events.WithLabelValues(string(evt.Type), evt.Source).Inc()
}

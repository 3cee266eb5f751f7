package publisher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	audit "jornada/pkg/platform/audit"
)

// Metrics tracks audit emission. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Emitted         *prometheus.CounterVec
	Dropped         prometheus.Counter
	PersistFailures prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Emitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "jornada_audit_events_emitted_total",
			Help: "Audit events accepted by the publisher, by category",
		}, []string{"category"}),
		Dropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "jornada_audit_events_dropped_total",
			Help: "Audit events rejected because the async buffer was full",
		}),
		PersistFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "jornada_audit_persist_failures_total",
			Help: "Audit events the store failed to persist",
		}),
	}
}

func (m *Metrics) incEmitted(category audit.EventCategory) {
	if m != nil {
		m.Emitted.WithLabelValues(string(category)).Inc()
	}
}

func (m *Metrics) incDropped() {
	if m != nil {
		m.Dropped.Inc()
	}
}

func (m *Metrics) incPersistFailures() {
	if m != nil {
		m.PersistFailures.Inc()
	}
}

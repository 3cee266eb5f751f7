package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the journey module.
type Metrics struct {
	EventsStarted      *prometheus.CounterVec
	EventsEnded        *prometheus.CounterVec
	EventsAutoClosed   *prometheus.CounterVec
	EventsEdited       prometheus.Counter
	TransitionRejected *prometheus.CounterVec
	WorkdayAnomalies   prometheus.Counter
	SummaryCacheHits   prometheus.Counter
	SummaryCacheMisses prometheus.Counter
	MutationDuration   *prometheus.HistogramVec
}

// New registers the journey metrics on reg. Tests pass a fresh registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "jornada_events_started_total",
			Help: "Journey events recorded, by event type",
		}, []string{"type"}),
		EventsEnded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "jornada_events_ended_total",
			Help: "Journey events closed explicitly, by start type",
		}, []string{"type"}),
		EventsAutoClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "jornada_events_auto_closed_total",
			Help: "Sub-activities closed automatically by a newer event",
		}, []string{"type"}),
		EventsEdited: factory.NewCounter(prometheus.CounterOpts{
			Name: "jornada_events_edited_total",
			Help: "Manual corrections applied to journey events",
		}),
		TransitionRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "jornada_transitions_rejected_total",
			Help: "Events refused by the state machine, by current state",
		}, []string{"state"}),
		WorkdayAnomalies: factory.NewCounter(prometheus.CounterOpts{
			Name: "jornada_workday_anomalies_total",
			Help: "Anomalies found by workday calculations",
		}),
		SummaryCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "jornada_summary_cache_hits_total",
			Help: "Workday summaries served from cache",
		}),
		SummaryCacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "jornada_summary_cache_misses_total",
			Help: "Workday summaries recalculated after a cache miss",
		}),
		MutationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "jornada_mutation_duration_seconds",
			Help:    "Duration of driver mutations including persistence",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
	}
}

func (m *Metrics) IncStarted(eventType string) {
	if m == nil {
		return
	}
	m.EventsStarted.WithLabelValues(eventType).Inc()
}

func (m *Metrics) IncEnded(eventType string) {
	if m == nil {
		return
	}
	m.EventsEnded.WithLabelValues(eventType).Inc()
}

func (m *Metrics) IncAutoClosed(eventType string) {
	if m == nil {
		return
	}
	m.EventsAutoClosed.WithLabelValues(eventType).Inc()
}

func (m *Metrics) IncEdited() {
	if m == nil {
		return
	}
	m.EventsEdited.Inc()
}

func (m *Metrics) IncRejected(state string) {
	if m == nil {
		return
	}
	m.TransitionRejected.WithLabelValues(state).Inc()
}

func (m *Metrics) AddAnomalies(n int) {
	if m == nil || n == 0 {
		return
	}
	m.WorkdayAnomalies.Add(float64(n))
}

func (m *Metrics) IncCacheHit() {
	if m == nil {
		return
	}
	m.SummaryCacheHits.Inc()
}

func (m *Metrics) IncCacheMiss() {
	if m == nil {
		return
	}
	m.SummaryCacheMisses.Inc()
}

// ObserveMutation records the duration of op. Call with the time the
// operation started.
func (m *Metrics) ObserveMutation(op string, start time.Time) {
	if m == nil {
		return
	}
	m.MutationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

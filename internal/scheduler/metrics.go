package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects scheduler pass counters.
type Metrics struct {
	passes      prometheus.Counter
	updated     prometheus.Counter
	transitions *prometheus.CounterVec
	leaseMisses prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		passes: factory.NewCounter(prometheus.CounterOpts{
			Name: "conforma_scheduler_passes_total",
			Help: "Completed scheduler passes.",
		}),
		updated: factory.NewCounter(prometheus.CounterOpts{
			Name: "conforma_scheduler_audits_advanced_total",
			Help: "Audits auto-advanced by the scheduler.",
		}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "conforma_scheduler_transitions_total",
			Help: "Scheduler transitions by from/to status.",
		}, []string{"from", "to"}),
		leaseMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "conforma_scheduler_lease_misses_total",
			Help: "Passes skipped because another replica held the lease.",
		}),
	}
}

func (m *Metrics) ObservePass(updated int) {
	if m == nil {
		return
	}
	m.passes.Inc()
	m.updated.Add(float64(updated))
}

func (m *Metrics) IncrementTransitions(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) IncrementLeaseMisses() {
	if m == nil {
		return
	}
	m.leaseMisses.Inc()
}

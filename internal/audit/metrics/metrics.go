package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the audit module. Closure attempts and
// the verification cascade are the critical paths worth timing.
type Metrics struct {
	AuditsCreated      prometheus.Counter
	AuditsClosed       prometheus.Counter
	ClosuresBlocked    prometheus.Counter
	FindingsAutoClosed prometheus.Counter
	NotifyFailures     prometheus.Counter
	CloseAuditDuration prometheus.Histogram
	CascadeDuration    prometheus.Histogram
}

// New creates a Metrics instance registered against reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AuditsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "conforma_audits_created_total",
			Help: "Total number of audits created",
		}),
		AuditsClosed: factory.NewCounter(prometheus.CounterOpts{
			Name: "conforma_audits_closed_total",
			Help: "Total number of audits closed through the gated closure path",
		}),
		ClosuresBlocked: factory.NewCounter(prometheus.CounterOpts{
			Name: "conforma_audit_closures_blocked_total",
			Help: "Closure attempts rejected because of open major non-conformities",
		}),
		FindingsAutoClosed: factory.NewCounter(prometheus.CounterOpts{
			Name: "conforma_findings_auto_closed_total",
			Help: "Findings closed automatically by the verification cascade",
		}),
		NotifyFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "conforma_notification_failures_total",
			Help: "Notification sends that failed (delivery is best-effort)",
		}),
		CloseAuditDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "conforma_close_audit_duration_seconds",
			Help:    "Duration of closeAudit including the closure-gate query",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		CascadeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "conforma_verification_cascade_duration_seconds",
			Help:    "Duration of updateCorrectiveAction including cascade checks",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// IncrementAuditsCreated records one successful audit creation.
func (m *Metrics) IncrementAuditsCreated() { m.AuditsCreated.Inc() }

// IncrementAuditsClosed records one successful gated closure.
func (m *Metrics) IncrementAuditsClosed() { m.AuditsClosed.Inc() }

// IncrementClosuresBlocked records one rejected closure attempt.
func (m *Metrics) IncrementClosuresBlocked() { m.ClosuresBlocked.Inc() }

// IncrementFindingsAutoClosed records one cascade-driven finding closure.
func (m *Metrics) IncrementFindingsAutoClosed() { m.FindingsAutoClosed.Inc() }

// IncrementNotifyFailures records one failed notification send.
func (m *Metrics) IncrementNotifyFailures() { m.NotifyFailures.Inc() }

// ObserveCloseAudit records the duration of a closeAudit call.
func (m *Metrics) ObserveCloseAudit(start time.Time) {
	m.CloseAuditDuration.Observe(time.Since(start).Seconds())
}

// ObserveCascade records the duration of an updateCorrectiveAction call.
func (m *Metrics) ObserveCascade(start time.Time) {
	m.CascadeDuration.Observe(time.Since(start).Seconds())
}

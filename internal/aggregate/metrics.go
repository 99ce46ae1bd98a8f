package aggregate

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dukerupert/pawlog/internal/docstore"
)

// Metrics are the synchronization counters. A nil *Metrics records nothing.
type Metrics struct {
	jobs       *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	conflicts  *prometheus.CounterVec
	reconciles *prometheus.CounterVec
	rewritten  *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pawlog",
			Name:      "sync_jobs_total",
			Help:      "Synchronization jobs by aggregate and outcome.",
		}, []string{"aggregate", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pawlog",
			Name:      "sync_job_duration_seconds",
			Help:      "Time spent applying one record change to its buckets.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"aggregate"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pawlog",
			Name:      "write_conflicts_total",
			Help:      "Conditional document writes that lost a version race.",
		}, []string{"collection"}),
		reconciles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pawlog",
			Name:      "reconcile_runs_total",
			Help:      "Reconcile runs per owner by outcome.",
		}, []string{"outcome"}),
		rewritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pawlog",
			Name:      "reconcile_buckets_rewritten_total",
			Help:      "Bucket documents rewritten by the reconciler.",
		}, []string{"aggregate"}),
	}
	if reg != nil {
		reg.MustRegister(m.jobs, m.duration, m.conflicts, m.reconciles, m.rewritten)
	}
	return m
}

func (m *Metrics) job(aggregate, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(aggregate, outcome).Inc()
	m.duration.WithLabelValues(aggregate).Observe(seconds)
}

// Conflict is meant for docstore.WithConflictHook.
func (m *Metrics) Conflict(p docstore.Path) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(p.Collection).Inc()
}

func (m *Metrics) reconcile(outcome string) {
	if m == nil {
		return
	}
	m.reconciles.WithLabelValues(outcome).Inc()
}

func (m *Metrics) bucketsRewritten(aggregate string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.rewritten.WithLabelValues(aggregate).Add(float64(n))
}

// Package metrics holds the Prometheus collectors of the governance engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	NotificationsSent *prometheus.CounterVec
	DeadlineAlerts    *prometheus.CounterVec
	Escalations       *prometheus.CounterVec
	ResolverMisses    prometheus.Counter
	SweepRuns         *prometheus.CounterVec
	SweepDuration     prometheus.Histogram
	ClassifierCalls   *prometheus.CounterVec
}

// New creates the collectors on a private registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		NotificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentinela",
			Name:      "notifications_total",
			Help:      "Notifications dispatched, by template and outcome",
		}, []string{"template", "outcome"}),
		DeadlineAlerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentinela",
			Name:      "deadline_alerts_total",
			Help:      "Deadline lapse alerts, by result",
		}, []string{"result"}),
		Escalations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentinela",
			Name:      "escalations_total",
			Help:      "Manual escalations to oversight, by result",
		}, []string{"result"}),
		ResolverMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sentinela",
			Name:      "resolver_misses_total",
			Help:      "Sector lookups that found no accountable manager",
		}),
		SweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentinela",
			Name:      "sweep_runs_total",
			Help:      "Deadline sweep runs, by result",
		}, []string{"result"}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sentinela",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of deadline sweep runs",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		ClassifierCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentinela",
			Name:      "classifier_calls_total",
			Help:      "Risk classifier calls, by result",
		}, []string{"result"}),
	}
	reg.MustRegister(
		m.NotificationsSent,
		m.DeadlineAlerts,
		m.Escalations,
		m.ResolverMisses,
		m.SweepRuns,
		m.SweepDuration,
		m.ClassifierCalls,
	)
	return m
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mostly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Notification(template, outcome string) {
	if m == nil {
		return
	}
	m.NotificationsSent.WithLabelValues(template, outcome).Inc()
}

func (m *Metrics) DeadlineAlert(result string) {
	if m == nil {
		return
	}
	m.DeadlineAlerts.WithLabelValues(result).Inc()
}

func (m *Metrics) Escalation(result string) {
	if m == nil {
		return
	}
	m.Escalations.WithLabelValues(result).Inc()
}

func (m *Metrics) ResolverMiss() {
	if m == nil {
		return
	}
	m.ResolverMisses.Inc()
}

func (m *Metrics) Classifier(result string) {
	if m == nil {
		return
	}
	m.ClassifierCalls.WithLabelValues(result).Inc()
}

// Sweep records one finished sweep run
func (m *Metrics) Sweep(result string, took time.Duration) {
	if m == nil {
		return
	}
	m.SweepRuns.WithLabelValues(result).Inc()
	m.SweepDuration.Observe(took.Seconds())
}

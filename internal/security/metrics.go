package security

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Decision outcomes used as metric labels.
const (
	outcomeAllowed  = "allowed"
	outcomeRejected = "rejected"
	outcomeError    = "error"
)

// Metrics holds Prometheus metrics for gate decisions.
type Metrics struct {
	decisions *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	registry  *prometheus.Registry
}

// NewMetrics creates a new Metrics instance on its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "mcpguard"
	}

	m := &Metrics{registry: prometheus.NewRegistry()}

	m.decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "security",
			Name:      "decisions_total",
			Help:      "Total number of security gate decisions",
		},
		[]string{"outcome", "reason"},
	)

	m.duration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "security",
			Name:      "decision_duration_seconds",
			Help:      "Time spent deciding whether to admit a request",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25},
		},
		[]string{"outcome"},
	)

	m.registry.MustRegister(m.decisions, m.duration)

	return m
}

// RecordDecision records a gate decision.
func (m *Metrics) RecordDecision(outcome, reason string, d time.Duration) {
	m.decisions.WithLabelValues(outcome, reason).Inc()
	m.duration.WithLabelValues(outcome).Observe(d.Seconds())
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// MustRegister registers the metrics with the given registry, ignoring
// collectors that are already registered.
func (m *Metrics) MustRegister(registry prometheus.Registerer) {
	for _, c := range []prometheus.Collector{m.decisions, m.duration} {
		if err := registry.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				panic(err)
			}
		}
	}
}

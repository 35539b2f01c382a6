package ratelimit

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
)

// Metrics holds Prometheus metrics for rate limiting.
type Metrics struct {
	decisions    *prometheus.CounterVec
	fallbacks    prometheus.Counter
	breakerState prometheus.Gauge
	registry     *prometheus.Registry
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
			Subsystem: "ratelimit",
			Name:      "decisions_total",
			Help:      "Total number of rate limit decisions",
		},
		[]string{"backend", "result"},
	)

	m.fallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "fallback_total",
			Help:      "Total number of times the local fallback limiter was used",
		},
	)

	m.breakerState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "redis_breaker_state",
			Help:      "Redis circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	m.registry.MustRegister(m.decisions, m.fallbacks, m.breakerState)

	return m
}

func (m *Metrics) recordDecision(backend string, allowed bool) {
	result := "allowed"
	if !allowed {
		result = "limited"
	}
	m.decisions.WithLabelValues(backend, result).Inc()
}

func (m *Metrics) recordFallback() {
	m.fallbacks.Inc()
}

func (m *Metrics) setBreakerState(s gobreaker.State) {
	m.breakerState.Set(float64(s))
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// MustRegister registers the metrics with the given registry, ignoring
// collectors that are already registered.
func (m *Metrics) MustRegister(registry prometheus.Registerer) {
	for _, c := range []prometheus.Collector{m.decisions, m.fallbacks, m.breakerState} {
		if err := registry.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				panic(err)
			}
		}
	}
}

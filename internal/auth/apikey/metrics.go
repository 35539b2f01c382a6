package apikey

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for API key operations.
type Metrics struct {
	validationTotal    *prometheus.CounterVec
	validationDuration *prometheus.HistogramVec
	keysCreated        prometheus.Counter
	keysRevoked        prometheus.Counter
	registry           *prometheus.Registry
}

// Validation reasons used as metric labels.
const (
	reasonValid    = "valid"
	reasonEmpty    = "empty_key"
	reasonMalform  = "malformed"
	reasonNotFound = "not_found"
	reasonNoHash   = "missing_hash"
	reasonExpired  = "expired"
	reasonMismatch = "mismatch"
	reasonStore    = "store_error"
)

// NewMetrics creates a new Metrics instance on its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "mcpguard"
	}

	m := &Metrics{registry: prometheus.NewRegistry()}

	m.validationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "apikey",
			Name:      "validation_total",
			Help:      "Total number of API key validation attempts",
		},
		[]string{"status", "reason"},
	)

	m.validationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "apikey",
			Name:      "validation_duration_seconds",
			Help:      "API key validation duration in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"status", "reason"},
	)

	m.keysCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "apikey",
		Name:      "keys_created_total",
		Help:      "Total number of API keys created",
	})

	m.keysRevoked = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "apikey",
		Name:      "keys_revoked_total",
		Help:      "Total number of API keys revoked",
	})

	m.registry.MustRegister(m.collectors()...)

	return m
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.validationTotal,
		m.validationDuration,
		m.keysCreated,
		m.keysRevoked,
	}
}

// RecordValidation records an API key validation attempt.
func (m *Metrics) RecordValidation(status, reason string, duration time.Duration) {
	m.validationTotal.WithLabelValues(status, reason).Inc()
	m.validationDuration.WithLabelValues(status, reason).Observe(duration.Seconds())
}

// RecordCreated records a key creation.
func (m *Metrics) RecordCreated() { m.keysCreated.Inc() }

// RecordRevoked records a key revocation.
func (m *Metrics) RecordRevoked() { m.keysRevoked.Inc() }

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// MustRegister registers the metrics with the given registry. Duplicate
// registration, which happens when components are rebuilt on config
// reload, is ignored.
func (m *Metrics) MustRegister(registry prometheus.Registerer) {
	for _, c := range m.collectors() {
		if err := registry.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				panic(err)
			}
		}
	}
}

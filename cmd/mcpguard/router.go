package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/code-wheel/mcp-http-security/internal/config"
	"github.com/code-wheel/mcp-http-security/internal/middleware"
)

// Probe paths served next to the configurable health path.
const (
	readinessPath = "/readyz"
	livenessPath  = "/livez"
)

// routes builds the listener's handler. Operational endpoints bypass the
// gate; every other request goes through it to the upstream.
func (a *application) routes(cfg *config.Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(a.logger))
	r.Use(middleware.Logging(a.logger))

	r.Get(cfg.Server.HealthPath, a.health.HealthHandler())
	r.Get(readinessPath, a.health.ReadinessHandler())
	r.Get(livenessPath, a.health.LivenessHandler())
	r.Handle(cfg.Server.MetricsPath, a.metricsHandler())

	r.Group(func(r chi.Router) {
		if cfg.Server.MaxBodyBytes > 0 {
			r.Use(middleware.BodyLimit(cfg.Server.MaxBodyBytes, a.logger))
		}
		r.Handle("/*", a)
	})

	return r
}

// metricsHandler serves the application registry together with the
// default registry, which holds the HTTP middleware and Go runtime
// collectors.
func (a *application) metricsHandler() http.Handler {
	gatherers := prometheus.Gatherers{a.registry, prometheus.DefaultGatherer}
	return promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{})
}

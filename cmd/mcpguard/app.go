package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/code-wheel/mcp-http-security/internal/auth/apikey"
	"github.com/code-wheel/mcp-http-security/internal/auth/apikey/store"
	"github.com/code-wheel/mcp-http-security/internal/config"
	"github.com/code-wheel/mcp-http-security/internal/health"
	"github.com/code-wheel/mcp-http-security/internal/observability"
	"github.com/code-wheel/mcp-http-security/internal/proxy"
	"github.com/code-wheel/mcp-http-security/internal/ratelimit"
	"github.com/code-wheel/mcp-http-security/internal/security"
	"github.com/code-wheel/mcp-http-security/internal/validation"
)

const metricsNamespace = "mcpguard"

// application holds all application components.
type application struct {
	logger observability.Logger

	keyStore apikey.Store
	keys     *apikey.Manager
	proxy    *proxy.ReverseProxy
	health   *health.Checker

	registry        *prometheus.Registry
	securityMetrics *security.Metrics
	limiterMetrics  *ratelimit.Metrics
	reloadMetrics   *reloadMetrics

	// mu serializes reloads; readers use the atomic handler.
	mu      sync.Mutex
	config  *config.Config
	limiter ratelimit.Limiter
	gated   atomic.Pointer[http.Handler]

	server *http.Server
}

// initApplication builds every component from cfg. The key store,
// upstream proxy and listener are fixed for the life of the process;
// the gate is rebuilt on configuration reloads.
func initApplication(ctx context.Context, cfg *config.Config, logger observability.Logger) (*application, error) {
	app := &application{
		logger:          logger,
		config:          cfg,
		registry:        prometheus.NewRegistry(),
		securityMetrics: security.NewMetrics(metricsNamespace),
		limiterMetrics:  ratelimit.NewMetrics(metricsNamespace),
	}
	app.reloadMetrics = newReloadMetrics(app.registry)

	keyMetrics := apikey.NewMetrics(metricsNamespace)
	healthMetrics := health.NewMetrics(metricsNamespace)
	proxyMetrics := proxy.NewMetrics(metricsNamespace)
	registerSubsystemMetrics(app.registry,
		app.securityMetrics, app.limiterMetrics, keyMetrics, healthMetrics, proxyMetrics)

	var err error
	app.keyStore, err = store.New(ctx, &cfg.Credentials.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open key store: %w", err)
	}

	app.keys, err = apikey.NewManager(app.keyStore, cfg.Credentials.APIKeyConfig(),
		apikey.WithManagerLogger(logger),
		apikey.WithManagerMetrics(keyMetrics),
	)
	if err != nil {
		_ = app.close()
		return nil, fmt.Errorf("failed to create key manager: %w", err)
	}

	app.proxy, err = proxy.NewReverseProxy(cfg.Server.Upstream,
		proxy.WithProxyLogger(logger),
		proxy.WithMetrics(proxyMetrics),
	)
	if err != nil {
		_ = app.close()
		return nil, err
	}

	app.health = health.NewChecker(version, health.WithMetrics(healthMetrics))
	app.health.Register(health.StoreCheck("key_store", app.keyStore))
	app.health.Register(health.TCPCheck("upstream", app.proxy.UpstreamAddress(), health.WithCritical(false)))

	if err := app.applyConfig(ctx, cfg); err != nil {
		_ = app.close()
		return nil, err
	}

	app.server = &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           app.routes(cfg),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout.Duration(),
	}

	return app, nil
}

// registerSubsystemMetrics registers every subsystem's collectors with
// the application registry.
func registerSubsystemMetrics(registry *prometheus.Registry, collectors ...interface {
	MustRegister(prometheus.Registerer)
}) {
	for _, c := range collectors {
		c.MustRegister(registry)
	}
}

// applyConfig builds a new gate from cfg and swaps it in. The previous
// limiter is stopped only after the swap.
func (a *application) applyConfig(ctx context.Context, cfg *config.Config) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	limiter := a.limiter
	rebuildLimiter := limiter == nil || rateLimitChanged(a.config, cfg)
	if rebuildLimiter {
		limiter = nil
		if cfg.RateLimit.IsEnabled() {
			var err error
			limiter, err = ratelimit.New(ctx, cfg.RateLimit.LimiterConfig(),
				ratelimit.WithLogger(a.logger),
				ratelimit.WithMetrics(a.limiterMetrics),
			)
			if err != nil {
				return fmt.Errorf("failed to create rate limiter: %w", err)
			}
		}
	}

	gate, err := a.buildGate(cfg, limiter)
	if err != nil {
		if rebuildLimiter && limiter != nil {
			limiter.Stop()
		}
		return err
	}

	handler := gate.Handler(a.proxy)
	a.gated.Store(&handler)

	if rebuildLimiter {
		if a.limiter != nil {
			a.limiter.Stop()
		}
		a.limiter = limiter
	}
	a.config = cfg
	return nil
}

// buildGate assembles the request validator and the security middleware.
func (a *application) buildGate(cfg *config.Config, limiter ratelimit.Limiter) (*security.Middleware, error) {
	validator := validation.New(cfg.Allowlist.IPs, cfg.Allowlist.Origins, validation.WithLogger(a.logger))

	opts := []security.Option{
		security.WithLogger(a.logger),
		security.WithMetrics(a.securityMetrics),
	}
	if limiter != nil {
		opts = append(opts,
			security.WithRateLimiter(limiter),
			security.WithRateLimitKey(ratelimit.KeyByCredentialOrClientIP),
		)
	}

	gate, err := security.NewMiddleware(validator, a.keys, cfg.Security, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build security gate: %w", err)
	}
	return gate, nil
}

// ServeHTTP dispatches to the current gate.
func (a *application) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	(*a.gated.Load()).ServeHTTP(w, r)
}

// close releases the limiter and the key store.
func (a *application) close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	if a.limiter != nil {
		a.limiter.Stop()
		a.limiter = nil
	}
	if a.keyStore != nil {
		if err := store.Close(a.keyStore); err != nil {
			errs = append(errs, fmt.Errorf("close key store: %w", err))
		}
		a.keyStore = nil
	}
	return errors.Join(errs...)
}

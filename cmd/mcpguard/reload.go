package main

import (
	"context"
	"reflect"
	"time"

	"github.com/code-wheel/mcp-http-security/internal/config"
	"github.com/code-wheel/mcp-http-security/internal/observability"
)

// startConfigWatcher starts the configuration watcher. A watcher that
// fails to start is logged and reloads stay disabled.
func startConfigWatcher(ctx context.Context, app *application, configPath string, flags cliFlags) *config.Watcher {
	rm := app.reloadMetrics

	watcher, err := config.NewWatcher(configPath, func(newCfg *config.Config) {
		app.logger.Info("configuration changed, reloading")
		app.reload(ctx, newCfg, flags)
	},
		config.WithLogger(app.logger),
		config.WithErrorCallback(func(error) {
			rm.configReloadTotal.WithLabelValues("error").Inc()
		}),
	)
	if err != nil {
		app.logger.Warn("failed to create config watcher", observability.Error(err))
		rm.configWatcherStatus.Set(0)
		return nil
	}

	if err := watcher.Start(ctx); err != nil {
		app.logger.Warn("failed to start config watcher", observability.Error(err))
		_ = watcher.Stop()
		rm.configWatcherStatus.Set(0)
		return nil
	}

	rm.configWatcherStatus.Set(1)
	return watcher
}

// reload applies a new configuration. The gate and rate limiter follow
// the new configuration; server, logging and credential settings need a
// restart.
func (a *application) reload(ctx context.Context, newCfg *config.Config, flags cliFlags) {
	start := time.Now()
	rm := a.reloadMetrics
	defer func() {
		rm.configReloadDuration.Observe(time.Since(start).Seconds())
	}()

	applyLogOverrides(newCfg, flags)

	a.mu.Lock()
	oldCfg := a.config
	a.mu.Unlock()

	warnRestartRequired(a.logger, oldCfg, newCfg)

	if err := a.applyConfig(ctx, newCfg); err != nil {
		rm.configReloadTotal.WithLabelValues("error").Inc()
		a.logger.Error("failed to apply configuration, keeping previous", observability.Error(err))
		return
	}

	rm.configReloadTotal.WithLabelValues("success").Inc()
	rm.configReloadLastSuccess.SetToCurrentTime()
	a.logger.Info("configuration reloaded",
		observability.Bool("auth_required", newCfg.Security.IsAuthRequired()),
		observability.Bool("rate_limit", newCfg.RateLimit.IsEnabled()),
		observability.Int("ip_rules", len(newCfg.Allowlist.IPs)),
		observability.Int("origin_rules", len(newCfg.Allowlist.Origins)),
	)
}

// warnRestartRequired logs settings that changed but are only read at
// startup.
func warnRestartRequired(logger observability.Logger, oldCfg, newCfg *config.Config) {
	sections := map[string][2]any{
		"server":      {oldCfg.Server, newCfg.Server},
		"logging":     {oldCfg.Logging, newCfg.Logging},
		"credentials": {oldCfg.Credentials, newCfg.Credentials},
	}
	for name, pair := range sections {
		if !reflect.DeepEqual(pair[0], pair[1]) {
			logger.Warn("configuration section changed but requires a restart",
				observability.String("section", name))
		}
	}
}

// rateLimitChanged reports whether the limiter must be rebuilt.
func rateLimitChanged(oldCfg, newCfg *config.Config) bool {
	return !reflect.DeepEqual(oldCfg.RateLimit, newCfg.RateLimit)
}

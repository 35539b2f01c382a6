package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/code-wheel/mcp-http-security/internal/config"
	"github.com/code-wheel/mcp-http-security/internal/observability"
)

// serve runs the listener until ctx is canceled or the server fails, then
// shuts down gracefully.
func (a *application) serve(ctx context.Context, watcher *config.Watcher) error {
	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		a.shutdown(watcher)
		return fmt.Errorf("failed to listen on %s: %w", a.server.Addr, err)
	}
	return a.serveListener(ctx, ln, watcher)
}

// serveListener serves on ln. Tests pass their own listener.
func (a *application) serveListener(ctx context.Context, ln net.Listener, watcher *config.Watcher) error {
	a.logger.Info("listening", observability.String("address", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		a.logger.Info("received shutdown signal")
	case serveErr = <-errCh:
		a.logger.Error("server error", observability.Error(serveErr))
	}

	a.shutdown(watcher)
	return serveErr
}

// shutdown stops the watcher, drains in-flight requests and then
// releases the limiter and key store.
func (a *application) shutdown(watcher *config.Watcher) {
	a.mu.Lock()
	timeout := a.config.Server.ShutdownTimeout.Duration()
	a.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			a.logger.Warn("failed to stop config watcher", observability.Error(err))
		}
		a.reloadMetrics.configWatcherStatus.Set(0)
	}

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("failed to stop server gracefully", observability.Error(err))
	}

	if err := a.close(); err != nil {
		a.logger.Error("failed to release resources", observability.Error(err))
	}

	a.logger.Info("mcpguard stopped")
}

// Package main is the entry point for mcpguard, an HTTP gateway that
// admits requests to an MCP server only after allowlist, API key, rate
// limit and scope checks.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/code-wheel/mcp-http-security/internal/config"
	"github.com/code-wheel/mcp-http-security/internal/observability"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	showVersion bool
}

func main() {
	flags, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		os.Exit(2)
	}

	if flags.showVersion {
		printVersion(os.Stdout)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, flags); err != nil {
		fmt.Fprintf(os.Stderr, "mcpguard: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags parses command line flags. Environment variables provide
// the defaults.
func parseFlags(args []string, output io.Writer) (cliFlags, error) {
	fs := flag.NewFlagSet("mcpguard", flag.ContinueOnError)
	fs.SetOutput(output)

	var flags cliFlags
	fs.StringVar(&flags.configPath, "config", getEnvOrDefault("MCPGUARD_CONFIG", "mcpguard.yaml"),
		"Path to configuration file")
	fs.StringVar(&flags.logLevel, "log-level", getEnvOrDefault("MCPGUARD_LOG_LEVEL", ""),
		"Log level (debug, info, warn, error); overrides the config file")
	fs.StringVar(&flags.logFormat, "log-format", getEnvOrDefault("MCPGUARD_LOG_FORMAT", ""),
		"Log format (json, console); overrides the config file")
	fs.BoolVar(&flags.showVersion, "version", false, "Show version information")

	if err := fs.Parse(args); err != nil {
		return cliFlags{}, err
	}
	return flags, nil
}

// printVersion prints version information.
func printVersion(w io.Writer) {
	fmt.Fprintf(w, "mcpguard version %s\n", version)
	fmt.Fprintf(w, "  Build time: %s\n", buildTime)
	fmt.Fprintf(w, "  Git commit: %s\n", gitCommit)
}

// run loads the configuration, serves until ctx is canceled and then
// shuts down gracefully.
func run(ctx context.Context, flags cliFlags) error {
	configPath, err := config.ResolveConfigPath(flags.configPath)
	if err != nil {
		return err
	}

	cfg, err := loadAndValidateConfig(configPath)
	if err != nil {
		return err
	}
	applyLogOverrides(cfg, flags)

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	observability.SetGlobalLogger(logger)

	logger.Info("starting mcpguard",
		observability.String("version", version),
		observability.String("config", configPath),
		observability.String("listen", cfg.Server.Listen),
		observability.String("upstream", cfg.Server.Upstream),
		observability.String("key_store", cfg.Credentials.Store.EffectiveType()),
		observability.Bool("auth_required", cfg.Security.IsAuthRequired()),
		observability.Bool("rate_limit", cfg.RateLimit.IsEnabled()),
	)

	app, err := initApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}

	watcher := startConfigWatcher(ctx, app, configPath, flags)
	return app.serve(ctx, watcher)
}

// loadAndValidateConfig loads and validates the configuration.
func loadAndValidateConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyLogOverrides applies the command line log settings.
func applyLogOverrides(cfg *config.Config, flags cliFlags) {
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.Logging.Format = flags.logFormat
	}
}

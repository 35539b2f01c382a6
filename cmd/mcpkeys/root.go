package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/code-wheel/mcp-http-security/internal/auth/apikey"
	"github.com/code-wheel/mcp-http-security/internal/auth/apikey/store"
	"github.com/code-wheel/mcp-http-security/internal/config"
	"github.com/code-wheel/mcp-http-security/internal/observability"
)

// Environment variables read by mcpkeys.
const (
	envKeysFile = "MCP_KEYS_FILE"
	envPepper   = "MCP_API_KEY_PEPPER"
)

const defaultKeysFile = "/tmp/mcp-api-keys.json"

// cli holds global flags and the opened key manager.
type cli struct {
	configPath string
	storeType  string
	storePath  string
	dsn        string
	logLevel   string
	jsonOutput bool

	keys   *apikey.Manager
	store  apikey.Store
	logger observability.Logger
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "mcpkeys",
		Short: "Manage mcpguard API keys",
		Long: `mcpkeys creates, lists, inspects, revokes and validates API keys in the
store used by mcpguard. The store comes from the credentials section of
an mcpguard configuration file, or from --store and --path.

Environment variables:
  MCP_KEYS_FILE       Path of the file store (default: ` + defaultKeysFile + `)
  MCP_API_KEY_PEPPER  Pepper mixed into stored hashes`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.open(cmd.Context())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "Path to an mcpguard configuration file")
	flags.StringVar(&c.storeType, "store", "", "Key store type (memory, file, sqlite, postgres, redis, vault)")
	flags.StringVar(&c.storePath, "path", "", "File or SQLite path of the key store")
	flags.StringVar(&c.dsn, "dsn", "", "Postgres DSN, Redis URL or Vault address of the key store")
	flags.StringVar(&c.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	flags.BoolVar(&c.jsonOutput, "json", false, "Print JSON instead of text")

	root.AddCommand(newCreateCmd(c))
	root.AddCommand(newListCmd(c))
	root.AddCommand(newGetCmd(c))
	root.AddCommand(newRevokeCmd(c))
	root.AddCommand(newValidateCmd(c))

	return root
}

// execute runs the command line in args and always releases the store.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	c := &cli{}
	root := newRootCmd(c)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if closeErr := c.close(); err == nil {
		err = closeErr
	}
	return err
}

// open builds the key manager from the configuration file or flags.
func (c *cli) open(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	logCfg := observability.DefaultLogConfig()
	logCfg.Level = c.logLevel
	logCfg.Format = observability.FormatConsole
	logCfg.Output = "stderr"
	logger, err := observability.NewLogger(logCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	c.logger = logger

	storeCfg, keyCfg, err := c.resolveConfig()
	if err != nil {
		return err
	}
	if keyCfg.Pepper == "" {
		logger.Warn("no pepper configured; set " + envPepper + " for production keys")
	}

	c.store, err = store.New(ctx, storeCfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open key store: %w", err)
	}

	c.keys, err = apikey.NewManager(c.store, keyCfg,
		apikey.WithManagerLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("failed to create key manager: %w", err)
	}
	return nil
}

// resolveConfig returns the store and key settings. Flags override
// the configuration file; the pepper environment variable fills an empty
// pepper.
func (c *cli) resolveConfig() (*store.Config, *apikey.Config, error) {
	storeCfg := &store.Config{}
	keyCfg := apikey.DefaultConfig()

	if c.configPath != "" {
		cfg, err := config.LoadConfig(c.configPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		s := cfg.Credentials.Store
		storeCfg = &s
		keyCfg = cfg.Credentials.APIKeyConfig()
	}

	if c.storeType != "" {
		storeCfg.Type = c.storeType
	}
	if c.storePath != "" {
		storeCfg.Path = c.storePath
	}
	if c.dsn != "" {
		applyDSN(storeCfg, c.dsn)
	}
	if c.configPath == "" && storeCfg.Type == "" {
		storeCfg.Type = store.TypeFile
	}
	if storeCfg.EffectiveType() == store.TypeFile && storeCfg.Path == "" {
		storeCfg.Path = getEnvOrDefault(envKeysFile, defaultKeysFile)
	}
	if keyCfg.Pepper == "" {
		keyCfg.Pepper = os.Getenv(envPepper)
	}

	if err := storeCfg.Validate(); err != nil {
		return nil, nil, err
	}
	return storeCfg, keyCfg, nil
}

// applyDSN places dsn where the selected store type reads it.
func applyDSN(cfg *store.Config, dsn string) {
	switch cfg.EffectiveType() {
	case store.TypeRedis:
		if cfg.Redis == nil {
			cfg.Redis = &store.RedisConfig{}
		}
		cfg.Redis.URL = dsn
	case store.TypeVault:
		if cfg.Vault == nil {
			cfg.Vault = &store.VaultConfig{}
		}
		cfg.Vault.Address = dsn
	default:
		cfg.DSN = dsn
	}
}

// close releases the store.
func (c *cli) close() error {
	if c.logger != nil {
		_ = c.logger.Sync()
	}
	if c.store == nil {
		return nil
	}
	return store.Close(c.store)
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

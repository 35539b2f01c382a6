package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/code-wheel/mcp-http-security/internal/auth/apikey"
	"github.com/code-wheel/mcp-http-security/internal/observability"
)

// Store types.
const (
	TypeMemory   = "memory"
	TypeFile     = "file"
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
	TypeRedis    = "redis"
	TypeVault    = "vault"
)

// Config selects and configures a store.
type Config struct {
	// Type is one of memory, file, sqlite, postgres, redis, vault.
	// Defaults to file when Path is set, memory otherwise.
	Type string `yaml:"type" json:"type" validate:"omitempty,oneof=memory file sqlite postgres redis vault"`

	// Path is the JSON document (file) or database file (sqlite).
	Path string `yaml:"path,omitempty" json:"path,omitempty"`

	// DSN is the PostgreSQL connection string.
	DSN string `yaml:"dsn,omitempty" json:"-"`

	// Table is the SQL table name.
	Table string `yaml:"table,omitempty" json:"table,omitempty"`

	Redis *RedisConfig `yaml:"redis,omitempty" json:"redis,omitempty"`
	Vault *VaultConfig `yaml:"vault,omitempty" json:"vault,omitempty"`
}

// RedisConfig configures the Redis store.
type RedisConfig struct {
	URL       string `yaml:"url" json:"-"`
	KeyPrefix string `yaml:"keyPrefix,omitempty" json:"keyPrefix,omitempty"`
}

// VaultConfig configures the Vault store.
type VaultConfig struct {
	Address string `yaml:"address" json:"address"`
	Token   string `yaml:"token,omitempty" json:"-"`
	Mount   string `yaml:"mount,omitempty" json:"mount,omitempty"`
	Path    string `yaml:"path,omitempty" json:"path,omitempty"`
}

// EffectiveType returns the configured type, applying the default.
func (c *Config) EffectiveType() string {
	if c == nil {
		return TypeMemory
	}
	if c.Type != "" {
		return c.Type
	}
	if c.Path != "" {
		return TypeFile
	}
	return TypeMemory
}

// Validate checks that the fields required by the selected type are set.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	switch c.EffectiveType() {
	case TypeMemory:
	case TypeFile, TypeSQLite:
		if c.Path == "" {
			return fmt.Errorf("store.path is required for %s store", c.EffectiveType())
		}
	case TypePostgres:
		if c.DSN == "" {
			return errors.New("store.dsn is required for postgres store")
		}
	case TypeRedis:
		if c.Redis == nil || c.Redis.URL == "" {
			return errors.New("store.redis.url is required for redis store")
		}
	case TypeVault:
		if c.Vault == nil || c.Vault.Address == "" {
			return errors.New("store.vault.address is required for vault store")
		}
	default:
		return fmt.Errorf("unknown store type: %s", c.Type)
	}
	return nil
}

// Closer is implemented by stores that hold connections.
type Closer interface {
	Close() error
}

// New builds the store described by cfg. A nil cfg yields a memory store.
func New(ctx context.Context, cfg *Config, logger observability.Logger) (apikey.Store, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	storeType := cfg.EffectiveType()
	logger.Debug("creating API key store", observability.String("type", storeType))

	switch storeType {
	case TypeFile:
		return NewFileStore(cfg.Path, WithFileLogger(logger))
	case TypeSQLite:
		return OpenSQLStore(ctx, DriverSQLite, cfg.Path, cfg.Table, WithSQLLogger(logger))
	case TypePostgres:
		return OpenSQLStore(ctx, DriverPostgres, cfg.DSN, cfg.Table, WithSQLLogger(logger))
	case TypeRedis:
		return OpenRedisStore(ctx, cfg.Redis.URL, cfg.Redis.KeyPrefix, WithRedisLogger(logger))
	case TypeVault:
		return OpenVaultStore(cfg.Vault.Address, cfg.Vault.Token, cfg.Vault.Mount, cfg.Vault.Path,
			WithVaultLogger(logger))
	default:
		return apikey.NewMemoryStore(nil), nil
	}
}

// Close closes s if it holds resources.
func Close(s apikey.Store) error {
	if c, ok := s.(Closer); ok {
		return c.Close()
	}
	return nil
}

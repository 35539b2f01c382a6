package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-wheel/mcp-http-security/internal/auth/apikey/store"
)

func fakeEnv(vars map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

func TestLoader_SubstituteEnvVars(t *testing.T) {
	t.Parallel()

	l := &Loader{lookupEnv: fakeEnv(map[string]string{
		"PEPPER": "s3cret",
		"EMPTY":  "",
	})}

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "set variable", input: "pepper: ${PEPPER}", expected: "pepper: s3cret"},
		{name: "unset variable", input: "pepper: ${MISSING}", expected: "pepper: "},
		{name: "default used", input: "level: ${LEVEL:-debug}", expected: "level: debug"},
		{name: "default ignored when set", input: "pepper: ${PEPPER:-other}", expected: "pepper: s3cret"},
		{name: "set but empty", input: "x: ${EMPTY:-fallback}", expected: "x: "},
		{name: "escaped dollar", input: "price: $$5", expected: "price: $5"},
		{name: "escaped reference", input: "literal: $${PEPPER}", expected: "literal: ${PEPPER}"},
		{name: "no variables", input: "listen: :8080", expected: "listen: :8080"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, l.substituteEnvVars(tt.input))
		})
	}
}

const sampleYAML = `
server:
  listen: "127.0.0.1:9090"
  upstream: "http://127.0.0.1:3000"
  shutdownTimeout: 5s
  maxBodyBytes: 1024
logging:
  level: debug
  format: console
security:
  allowedScopes: [read, admin]
  silentFail: true
  headers:
    xFrameOptions: SAMEORIGIN
    hstsMaxAge: 31536000
allowlist:
  ips: ["10.0.0.0/8", "127.0.0.1"]
  origins: ["*.example.com"]
credentials:
  pepper: ${TEST_PEPPER}
  store:
    type: sqlite
    path: /var/lib/mcpguard/keys.db
rateLimit:
  enabled: true
  requestsPerSecond: 2.5
  burst: 10
  keyTTL: 1m
`

func TestLoader_LoadFromReader(t *testing.T) {
	t.Parallel()

	l := &Loader{lookupEnv: fakeEnv(map[string]string{"TEST_PEPPER": "pepper-value"})}
	cfg, err := l.LoadFromReader(strings.NewReader(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Listen)
	assert.Equal(t, "http://127.0.0.1:3000", cfg.Server.Upstream)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout.Duration())
	assert.Equal(t, DefaultReadHeaderTimeout, cfg.Server.ReadHeaderTimeout.Duration())
	assert.Equal(t, int64(1024), cfg.Server.MaxBodyBytes)
	assert.Equal(t, DefaultMetricsPath, cfg.Server.MetricsPath)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, "stdout", cfg.Logging.Output)

	require.NotNil(t, cfg.Security)
	assert.True(t, cfg.Security.IsAuthRequired())
	assert.Equal(t, []string{"read", "admin"}, cfg.Security.AllowedScopes)
	assert.True(t, cfg.Security.SilentFail)
	require.NotNil(t, cfg.Security.Headers)
	assert.Equal(t, "SAMEORIGIN", cfg.Security.Headers.XFrameOptions)
	assert.Equal(t, 31536000, cfg.Security.Headers.HSTSMaxAge)

	assert.Equal(t, []string{"10.0.0.0/8", "127.0.0.1"}, cfg.Allowlist.IPs)
	assert.Equal(t, []string{"*.example.com"}, cfg.Allowlist.Origins)

	assert.Equal(t, "pepper-value", cfg.Credentials.Pepper)
	assert.Equal(t, "mcp", cfg.Credentials.Prefix)
	assert.Equal(t, store.TypeSQLite, cfg.Credentials.Store.EffectiveType())

	require.True(t, cfg.RateLimit.IsEnabled())
	lc := cfg.RateLimit.LimiterConfig()
	assert.InDelta(t, 2.5, lc.RequestsPerSecond, 0)
	assert.Equal(t, 10, lc.Burst)
	assert.Equal(t, time.Minute, lc.KeyTTL)

	assert.NoError(t, ValidateConfig(cfg))
}

func TestLoader_UnsetAllowlistVariableFailsValidation(t *testing.T) {
	t.Parallel()

	const input = `
server:
  upstream: "http://127.0.0.1:3000"
allowlist:
  ips: ["${ALLOWED_IP}"]
`
	l := &Loader{lookupEnv: fakeEnv(map[string]string{})}
	cfg, err := l.LoadFromReader(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []string{""}, cfg.Allowlist.IPs)

	err = ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "allowlist.ips[0]: must not be blank")
}

func TestLoader_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{name: "unknown field", input: "server:\n  listne: \":8080\"\n"},
		{name: "unknown section", input: "gateway: {}\n"},
		{name: "bad duration", input: "server:\n  shutdownTimeout: soon\n"},
		{name: "malformed yaml", input: "server: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := LoadConfigFromReader(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestLoader_EmptyDocumentGetsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfigFromReader(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "mcpguard.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  upstream: http://localhost:3000\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000", cfg.Server.Upstream)
	assert.Equal(t, DefaultListen, cfg.Server.Listen)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestResolveConfigPath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "mcpguard.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))

	got, err := ResolveConfigPath(path)
	require.NoError(t, err)
	assert.Equal(t, path, got)

	_, err = ResolveConfigPath("")
	assert.Error(t, err)

	_, err = ResolveConfigPath(filepath.Join(dir, "nope.yaml"))
	assert.Error(t, err)

	_, err = ResolveConfigPath("definitely-not-present-mcpguard.yaml")
	assert.Error(t, err)
}

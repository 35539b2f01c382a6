package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-wheel/mcp-http-security/internal/config"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		env      map[string]string
		expected cliFlags
		wantErr  bool
	}{
		{
			name:     "defaults",
			expected: cliFlags{configPath: "mcpguard.yaml"},
		},
		{
			name: "flags",
			args: []string{"-config", "/etc/mcpguard.yaml", "-log-level", "debug", "-log-format", "console", "-version"},
			expected: cliFlags{
				configPath:  "/etc/mcpguard.yaml",
				logLevel:    "debug",
				logFormat:   "console",
				showVersion: true,
			},
		},
		{
			name: "environment defaults",
			env: map[string]string{
				"MCPGUARD_CONFIG":     "/from/env.yaml",
				"MCPGUARD_LOG_LEVEL":  "warn",
				"MCPGUARD_LOG_FORMAT": "json",
			},
			expected: cliFlags{configPath: "/from/env.yaml", logLevel: "warn", logFormat: "json"},
		},
		{
			name:     "flag overrides environment",
			args:     []string{"-log-level", "error"},
			env:      map[string]string{"MCPGUARD_LOG_LEVEL": "warn"},
			expected: cliFlags{configPath: "mcpguard.yaml", logLevel: "error"},
		},
		{
			name:    "unknown flag",
			args:    []string{"-nope"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{"MCPGUARD_CONFIG", "MCPGUARD_LOG_LEVEL", "MCPGUARD_LOG_FORMAT"} {
				t.Setenv(key, tt.env[key])
			}

			var out bytes.Buffer
			flags, err := parseFlags(tt.args, &out)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, flags)
		})
	}
}

func TestGetEnvOrDefault(t *testing.T) {
	t.Setenv("MCPGUARD_TEST_VALUE", "set")
	assert.Equal(t, "set", getEnvOrDefault("MCPGUARD_TEST_VALUE", "default"))

	t.Setenv("MCPGUARD_TEST_VALUE", "")
	assert.Equal(t, "default", getEnvOrDefault("MCPGUARD_TEST_VALUE", "default"))
}

func TestPrintVersion(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	printVersion(&out)
	assert.Contains(t, out.String(), "mcpguard version "+version)
	assert.Contains(t, out.String(), "Git commit:")
}

func TestApplyLogOverrides(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	applyLogOverrides(cfg, cliFlags{})
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	applyLogOverrides(cfg, cliFlags{logLevel: "debug", logFormat: "console"})
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestLoadAndValidateConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	valid := filepath.Join(dir, "valid.yaml")
	require.NoError(t, os.WriteFile(valid, []byte("server:\n  upstream: http://127.0.0.1:3000\n"), 0o600))
	cfg, err := loadAndValidateConfig(valid)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:3000", cfg.Server.Upstream)

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("server:\n  listen: \":8080\"\n"), 0o600))
	_, err = loadAndValidateConfig(invalid)
	assert.ErrorContains(t, err, "invalid configuration")

	_, err = loadAndValidateConfig(filepath.Join(dir, "missing.yaml"))
	assert.ErrorContains(t, err, "failed to load configuration")
}

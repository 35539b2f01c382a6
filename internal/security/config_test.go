package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func boolPtr(v bool) *bool { return &v }

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	assert.True(t, cfg.IsAuthRequired())
	assert.Empty(t, cfg.AllowedScopes)
	assert.Equal(t, DefaultAuthHeader, cfg.AuthHeader)
	assert.Equal(t, DefaultAPIKeyHeader, cfg.APIKeyHeader)
	assert.Equal(t, DefaultKeyAttribute, cfg.KeyAttribute)
	assert.Equal(t, DefaultScopesAttribute, cfg.ScopesAttribute)
	assert.False(t, cfg.SilentFail)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_ApplyDefaults(t *testing.T) {
	t.Parallel()

	cfg := &Config{RequireAuth: boolPtr(false), AuthHeader: "X-Auth"}
	cfg.ApplyDefaults()

	assert.False(t, cfg.IsAuthRequired())
	assert.Equal(t, "X-Auth", cfg.AuthHeader)
	assert.Equal(t, DefaultAPIKeyHeader, cfg.APIKeyHeader)
	assert.Equal(t, DefaultKeyAttribute, cfg.KeyAttribute)

	assert.True(t, (&Config{}).IsAuthRequired())
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{name: "nil", cfg: nil},
		{name: "empty", cfg: &Config{}},
		{name: "scopes", cfg: &Config{AllowedScopes: []string{"read", "admin"}}},
		{name: "blank scope", cfg: &Config{AllowedScopes: []string{"read", ""}}, wantErr: true},
		{name: "bad auth header", cfg: &Config{AuthHeader: "Bad Header"}, wantErr: true},
		{name: "bad api key header", cfg: &Config{APIKeyHeader: "X:Key"}, wantErr: true},
		{name: "non-ascii header", cfg: &Config{APIKeyHeader: "X-Clé"}, wantErr: true},
		{name: "header with control byte", cfg: &Config{AuthHeader: "X-Auth\n"}, wantErr: true},
		{name: "token punctuation header", cfg: &Config{APIKeyHeader: "X-Api_Key.v1!"}},
		{name: "same attributes", cfg: &Config{KeyAttribute: "a", ScopesAttribute: "a"}, wantErr: true},
		{name: "bad frame options", cfg: &Config{Headers: &HeadersConfig{XFrameOptions: "ALLOW"}}, wantErr: true},
		{name: "negative hsts", cfg: &Config{Headers: &HeadersConfig{HSTSMaxAge: -1}}, wantErr: true},
		{name: "headers ok", cfg: &Config{Headers: DefaultHeadersConfig()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if tt.wantErr {
				assert.Error(t, tt.cfg.Validate())
			} else {
				assert.NoError(t, tt.cfg.Validate())
			}
		})
	}
}

func TestConfig_Clone(t *testing.T) {
	t.Parallel()

	assert.Nil(t, (*Config)(nil).Clone())

	orig := &Config{
		RequireAuth:   boolPtr(true),
		AllowedScopes: []string{"read"},
		Headers:       &HeadersConfig{XFrameOptions: "DENY"},
	}
	clone := orig.Clone()
	*clone.RequireAuth = false
	clone.AllowedScopes[0] = "write"
	clone.Headers.XFrameOptions = "SAMEORIGIN"

	assert.True(t, *orig.RequireAuth)
	assert.Equal(t, []string{"read"}, orig.AllowedScopes)
	assert.Equal(t, "DENY", orig.Headers.XFrameOptions)
}

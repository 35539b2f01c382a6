package apikey

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewExtractors_Defaults(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Authorization", NewBearerExtractor("").header)
	assert.Equal(t, "X-MCP-Api-Key", NewHeaderExtractor("").header)
	assert.Equal(t, "X-Custom", NewHeaderExtractor("X-Custom").header)
}

func TestBearerExtractor_Extract(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		value    string
		expected string
		wantErr  bool
	}{
		{name: "valid bearer", value: "Bearer mcp.abc.def", expected: "mcp.abc.def"},
		{name: "token is trimmed", value: "Bearer   mcp.abc.def  ", expected: "mcp.abc.def"},
		{name: "empty after trim", value: "Bearer    ", wantErr: true},
		{name: "lowercase scheme rejected", value: "bearer mcp.abc.def", wantErr: true},
		{name: "other scheme", value: "Basic dXNlcjpwYXNz", wantErr: true},
		{name: "missing header", value: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.value != "" {
				req.Header.Set("Authorization", tt.value)
			}

			token, err := NewBearerExtractor("").Extract(req)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNoAPIKeyFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, token)
		})
	}
}

func TestHeaderExtractor_Extract(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		value    string
		expected string
		wantErr  bool
	}{
		{name: "raw token", value: "mcp.abc.def", expected: "mcp.abc.def"},
		{name: "trimmed", value: "  mcp.abc.def ", expected: "mcp.abc.def"},
		{name: "whitespace only", value: "   ", wantErr: true},
		{name: "missing", value: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.value != "" {
				req.Header.Set("X-MCP-Api-Key", tt.value)
			}

			token, err := NewHeaderExtractor("").Extract(req)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNoAPIKeyFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, token)
		})
	}
}

func TestDefaultExtractor_Precedence(t *testing.T) {
	t.Parallel()

	extractor := DefaultExtractor("", "")

	t.Run("bearer wins over api key header", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer from-bearer")
		req.Header.Set("X-MCP-Api-Key", "from-header")

		token, err := extractor.Extract(req)
		require.NoError(t, err)
		assert.Equal(t, "from-bearer", token)
	})

	t.Run("falls back to api key header when bearer empty", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer ")
		req.Header.Set("X-MCP-Api-Key", "from-header")

		token, err := extractor.Extract(req)
		require.NoError(t, err)
		assert.Equal(t, "from-header", token)
	})

	t.Run("nothing present", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		_, err := extractor.Extract(req)
		assert.ErrorIs(t, err, ErrNoAPIKeyFound)
	})
}

func TestExtractorFunc(t *testing.T) {
	t.Parallel()

	f := ExtractorFunc(func(r *http.Request) (string, error) {
		return r.URL.Query().Get("k"), nil
	})
	req := httptest.NewRequest(http.MethodGet, "/?k=abc", nil)

	token, err := NewCompositeExtractor(f).Extract(req)
	require.NoError(t, err)
	assert.Equal(t, "abc", token)
}

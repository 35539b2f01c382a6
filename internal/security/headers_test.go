package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeadersHandler(t *testing.T) {
	t.Parallel()

	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Server", "upstream")
		w.Header().Set("X-Powered-By", "php")
		_, _ = w.Write([]byte("ok"))
	})

	cfg := DefaultHeadersConfig()
	cfg.HSTSMaxAge = 31536000
	cfg.HSTSIncludeSubDomains = true
	cfg.CustomHeaders = map[string]string{"X-Gate": "mcp"}
	cfg.RemoveHeaders = []string{"Server", "X-Powered-By"}

	t.Run("plain http", func(t *testing.T) {
		t.Parallel()

		rec := httptest.NewRecorder()
		HeadersHandler(cfg, next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
		assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
		assert.Equal(t, "no-referrer", rec.Header().Get("Referrer-Policy"))
		assert.Equal(t, "mcp", rec.Header().Get("X-Gate"))
		assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
		assert.Empty(t, rec.Header().Get("Server"))
		assert.Empty(t, rec.Header().Get("X-Powered-By"))
		assert.Equal(t, "ok", rec.Body.String())
	})

	t.Run("tls", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.TLS = &tls.ConnectionState{}
		rec := httptest.NewRecorder()
		HeadersHandler(cfg, next).ServeHTTP(rec, req)

		assert.Equal(t, "max-age=31536000; includeSubDomains", rec.Header().Get("Strict-Transport-Security"))
	})

	t.Run("forwarded proto", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Forwarded-Proto", "https")
		rec := httptest.NewRecorder()
		HeadersHandler(cfg, next).ServeHTTP(rec, req)

		assert.NotEmpty(t, rec.Header().Get("Strict-Transport-Security"))
	})

	t.Run("nil config", func(t *testing.T) {
		t.Parallel()

		rec := httptest.NewRecorder()
		HeadersHandler(nil, next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, "upstream", rec.Header().Get("Server"))
		assert.Empty(t, rec.Header().Get("X-Frame-Options"))
	})
}

package ratelimit

import (
	"net/http"

	"github.com/code-wheel/mcp-http-security/internal/auth/apikey"
	"github.com/code-wheel/mcp-http-security/internal/validation"
)

// KeyByCredentialOrClientIP keys authenticated requests by key id and
// anonymous ones by client address.
func KeyByCredentialOrClientIP(r *http.Request, info *apikey.KeyInfo) string {
	if info != nil {
		return "key:" + info.ID
	}
	return "ip:" + validation.ClientIP(r)
}

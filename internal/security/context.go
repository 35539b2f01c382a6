package security

import (
	"context"

	"github.com/code-wheel/mcp-http-security/internal/auth/apikey"
)

// ContextKey is the type of request context keys set by the middleware.
// The key value is the configured attribute name.
type ContextKey string

// CredentialFromContext returns the key stored under attr, or under
// DefaultKeyAttribute when attr is empty.
func CredentialFromContext(ctx context.Context, attr string) (*apikey.KeyInfo, bool) {
	if attr == "" {
		attr = DefaultKeyAttribute
	}
	info, ok := ctx.Value(ContextKey(attr)).(*apikey.KeyInfo)
	return info, ok && info != nil
}

// ScopesFromContext returns the scopes stored under attr, or under
// DefaultScopesAttribute when attr is empty.
func ScopesFromContext(ctx context.Context, attr string) ([]string, bool) {
	if attr == "" {
		attr = DefaultScopesAttribute
	}
	scopes, ok := ctx.Value(ContextKey(attr)).([]string)
	return scopes, ok
}

func contextWithCredential(ctx context.Context, keyAttr, scopesAttr string, info *apikey.KeyInfo) context.Context {
	ctx = context.WithValue(ctx, ContextKey(keyAttr), info)
	return context.WithValue(ctx, ContextKey(scopesAttr), info.Scopes)
}

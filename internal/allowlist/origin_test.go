package allowlist

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOriginMatcher_EmptyAllowsAll(t *testing.T) {
	t.Parallel()

	m := NewOriginMatcher(nil)
	assert.True(t, m.Empty())
	assert.True(t, m.IsAllowed("anything.example"))
	assert.True(t, m.IsAllowed(""))
}

func TestOriginMatcher_BlankRulesDenyAll(t *testing.T) {
	t.Parallel()

	for _, rules := range [][]string{{""}, {"  "}, {"", "\t"}} {
		m := NewOriginMatcher(rules)
		assert.False(t, m.Empty())
		assert.False(t, m.IsAllowed("evil.com"))
		assert.False(t, m.IsAllowed("localhost"))
	}

	m := NewOriginMatcher([]string{" ", "example.com"})
	assert.True(t, m.IsAllowed("example.com"))
	assert.False(t, m.IsAllowed("evil.com"))
}

func TestOriginMatcher_IsAllowed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		rules []string
		host  string
		want  bool
	}{
		{name: "exact", rules: []string{"example.com"}, host: "example.com", want: true},
		{name: "exact case insensitive", rules: []string{"Example.COM"}, host: "EXAMPLE.com", want: true},
		{name: "exact trimmed", rules: []string{" example.com "}, host: " example.com\t", want: true},
		{name: "exact mismatch", rules: []string{"example.com"}, host: "example.org"},
		{name: "exact does not match subdomain", rules: []string{"example.com"}, host: "api.example.com"},
		{name: "wildcard subdomain", rules: []string{"*.example.com"}, host: "api.example.com", want: true},
		{name: "wildcard deep subdomain", rules: []string{"*.example.com"}, host: "a.b.example.com", want: true},
		{name: "wildcard excludes root", rules: []string{"*.example.com"}, host: "example.com"},
		{name: "wildcard suffix lookalike", rules: []string{"*.example.com"}, host: "evilexample.com"},
		{name: "wildcard case", rules: []string{"*.Example.com"}, host: "API.example.COM", want: true},
		{name: "empty host never matches", rules: []string{"example.com"}, host: ""},
		{name: "blank host never matches", rules: []string{"*.example.com"}, host: "   "},
		{name: "second rule", rules: []string{"a.com", "*.b.com"}, host: "x.b.com", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, NewOriginMatcher(tt.rules).IsAllowed(tt.host))
		})
	}
}

func TestExtractHostname(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value string
		want  string
		ok    bool
	}{
		{name: "https origin", value: "https://App.Example.com", want: "app.example.com", ok: true},
		{name: "origin with port", value: "http://localhost:3000", want: "localhost", ok: true},
		{name: "referer with path", value: "https://example.com/page?q=1", want: "example.com", ok: true},
		{name: "bare host", value: "example.com", want: "example.com", ok: true},
		{name: "bare host with port", value: "example.com:8080", want: "example.com", ok: true},
		{name: "trimmed", value: "  https://example.com  ", want: "example.com", ok: true},
		{name: "custom scheme", value: "chrome-extension://abcdef", want: "abcdef", ok: true},
		{name: "ipv6 literal keeps brackets", value: "http://[::1]:8080", want: "[::1]", ok: true},
		{name: "ipv6 literal without port", value: "https://[2001:DB8::1]", want: "[2001:db8::1]", ok: true},
		{name: "bare ipv6 with port", value: "[::1]:8080", want: "[::1]", ok: true},
		{name: "empty", value: ""},
		{name: "whitespace", value: "   "},
		{name: "scheme without host", value: "file:///etc/passwd"},
		{name: "unparsable", value: "http://exa mple.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := ExtractHostname(tt.value)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStripPort(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "example.com:8080", want: "example.com"},
		{in: "example.com", want: "example.com"},
		{in: "[::1]:8080", want: "[::1]"},
		{in: "[::1]", want: "[::1]"},
		{in: "[::1", want: "[::1"},
		{in: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, StripPort(tt.in))
		})
	}
}

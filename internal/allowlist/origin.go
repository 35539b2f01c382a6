package allowlist

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/code-wheel/mcp-http-security/internal/observability"
)

const wildcardPrefix = "*."

var schemeRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+\-.]*://`)

type originRule struct {
	exact  string
	suffix string
	root   string
}

// OriginMatcher decides whether a hostname is in an allowlist.
// It is immutable and safe for concurrent use.
type OriginMatcher struct {
	rules []originRule
}

// NewOriginMatcher parses rules. Rules are lowercased and trimmed; blank
// rules are kept but never match.
func NewOriginMatcher(rules []string, opts ...Option) *OriginMatcher {
	o := buildOptions(opts)

	m := &OriginMatcher{rules: make([]originRule, 0, len(rules))}
	for _, raw := range rules {
		rule := strings.ToLower(strings.TrimSpace(raw))
		if rule == "" {
			o.logger.Warn("blank origin allow rule matches nothing")
			m.rules = append(m.rules, originRule{})
			continue
		}
		if domain, ok := strings.CutPrefix(rule, wildcardPrefix); ok {
			if domain == "" {
				o.logger.Warn("wildcard origin rule without domain", observability.String("rule", raw))
			}
			m.rules = append(m.rules, originRule{suffix: "." + domain, root: domain})
			continue
		}
		m.rules = append(m.rules, originRule{exact: rule})
	}
	return m
}

// Empty reports whether the matcher has no rules and so allows everything.
func (m *OriginMatcher) Empty() bool {
	return len(m.rules) == 0
}

// IsAllowed reports whether host matches any rule. A blank host never
// matches a non-empty rule set.
func (m *OriginMatcher) IsAllowed(host string) bool {
	if len(m.rules) == 0 {
		return true
	}

	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return false
	}

	for _, r := range m.rules {
		if r.suffix != "" {
			if strings.HasSuffix(host, r.suffix) && host != r.root {
				return true
			}
			continue
		}
		if r.exact != "" && host == r.exact {
			return true
		}
	}
	return false
}

// ExtractHostname returns the lowercased host of a URL-like value such as
// an Origin or Referer header. Values without a scheme ("example.com",
// "example.com:8080") are parsed as if prefixed with "http://". IPv6
// literals keep their brackets, matching StripPort on a Host header.
func ExtractHostname(value string) (string, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	if !schemeRe.MatchString(value) {
		value = "http://" + value
	}

	u, err := url.Parse(value)
	if err != nil {
		return "", false
	}
	host := strings.ToLower(StripPort(u.Host))
	if host == "" {
		return "", false
	}
	return host, true
}

// StripPort removes a trailing ":port" from hostport. A bracketed IPv6
// literal keeps its brackets: "[::1]:8080" becomes "[::1]".
func StripPort(hostport string) string {
	if strings.HasPrefix(hostport, "[") {
		if end := strings.IndexByte(hostport, ']'); end >= 0 {
			return hostport[:end+1]
		}
		return hostport
	}
	if i := strings.LastIndexByte(hostport, ':'); i >= 0 {
		return hostport[:i]
	}
	return hostport
}

package allowlist

import (
	"encoding/binary"
	"net/netip"
	"strconv"
	"strings"

	"github.com/code-wheel/mcp-http-security/internal/observability"
)

// ipRule is one parsed IP allow rule. A rule with cidr == false is an
// exact literal; a CIDR rule that failed to parse has valid == false and
// never matches.
type ipRule struct {
	raw    string
	cidr   bool
	valid  bool
	v6     bool
	subnet netip.Addr
	bits   int
}

// IPMatcher decides whether a client address is in an allowlist.
// It is immutable and safe for concurrent use.
type IPMatcher struct {
	rules []ipRule
}

// Option is a functional option for matchers.
type Option func(*options)

type options struct {
	logger observability.Logger
}

// WithLogger sets the logger used to report unusable rules.
func WithLogger(logger observability.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: observability.NopLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewIPMatcher parses rules. Blank and malformed CIDR rules are kept but
// never match, so a list holding only blank rules denies every address.
func NewIPMatcher(rules []string, opts ...Option) *IPMatcher {
	o := buildOptions(opts)

	m := &IPMatcher{rules: make([]ipRule, 0, len(rules))}
	for _, raw := range rules {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			o.logger.Warn("blank IP allow rule matches nothing")
			m.rules = append(m.rules, ipRule{})
			continue
		}
		rule := parseIPRule(raw)
		if rule.cidr && !rule.valid {
			o.logger.Warn("ignoring malformed CIDR allow rule", observability.String("rule", raw))
		}
		m.rules = append(m.rules, rule)
	}
	return m
}

// Empty reports whether the matcher has no rules and so allows everything.
func (m *IPMatcher) Empty() bool {
	return len(m.rules) == 0
}

// IsAllowed reports whether addr matches any rule. Literal rules compare
// the raw strings, so "10.0.0.1" does not match a non-canonical spelling
// of the same address.
func (m *IPMatcher) IsAllowed(addr string) bool {
	if len(m.rules) == 0 {
		return true
	}

	for i := range m.rules {
		if m.rules[i].matches(addr) {
			return true
		}
	}
	return false
}

func parseIPRule(raw string) ipRule {
	subnetText, bitsText, isCIDR := strings.Cut(raw, "/")
	if !isCIDR {
		return ipRule{raw: raw}
	}

	rule := ipRule{raw: raw, cidr: true, v6: strings.Contains(subnetText, ":")}

	bits, err := strconv.Atoi(bitsText)
	if err != nil {
		return rule
	}
	subnet, err := netip.ParseAddr(subnetText)
	if err != nil || subnet.Zone() != "" {
		return rule
	}

	maxBits := 32
	if rule.v6 {
		maxBits = 128
		if !subnet.Is6() {
			return rule
		}
	} else if !subnet.Is4() {
		return rule
	}
	if bits < 0 || bits > maxBits {
		return rule
	}

	rule.subnet = subnet
	rule.bits = bits
	rule.valid = true
	return rule
}

func (r *ipRule) matches(addr string) bool {
	if !r.cidr {
		return r.raw != "" && addr == r.raw
	}
	if !r.valid {
		return false
	}
	if r.v6 {
		return r.matchesV6(addr)
	}
	return r.matchesV4(addr)
}

// matchesV4 compares the leading bits of both addresses as 32-bit integers.
func (r *ipRule) matchesV4(addr string) bool {
	ip, err := netip.ParseAddr(addr)
	if err != nil || !ip.Is4() {
		return false
	}

	a4, s4 := ip.As4(), r.subnet.As4()
	a := binary.BigEndian.Uint32(a4[:])
	s := binary.BigEndian.Uint32(s4[:])

	var mask uint32
	if r.bits > 0 {
		mask = ^uint32(0) << (32 - r.bits)
	}
	return a&mask == s&mask
}

// matchesV6 compares whole leading bytes, then the remaining high bits of
// the next byte.
func (r *ipRule) matchesV6(addr string) bool {
	ip, err := netip.ParseAddr(addr)
	if err != nil || !ip.Is6() || ip.Zone() != "" {
		return false
	}

	a, s := ip.As16(), r.subnet.As16()

	full := r.bits / 8
	for i := 0; i < full; i++ {
		if a[i] != s[i] {
			return false
		}
	}

	rem := r.bits % 8
	if rem == 0 {
		return true
	}
	mask := byte(0xff) << (8 - rem)
	return a[full]&mask == s[full]&mask
}

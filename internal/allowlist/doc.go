// Package allowlist matches client addresses and hostnames against
// configured allow rules.
//
// IP rules are exact literals or CIDR blocks ("10.0.0.0/8", "2001:db8::/32").
// Origin rules are exact hostnames or "*.domain" wildcards that match proper
// subdomains only. An empty rule set allows everything.
package allowlist

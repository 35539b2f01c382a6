// Package validation checks inbound request metadata against the client
// IP and hostname allowlists.
//
// The client address is the first X-Forwarded-For entry, falling back to
// the connection's remote address. The hostname comes from Origin, then
// Referer, then Host. A check is skipped when its signal is absent, so a
// request carrying no address passes the IP check.
package validation

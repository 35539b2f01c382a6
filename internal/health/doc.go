// Package health provides liveness, health and readiness endpoints.
//
// Readiness runs registered dependency checks. A failing critical check
// makes the service unhealthy (503); a failing non-critical check only
// degrades it.
package health

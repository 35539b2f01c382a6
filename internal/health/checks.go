package health

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/code-wheel/mcp-http-security/internal/auth/apikey"
)

// probeKeyID is looked up by StoreCheck. It is a valid key id shape that
// is never issued in practice; a miss still proves the store answers.
const probeKeyID = "000000000000"

// DependencyCheck represents a dependency health check.
type DependencyCheck struct {
	name     string
	checkFn  func(ctx context.Context) error
	critical bool
}

// DependencyCheckOption is a function that configures a DependencyCheck.
type DependencyCheckOption func(*DependencyCheck)

// WithCritical marks the dependency as critical.
func WithCritical(critical bool) DependencyCheckOption {
	return func(d *DependencyCheck) {
		d.critical = critical
	}
}

// NewDependencyCheck creates a new dependency check. Checks are critical
// unless WithCritical(false) is given.
func NewDependencyCheck(
	name string,
	checkFn func(ctx context.Context) error,
	opts ...DependencyCheckOption,
) *DependencyCheck {
	d := &DependencyCheck{
		name:     name,
		checkFn:  checkFn,
		critical: true,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name returns the name of the dependency check.
func (d *DependencyCheck) Name() string {
	return d.name
}

// IsCritical returns true if the dependency is critical.
func (d *DependencyCheck) IsCritical() bool {
	return d.critical
}

// Check performs the dependency health check.
func (d *DependencyCheck) Check(ctx context.Context) error {
	return d.checkFn(ctx)
}

// StoreCheck verifies that the key store answers lookups.
func StoreCheck(name string, s apikey.Store, opts ...DependencyCheckOption) *DependencyCheck {
	return NewDependencyCheck(name, func(ctx context.Context) error {
		_, err := s.Get(ctx, probeKeyID)
		if err == nil || errors.Is(err, apikey.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("key store unavailable: %w", err)
	}, opts...)
}

// TCPCheck verifies that address accepts TCP connections.
func TCPCheck(name, address string, opts ...DependencyCheckOption) *DependencyCheck {
	return NewDependencyCheck(name, func(ctx context.Context) error {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", address)
		if err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		return conn.Close()
	}, opts...)
}

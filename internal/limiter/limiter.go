// Package limiter defines interfaces and implementations for throttling
// repeated credential-verification failures at a kiosk terminal.
package limiter

import (
	"context"
	"time"
)

// Limiter controls verification attempts and temporary lockouts.
type Limiter interface {
	// Allow reports whether verification is currently allowed for the
	// (terminal, credential) pair and an optional retry-after.
	Allow(ctx context.Context, terminal string, credHash []byte) (bool, time.Duration, error)
	// Success resets counters after a successful verification.
	Success(ctx context.Context, terminal string, credHash []byte) error
	// Failure records a failed attempt; may place a temporary block.
	Failure(ctx context.Context, terminal string, credHash []byte) (bool, time.Duration, error)
}

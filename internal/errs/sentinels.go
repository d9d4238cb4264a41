// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service/workflow layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrScanCancelled indicates the in-flight scan was aborted by the operator.
	ErrScanCancelled = errors.New("scan cancelled")

	// ErrScanTimeout indicates the reader gave up waiting for a credential.
	ErrScanTimeout = errors.New("scan timeout")

	// ErrReader indicates a hardware/bridge failure during a scan.
	ErrReader = errors.New("reader error")

	// ErrVerificationFailed indicates the scanned credential resolved to no
	// matching account (or an account missing the required role).
	ErrVerificationFailed = errors.New("verification failed")

	// ErrScanInFlight indicates a scan was requested while one is pending.
	ErrScanInFlight = errors.New("scan already in flight")

	// ErrRateLimited indicates a temporary lockout after repeated
	// verification failures at a terminal.
	ErrRateLimited = errors.New("rate limited")

	// ErrShortlistFull indicates the compare shortlist reached its cap.
	ErrShortlistFull = errors.New("shortlist full")

	// ErrBadTransition indicates an operation invalid in the current
	// workflow state.
	ErrBadTransition = errors.New("invalid workflow transition")
)

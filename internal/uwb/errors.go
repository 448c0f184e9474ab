package uwb

import "errors"

// Sentinel errors returned by the core. Callers should use errors.Is; the
// core never panics on a caller-reachable error path (spec §9 "Exceptions/
// panics") -- panics are reserved for invariant violations below.
var (
	ErrSessionNotFound  = errors.New("uwb: session not found")
	ErrDuplicateSession = errors.New("uwb: session handle or id already present")
	ErrMaxSessions      = errors.New("uwb: max sessions reached for protocol/chip")
	ErrSystemPolicy     = errors.New("uwb: rejected by system policy")
	ErrInvalidState     = errors.New("uwb: operation not valid in current session state")
	ErrTimeout          = errors.New("uwb: command timed out waiting for notification")
	ErrTransportFailure = errors.New("uwb: UCI transport returned non-OK status")
	ErrInvalidRequest   = errors.New("uwb: structurally invalid request")
	ErrPermissionDenied = errors.New("uwb: data-delivery permission denied")
	ErrClosed           = errors.New("uwb: session closed while operation was pending")
	ErrEventLoopStopped = errors.New("uwb: event loop is stopped")
)

// invariantViolation panics with a message identifying a bug, not a runtime
// condition -- e.g. a session id present in an index but absent from the
// table. Per spec §9, only invariant violations panic; everything else is a
// value.
func invariantViolation(msg string) {
	panic("uwb: invariant violation: " + msg)
}

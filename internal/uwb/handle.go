package uwb

import "github.com/google/uuid"

// SessionHandle is an opaque identity minted by the caller (or by
// NewSessionHandle for callers that don't mint their own); it is the
// primary key in SessionTable and the only way code outside the core
// references a Session (spec §9 "Cyclic references").
type SessionHandle struct {
	id uuid.UUID
}

// NewSessionHandle mints a fresh random SessionHandle.
func NewSessionHandle() SessionHandle {
	return SessionHandle{id: uuid.New()}
}

// SessionHandleFromUUID wraps an existing UUID, for callers that already
// have an identity to preserve (e.g. test fixtures, RPC-supplied handles).
func SessionHandleFromUUID(id uuid.UUID) SessionHandle {
	return SessionHandle{id: id}
}

func (h SessionHandle) String() string { return h.id.String() }

// IsZero reports whether h is the zero-value handle (never minted by
// NewSessionHandle).
func (h SessionHandle) IsZero() bool { return h.id == uuid.Nil }

// SessionId is the 32-bit id passed to UCI; unique across live sessions per
// chip (spec §3 invariants).
type SessionId uint32

// SessionToken is the controller-assigned value returned by UCI, cached per
// session for cross-session references such as hybrid-session phase lists
// and FiRa time-base references (spec §4.4).
type SessionToken uint32

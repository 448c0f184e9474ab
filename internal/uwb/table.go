package uwb

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// recentlyClosedCacheSize bounds the diagnostic history of closed sessions
// (spec §3 "Lifecycles": "moved to a bounded LRU of recently-closed
// sessions for diagnostics").
const recentlyClosedCacheSize = 64

// ClosedSessionRecord is a diagnostic snapshot retained after a session
// terminates.
type ClosedSessionRecord struct {
	Handle   SessionHandle
	Id       SessionId
	Protocol Protocol
	Reason   Reason
}

// SessionTable is the process-wide map from SessionHandle to Session, plus
// the indexes spec §2 item 4 and §4.1 require. All mutations are serialized
// on the EventLoop (spec §4.1 "Guarantees"); SessionTable itself holds no
// lock of its own because nothing outside the EventLoop goroutine calls
// its mutating methods -- mirroring the teacher's Manager, which guards its
// maps with sync.RWMutex only because its callers are genuinely concurrent.
// Here the single-writer EventLoop discipline makes that lock unnecessary
// for the mutating path; read-only accessors used by other goroutines
// (Sessions snapshot, getByHandle from admission pre-checks) still need
// synchronization, provided by the table-level mutex below.
type SessionTable struct {
	byHandle map[SessionHandle]*Session
	byId     map[SessionId]*Session
	byUid    map[int32]map[SessionHandle]struct{}

	recentlyClosedCache *lru.Cache[SessionHandle, ClosedSessionRecord]
}

// NewSessionTable constructs an empty SessionTable.
func NewSessionTable() *SessionTable {
	cache, err := lru.New[SessionHandle, ClosedSessionRecord](recentlyClosedCacheSize)
	if err != nil {
		// Only returns an error for non-positive size, which
		// recentlyClosedCacheSize never is; a failure here is a build-time
		// constant mistake, not a runtime condition.
		invariantViolation("recently-closed LRU construction failed: " + err.Error())
	}
	return &SessionTable{
		byHandle:            make(map[SessionHandle]*Session),
		byId:                make(map[SessionId]*Session),
		byUid:               make(map[int32]map[SessionHandle]struct{}),
		recentlyClosedCache: cache,
	}
}

// insert registers a new session under its handle, id, and (when it has a
// non-privileged attribution link) owner-uid indexes. Caller (AdmissionController)
// must have already checked for duplicates.
func (t *SessionTable) insert(session *Session) {
	t.byHandle[session.Handle] = session
	t.byId[session.Id] = session
	if link, ok := session.Attribution.firstNonPrivileged(); ok {
		set, ok := t.byUid[link.Uid]
		if !ok {
			set = make(map[SessionHandle]struct{})
			t.byUid[link.Uid] = set
		}
		set[session.Handle] = struct{}{}
	}
}

// getByHandle looks up a session by its caller-minted handle.
func (t *SessionTable) getByHandle(handle SessionHandle) (*Session, bool) {
	s, ok := t.byHandle[handle]
	return s, ok
}

// getById looks up a session by its UCI-facing numeric id.
func (t *SessionTable) getById(id SessionId) (*Session, bool) {
	s, ok := t.byId[id]
	return s, ok
}

// sessionIdOf returns the SessionId for a handle, or (0, false) for an
// unknown handle -- never throws (spec §4.1 "Guarantees").
func (t *SessionTable) sessionIdOf(handle SessionHandle) (SessionId, bool) {
	s, ok := t.byHandle[handle]
	if !ok {
		return 0, false
	}
	return s.Id, true
}

// countByProtocol returns the number of live sessions of a protocol,
// restricted to chipID.
func (t *SessionTable) countByProtocol(protocol Protocol, chipID ChipId) int {
	n := 0
	for _, s := range t.byHandle {
		if s.Protocol == protocol && s.ChipId == chipID {
			n++
		}
	}
	return n
}

// sessionWithLowestPriority returns the live session of protocol with the
// numerically lowest stackPriority, used by AdmissionController's eviction
// check (spec §4.2 step 3).
func (t *SessionTable) sessionWithLowestPriority(protocol Protocol, chipID ChipId) (*Session, bool) {
	var lowest *Session
	for _, s := range t.byHandle {
		if s.Protocol != protocol || s.ChipId != chipID {
			continue
		}
		if lowest == nil || s.StackPriority() < lowest.StackPriority() {
			lowest = s
		}
	}
	return lowest, lowest != nil
}

// remove deregisters a session and records a diagnostic snapshot in the
// recently-closed LRU (spec §3 "Lifecycles").
func (t *SessionTable) remove(session *Session, reason Reason) {
	delete(t.byHandle, session.Handle)
	delete(t.byId, session.Id)
	if link, ok := session.Attribution.firstNonPrivileged(); ok {
		if set, ok := t.byUid[link.Uid]; ok {
			delete(set, session.Handle)
			if len(set) == 0 {
				delete(t.byUid, link.Uid)
			}
		}
	}
	t.recentlyClosedCache.Add(session.Handle, ClosedSessionRecord{
		Handle:   session.Handle,
		Id:       session.Id,
		Protocol: session.Protocol,
		Reason:   reason,
	})
}

// recentlyClosed returns the diagnostic history of closed sessions still
// resident in the LRU.
func (t *SessionTable) recentlyClosed() []ClosedSessionRecord {
	keys := t.recentlyClosedCache.Keys()
	out := make([]ClosedSessionRecord, 0, len(keys))
	for _, k := range keys {
		if v, ok := t.recentlyClosedCache.Peek(k); ok {
			out = append(out, v)
		}
	}
	return out
}

// sessionsForUid returns the live sessions owned (via first non-privileged
// attribution link) by uid, for AppStateWatcher (spec §4.7).
func (t *SessionTable) sessionsForUid(uid int32) []*Session {
	set, ok := t.byUid[uid]
	if !ok {
		return nil
	}
	out := make([]*Session, 0, len(set))
	for handle := range set {
		if s, ok := t.byHandle[handle]; ok {
			out = append(out, s)
		}
	}
	return out
}

// all returns every live session, for snapshotting and reconciliation.
func (t *SessionTable) all() []*Session {
	out := make([]*Session, 0, len(t.byHandle))
	for _, s := range t.byHandle {
		out = append(out, s)
	}
	return out
}

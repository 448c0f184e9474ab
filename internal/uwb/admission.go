package uwb

// AdmissionController implements the max-session checks and priority-based
// eviction for every open-ranging request (spec §2 item 8, §4.2). It is a
// pure function of SessionTable + PolicyOracle state, invoked exclusively
// from the EventLoop goroutine, mirroring the duplicate-check-then-register
// pattern in the teacher's Manager.CreateSession.
type AdmissionController struct {
	table  *SessionTable
	policy PolicyOracle
}

// NewAdmissionController constructs an AdmissionController over table using
// policy for gating decisions.
func NewAdmissionController(table *SessionTable, policy PolicyOracle) *AdmissionController {
	return &AdmissionController{table: table, policy: policy}
}

// EvictionFunc deinits an existing session for the given reason, as part of
// priority-based eviction (spec §4.2 step 3). The EventLoop supplies this as
// a closure over its own deinit handler so AdmissionController never issues
// UCI commands directly.
type EvictionFunc func(session *Session, reason Reason)

// Admit runs the four-step admission check from spec §4.2 against a
// not-yet-inserted session. On success it inserts the session into table and
// returns nil. On failure it returns a sentinel error paired with the
// Reason the caller should report to the sink.
func (a *AdmissionController) Admit(session *Session, evict EvictionFunc) (Reason, error) {
	// Step 1: background-ranging gate.
	if link, ok := session.Attribution.firstNonPrivileged(); ok {
		if !a.policy.IsAppForeground(link) && !a.policy.IsBackgroundRangingEnabled() {
			return ReasonSystemPolicy, ErrSystemPolicy
		}
	}

	// Step 2: duplicate check.
	if _, exists := a.table.getByHandle(session.Handle); exists {
		return ReasonUnknown, ErrDuplicateSession
	}
	if _, exists := a.table.getById(session.Id); exists {
		return ReasonUnknown, ErrDuplicateSession
	}

	// Step 3: max-sessions / eviction.
	max := a.policy.MaxSessionsPerChip(session.Protocol, session.ChipId)
	if max > 0 && a.table.countByProtocol(session.Protocol, session.ChipId) >= max {
		if session.Protocol != ProtocolFiRa {
			return ReasonMaxSessionsReached, ErrMaxSessions
		}
		lowest, found := a.table.sessionWithLowestPriority(session.Protocol, session.ChipId)
		if !found || lowest.StackPriority() >= session.StackPriority() {
			return ReasonMaxSessionsReached, ErrMaxSessions
		}
		evict(lowest, ReasonMaxSessionsReached)
	}

	a.table.insert(session)
	return ReasonLocalApi, nil
}

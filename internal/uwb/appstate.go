package uwb

import "time"

// AppStateReconfigurer is the narrow slice of EventLoop capability
// AppStateWatcher needs: issuing a live ranging-data-notification control
// change and triggering a policy-driven stop, without mutating stored
// params (spec §4.7). Expressed as an interface so AppStateWatcher never
// depends on EventLoop's concrete type -- the same id-key-and-lookup
// discipline spec §9 prescribes for the sink.
type AppStateReconfigurer interface {
	ApplyLiveRngDataNtfControl(handle SessionHandle, control RngDataNtfControl)
	StopForSystemPolicy(handle SessionHandle)
}

// AppStateWatcher subscribes to foreground/background importance
// transitions for uids owning non-privileged sessions (spec §2 item 9,
// §4.7). It holds no lock of its own: all entry points run on the
// EventLoop goroutine, consistent with SessionTable's single-writer
// discipline.
type AppStateWatcher struct {
	table        *SessionTable
	policy       PolicyOracle
	timers       *timerService
	reconfigurer AppStateReconfigurer
}

// NewAppStateWatcher constructs an AppStateWatcher.
func NewAppStateWatcher(table *SessionTable, policy PolicyOracle, timers *timerService, reconfigurer AppStateReconfigurer) *AppStateWatcher {
	return &AppStateWatcher{table: table, policy: policy, timers: timers, reconfigurer: reconfigurer}
}

// OnImportanceChanged is the entry point a platform-level importance
// listener calls when uid's foreground/background status changes
// (spec §4.7).
func (w *AppStateWatcher) OnImportanceChanged(uid int32, foreground bool) {
	for _, session := range w.table.sessionsForUid(uid) {
		w.handleTransition(session, foreground)
	}
}

func (w *AppStateWatcher) handleTransition(session *Session, foreground bool) {
	session.setHasNonPrivilegedFgAppOrService(foreground)

	if session.Protocol == ProtocolFiRa {
		if foreground {
			// Restore the session's own originally-configured control and
			// bounds (spec §4.7 "enabled-with-original-bounds when
			// foreground"), not a fixed mode -- a session opened with, say,
			// AoA-level notifications or a non-default proximity window
			// must come back exactly that way, not RngDataNtfEnableProximity.
			w.reconfigurer.ApplyLiveRngDataNtfControl(session.Handle, session.Params().Common().RngDataNtfControl)
		} else {
			w.reconfigurer.ApplyLiveRngDataNtfControl(session.Handle, RngDataNtfDisable)
		}
	}

	if !session.HasPriorityOverride() {
		if link, ok := session.Attribution.firstNonPrivileged(); ok {
			session.setPriority(computeStackPriority(session.Protocol, link, foreground, w.policy), false)
		}
	}

	if w.policy.IsBackgroundRangingEnabled() {
		return
	}
	if foreground {
		w.timers.cancel(session.Handle, timerKindBackgroundApp)
		session.clearBackgroundAppDeadline()
		return
	}
	deadline := time.Now().Add(time.Duration(w.policy.BackgroundAppTimeoutMs()) * time.Millisecond)
	session.armBackgroundAppDeadline(deadline)
	handle := session.Handle
	w.timers.arm(handle, timerKindBackgroundApp, time.Duration(w.policy.BackgroundAppTimeoutMs())*time.Millisecond, func() {
		w.reconfigurer.StopForSystemPolicy(handle)
	})
}

package uwb

import (
	"context"
	"time"
)

// StartRanging issues a start request (spec §4.3 row 3, §4.4 "Start-ranging
// handler specifics").
func (el *EventLoop) StartRanging(req StartRequest) error {
	return el.enqueue(func() { el.handleStart(req) })
}

func (el *EventLoop) handleStart(req StartRequest) {
	session, ok := el.table.getByHandle(req.Handle)
	if !ok {
		el.sink.RangingStartFailed(req.Handle, ReasonUnknown)
		return
	}
	if session.State() != StateIdle {
		el.sink.RangingStartFailed(req.Handle, ReasonUnknown)
		return
	}

	params := session.Params()
	common := params.Common()
	needsUpdate := false

	if params.Protocol == ProtocolFiRa && req.RanMultiplier != nil {
		params.FiRa().RanMultiplier = *req.RanMultiplier
		needsUpdate = true
	}
	if req.InitiationMs != nil && params.Protocol == ProtocolFiRa {
		params.FiRa().RelativeInitiationMs = *req.InitiationMs
		params.FiRa().HasAbsoluteInitiation = false
		needsUpdate = true
	}
	if req.StsIndex != nil {
		switch params.Protocol {
		case ProtocolCcc:
			params.Ccc().StsIndex = *req.StsIndex
			needsUpdate = true
		case ProtocolAliro:
			params.Aliro().StsIndex = *req.StsIndex
			needsUpdate = true
		}
	}
	if req.StackPriority != nil {
		session.setPriority(*req.StackPriority, true)
	}
	if params.Protocol == ProtocolFiRa && session.StackPriority() != common.SessionPriority {
		params.FiRa().SessionPriority = session.StackPriority()
		needsUpdate = true
	}
	if needsUpdate {
		session.setParams(params)
		session.markNeedsAppConfigUpdate(true)
	}

	el.spawnWorker(func(ctx context.Context) {
		el.runStartWorker(ctx, session)
	})
}

// startDeadline returns the Start deadline, raised for FiRa to at least
// 4*currentRangingIntervalMs (spec §5).
func (el *EventLoop) startDeadline(session *Session) time.Duration {
	deadline := el.deadlines.Start
	if session.Protocol != ProtocolFiRa {
		return deadline
	}
	intervalMs := session.Params().Common().RangingIntervalMs
	floor := time.Duration(4*intervalMs) * time.Millisecond
	if floor > deadline {
		return floor
	}
	return deadline
}

func (el *EventLoop) runStartWorker(ctx context.Context, session *Session) {
	deadline := el.startDeadline(session)
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	if session.needsAppConfigUpdateFlag() {
		params := el.resolveAbsoluteInitiationTime(ctx, session, session.Params())
		ch := session.beginOperation(OperationStart)
		status, err := el.transport.SetAppConfigurations(ctx, session.Id, params, session.ChipId, params.Common().UciProtocolVersion)
		session.markNeedsAppConfigUpdate(false)
		if err != nil || status != StatusOk {
			session.endOperation()
			el.sink.RangingStartFailed(session.Handle, MapStatusToReason(status))
			return
		}
		if _, ok := awaitCompletion(ctx, ch, deadline); !ok {
			session.endOperation()
			el.metrics.CommandTimeout(OperationStart)
			el.sink.RangingStartFailed(session.Handle, ReasonUnknown)
			return
		}
		session.endOperation()
	}

	ch := session.beginOperation(OperationStart)
	status, err := el.transport.StartRanging(ctx, session.Id, session.ChipId)
	if err != nil || status != StatusOk {
		session.endOperation()
		el.sink.RangingStartFailed(session.Handle, MapStatusToReason(status))
		return
	}
	res, ok := awaitCompletion(ctx, ch, deadline)
	session.endOperation()
	if !ok {
		el.metrics.CommandTimeout(OperationStart)
		el.sink.RangingStartFailed(session.Handle, ReasonUnknown)
		return
	}
	if res.NewState != StateActive {
		el.sink.RangingStartFailed(session.Handle, ReasonUnknown)
		return
	}

	el.sink.RangingStarted(session.Handle, session.Params())

	// spec §4.3 edge case: non-privileged background app immediately
	// loses ranging-data notifications after a successful start, without
	// mutating stored params.
	if session.hasNonPrivilegedFgAppOrServiceFlag() {
		return
	}
	if link, ok := session.Attribution.firstNonPrivileged(); ok && !el.policy.IsAppForeground(link) {
		el.spawnWorker(func(ctx context.Context) { el.runLiveRngDataNtfControlWorker(ctx, session, RngDataNtfDisable) })
	}
}

// StopRanging issues a stop request (spec §4.3 row 4, §4.4 "Stop-ranging
// handler specifics").
func (el *EventLoop) StopRanging(req StopRequest) error {
	return el.enqueue(func() {
		session, ok := el.table.getByHandle(req.Handle)
		if !ok {
			el.sink.RangingStopFailed(req.Handle, ReasonUnknown)
			return
		}
		el.issueStop(session, req.SystemPolicy)
	})
}

// issueStop runs on the loop goroutine; systemPolicy selects whether the
// resulting stopped callback carries SystemPolicy (error-streak /
// background-app timer) or LocalApi (spec §4.4).
func (el *EventLoop) issueStop(session *Session, systemPolicy bool) {
	state := session.State()
	if state == StateIdle {
		expected := ReasonLocalApi
		if systemPolicy {
			expected = ReasonSystemPolicy
		}
		if session.lastReasonCode() == expected {
			// Idempotent success: already stopped for this same reason
			// (spec §4.3 edge case "stop requested while already Idle with
			// the expected reason code").
			el.sink.RangingStopped(session.Handle, expected, session.Params())
			return
		}
		// Idle for a different reason (remote-initiated, suspended, ...):
		// not the idempotent-stop case, and there is nothing to stop.
		el.sink.RangingStopFailed(session.Handle, ReasonUnknown)
		return
	}
	if state != StateActive {
		el.sink.RangingStopFailed(session.Handle, ReasonUnknown)
		return
	}
	el.spawnWorker(func(ctx context.Context) {
		el.runStopWorker(ctx, session, systemPolicy)
	})
}

func (el *EventLoop) runStopWorker(ctx context.Context, session *Session, systemPolicy bool) {
	ctx, cancel := context.WithTimeout(ctx, el.deadlines.Stop)
	defer cancel()

	ch := session.beginOperation(OperationStop)
	status, err := el.transport.StopRanging(ctx, session.Id, session.ChipId)
	if err != nil || status != StatusOk {
		session.endOperation()
		el.sink.RangingStopFailed(session.Handle, MapStatusToReason(status))
		return
	}
	_, ok := awaitCompletion(ctx, ch, el.deadlines.Stop)
	session.endOperation()
	if !ok {
		el.metrics.CommandTimeout(OperationStop)
		el.sink.RangingStopFailed(session.Handle, ReasonUnknown)
		return
	}

	reason := ReasonLocalApi
	if systemPolicy {
		reason = ReasonSystemPolicy
	}

	params := session.Params()
	if params.Protocol == ProtocolCcc && el.policy.IsStoppedParamsEnabled(ProtocolCcc) {
		_, _, _ = el.transport.GetAppConfigurations(ctx, session.Id, ProtocolCcc, nil, session.ChipId, params.Common().UciProtocolVersion)
	}
	if params.Protocol == ProtocolAliro && el.policy.IsStoppedParamsEnabled(ProtocolAliro) {
		_, _, _ = el.transport.GetAppConfigurations(ctx, session.Id, ProtocolAliro, nil, session.ChipId, params.Common().UciProtocolVersion)
	}

	el.sink.RangingStopped(session.Handle, reason, params)
}

// Deinit tears a session down permanently (spec §4.3 row 9).
func (el *EventLoop) Deinit(req DeinitRequest) error {
	return el.enqueue(func() {
		session, ok := el.table.getByHandle(req.Handle)
		if !ok {
			return
		}
		el.spawnWorker(func(ctx context.Context) {
			el.runDeinitWorker(ctx, session, ReasonLocalApi)
		})
	})
}

func (el *EventLoop) runDeinitWorker(ctx context.Context, session *Session, reason Reason) {
	ctx, cancel := context.WithTimeout(ctx, el.deadlines.Close)
	defer cancel()

	ch := session.beginOperation(OperationDeinit)
	status, err := el.transport.DeinitSession(ctx, session.Id, session.ChipId)
	if err != nil || status != StatusOk {
		// spec §7: "Transport failures during deinit are logged but the
		// session is still removed from SessionTable."
		el.logger.Warn("deinitSession transport failure, removing session anyway")
	} else {
		awaitCompletion(ctx, ch, el.deadlines.Close)
	}
	session.endOperation()

	el.finalizeClose(session, reason)
}

// handleOnDeinit processes the internal OnDeinit event scheduled by
// NotificationRouter when UCI reports state Deinit unsolicited (spec §4.3
// row 6, §4.5).
func (el *EventLoop) handleOnDeinit(handle SessionHandle) {
	session, ok := el.table.getByHandle(handle)
	if !ok {
		return
	}
	el.finalizeClose(session, session.lastReasonCode())
}

// finalizeClose releases every resource a session holds and removes it
// from SessionTable; called from both the local-deinit and
// remote-initiated-deinit paths so both converge on one teardown routine.
func (el *EventLoop) finalizeClose(session *Session, reason Reason) {
	el.timers.cancelAll(session.Handle)
	el.advertise.ClearSession(session.Handle)
	session.closeControlees()
	params := session.Params()
	el.table.remove(session, reason)
	el.metrics.SessionClosed(session.Protocol, reason)
	el.sink.RangingClosed(session.Handle, reason, params)
}

// handleLiveRngDataNtfControl implements the AppStateWatcher-driven live
// override described in spec §4.7: a reconfigure that changes the
// ranging-data-notification control without mutating stored params.
func (el *EventLoop) handleLiveRngDataNtfControl(handle SessionHandle, control RngDataNtfControl) {
	session, ok := el.table.getByHandle(handle)
	if !ok {
		return
	}
	if session.State() != StateActive && session.State() != StateIdle {
		return
	}
	el.spawnWorker(func(ctx context.Context) {
		el.runLiveRngDataNtfControlWorker(ctx, session, control)
	})
}

func (el *EventLoop) runLiveRngDataNtfControlWorker(ctx context.Context, session *Session, control RngDataNtfControl) {
	ctx, cancel := context.WithTimeout(ctx, el.deadlines.Reconfigure)
	defer cancel()

	live := session.Params().Clone()
	live.Common().RngDataNtfControl = control

	ch := session.beginOperation(OperationReconfigure)
	status, err := el.transport.SetAppConfigurations(ctx, session.Id, live, session.ChipId, live.Common().UciProtocolVersion)
	if err != nil || status != StatusOk {
		session.endOperation()
		return
	}
	awaitCompletion(ctx, ch, el.deadlines.Reconfigure)
	session.endOperation()
	// Stored params are intentionally left untouched (spec §4.7): this is
	// a live override, not a persisted reconfigure.
}

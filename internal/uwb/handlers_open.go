package uwb

import (
	"context"
	"log/slog"
)

// OpenRanging admits and initializes a new session (spec §4.2, §4.3 row 1,
// §4.4 "Open-session handler specifics"). It returns as soon as the
// admission decision and UCI dispatch are underway; the outcome (opened or
// failed) always arrives through NotificationSink.
func (el *EventLoop) OpenRanging(req OpenRequest) error {
	return el.enqueue(func() { el.handleOpen(req) })
}

func (el *EventLoop) handleOpen(req OpenRequest) {
	session := NewSession(SessionConfig{
		Handle:      req.Handle,
		Id:          req.Id,
		SessionType: req.SessionType,
		Protocol:    req.Protocol,
		ChipId:      req.ChipId,
		Attribution: req.Attribution,
		Params:      req.Params,
	})

	link, hasNonPrivileged := req.Attribution.firstNonPrivileged()
	foreground := true
	if hasNonPrivileged {
		foreground = el.policy.IsAppForeground(link)
	}
	common := req.Params.Common()
	if common.DefaultSessionPriority {
		session.setPriority(computeStackPriority(req.Protocol, link, foreground, el.policy), false)
	} else {
		session.setPriority(common.SessionPriority, true)
	}

	reason, err := el.admission.Admit(session, func(victim *Session, r Reason) {
		el.issueDeinitForReason(victim, r)
	})
	if err != nil {
		el.metrics.AdmissionRejected(req.Protocol, reason)
		el.sink.RangingOpenFailed(req.Handle, reason)
		return
	}

	el.spawnWorker(func(ctx context.Context) {
		el.runOpenWorker(ctx, session)
	})
}

func (el *EventLoop) runOpenWorker(ctx context.Context, session *Session) {
	ctx, cancel := context.WithTimeout(ctx, el.deadlines.Open)
	defer cancel()

	ch := session.beginOperation(OperationInitSession)
	status, err := el.transport.InitSession(ctx, session.Id, session.SessionType, session.ChipId)
	if err != nil || status != StatusOk {
		session.endOperation()
		el.failOpen(session, status)
		return
	}

	res, ok := awaitCompletion(ctx, ch, el.deadlines.Open)
	session.endOperation()
	if !ok {
		el.metrics.CommandTimeout(OperationInitSession)
		el.sink.RangingOpenFailed(session.Handle, ReasonUnknown)
		return
	}
	if res.NewState != StateInit {
		el.failOpen(session, StatusFailed)
		return
	}

	token, tokenStatus, err := el.transport.GetSessionToken(ctx, session.Id, session.ChipId)
	if err == nil && tokenStatus == StatusOk {
		session.cacheToken(token)
	}

	resolved := el.resolveCrossSessionReferences(session.Params())
	params := el.resolveAbsoluteInitiationTime(ctx, session, resolved)

	ch = session.beginOperation(OperationInitSession)
	status, err = el.transport.SetAppConfigurations(ctx, session.Id, params, session.ChipId, params.Common().UciProtocolVersion)
	if err != nil || status != StatusOk {
		session.endOperation()
		el.failOpen(session, status)
		return
	}
	// Store the params without the computed absolute initiation time.
	session.setParams(resolved)

	res, ok = awaitCompletion(ctx, ch, el.deadlines.Open)
	session.endOperation()
	if !ok {
		el.metrics.CommandTimeout(OperationInitSession)
		el.sink.RangingOpenFailed(session.Handle, ReasonUnknown)
		return
	}
	if res.NewState != StateIdle {
		el.failOpen(session, StatusFailed)
		return
	}

	el.metrics.SessionOpened(session.Protocol)
	el.sink.RangingOpened(session.Handle)
}

func (el *EventLoop) failOpen(session *Session, status Status) {
	el.table.remove(session, MapStatusToReason(status))
	el.sink.RangingOpenFailed(session.Handle, MapStatusToReason(status))
}

// resolveCrossSessionReferences substitutes cached SessionTokens for any
// handle-based cross-session references the params carry before config
// apply (spec §4.4: "If parameters reference another session by handle ...
// substitute that session's cached SessionToken"). A handle that doesn't
// resolve to a live session is left unresolved; the UCI boundary encoding
// of an unresolved reference is the transport's concern, not ours.
func (el *EventLoop) resolveCrossSessionReferences(params Params) Params {
	if params.Protocol != ProtocolFiRa {
		return params
	}
	fira := params.FiRa()
	if fira.TimeBaseReferenceHandle == nil && len(fira.HybridPhaseListHandles) == 0 {
		return params
	}

	out := params.Clone()
	outFira := out.FiRa()

	if outFira.TimeBaseReferenceHandle != nil {
		if ref, ok := el.table.getByHandle(*outFira.TimeBaseReferenceHandle); ok {
			outFira.ResolvedTimeBaseToken = ref.Token()
			outFira.HasResolvedTimeBaseToken = true
		}
	}

	if len(outFira.HybridPhaseListHandles) > 0 {
		tokens := make([]SessionToken, 0, len(outFira.HybridPhaseListHandles))
		for _, handle := range outFira.HybridPhaseListHandles {
			if ref, ok := el.table.getByHandle(handle); ok {
				tokens = append(tokens, ref.Token())
			}
		}
		outFira.ResolvedHybridPhaseTokens = tokens
	}

	return out
}

// resolveAbsoluteInitiationTime implements spec §4.4's relative-to-absolute
// initiation time computation for UCI protocol version >= 2.0: if the
// params specify a relative initiation time but no absolute one, query the
// UWBS timestamp and compute absolute = uwbsTimestampMicros +
// relativeInitMs*1000; the computed absolute is reset after the command
// completes so a future start recomputes it.
func (el *EventLoop) resolveAbsoluteInitiationTime(ctx context.Context, session *Session, params Params) Params {
	if params.Protocol != ProtocolFiRa {
		return params
	}
	fira := params.FiRa()
	if fira.HasAbsoluteInitiation || fira.RelativeInitiationMs == 0 || params.Common().UciProtocolVersion < 0x0200 {
		return params
	}
	tsMicros, err := el.transport.QueryUwbsTimestampMicros(ctx, session.ChipId)
	if err != nil {
		el.logger.Warn("uwbs timestamp query failed, leaving relative initiation unresolved",
			slog.Any("handle", session.Handle), slog.Any("error", err))
		return params
	}
	out := params.Clone()
	outFira := out.FiRa()
	outFira.AbsoluteInitiationUs = tsMicros + uint64(fira.RelativeInitiationMs)*1000
	outFira.HasAbsoluteInitiation = true
	return out
}

// issueDeinitForReason deinits an already-admitted session for a
// controller-internal reason (priority eviction, or the background/error
// timers). It runs on the loop goroutine already, so it spawns its own
// worker directly rather than re-entering enqueue.
func (el *EventLoop) issueDeinitForReason(session *Session, reason Reason) {
	el.spawnWorker(func(ctx context.Context) {
		el.runDeinitWorker(ctx, session, reason)
	})
}

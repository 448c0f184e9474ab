package uwb

import "log/slog"

// DeinitEnqueuer lets NotificationRouter schedule the internal OnDeinit
// event without depending on EventLoop's concrete type (spec §4.5
// "onSessionStatus ... if new state is Deinit, enqueue internal OnDeinit
// event").
type DeinitEnqueuer interface {
	EnqueueOnDeinit(handle SessionHandle)
}

// PermissionChecker re-checks data-delivery permission on the ingress path
// (spec §4.5, §7 PermissionDenied: "silent drop on ingress paths, no user
// callback").
type PermissionChecker interface {
	CheckDataDeliveryPermission(handle SessionHandle) bool
}

// StopRequester lets the router arm the ranging-error-streak timer's fire
// action without depending on EventLoop.
type StopRequester interface {
	StopForSystemPolicy(handle SessionHandle)
}

// NotificationRouter receives SessionNotification callbacks from
// UciTransport, routes them by session id to the owning Session, updates
// state and wakes any event-loop waiter, then emits application
// notifications through NotificationSink (spec §2 item 7, §4.5).
type NotificationRouter struct {
	table      *SessionTable
	sink       NotificationSink
	advertise  *AdvertiseManager
	timers     *timerService
	policy     PolicyOracle
	permission PermissionChecker
	deinit     DeinitEnqueuer
	stopper    StopRequester
	logger     *slog.Logger
}

// NewNotificationRouter constructs a NotificationRouter.
func NewNotificationRouter(
	table *SessionTable,
	sink NotificationSink,
	advertise *AdvertiseManager,
	timers *timerService,
	policy PolicyOracle,
	permission PermissionChecker,
	deinit DeinitEnqueuer,
	stopper StopRequester,
	logger *slog.Logger,
) *NotificationRouter {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationRouter{
		table: table, sink: sink, advertise: advertise, timers: timers,
		policy: policy, permission: permission, deinit: deinit, stopper: stopper,
		logger: logger.With(slog.String("component", "notification_router")),
	}
}

func (r *NotificationRouter) lookup(id SessionId) (*Session, bool) {
	s, ok := r.table.getById(id)
	if !ok {
		r.logger.Warn("notification for unknown session id, discarding", slog.Any("session_id", id))
	}
	return s, ok
}

// OnSessionStatus implements SessionNotification.
func (r *NotificationRouter) OnSessionStatus(id SessionId, state State, reasonCode ReasonCode) {
	session, ok := r.lookup(id)
	if !ok {
		return
	}
	previous := session.State()
	reason := MapReasonCodeToReason(reasonCode)
	session.setState(state, reason)

	switch {
	case reasonCode == ReasonCodeInbandSuspended && state == StateIdle:
		// Remote-initiated suspend (spec §6 "InbandSuspended→SessionSuspended"):
		// the session is paused, not stopped -- rangingStopped would tell the
		// caller to re-open when it should instead expect an eventual resume.
		r.sink.RangingPaused(session.Handle)
	case reasonCode == ReasonCodeInbandSuspended && state == StateError:
		r.sink.RangingPauseFailed(session.Handle, reason)
	case reasonCode == ReasonCodeInbandResumed && state == StateActive:
		r.sink.RangingResumed(session.Handle)
	case reasonCode == ReasonCodeInbandResumed && state == StateError:
		r.sink.RangingResumeFailed(session.Handle, reason)
	case previous == StateActive && state == StateIdle && reasonCode != ReasonCodeStateChangeWithSessionMgmtCmd:
		r.sink.RangingStopped(session.Handle, reason, session.Params())
	}

	if state == StateDeinit && previous != StateDeinit {
		r.deinit.EnqueueOnDeinit(session.Handle)
	}

	session.resolve(completionResult{Status: StatusOk, Reason: reason, NewState: state})
}

// OnRangeData implements SessionNotification.
func (r *NotificationRouter) OnRangeData(id SessionId, report RangingReport) {
	session, ok := r.lookup(id)
	if !ok {
		return
	}
	if r.permission != nil && !r.permission.CheckDataDeliveryPermission(session.Handle) {
		return
	}

	r.sink.RangingResult(session.Handle, report)

	if report.Kind == RangingMeasurementOwrAoa {
		for _, m := range report.Measurements {
			if r.advertise.ObserveMeasurement(session.Handle, m) {
				r.releaseBufferedData(session, m.PeerAddress)
			}
		}
	}

	if report.AllErrors() && r.policy.IsRangingErrorStreakTimerEnabled() {
		deadline := func() { r.stopper.StopForSystemPolicy(session.Handle) }
		r.timers.arm(session.Handle, timerKindRangingErrorStreak,
			msToDuration(r.policy.RangingErrorStreakTimeoutMs()), deadline)
	} else {
		r.timers.cancel(session.Handle, timerKindRangingErrorStreak)
		session.clearRangingErrorStreakDeadline()
	}
}

// releaseBufferedData flushes buffered payloads for peerAddress to the sink
// in ascending sequence order (spec §4.6).
func (r *NotificationRouter) releaseBufferedData(session *Session, peerAddress uint64) {
	for _, info := range session.drainReceivedData(peerAddress) {
		r.sink.DataReceived(session.Handle, info.PeerAddress, info.Sequence, info.Payload)
	}
}

// OnDataReceived implements SessionNotification.
func (r *NotificationRouter) OnDataReceived(id SessionId, status Status, seq uint16, peerAddress uint64, payload []byte) {
	session, ok := r.lookup(id)
	if !ok {
		return
	}
	if status != StatusOk {
		r.sink.DataReceiveFailed(session.Handle, MapStatusToReason(status))
		return
	}
	if r.permission != nil && !r.permission.CheckDataDeliveryPermission(session.Handle) {
		return
	}

	params := session.Params()
	info := ReceivedDataInfo{PeerAddress: peerAddress, Sequence: seq, Payload: payload}

	if params.Common().RangingRoundUsage != RangingRoundUsageOwrAoa {
		r.sink.DataReceived(session.Handle, peerAddress, seq, payload)
		return
	}
	if r.advertise.IsPointedTarget(session.Handle, peerAddress) {
		r.sink.DataReceived(session.Handle, peerAddress, seq, payload)
		return
	}
	session.bufferReceivedData(info, params.Common().RxMaxPacketsToStore)
}

// OnDataSendStatus implements SessionNotification.
func (r *NotificationRouter) OnDataSendStatus(id SessionId, status Status, seq uint16, txCount uint8) {
	session, ok := r.lookup(id)
	if !ok {
		return
	}
	repetitionCount := session.Params().Common().DataRepetitionCount
	_, found := session.recordTxAttempt(seq, status == StatusOk, repetitionCount)
	if !found {
		return
	}
	if status == StatusOk {
		r.sink.DataSent(session.Handle, seq)
		return
	}
	session.discardTxSequence(seq)
	r.sink.DataSendFailed(session.Handle, seq, MapStatusToReason(status))
}

// OnMulticastListUpdate implements SessionNotification.
func (r *NotificationRouter) OnMulticastListUpdate(id SessionId, entries []MulticastUpdateEntry) {
	session, ok := r.lookup(id)
	if !ok {
		return
	}
	session.resolve(completionResult{Status: StatusOk, entries: entries})
}

// OnRadarData implements SessionNotification.
func (r *NotificationRouter) OnRadarData(id SessionId, frame RadarFrame) {
	session, ok := r.lookup(id)
	if !ok {
		return
	}
	if r.permission != nil && !r.permission.CheckDataDeliveryPermission(session.Handle) {
		return
	}
	r.sink.RadarDataReceived(session.Handle, frame)
}

// OnDataTransferPhaseConfig implements SessionNotification.
func (r *NotificationRouter) OnDataTransferPhaseConfig(id SessionId, status Status) {
	session, ok := r.lookup(id)
	if !ok {
		return
	}
	if status == StatusOk {
		r.sink.DataTransferPhaseConfigured(session.Handle)
	} else {
		r.sink.DataTransferPhaseConfigFailed(session.Handle, MapStatusToReason(status))
	}
	session.resolve(completionResult{Status: status, Reason: MapStatusToReason(status)})
}

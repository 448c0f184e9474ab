package uwb

// NotificationSink is the up-interface to the application-facing callback
// façade (spec §2 item 2, §6). The core invokes it from the EventLoop and
// from NotificationRouter; implementations must not block, mirroring the
// teacher's StateCallback contract for session notifications.
type NotificationSink interface {
	RangingOpened(handle SessionHandle)
	RangingOpenFailed(handle SessionHandle, reason Reason)
	RangingStarted(handle SessionHandle, params Params)
	RangingStartFailed(handle SessionHandle, reason Reason)
	RangingStopped(handle SessionHandle, reason Reason, params Params)
	RangingStopFailed(handle SessionHandle, reason Reason)
	RangingReconfigured(handle SessionHandle)
	RangingReconfigureFailed(handle SessionHandle, reason Reason)
	RangingClosed(handle SessionHandle, reason Reason, params Params)
	ControleeAdded(handle SessionHandle, address uint64)
	ControleeAddFailed(handle SessionHandle, address uint64, reason Reason)
	ControleeRemoved(handle SessionHandle, address uint64)
	ControleeRemoveFailed(handle SessionHandle, address uint64, reason Reason)
	RangingResult(handle SessionHandle, report RangingReport)
	DataReceived(handle SessionHandle, peerAddress uint64, seq uint16, payload []byte)
	DataReceiveFailed(handle SessionHandle, reason Reason)
	DataSent(handle SessionHandle, seq uint16)
	DataSendFailed(handle SessionHandle, seq uint16, reason Reason)
	DataTransferPhaseConfigured(handle SessionHandle)
	DataTransferPhaseConfigFailed(handle SessionHandle, reason Reason)
	RangingPaused(handle SessionHandle)
	RangingPauseFailed(handle SessionHandle, reason Reason)
	RangingResumed(handle SessionHandle)
	RangingResumeFailed(handle SessionHandle, reason Reason)
	DtTagRoundsUpdateStatus(handle SessionHandle, status Status)
	RadarDataReceived(handle SessionHandle, frame RadarFrame)
}

// ReceivedDataInfo is a buffered inbound payload awaiting release to the
// sink (immediate for non-OWR-AoA sessions, on isPointedTarget for OWR-AoA;
// spec §3, §4.5, §4.6).
type ReceivedDataInfo struct {
	PeerAddress uint64
	Sequence    uint16
	Payload     []byte
}

// SendDataInfo tracks an outstanding sendData call until a terminal
// transfer status is reported or the repetition count is satisfied
// (spec §3 "Data-send accounting").
type SendDataInfo struct {
	PeerAddress uint64
	Params      Params
	Payload     []byte
	TxCount     uint8
}

// Package daemon wires internal/uwb's core to the process boundary: the
// default logging notification sink and the App that the cobra-driven
// serve command (in cmd/uwbsessiond/commands) runs live here.
package daemon

import (
	"log/slog"

	"github.com/dantte-lp/uwbsessiond/internal/uwb"
)

// loggingSink implements uwb.NotificationSink by recording every callback
// through slog (SPEC_FULL §6, "loggingSink wraps NotificationSink with slog
// for operational visibility"). It is the daemon's default sink: with no
// top-level binder/RPC facade in this module's scope (spec §1), logging is
// the only observable record of session activity the daemon itself
// produces.
type loggingSink struct {
	logger *slog.Logger
}

// NewLoggingSink returns a uwb.NotificationSink that logs every callback at
// a level appropriate to the event (Info for lifecycle transitions, Warn
// for failures, Debug for high-frequency per-message events).
func NewLoggingSink(logger *slog.Logger) uwb.NotificationSink {
	return &loggingSink{logger: logger.With(slog.String("component", "sink"))}
}

func (s *loggingSink) RangingOpened(handle uwb.SessionHandle) {
	s.logger.Info("ranging opened", slog.String("handle", handle.String()))
}

func (s *loggingSink) RangingOpenFailed(handle uwb.SessionHandle, reason uwb.Reason) {
	s.logger.Warn("ranging open failed",
		slog.String("handle", handle.String()),
		slog.String("reason", reason.String()),
	)
}

func (s *loggingSink) RangingStarted(handle uwb.SessionHandle, _ uwb.Params) {
	s.logger.Info("ranging started", slog.String("handle", handle.String()))
}

func (s *loggingSink) RangingStartFailed(handle uwb.SessionHandle, reason uwb.Reason) {
	s.logger.Warn("ranging start failed",
		slog.String("handle", handle.String()),
		slog.String("reason", reason.String()),
	)
}

func (s *loggingSink) RangingStopped(handle uwb.SessionHandle, reason uwb.Reason, _ uwb.Params) {
	s.logger.Info("ranging stopped",
		slog.String("handle", handle.String()),
		slog.String("reason", reason.String()),
	)
}

func (s *loggingSink) RangingStopFailed(handle uwb.SessionHandle, reason uwb.Reason) {
	s.logger.Warn("ranging stop failed",
		slog.String("handle", handle.String()),
		slog.String("reason", reason.String()),
	)
}

func (s *loggingSink) RangingReconfigured(handle uwb.SessionHandle) {
	s.logger.Info("ranging reconfigured", slog.String("handle", handle.String()))
}

func (s *loggingSink) RangingReconfigureFailed(handle uwb.SessionHandle, reason uwb.Reason) {
	s.logger.Warn("ranging reconfigure failed",
		slog.String("handle", handle.String()),
		slog.String("reason", reason.String()),
	)
}

func (s *loggingSink) RangingClosed(handle uwb.SessionHandle, reason uwb.Reason, _ uwb.Params) {
	s.logger.Info("ranging closed",
		slog.String("handle", handle.String()),
		slog.String("reason", reason.String()),
	)
}

func (s *loggingSink) ControleeAdded(handle uwb.SessionHandle, address uint64) {
	s.logger.Info("controlee added",
		slog.String("handle", handle.String()),
		slog.Uint64("address", address),
	)
}

func (s *loggingSink) ControleeAddFailed(handle uwb.SessionHandle, address uint64, reason uwb.Reason) {
	s.logger.Warn("controlee add failed",
		slog.String("handle", handle.String()),
		slog.Uint64("address", address),
		slog.String("reason", reason.String()),
	)
}

func (s *loggingSink) ControleeRemoved(handle uwb.SessionHandle, address uint64) {
	s.logger.Info("controlee removed",
		slog.String("handle", handle.String()),
		slog.Uint64("address", address),
	)
}

func (s *loggingSink) ControleeRemoveFailed(handle uwb.SessionHandle, address uint64, reason uwb.Reason) {
	s.logger.Warn("controlee remove failed",
		slog.String("handle", handle.String()),
		slog.Uint64("address", address),
		slog.String("reason", reason.String()),
	)
}

func (s *loggingSink) RangingResult(handle uwb.SessionHandle, report uwb.RangingReport) {
	s.logger.Debug("ranging result",
		slog.String("handle", handle.String()),
		slog.Int("measurements", len(report.Measurements)),
	)
}

func (s *loggingSink) DataReceived(handle uwb.SessionHandle, peerAddress uint64, seq uint16, payload []byte) {
	s.logger.Debug("data received",
		slog.String("handle", handle.String()),
		slog.Uint64("peer_address", peerAddress),
		slog.Int("sequence", int(seq)),
		slog.Int("payload_len", len(payload)),
	)
}

func (s *loggingSink) DataReceiveFailed(handle uwb.SessionHandle, reason uwb.Reason) {
	s.logger.Warn("data receive failed",
		slog.String("handle", handle.String()),
		slog.String("reason", reason.String()),
	)
}

func (s *loggingSink) DataSent(handle uwb.SessionHandle, seq uint16) {
	s.logger.Debug("data sent",
		slog.String("handle", handle.String()),
		slog.Int("sequence", int(seq)),
	)
}

func (s *loggingSink) DataSendFailed(handle uwb.SessionHandle, seq uint16, reason uwb.Reason) {
	s.logger.Warn("data send failed",
		slog.String("handle", handle.String()),
		slog.Int("sequence", int(seq)),
		slog.String("reason", reason.String()),
	)
}

func (s *loggingSink) DataTransferPhaseConfigured(handle uwb.SessionHandle) {
	s.logger.Info("data transfer phase configured", slog.String("handle", handle.String()))
}

func (s *loggingSink) DataTransferPhaseConfigFailed(handle uwb.SessionHandle, reason uwb.Reason) {
	s.logger.Warn("data transfer phase config failed",
		slog.String("handle", handle.String()),
		slog.String("reason", reason.String()),
	)
}

func (s *loggingSink) RangingPaused(handle uwb.SessionHandle) {
	s.logger.Info("ranging paused", slog.String("handle", handle.String()))
}

func (s *loggingSink) RangingPauseFailed(handle uwb.SessionHandle, reason uwb.Reason) {
	s.logger.Warn("ranging pause failed",
		slog.String("handle", handle.String()),
		slog.String("reason", reason.String()),
	)
}

func (s *loggingSink) RangingResumed(handle uwb.SessionHandle) {
	s.logger.Info("ranging resumed", slog.String("handle", handle.String()))
}

func (s *loggingSink) RangingResumeFailed(handle uwb.SessionHandle, reason uwb.Reason) {
	s.logger.Warn("ranging resume failed",
		slog.String("handle", handle.String()),
		slog.String("reason", reason.String()),
	)
}

func (s *loggingSink) DtTagRoundsUpdateStatus(handle uwb.SessionHandle, status uwb.Status) {
	s.logger.Info("dt-tag rounds update status",
		slog.String("handle", handle.String()),
		slog.String("status", status.String()),
	)
}

func (s *loggingSink) RadarDataReceived(handle uwb.SessionHandle, frame uwb.RadarFrame) {
	s.logger.Debug("radar data received",
		slog.String("handle", handle.String()),
		slog.Uint64("peer_address", frame.PeerAddress),
		slog.Int("sweep_bytes", len(frame.SweepData)),
	)
}

var _ uwb.NotificationSink = (*loggingSink)(nil)

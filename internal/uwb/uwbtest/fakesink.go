package uwbtest

import (
	"sync"

	"github.com/dantte-lp/uwbsessiond/internal/uwb"
)

// SinkEvent is one recorded NotificationSink callback invocation, captured
// generically so tests can assert on the method name and payload without
// FakeSink growing one field per callback.
type SinkEvent struct {
	Method  string
	Handle  uwb.SessionHandle
	Reason  uwb.Reason
	Status  uwb.Status
	Address uint64
	Seq     uint16
	Payload []byte
	Params  uwb.Params
	Report  uwb.RangingReport
	Frame   uwb.RadarFrame
}

// FakeSink implements uwb.NotificationSink, recording every callback in
// order and publishing it on Events for tests that need to synchronize with
// a background worker's eventual notification, mirroring FakeTransport's
// call-recording style.
type FakeSink struct {
	mu     sync.Mutex
	events []SinkEvent

	// Events receives a copy of every recorded callback, non-blocking: if
	// the channel is full the event is dropped from the channel (but still
	// recorded in events) so a forgetful test can never wedge the EventLoop
	// goroutine that calls into the sink.
	Events chan SinkEvent
}

// NewFakeSink returns a FakeSink with a reasonably buffered Events channel.
func NewFakeSink() *FakeSink {
	return &FakeSink{Events: make(chan SinkEvent, 64)}
}

func (f *FakeSink) record(e SinkEvent) {
	f.mu.Lock()
	f.events = append(f.events, e)
	f.mu.Unlock()
	select {
	case f.Events <- e:
	default:
	}
}

// All returns every recorded event in order.
func (f *FakeSink) All() []SinkEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]SinkEvent, len(f.events))
	copy(out, f.events)
	return out
}

func (f *FakeSink) RangingOpened(handle uwb.SessionHandle) {
	f.record(SinkEvent{Method: "RangingOpened", Handle: handle})
}

func (f *FakeSink) RangingOpenFailed(handle uwb.SessionHandle, reason uwb.Reason) {
	f.record(SinkEvent{Method: "RangingOpenFailed", Handle: handle, Reason: reason})
}

func (f *FakeSink) RangingStarted(handle uwb.SessionHandle, params uwb.Params) {
	f.record(SinkEvent{Method: "RangingStarted", Handle: handle, Params: params})
}

func (f *FakeSink) RangingStartFailed(handle uwb.SessionHandle, reason uwb.Reason) {
	f.record(SinkEvent{Method: "RangingStartFailed", Handle: handle, Reason: reason})
}

func (f *FakeSink) RangingStopped(handle uwb.SessionHandle, reason uwb.Reason, params uwb.Params) {
	f.record(SinkEvent{Method: "RangingStopped", Handle: handle, Reason: reason, Params: params})
}

func (f *FakeSink) RangingStopFailed(handle uwb.SessionHandle, reason uwb.Reason) {
	f.record(SinkEvent{Method: "RangingStopFailed", Handle: handle, Reason: reason})
}

func (f *FakeSink) RangingReconfigured(handle uwb.SessionHandle) {
	f.record(SinkEvent{Method: "RangingReconfigured", Handle: handle})
}

func (f *FakeSink) RangingReconfigureFailed(handle uwb.SessionHandle, reason uwb.Reason) {
	f.record(SinkEvent{Method: "RangingReconfigureFailed", Handle: handle, Reason: reason})
}

func (f *FakeSink) RangingClosed(handle uwb.SessionHandle, reason uwb.Reason, params uwb.Params) {
	f.record(SinkEvent{Method: "RangingClosed", Handle: handle, Reason: reason, Params: params})
}

func (f *FakeSink) ControleeAdded(handle uwb.SessionHandle, address uint64) {
	f.record(SinkEvent{Method: "ControleeAdded", Handle: handle, Address: address})
}

func (f *FakeSink) ControleeAddFailed(handle uwb.SessionHandle, address uint64, reason uwb.Reason) {
	f.record(SinkEvent{Method: "ControleeAddFailed", Handle: handle, Address: address, Reason: reason})
}

func (f *FakeSink) ControleeRemoved(handle uwb.SessionHandle, address uint64) {
	f.record(SinkEvent{Method: "ControleeRemoved", Handle: handle, Address: address})
}

func (f *FakeSink) ControleeRemoveFailed(handle uwb.SessionHandle, address uint64, reason uwb.Reason) {
	f.record(SinkEvent{Method: "ControleeRemoveFailed", Handle: handle, Address: address, Reason: reason})
}

func (f *FakeSink) RangingResult(handle uwb.SessionHandle, report uwb.RangingReport) {
	f.record(SinkEvent{Method: "RangingResult", Handle: handle, Report: report})
}

func (f *FakeSink) DataReceived(handle uwb.SessionHandle, peerAddress uint64, seq uint16, payload []byte) {
	f.record(SinkEvent{Method: "DataReceived", Handle: handle, Address: peerAddress, Seq: seq, Payload: payload})
}

func (f *FakeSink) DataReceiveFailed(handle uwb.SessionHandle, reason uwb.Reason) {
	f.record(SinkEvent{Method: "DataReceiveFailed", Handle: handle, Reason: reason})
}

func (f *FakeSink) DataSent(handle uwb.SessionHandle, seq uint16) {
	f.record(SinkEvent{Method: "DataSent", Handle: handle, Seq: seq})
}

func (f *FakeSink) DataSendFailed(handle uwb.SessionHandle, seq uint16, reason uwb.Reason) {
	f.record(SinkEvent{Method: "DataSendFailed", Handle: handle, Seq: seq, Reason: reason})
}

func (f *FakeSink) DataTransferPhaseConfigured(handle uwb.SessionHandle) {
	f.record(SinkEvent{Method: "DataTransferPhaseConfigured", Handle: handle})
}

func (f *FakeSink) DataTransferPhaseConfigFailed(handle uwb.SessionHandle, reason uwb.Reason) {
	f.record(SinkEvent{Method: "DataTransferPhaseConfigFailed", Handle: handle, Reason: reason})
}

func (f *FakeSink) RangingPaused(handle uwb.SessionHandle) {
	f.record(SinkEvent{Method: "RangingPaused", Handle: handle})
}

func (f *FakeSink) RangingPauseFailed(handle uwb.SessionHandle, reason uwb.Reason) {
	f.record(SinkEvent{Method: "RangingPauseFailed", Handle: handle, Reason: reason})
}

func (f *FakeSink) RangingResumed(handle uwb.SessionHandle) {
	f.record(SinkEvent{Method: "RangingResumed", Handle: handle})
}

func (f *FakeSink) RangingResumeFailed(handle uwb.SessionHandle, reason uwb.Reason) {
	f.record(SinkEvent{Method: "RangingResumeFailed", Handle: handle, Reason: reason})
}

func (f *FakeSink) DtTagRoundsUpdateStatus(handle uwb.SessionHandle, status uwb.Status) {
	f.record(SinkEvent{Method: "DtTagRoundsUpdateStatus", Handle: handle, Status: status})
}

func (f *FakeSink) RadarDataReceived(handle uwb.SessionHandle, frame uwb.RadarFrame) {
	f.record(SinkEvent{Method: "RadarDataReceived", Handle: handle, Frame: frame})
}

var _ uwb.NotificationSink = (*FakeSink)(nil)

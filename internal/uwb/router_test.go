package uwb

import (
	"log/slog"
	"testing"

	"github.com/dantte-lp/uwbsessiond/internal/uwb/uwbtest"
)

func newRouterFixture() (*NotificationRouter, *SessionTable, *uwbtest.FakeSink) {
	table := NewSessionTable()
	sink := uwbtest.NewFakeSink()
	advertise := NewAdvertiseManager()
	timers := newTimerService(NewRealClock())
	policy := NewDefaultPolicyOracle(PolicyConfig{})
	router := NewNotificationRouter(table, sink, advertise, timers, policy, nil, nil, nil, slog.Default())
	return router, table, sink
}

func newActiveFiRaSessionForRouter(id SessionId) *Session {
	s := NewSession(SessionConfig{
		Handle:      NewSessionHandle(),
		Id:          id,
		SessionType: SessionTypeRanging,
		Protocol:    ProtocolFiRa,
		ChipId:      "chip0",
		Params:      NewFiRaParams(FiRaParams{}),
	})
	s.setState(StateActive, ReasonLocalApi)
	return s
}

// TestOnSessionStatusInbandSuspendEmitsPausedNotStopped verifies that an
// Active->Idle transition carrying ReasonCodeInbandSuspended produces
// RangingPaused rather than RangingStopped (spec §6 "InbandSuspended ->
// SessionSuspended"; NotificationSink event set, spec §6).
func TestOnSessionStatusInbandSuspendEmitsPausedNotStopped(t *testing.T) {
	t.Parallel()

	router, table, sink := newRouterFixture()
	s := newActiveFiRaSessionForRouter(1)
	table.insert(s)

	router.OnSessionStatus(s.Id, StateIdle, ReasonCodeInbandSuspended)

	events := sink.All()
	if len(events) != 1 || events[0].Method != "RangingPaused" {
		t.Fatalf("events = %+v, want exactly one RangingPaused", events)
	}
	if s.State() != StateIdle {
		t.Errorf("session state = %v, want StateIdle", s.State())
	}
}

// TestOnSessionStatusInbandResumeEmitsResumed verifies that an Idle->Active
// transition carrying ReasonCodeInbandResumed produces RangingResumed.
func TestOnSessionStatusInbandResumeEmitsResumed(t *testing.T) {
	t.Parallel()

	router, table, sink := newRouterFixture()
	s := newActiveFiRaSessionForRouter(2)
	s.setState(StateIdle, ReasonSessionSuspended)
	table.insert(s)

	router.OnSessionStatus(s.Id, StateActive, ReasonCodeInbandResumed)

	events := sink.All()
	if len(events) != 1 || events[0].Method != "RangingResumed" {
		t.Fatalf("events = %+v, want exactly one RangingResumed", events)
	}
}

// TestOnSessionStatusInbandSuspendFailurePath verifies that an inband
// suspend which lands the session in StateError is reported through
// RangingPauseFailed rather than being silently dropped.
func TestOnSessionStatusInbandSuspendFailurePath(t *testing.T) {
	t.Parallel()

	router, table, sink := newRouterFixture()
	s := newActiveFiRaSessionForRouter(3)
	table.insert(s)

	router.OnSessionStatus(s.Id, StateError, ReasonCodeInbandSuspended)

	events := sink.All()
	if len(events) != 1 || events[0].Method != "RangingPauseFailed" {
		t.Fatalf("events = %+v, want exactly one RangingPauseFailed", events)
	}
	if events[0].Reason != ReasonSessionSuspended {
		t.Errorf("reason = %v, want ReasonSessionSuspended", events[0].Reason)
	}
}

// TestOnSessionStatusInbandResumeFailurePath mirrors the suspend failure
// case for resume.
func TestOnSessionStatusInbandResumeFailurePath(t *testing.T) {
	t.Parallel()

	router, table, sink := newRouterFixture()
	s := newActiveFiRaSessionForRouter(4)
	s.setState(StateIdle, ReasonSessionSuspended)
	table.insert(s)

	router.OnSessionStatus(s.Id, StateError, ReasonCodeInbandResumed)

	events := sink.All()
	if len(events) != 1 || events[0].Method != "RangingResumeFailed" {
		t.Fatalf("events = %+v, want exactly one RangingResumeFailed", events)
	}
}

// TestOnSessionStatusRemoteStopStillEmitsStopped proves the pre-existing
// remote-stop path (reason codes other than the inband suspend/resume pair
// and the local session-management code) is unaffected: an Active->Idle
// transition carrying MaxRangingRoundRetryReached still produces
// RangingStopped.
func TestOnSessionStatusRemoteStopStillEmitsStopped(t *testing.T) {
	t.Parallel()

	router, table, sink := newRouterFixture()
	s := newActiveFiRaSessionForRouter(5)
	table.insert(s)

	router.OnSessionStatus(s.Id, StateIdle, ReasonCodeMaxRangingRoundRetryReached)

	events := sink.All()
	if len(events) != 1 || events[0].Method != "RangingStopped" {
		t.Fatalf("events = %+v, want exactly one RangingStopped", events)
	}
}

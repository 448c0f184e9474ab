package uwb

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dantte-lp/uwbsessiond/internal/uwb/uwbtest"
)

func newEventLoopFixture(t *testing.T, deadlines Deadlines) (*EventLoop, *uwbtest.FakeTransport, *uwbtest.FakeSink, *NotificationRouter) {
	t.Helper()

	table := NewSessionTable()
	transport := uwbtest.NewFakeTransport()
	sink := uwbtest.NewFakeSink()
	policy := NewDefaultPolicyOracle(PolicyConfig{})
	advertise := NewAdvertiseManager()

	el := NewEventLoop(EventLoopConfig{
		Table:     table,
		Transport: transport,
		Sink:      sink,
		Policy:    policy,
		Advertise: advertise,
		Deadlines: deadlines,
		Logger:    slog.Default(),
	})
	t.Cleanup(func() { _ = el.Close() })

	router := NewNotificationRouter(table, sink, advertise, el.timers, policy, nil, el, el, slog.Default())
	return el, transport, sink, router
}

func waitForEvent(t *testing.T, events chan uwbtest.SinkEvent, method string) uwbtest.SinkEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-events:
			if e.Method == method {
				return e
			}
		case <-deadline:
			t.Fatalf("timed out waiting for sink event %q", method)
		}
	}
}

func waitForCall(t *testing.T, ch chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for transport call")
	}
}

// TestEventLoopFullOpenStartStopDeinitLifecycle drives a session through
// every row of the lifecycle FSM via the public EventLoop API, feeding
// synthetic UCI notifications back through a real NotificationRouter, and
// asserts the sink sees the happy-path callback for each transition (spec
// §4.3, §4.4).
func TestEventLoopFullOpenStartStopDeinitLifecycle(t *testing.T) {
	t.Parallel()

	el, transport, sink, router := newEventLoopFixture(t, DefaultDeadlines())

	handle := NewSessionHandle()
	const id = SessionId(1)

	initCalled := make(chan struct{}, 1)
	transport.InitSessionFunc = func(_ context.Context, _ SessionId, _ SessionType, _ ChipId) (Status, error) {
		initCalled <- struct{}{}
		return StatusOk, nil
	}
	appConfigCalled := make(chan struct{}, 1)
	transport.SetAppConfigurationsFunc = func(_ context.Context, _ SessionId, _ Params, _ ChipId, _ uint16) (Status, error) {
		appConfigCalled <- struct{}{}
		return StatusOk, nil
	}

	openErr := el.OpenRanging(OpenRequest{
		Handle:      handle,
		Id:          id,
		SessionType: SessionTypeRanging,
		Protocol:    ProtocolFiRa,
		ChipId:      "chip0",
		Params: NewFiRaParams(FiRaParams{CommonParams: CommonParams{
			DefaultSessionPriority: true,
			RangingIntervalMs:      200,
		}}),
	})
	if openErr != nil {
		t.Fatalf("OpenRanging() err = %v", openErr)
	}

	waitForCall(t, initCalled)
	router.OnSessionStatus(id, StateInit, ReasonCodeStateChangeWithSessionMgmtCmd)

	waitForCall(t, appConfigCalled)
	router.OnSessionStatus(id, StateIdle, ReasonCodeStateChangeWithSessionMgmtCmd)

	waitForEvent(t, sink.Events, "RangingOpened")

	// --- start ---
	startCalled := make(chan struct{}, 1)
	transport.StartRangingFunc = func(_ context.Context, _ SessionId, _ ChipId) (Status, error) {
		startCalled <- struct{}{}
		return StatusOk, nil
	}
	if err := el.StartRanging(StartRequest{Handle: handle}); err != nil {
		t.Fatalf("StartRanging() err = %v", err)
	}
	waitForCall(t, startCalled)
	router.OnSessionStatus(id, StateActive, ReasonCodeStateChangeWithSessionMgmtCmd)
	waitForEvent(t, sink.Events, "RangingStarted")

	// --- stop ---
	stopCalled := make(chan struct{}, 1)
	transport.StopRangingFunc = func(_ context.Context, _ SessionId, _ ChipId) (Status, error) {
		stopCalled <- struct{}{}
		return StatusOk, nil
	}
	if err := el.StopRanging(StopRequest{Handle: handle}); err != nil {
		t.Fatalf("StopRanging() err = %v", err)
	}
	waitForCall(t, stopCalled)
	router.OnSessionStatus(id, StateIdle, ReasonCodeStateChangeWithSessionMgmtCmd)
	waitForEvent(t, sink.Events, "RangingStopped")

	// --- deinit ---
	deinitCalled := make(chan struct{}, 1)
	transport.DeinitSessionFunc = func(_ context.Context, _ SessionId, _ ChipId) (Status, error) {
		deinitCalled <- struct{}{}
		return StatusOk, nil
	}
	if err := el.Deinit(DeinitRequest{Handle: handle}); err != nil {
		t.Fatalf("Deinit() err = %v", err)
	}
	waitForCall(t, deinitCalled)
	router.OnSessionStatus(id, StateDeinit, ReasonCodeStateChangeWithSessionMgmtCmd)
	waitForEvent(t, sink.Events, "RangingClosed")
}

// TestEventLoopOpenRejectedByAdmission verifies that an admission rejection
// never reaches the transport: the sink is notified synchronously and no
// worker is spawned.
func TestEventLoopOpenRejectedByAdmission(t *testing.T) {
	t.Parallel()

	table := NewSessionTable()
	transport := uwbtest.NewFakeTransport()
	sink := uwbtest.NewFakeSink()
	policy := NewDefaultPolicyOracle(PolicyConfig{
		BackgroundRangingEnabled: false,
		IsForeground:             func(AttributionLink) bool { return false },
	})
	el := NewEventLoop(EventLoopConfig{
		Table:     table,
		Transport: transport,
		Sink:      sink,
		Policy:    policy,
		Advertise: NewAdvertiseManager(),
		Deadlines: DefaultDeadlines(),
	})
	t.Cleanup(func() { _ = el.Close() })

	err := el.OpenRanging(OpenRequest{
		Handle:      NewSessionHandle(),
		Id:          SessionId(1),
		SessionType: SessionTypeRanging,
		Protocol:    ProtocolFiRa,
		ChipId:      "chip0",
		Attribution: AttributionSource{{Uid: 1, Package: "app"}},
		Params:      NewFiRaParams(FiRaParams{CommonParams: CommonParams{DefaultSessionPriority: true}}),
	})
	if err != nil {
		t.Fatalf("OpenRanging() err = %v, want nil (rejection reported via sink)", err)
	}

	e := waitForEvent(t, sink.Events, "RangingOpenFailed")
	if e.Reason != ReasonSystemPolicy {
		t.Errorf("RangingOpenFailed reason = %s, want SystemPolicy", e.Reason)
	}
	if len(transport.Calls()) != 0 {
		t.Errorf("transport.Calls() = %v, want none (rejected before any UCI call)", transport.Calls())
	}
}

// TestEventLoopOpenTimesOutWaitingForNotification verifies that a
// successful InitSession call whose session-status notification never
// arrives produces RangingOpenFailed once the Open deadline elapses (spec
// §5 "Per-operation deadlines").
func TestEventLoopOpenTimesOutWaitingForNotification(t *testing.T) {
	t.Parallel()

	el, _, sink, _ := newEventLoopFixture(t, Deadlines{Open: 30 * time.Millisecond})

	err := el.OpenRanging(OpenRequest{
		Handle:      NewSessionHandle(),
		Id:          SessionId(1),
		SessionType: SessionTypeRanging,
		Protocol:    ProtocolFiRa,
		ChipId:      "chip0",
		Params:      NewFiRaParams(FiRaParams{CommonParams: CommonParams{DefaultSessionPriority: true}}),
	})
	if err != nil {
		t.Fatalf("OpenRanging() err = %v", err)
	}

	e := waitForEvent(t, sink.Events, "RangingOpenFailed")
	if e.Reason != ReasonUnknown {
		t.Errorf("RangingOpenFailed reason = %s, want Unknown (timeout)", e.Reason)
	}
}

// TestEventLoopCloseDrainsInFlightWorkers verifies that Close waits for an
// already-spawned command worker to finish rather than abandoning it (spec
// §5 "Cancellation": an in-flight command may still complete against UCI).
func TestEventLoopCloseDrainsInFlightWorkers(t *testing.T) {
	t.Parallel()

	table := NewSessionTable()
	transport := uwbtest.NewFakeTransport()
	sink := uwbtest.NewFakeSink()
	policy := NewDefaultPolicyOracle(PolicyConfig{})

	started := make(chan struct{})
	release := make(chan struct{})
	transport.InitSessionFunc = func(_ context.Context, _ SessionId, _ SessionType, _ ChipId) (Status, error) {
		close(started)
		<-release
		return StatusOk, nil
	}

	el := NewEventLoop(EventLoopConfig{
		Table:     table,
		Transport: transport,
		Sink:      sink,
		Policy:    policy,
		Advertise: NewAdvertiseManager(),
		Deadlines: Deadlines{Open: time.Second},
	})

	if err := el.OpenRanging(OpenRequest{
		Handle:      NewSessionHandle(),
		Id:          SessionId(1),
		SessionType: SessionTypeRanging,
		Protocol:    ProtocolFiRa,
		ChipId:      "chip0",
		Params:      NewFiRaParams(FiRaParams{CommonParams: CommonParams{DefaultSessionPriority: true}}),
	}); err != nil {
		t.Fatalf("OpenRanging() err = %v", err)
	}
	<-started

	closeDone := make(chan error, 1)
	go func() { closeDone <- el.Close() }()

	select {
	case <-closeDone:
		t.Fatal("Close returned before the in-flight worker was released")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)

	select {
	case err := <-closeDone:
		if err != nil {
			t.Errorf("Close() err = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return after worker was released")
	}
}

// TestIssueStopIdempotentOnlyWhenReasonMatches verifies the spec §4.3 edge
// case "stop requested while already Idle with the expected reason code":
// idempotent success only when the cached reason matches what this very
// stop request would itself have produced, not for an arbitrary Idle
// session (e.g. one left Idle by a remote suspend).
func TestIssueStopIdempotentOnlyWhenReasonMatches(t *testing.T) {
	t.Parallel()

	el, _, sink, _ := newEventLoopFixture(t, DefaultDeadlines())

	handle := NewSessionHandle()
	session := NewSession(SessionConfig{
		Handle:      handle,
		Id:          SessionId(1),
		SessionType: SessionTypeRanging,
		Protocol:    ProtocolFiRa,
		ChipId:      "chip0",
		Params:      NewFiRaParams(FiRaParams{}),
	})
	session.setState(StateIdle, ReasonLocalApi)
	el.table.insert(session)

	el.issueStop(session, false)
	e := waitForEvent(t, sink.Events, "RangingStopped")
	if e.Reason != ReasonLocalApi {
		t.Errorf("reason = %v, want ReasonLocalApi", e.Reason)
	}
}

// TestIssueStopFailsWhenIdleForDifferentReason verifies a stop request
// against a session that is Idle for a reason other than the one this stop
// would itself produce (e.g. left Idle by a remote-initiated suspend) is
// reported as a failure rather than a false idempotent success.
func TestIssueStopFailsWhenIdleForDifferentReason(t *testing.T) {
	t.Parallel()

	el, _, sink, _ := newEventLoopFixture(t, DefaultDeadlines())

	handle := NewSessionHandle()
	session := NewSession(SessionConfig{
		Handle:      handle,
		Id:          SessionId(1),
		SessionType: SessionTypeRanging,
		Protocol:    ProtocolFiRa,
		ChipId:      "chip0",
		Params:      NewFiRaParams(FiRaParams{}),
	})
	session.setState(StateIdle, ReasonSessionSuspended)
	el.table.insert(session)

	el.issueStop(session, false)
	waitForEvent(t, sink.Events, "RangingStopFailed")
}

package uwb

import (
	"context"
	"testing"
	"time"

	"github.com/dantte-lp/uwbsessiond/internal/uwb/uwbtest"
)

// TestSessionManagerOpenLifecycleAppearsInSessions drives a session through
// SessionManager's public façade (EventLoop + Router), confirming Sessions()
// reflects the session and RecentlyClosed() reflects it once closed.
func TestSessionManagerOpenLifecycleAppearsInSessions(t *testing.T) {
	t.Parallel()

	transport := uwbtest.NewFakeTransport()
	sink := uwbtest.NewFakeSink()
	policy := NewDefaultPolicyOracle(PolicyConfig{})

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
	deinitCalled := make(chan struct{}, 1)
	transport.DeinitSessionFunc = func(_ context.Context, _ SessionId, _ ChipId) (Status, error) {
		deinitCalled <- struct{}{}
		return StatusOk, nil
	}

	mgr := NewSessionManager(transport, sink, policy)
	t.Cleanup(func() { _ = mgr.Close() })

	handle := NewSessionHandle()
	const id = SessionId(1)

	if err := mgr.EventLoop().OpenRanging(OpenRequest{
		Handle:      handle,
		Id:          id,
		SessionType: SessionTypeRanging,
		Protocol:    ProtocolFiRa,
		ChipId:      "chip0",
		Params:      NewFiRaParams(FiRaParams{CommonParams: CommonParams{DefaultSessionPriority: true}}),
	}); err != nil {
		t.Fatalf("OpenRanging() err = %v", err)
	}

	waitForCall(t, initCalled)
	mgr.Router().OnSessionStatus(id, StateInit, ReasonCodeStateChangeWithSessionMgmtCmd)
	waitForCall(t, appConfigCalled)
	mgr.Router().OnSessionStatus(id, StateIdle, ReasonCodeStateChangeWithSessionMgmtCmd)
	waitForEvent(t, sink.Events, "RangingOpened")

	snapshots := mgr.Sessions()
	if len(snapshots) != 1 {
		t.Fatalf("Sessions() len = %d, want 1", len(snapshots))
	}
	if snapshots[0].Handle != handle || snapshots[0].State != StateIdle {
		t.Errorf("snapshot = %+v, want handle=%v state=Idle", snapshots[0], handle)
	}

	if err := mgr.EventLoop().Deinit(DeinitRequest{Handle: handle}); err != nil {
		t.Fatalf("Deinit() err = %v", err)
	}
	waitForCall(t, deinitCalled)
	mgr.Router().OnSessionStatus(id, StateDeinit, ReasonCodeStateChangeWithSessionMgmtCmd)
	waitForEvent(t, sink.Events, "RangingClosed")

	if len(mgr.Sessions()) != 0 {
		t.Errorf("Sessions() after deinit len = %d, want 0", len(mgr.Sessions()))
	}
	closed := mgr.RecentlyClosed()
	if len(closed) != 1 || closed[0].Handle != handle {
		t.Errorf("RecentlyClosed() = %+v, want one record for %v", closed, handle)
	}
}

// TestSessionManagerAppStateWatcherWired verifies that AppStateWatcher()
// returns a watcher wired against the same table the EventLoop uses, so an
// importance change reaches a session opened through the manager.
func TestSessionManagerAppStateWatcherWired(t *testing.T) {
	t.Parallel()

	transport := uwbtest.NewFakeTransport()
	sink := uwbtest.NewFakeSink()
	policy := NewDefaultPolicyOracle(PolicyConfig{BackgroundRangingEnabled: true})

	mgr := NewSessionManager(transport, sink, policy)
	t.Cleanup(func() { _ = mgr.Close() })

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

	if err := mgr.EventLoop().OpenRanging(OpenRequest{
		Handle:      handle,
		Id:          id,
		SessionType: SessionTypeRanging,
		Protocol:    ProtocolFiRa,
		ChipId:      "chip0",
		Attribution: AttributionSource{{Uid: 42, Package: "app"}},
		Params:      NewFiRaParams(FiRaParams{CommonParams: CommonParams{DefaultSessionPriority: true}}),
	}); err != nil {
		t.Fatalf("OpenRanging() err = %v", err)
	}
	waitForCall(t, initCalled)
	mgr.Router().OnSessionStatus(id, StateInit, ReasonCodeStateChangeWithSessionMgmtCmd)
	waitForCall(t, appConfigCalled)
	mgr.Router().OnSessionStatus(id, StateIdle, ReasonCodeStateChangeWithSessionMgmtCmd)
	waitForEvent(t, sink.Events, "RangingOpened")

	mgr.AppStateWatcher().OnImportanceChanged(42, false)

	time.Sleep(50 * time.Millisecond)
	snapshots := mgr.Sessions()
	if len(snapshots) != 1 {
		t.Fatalf("Sessions() len = %d, want 1", len(snapshots))
	}
	if snapshots[0].Priority != PriorityBg {
		t.Errorf("priority after background transition = %d, want %d", snapshots[0].Priority, PriorityBg)
	}
}

// TestSessionManagerOptionsApply verifies that WithDeadlines is honored,
// through an externally observable effect: a very short Open deadline must
// cause RangingOpenFailed without any notification ever arriving.
func TestSessionManagerOptionsApply(t *testing.T) {
	t.Parallel()

	transport := uwbtest.NewFakeTransport()
	sink := uwbtest.NewFakeSink()
	policy := NewDefaultPolicyOracle(PolicyConfig{})

	mgr := NewSessionManager(transport, sink, policy,
		WithDeadlines(Deadlines{Open: 20 * time.Millisecond}),
	)
	t.Cleanup(func() { _ = mgr.Close() })

	if err := mgr.EventLoop().OpenRanging(OpenRequest{
		Handle:      NewSessionHandle(),
		Id:          SessionId(1),
		SessionType: SessionTypeRanging,
		Protocol:    ProtocolFiRa,
		ChipId:      "chip0",
		Params:      NewFiRaParams(FiRaParams{CommonParams: CommonParams{DefaultSessionPriority: true}}),
	}); err != nil {
		t.Fatalf("OpenRanging() err = %v", err)
	}

	e := waitForEvent(t, sink.Events, "RangingOpenFailed")
	if e.Reason != ReasonUnknown {
		t.Errorf("RangingOpenFailed reason = %s, want Unknown (timeout)", e.Reason)
	}
}

// TestSessionManagerOnClientDeathDeinitsSession verifies that OnClientDeath
// drives the same deinit path a local Deinit call would (spec §4.2 step 4).
func TestSessionManagerOnClientDeathDeinitsSession(t *testing.T) {
	t.Parallel()

	transport := uwbtest.NewFakeTransport()
	sink := uwbtest.NewFakeSink()
	policy := NewDefaultPolicyOracle(PolicyConfig{})

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
	deinitCalled := make(chan struct{}, 1)
	transport.DeinitSessionFunc = func(_ context.Context, _ SessionId, _ ChipId) (Status, error) {
		deinitCalled <- struct{}{}
		return StatusOk, nil
	}

	mgr := NewSessionManager(transport, sink, policy)
	t.Cleanup(func() { _ = mgr.Close() })

	handle := NewSessionHandle()
	const id = SessionId(1)
	if err := mgr.EventLoop().OpenRanging(OpenRequest{
		Handle:      handle,
		Id:          id,
		SessionType: SessionTypeRanging,
		Protocol:    ProtocolFiRa,
		ChipId:      "chip0",
		Params:      NewFiRaParams(FiRaParams{CommonParams: CommonParams{DefaultSessionPriority: true}}),
	}); err != nil {
		t.Fatalf("OpenRanging() err = %v", err)
	}
	waitForCall(t, initCalled)
	mgr.Router().OnSessionStatus(id, StateInit, ReasonCodeStateChangeWithSessionMgmtCmd)
	waitForCall(t, appConfigCalled)
	mgr.Router().OnSessionStatus(id, StateIdle, ReasonCodeStateChangeWithSessionMgmtCmd)
	waitForEvent(t, sink.Events, "RangingOpened")

	mgr.OnClientDeath(handle)
	waitForCall(t, deinitCalled)
	mgr.Router().OnSessionStatus(id, StateDeinit, ReasonCodeStateChangeWithSessionMgmtCmd)
	waitForEvent(t, sink.Events, "RangingClosed")

	if len(mgr.Sessions()) != 0 {
		t.Errorf("Sessions() after client death len = %d, want 0", len(mgr.Sessions()))
	}
}

// TestSessionManagerOnClientDeathUnknownHandleIsNoop verifies that a handle
// with no live session is silently ignored.
func TestSessionManagerOnClientDeathUnknownHandleIsNoop(t *testing.T) {
	t.Parallel()

	mgr := NewSessionManager(uwbtest.NewFakeTransport(), uwbtest.NewFakeSink(), NewDefaultPolicyOracle(PolicyConfig{}))
	t.Cleanup(func() { _ = mgr.Close() })

	mgr.OnClientDeath(NewSessionHandle())
}

// TestSessionManagerCloseIsIdempotent verifies Close can be called more than
// once without panicking or blocking.
func TestSessionManagerCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	mgr := NewSessionManager(uwbtest.NewFakeTransport(), uwbtest.NewFakeSink(), NewDefaultPolicyOracle(PolicyConfig{}))
	if err := mgr.Close(); err != nil {
		t.Fatalf("first Close() err = %v", err)
	}
	if err := mgr.Close(); err != nil {
		t.Fatalf("second Close() err = %v", err)
	}
}

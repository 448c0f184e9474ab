package uwb

import (
	"sync/atomic"
	"testing"
	"time"
)

// TestTimerServiceArmFiresAfterDuration verifies a freshly armed timer fires
// its callback once the duration elapses.
func TestTimerServiceArmFiresAfterDuration(t *testing.T) {
	t.Parallel()

	ts := newTimerService(NewRealClock())
	handle := NewSessionHandle()

	var fired atomic.Bool
	ts.arm(handle, timerKindBackgroundApp, 20*time.Millisecond, func() { fired.Store(true) })

	time.Sleep(150 * time.Millisecond)
	if !fired.Load() {
		t.Error("timer never fired")
	}
}

// TestTimerServiceCancelPreventsFire verifies cancel before the deadline
// prevents the callback from ever running.
func TestTimerServiceCancelPreventsFire(t *testing.T) {
	t.Parallel()

	ts := newTimerService(NewRealClock())
	handle := NewSessionHandle()

	var fired atomic.Bool
	ts.arm(handle, timerKindRangingErrorStreak, 30*time.Millisecond, func() { fired.Store(true) })
	ts.cancel(handle, timerKindRangingErrorStreak)

	time.Sleep(100 * time.Millisecond)
	if fired.Load() {
		t.Error("timer fired after cancel")
	}
}

// TestTimerServiceRearmReplacesPriorInstance verifies that arming the same
// (handle, kind) pair a second time cancels the first instance, so only the
// second callback ever runs (spec §4.9 "rearmed on their next triggering
// event").
func TestTimerServiceRearmReplacesPriorInstance(t *testing.T) {
	t.Parallel()

	ts := newTimerService(NewRealClock())
	handle := NewSessionHandle()

	var firstFired, secondFired atomic.Bool
	ts.arm(handle, timerKindBackgroundApp, 20*time.Millisecond, func() { firstFired.Store(true) })
	ts.arm(handle, timerKindBackgroundApp, 100*time.Millisecond, func() { secondFired.Store(true) })

	time.Sleep(60 * time.Millisecond)
	if firstFired.Load() {
		t.Error("first timer fired despite being replaced by rearm")
	}

	time.Sleep(100 * time.Millisecond)
	if !secondFired.Load() {
		t.Error("second (rearmed) timer never fired")
	}
}

// TestTimerServiceCancelAllStopsBothKinds verifies cancelAll stops every
// timer kind armed for a handle (spec §4.9 "Both are canceled on session
// close").
func TestTimerServiceCancelAllStopsBothKinds(t *testing.T) {
	t.Parallel()

	ts := newTimerService(NewRealClock())
	handle := NewSessionHandle()

	var streakFired, bgFired atomic.Bool
	ts.arm(handle, timerKindRangingErrorStreak, 30*time.Millisecond, func() { streakFired.Store(true) })
	ts.arm(handle, timerKindBackgroundApp, 30*time.Millisecond, func() { bgFired.Store(true) })

	ts.cancelAll(handle)

	time.Sleep(100 * time.Millisecond)
	if streakFired.Load() || bgFired.Load() {
		t.Errorf("streakFired=%v bgFired=%v, want both false after cancelAll", streakFired.Load(), bgFired.Load())
	}
}

// TestTimerServiceIndependentHandles verifies that timers armed for
// different session handles do not interfere with one another.
func TestTimerServiceIndependentHandles(t *testing.T) {
	t.Parallel()

	ts := newTimerService(NewRealClock())
	a, b := NewSessionHandle(), NewSessionHandle()

	var aFired, bFired atomic.Bool
	ts.arm(a, timerKindBackgroundApp, 20*time.Millisecond, func() { aFired.Store(true) })
	ts.arm(b, timerKindBackgroundApp, 20*time.Millisecond, func() { bFired.Store(true) })

	ts.cancel(a, timerKindBackgroundApp)

	time.Sleep(100 * time.Millisecond)
	if aFired.Load() {
		t.Error("handle a's timer fired despite being canceled")
	}
	if !bFired.Load() {
		t.Error("handle b's timer never fired")
	}
}

// TestTimerServiceCancelUnarmedIsNoop verifies cancel/cancelAll on a handle
// with no armed timers never panics.
func TestTimerServiceCancelUnarmedIsNoop(t *testing.T) {
	t.Parallel()

	ts := newTimerService(NewRealClock())
	handle := NewSessionHandle()

	ts.cancel(handle, timerKindBackgroundApp)
	ts.cancelAll(handle)
}

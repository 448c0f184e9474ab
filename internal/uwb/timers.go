package uwb

import (
	"sync"
	"time"
)

// msToDuration converts a millisecond count from PolicyOracle into a
// time.Duration.
func msToDuration(ms uint32) time.Duration { return time.Duration(ms) * time.Millisecond }

// Clock is the time source and single-shot scheduler behind the alarm
// service below (spec §4.9, §2 item 10). The UWBS timestamp used for the
// Open-session handler's initiation-time computation comes from
// UciTransport.QueryUwbsTimestampMicros, not from Clock.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Alarm
}

// Alarm is a cancelable, single-shot scheduled callback.
type Alarm interface {
	// Stop cancels the alarm; returns false if it already fired.
	Stop() bool
}

// realClock is the production Clock, backed by time.AfterFunc exactly like
// the teacher's session timers (time.Timer-based reset/drain pattern in
// internal/bfd/session.go), generalized to a named interface so tests can
// substitute a fake.
type realClock struct{}

// NewRealClock returns the production Clock implementation.
func NewRealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Alarm {
	return &timerAlarm{t: time.AfterFunc(d, f)}
}

type timerAlarm struct{ t *time.Timer }

func (a *timerAlarm) Stop() bool { return a.t.Stop() }

// timerService arms and cancels the two per-session single-shot timers
// spec §4.9 defines: ranging-error streak and background-app. Both are
// rearmed on their next triggering event and canceled on session close.
// Mirrors the teacher's per-session timer bookkeeping, generalized to two
// named timer kinds instead of BFD's tx/detect pair.
type timerService struct {
	clock Clock

	mu     sync.Mutex
	alarms map[SessionHandle]map[timerKind]Alarm
}

type timerKind uint8

const (
	timerKindRangingErrorStreak timerKind = iota
	timerKindBackgroundApp
)

func newTimerService(clock Clock) *timerService {
	return &timerService{clock: clock, alarms: make(map[SessionHandle]map[timerKind]Alarm)}
}

// arm (re)arms the named timer for handle, canceling any prior instance of
// the same kind first (single-shot, rearm-on-trigger semantics).
func (ts *timerService) arm(handle SessionHandle, kind timerKind, d time.Duration, fire func()) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	perSession, ok := ts.alarms[handle]
	if !ok {
		perSession = make(map[timerKind]Alarm)
		ts.alarms[handle] = perSession
	}
	if existing, ok := perSession[kind]; ok {
		existing.Stop()
	}
	perSession[kind] = ts.clock.AfterFunc(d, fire)
}

// cancel stops the named timer for handle, if armed.
func (ts *timerService) cancel(handle SessionHandle, kind timerKind) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	perSession, ok := ts.alarms[handle]
	if !ok {
		return
	}
	if existing, ok := perSession[kind]; ok {
		existing.Stop()
		delete(perSession, kind)
	}
}

// cancelAll stops every timer for handle; called on session close (spec
// §4.9 "Both are canceled on session close").
func (ts *timerService) cancelAll(handle SessionHandle) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	perSession, ok := ts.alarms[handle]
	if !ok {
		return
	}
	for _, a := range perSession {
		a.Stop()
	}
	delete(ts.alarms, handle)
}

package uwb

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Deadlines holds the per-operation timeout budgets spec §5 enumerates.
// Start is additionally raised for FiRa sessions to at least
// 4*currentRangingIntervalMs (spec §5, §4.4 "Start-ranging handler
// specifics").
type Deadlines struct {
	Open                    time.Duration
	Start                   time.Duration
	Stop                    time.Duration
	Reconfigure             time.Duration
	Close                   time.Duration
	DtTagRoundsUpdate       time.Duration
	DataTransferPhaseConfig time.Duration
}

// DefaultDeadlines returns a reasonable set of per-operation deadlines for
// a running deployment; callers may override via internal/config.
func DefaultDeadlines() Deadlines {
	return Deadlines{
		Open:                    3 * time.Second,
		Start:                   3 * time.Second,
		Stop:                    3 * time.Second,
		Reconfigure:             3 * time.Second,
		Close:                   3 * time.Second,
		DtTagRoundsUpdate:       1 * time.Second,
		DataTransferPhaseConfig: 1 * time.Second,
	}
}

// EventLoop is the single serialized executor that owns all session
// mutations (spec §2 item 6, §4.4, §5). Public entry points marshal onto
// the loop's command channel from any goroutine; the loop goroutine
// performs the cheap validation/bookkeeping step synchronously and then
// hands the actual UCI call and notification wait to a one-shot worker so
// the loop itself never blocks (spec §9 "no sleeping on the EventLoop
// thread itself").
type EventLoop struct {
	table     *SessionTable
	transport UciTransport
	sink      NotificationSink
	admission *AdmissionController
	policy    PolicyOracle
	advertise *AdvertiseManager
	timers    *timerService
	clock     Clock
	metrics   MetricsReporter
	deadlines Deadlines
	logger    *slog.Logger

	commands chan func()

	group    *errgroup.Group
	groupCtx context.Context

	mu      sync.Mutex
	stopped bool
	done    chan struct{}
}

// EventLoopConfig bundles EventLoop's collaborators, mirroring the
// teacher's functional-options-over-a-config-struct constructor shape.
type EventLoopConfig struct {
	Table     *SessionTable
	Transport UciTransport
	Sink      NotificationSink
	Policy    PolicyOracle
	Advertise *AdvertiseManager
	Clock     Clock
	Metrics   MetricsReporter
	Deadlines Deadlines
	Logger    *slog.Logger
}

// NewEventLoop constructs and starts an EventLoop. Call Close to stop it.
func NewEventLoop(cfg EventLoopConfig) *EventLoop {
	if cfg.Clock == nil {
		cfg.Clock = NewRealClock()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewNoopMetrics()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	groupCtx, cancel := context.WithCancel(context.Background())
	group, groupCtx := errgroup.WithContext(groupCtx)
	el := &EventLoop{
		table:     cfg.Table,
		transport: cfg.Transport,
		sink:      cfg.Sink,
		admission: NewAdmissionController(cfg.Table, cfg.Policy),
		policy:    cfg.Policy,
		advertise: cfg.Advertise,
		timers:    newTimerService(cfg.Clock),
		clock:     cfg.Clock,
		metrics:   cfg.Metrics,
		deadlines: cfg.Deadlines,
		logger:    cfg.Logger.With(slog.String("component", "event_loop")),
		commands:  make(chan func(), 256),
		group:     group,
		groupCtx:  groupCtx,
		done:      make(chan struct{}),
	}
	_ = cancel // retained on el.groupCtx's cancellation path via group; no separate use needed.
	go el.run()
	return el
}

// run is the single loop goroutine; it never blocks on UCI I/O.
func (el *EventLoop) run() {
	defer close(el.done)
	for cmd := range el.commands {
		cmd()
	}
}

// enqueue marshals a command onto the loop goroutine and blocks the caller
// until the loop has at least accepted it (spec §4.4 "exposes execute(event)
// from any thread"). Returns ErrEventLoopStopped if the loop already closed.
func (el *EventLoop) enqueue(cmd func()) error {
	el.mu.Lock()
	stopped := el.stopped
	el.mu.Unlock()
	if stopped {
		return ErrEventLoopStopped
	}
	accepted := make(chan struct{})
	select {
	case el.commands <- func() { cmd(); close(accepted) }:
	case <-el.done:
		return ErrEventLoopStopped
	}
	<-accepted
	return nil
}

// spawnWorker runs fn on a bounded one-shot worker tracked by the loop's
// errgroup, so Close can drain outstanding command workers before
// returning.
func (el *EventLoop) spawnWorker(fn func(ctx context.Context)) {
	el.group.Go(func() error {
		fn(el.groupCtx)
		return nil
	})
}

// Close stops accepting new commands and waits for in-flight command
// workers to finish (spec §5 "Cancellation": an in-flight command may still
// complete against UCI).
func (el *EventLoop) Close() error {
	el.mu.Lock()
	if el.stopped {
		el.mu.Unlock()
		return nil
	}
	el.stopped = true
	el.mu.Unlock()
	close(el.commands)
	<-el.done
	return el.group.Wait()
}

// awaitCompletion blocks on ch with a per-operation deadline, translating a
// timeout into a zero-value completionResult and ok=false (spec §5
// "Per-operation deadlines").
func awaitCompletion(ctx context.Context, ch chan completionResult, deadline time.Duration) (completionResult, bool) {
	timer := time.NewTimer(deadline)
	defer timer.Stop()
	select {
	case res := <-ch:
		return res, true
	case <-timer.C:
		return completionResult{}, false
	case <-ctx.Done():
		return completionResult{}, false
	}
}

// EnqueueOnDeinit implements DeinitEnqueuer for NotificationRouter.
func (el *EventLoop) EnqueueOnDeinit(handle SessionHandle) {
	_ = el.enqueue(func() { el.handleOnDeinit(handle) })
}

// ApplyLiveRngDataNtfControl implements AppStateReconfigurer.
func (el *EventLoop) ApplyLiveRngDataNtfControl(handle SessionHandle, control RngDataNtfControl) {
	_ = el.enqueue(func() { el.handleLiveRngDataNtfControl(handle, control) })
}

// StopForSystemPolicy implements AppStateReconfigurer and StopRequester: it
// is the fire action for both the background-app timer and the
// ranging-error-streak timer (spec §4.9).
func (el *EventLoop) StopForSystemPolicy(handle SessionHandle) {
	_ = el.enqueue(func() {
		session, ok := el.table.getByHandle(handle)
		if !ok {
			return
		}
		el.issueStop(session, true)
	})
}

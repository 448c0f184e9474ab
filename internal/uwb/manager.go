package uwb

import "log/slog"

// SessionManager is the top-level façade a daemon wires up: it owns
// SessionTable, EventLoop, NotificationRouter, AdmissionController (via
// EventLoop), AppStateWatcher, AdvertiseManager, and the Clock/timer
// service as fields of a single instance (spec §9 "Global mutable state"),
// mirroring the teacher's Manager struct and NewManager(logger, opts...)
// constructor.
type SessionManager struct {
	table      *SessionTable
	loop       *EventLoop
	router     *NotificationRouter
	appState   *AppStateWatcher
	advertise  *AdvertiseManager
	policy     PolicyOracle
	permission PermissionChecker
	logger     *slog.Logger
}

// ManagerOption configures SessionManager at construction, mirroring the
// teacher's functional-options pattern (ManagerOption/WithManagerMetrics).
type ManagerOption func(*managerConfig)

type managerConfig struct {
	clock      Clock
	metrics    MetricsReporter
	deadlines  Deadlines
	permission PermissionChecker
	logger     *slog.Logger
}

// WithClock overrides the Clock used for the per-session timers; primarily
// for tests.
func WithClock(clock Clock) ManagerOption {
	return func(c *managerConfig) { c.clock = clock }
}

// WithMetrics wires a MetricsReporter; the core otherwise uses a no-op
// implementation, matching the teacher's MetricsReporter/noopMetrics split.
func WithMetrics(metrics MetricsReporter) ManagerOption {
	return func(c *managerConfig) { c.metrics = metrics }
}

// WithDeadlines overrides the per-operation command deadlines.
func WithDeadlines(d Deadlines) ManagerOption {
	return func(c *managerConfig) { c.deadlines = d }
}

// WithPermissionChecker wires the data-delivery permission re-check used on
// ingress notification paths (spec §4.5, §7 PermissionDenied).
func WithPermissionChecker(p PermissionChecker) ManagerOption {
	return func(c *managerConfig) { c.permission = p }
}

// WithLogger overrides the *slog.Logger used throughout the core.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(c *managerConfig) { c.logger = logger }
}

// allowAllPermission is the default PermissionChecker: every delivery is
// allowed. A real daemon wires the platform permission checker in its
// place (spec §1 scope boundary: permission enforcement wrappers are an
// external collaborator).
type allowAllPermission struct{}

func (allowAllPermission) CheckDataDeliveryPermission(SessionHandle) bool { return true }

// NewSessionManager constructs a SessionManager wired end to end: the
// UciTransport's SessionNotification callbacks should be bound to the
// returned manager's Router() methods by the caller (the daemon's
// transport-adapter layer), since UciTransport itself is out of core
// (spec §1).
func NewSessionManager(transport UciTransport, sink NotificationSink, policy PolicyOracle, opts ...ManagerOption) *SessionManager {
	cfg := managerConfig{
		clock:      NewRealClock(),
		metrics:    NewNoopMetrics(),
		deadlines:  DefaultDeadlines(),
		permission: allowAllPermission{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	table := NewSessionTable()
	advertise := NewAdvertiseManager()

	loop := NewEventLoop(EventLoopConfig{
		Table:     table,
		Transport: transport,
		Sink:      sink,
		Policy:    policy,
		Advertise: advertise,
		Clock:     cfg.clock,
		Metrics:   cfg.metrics,
		Deadlines: cfg.deadlines,
		Logger:    cfg.logger,
	})

	router := NewNotificationRouter(table, sink, advertise, loop.timers, policy, cfg.permission, loop, loop, cfg.logger)
	appState := NewAppStateWatcher(table, policy, loop.timers, loop)

	return &SessionManager{
		table:      table,
		loop:       loop,
		router:     router,
		appState:   appState,
		advertise:  advertise,
		policy:     policy,
		permission: cfg.permission,
		logger:     cfg.logger.With(slog.String("component", "session_manager")),
	}
}

// EventLoop exposes the command surface (Open/Start/Stop/Reconfigure/
// Deinit/SendData/...) to the outer service layer.
func (m *SessionManager) EventLoop() *EventLoop { return m.loop }

// Router exposes the SessionNotification implementation a UciTransport
// adapter should invoke as UCI delivers asynchronous notifications.
func (m *SessionManager) Router() SessionNotification { return m.router }

// AppStateWatcher exposes the importance-change entry point a platform
// app-state listener should drive (spec §4.7).
func (m *SessionManager) AppStateWatcher() *AppStateWatcher { return m.appState }

// Sessions returns a snapshot of every live session's handle, protocol, and
// state, for diagnostics.
func (m *SessionManager) Sessions() []SessionSnapshot {
	sessions := m.table.all()
	out := make([]SessionSnapshot, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, SessionSnapshot{
			Handle:   s.Handle,
			Id:       s.Id,
			Protocol: s.Protocol,
			ChipId:   s.ChipId,
			State:    s.State(),
			Priority: s.StackPriority(),
		})
	}
	return out
}

// RecentlyClosed returns the bounded diagnostic history of closed sessions
// (spec §3 "Lifecycles").
func (m *SessionManager) RecentlyClosed() []ClosedSessionRecord {
	return m.table.recentlyClosed()
}

// Close stops the EventLoop and waits for in-flight command workers.
func (m *SessionManager) Close() error { return m.loop.Close() }

// OnClientDeath is the entry point a binder-death (or socket-close, for a
// non-Android transport) listener calls when the process that opened handle
// disappears without an explicit Deinit: it cancels whatever the session is
// doing and deinits it the same way a local Deinit call would (spec §4.2
// step 4, §4.9 "client death cancels all that session's pending work by
// enqueueing a deinit event"). Unknown handles are ignored -- the owning
// process may have already closed cleanly.
func (m *SessionManager) OnClientDeath(handle SessionHandle) {
	_ = m.loop.Deinit(DeinitRequest{Handle: handle})
}

// SessionSnapshot is a read-only view of a Session for diagnostics,
// mirroring the teacher's SessionSnapshot/SessionCounters view types.
type SessionSnapshot struct {
	Handle   SessionHandle
	Id       SessionId
	Protocol Protocol
	ChipId   ChipId
	State    State
	Priority uint8
}

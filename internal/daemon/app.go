package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/dantte-lp/uwbsessiond/internal/config"
	uwbmetrics "github.com/dantte-lp/uwbsessiond/internal/metrics"
	"github.com/dantte-lp/uwbsessiond/internal/uwb"
)

// shutdownTimeout bounds how long the metrics server is given to drain
// in-flight scrapes during graceful shutdown.
const shutdownTimeout = 10 * time.Second

// ErrNoTransport is returned by NewApp when no uwb.UciTransport was
// supplied. Byte framing, SPI/HAL binding, and multi-chip static
// configuration loading are explicitly out of this module's scope (spec
// §1); a production deployment embeds this package and supplies its own
// UciTransport wired to the platform's radio stack.
var ErrNoTransport = errors.New("daemon: no uwb.UciTransport supplied; this module does not ship a HAL-backed transport")

// Options configures NewApp. Transport is the only field with no default:
// the caller (an integrator embedding uwbsessiond against a real radio, or
// a test harness wiring uwbtest.FakeTransport) must supply it.
type Options struct {
	Config       *config.Config
	Transport    uwb.UciTransport
	Logger       *slog.Logger
	Registry     *prometheus.Registry
	IsPrivileged func(uwb.AttributionLink) bool
	IsForeground func(uwb.AttributionLink) bool
}

// App is a running instance of the session manager wired up with its
// sink, policy oracle, and metrics collector -- the process-level
// counterpart to SessionManager, mirroring the teacher's Manager/run()
// split between domain logic and daemon plumbing.
type App struct {
	Manager  *uwb.SessionManager
	Metrics  *uwbmetrics.Collector
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
}

// NewApp wires a SessionManager from cfg using a logging NotificationSink
// and a Prometheus-backed MetricsReporter, mirroring cmd/gobfd/main.go's
// construction of bfd.NewManager(logger, bfd.WithManagerMetrics(collector)).
func NewApp(opts Options) (*App, error) {
	if opts.Transport == nil {
		return nil, ErrNoTransport
	}
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := opts.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	collector := uwbmetrics.NewCollector(registry)
	sink := NewLoggingSink(logger)
	policy := opts.Config.PolicyOracle(opts.IsPrivileged, opts.IsForeground)

	mgr := uwb.NewSessionManager(opts.Transport, sink, policy,
		uwb.WithMetrics(collector),
		uwb.WithDeadlines(opts.Config.Deadlines()),
		uwb.WithLogger(logger),
	)

	return &App{
		Manager:  mgr,
		Metrics:  collector,
		cfg:      opts.Config,
		logger:   logger,
		registry: registry,
	}, nil
}

// Serve runs the metrics HTTP server and systemd readiness/watchdog
// notifications until ctx is cancelled, then drains and closes the
// session manager. It returns nil on a clean shutdown.
//
// There is no RPC facade in this module's scope (spec §1): the caller is
// responsible for exposing App.Manager's EventLoop/Router to whatever
// control surface the embedding platform provides.
func (a *App) Serve(ctx context.Context) error {
	metricsSrv := newMetricsServer(a.cfg.Metrics, a.registry)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("metrics server listening",
			slog.String("addr", a.cfg.Metrics.Addr),
			slog.String("path", a.cfg.Metrics.Path),
		)
		return listenAndServe(gCtx, metricsSrv, a.cfg.Metrics.Addr)
	})

	g.Go(func() error {
		return runWatchdog(gCtx, a.logger)
	})

	notifyReady(a.logger)

	g.Go(func() error {
		<-gCtx.Done()
		return a.shutdown(metricsSrv)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *App) shutdown(metricsSrv *http.Server) error {
	a.logger.Info("initiating graceful shutdown")
	notifyStopping(a.logger)

	if err := a.Manager.Close(); err != nil {
		a.logger.Warn("session manager close returned an error", slog.String("error", err.Error()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(context.Background()), shutdownTimeout)
	defer cancel()
	return metricsSrv.Shutdown(shutdownCtx)
}

func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func listenAndServe(ctx context.Context, srv *http.Server, addr string) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func notifyReady(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("failed to notify systemd readiness", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: READY")
	}
}

func notifyStopping(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		logger.Warn("failed to notify systemd stopping", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: STOPPING")
	}
}

// runWatchdog sends periodic watchdog keepalives to systemd at half the
// configured watchdog interval. It returns immediately if no watchdog is
// configured.
func runWatchdog(ctx context.Context, logger *slog.Logger) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("failed to check systemd watchdog", slog.String("error", err.Error()))
		return nil
	}
	if interval == 0 {
		logger.Debug("systemd watchdog not configured, skipping keepalive")
		return nil
	}

	tickInterval := interval / 2
	logger.Info("systemd watchdog enabled",
		slog.Duration("watchdog_sec", interval),
		slog.Duration("keepalive_interval", tickInterval),
	)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
				logger.Warn("failed to send watchdog keepalive", slog.String("error", err.Error()))
			}
		}
	}
}

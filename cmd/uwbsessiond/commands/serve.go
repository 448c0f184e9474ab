package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dantte-lp/uwbsessiond/internal/config"
	uwbdaemon "github.com/dantte-lp/uwbsessiond/internal/daemon"
	"github.com/dantte-lp/uwbsessiond/internal/uwb"
	"github.com/dantte-lp/uwbsessiond/internal/uwb/uwbtest"
)

// transportKind selects the uwb.UciTransport serve wires up. "fake" is the
// only built-in option: byte framing, SPI/HAL binding, and multi-chip
// static configuration loading are out of this module's scope, so there
// is no production-grade transport to ship alongside the daemon.
var transportKind string

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the session-manager daemon",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().StringVar(&transportKind, "transport", "",
		`uwb.UciTransport to wire: "fake" for a local in-memory transport driving no radio, or empty to fail fast`)
	return cmd
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger := newLogger(cfg.Log)
	logger.Info("uwbsessiond starting",
		slog.String("metrics_addr", cfg.Metrics.Addr),
		slog.Int("chips", len(cfg.Chips)),
	)

	transport, err := buildTransport(logger)
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	app, err := uwbdaemon.NewApp(uwbdaemon.Options{
		Config:    cfg,
		Transport: transport,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return app.Serve(ctx)
}

// buildTransport resolves --transport into a uwb.UciTransport. The "fake"
// option imports uwbtest deliberately: this is the one place in the
// production binary a test double is acceptable, since it is opt-in,
// named on the command line, and logged loudly rather than silently
// standing in for a real radio.
func buildTransport(logger *slog.Logger) (uwb.UciTransport, error) {
	switch transportKind {
	case "fake":
		logger.Warn("wiring uwbtest.FakeTransport: no real radio is attached, ranging will not occur")
		return uwbtest.NewFakeTransport(), nil
	case "":
		return nil, uwbdaemon.ErrNoTransport
	default:
		return nil, fmt.Errorf("unknown --transport %q (supported: \"fake\")", transportKind)
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	level := config.ParseLogLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

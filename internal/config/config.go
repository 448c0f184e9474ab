// Package config manages uwbsessiond daemon configuration using koanf/v2.
//
// Layers built-in defaults, a YAML file, and environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/dantte-lp/uwbsessiond/internal/uwb"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete uwbsessiond configuration.
type Config struct {
	GRPC    GRPCConfig    `koanf:"grpc"`
	Metrics MetricsConfig `koanf:"metrics"`
	Log     LogConfig     `koanf:"log"`
	Policy  PolicyConfig  `koanf:"policy"`
	Chips   []ChipConfig  `koanf:"chips"`
}

// GRPCConfig holds a listen address reserved for an RPC control surface.
// It is loaded and validated, but no server in this module binds it.
type GRPCConfig struct {
	// Addr is the listen address (e.g., ":50051").
	Addr string `koanf:"addr"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// PolicyConfig holds the admission, priority, and supervision-timer knobs
// that back uwb.PolicyOracle (SPEC_FULL §4.10).
type PolicyConfig struct {
	// DefaultMaxFiRa, DefaultMaxCcc, DefaultMaxAliro and DefaultMaxRadar are
	// the per-protocol session caps applied to a chip with no entry in
	// Chips.
	DefaultMaxFiRa  int `koanf:"default_max_fira"`
	DefaultMaxCcc   int `koanf:"default_max_ccc"`
	DefaultMaxAliro int `koanf:"default_max_aliro"`
	DefaultMaxRadar int `koanf:"default_max_radar"`

	// BackgroundRangingEnabled mirrors uwb.PolicyOracle.IsBackgroundRangingEnabled.
	BackgroundRangingEnabled bool `koanf:"background_ranging_enabled"`

	// RangingErrorStreakEnabled mirrors uwb.PolicyOracle.IsRangingErrorStreakTimerEnabled.
	RangingErrorStreakEnabled bool `koanf:"ranging_error_streak_enabled"`

	// RangingErrorStreakTimeoutMs and BackgroundAppTimeoutMs back the
	// Timers component (spec §4.9).
	RangingErrorStreakTimeoutMs uint32 `koanf:"ranging_error_streak_timeout_ms"`
	BackgroundAppTimeoutMs      uint32 `koanf:"background_app_timeout_ms"`

	// Deadlines are the per-operation command timeouts (spec §5).
	Deadlines DeadlinesConfig `koanf:"deadlines"`
}

// DeadlinesConfig mirrors uwb.Deadlines with koanf-loadable durations.
type DeadlinesConfig struct {
	Open                    time.Duration `koanf:"open"`
	Start                   time.Duration `koanf:"start"`
	Stop                    time.Duration `koanf:"stop"`
	Reconfigure             time.Duration `koanf:"reconfigure"`
	Close                   time.Duration `koanf:"close"`
	DtTagRoundsUpdate       time.Duration `koanf:"dt_tag_rounds_update"`
	DataTransferPhaseConfig time.Duration `koanf:"data_transfer_phase_config"`
}

// ChipConfig is one entry of the chip registry (SPEC_FULL §4.10): the
// per-protocol session caps for a single UWB chip, keyed by the chip id the
// UCI transport reports it under.
type ChipConfig struct {
	ChipId   string `koanf:"chip_id"`
	MaxFiRa  int    `koanf:"max_fira"`
	MaxCcc   int    `koanf:"max_ccc"`
	MaxAliro int    `koanf:"max_aliro"`
	MaxRadar int    `koanf:"max_radar"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		GRPC: GRPCConfig{
			Addr: ":50051",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Policy: PolicyConfig{
			DefaultMaxFiRa:  8,
			DefaultMaxCcc:   4,
			DefaultMaxAliro: 4,
			DefaultMaxRadar: 2,

			BackgroundRangingEnabled:  false,
			RangingErrorStreakEnabled: true,

			RangingErrorStreakTimeoutMs: 5000,
			BackgroundAppTimeoutMs:      10000,

			Deadlines: DeadlinesConfig{
				Open:                    3 * time.Second,
				Start:                   3 * time.Second,
				Stop:                    3 * time.Second,
				Reconfigure:             3 * time.Second,
				Close:                   3 * time.Second,
				DtTagRoundsUpdate:       1 * time.Second,
				DataTransferPhaseConfig: 1 * time.Second,
			},
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for uwbsessiond configuration.
// Variables are named UWBSESSIOND_<section>_<key>, e.g., UWBSESSIOND_GRPC_ADDR.
const envPrefix = "UWBSESSIOND_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (UWBSESSIOND_ prefix), and merges on top of
// DefaultConfig(). Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	UWBSESSIOND_GRPC_ADDR     -> grpc.addr
//	UWBSESSIOND_METRICS_ADDR  -> metrics.addr
//	UWBSESSIOND_METRICS_PATH  -> metrics.path
//	UWBSESSIOND_LOG_LEVEL     -> log.level
//	UWBSESSIOND_LOG_FORMAT    -> log.format
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Load defaults first.
	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	// Load YAML file on top of defaults.
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	// Load environment variable overrides on top of YAML.
	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms UWBSESSIOND_GRPC_ADDR -> grpc.addr.
// Strips the UWBSESSIOND_ prefix, lowercases, and replaces _ with .
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "_", ".")
}

// loadDefaults sets the default config as koanf's base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"grpc.addr":                                   defaults.GRPC.Addr,
		"metrics.addr":                                defaults.Metrics.Addr,
		"metrics.path":                                defaults.Metrics.Path,
		"log.level":                                   defaults.Log.Level,
		"log.format":                                  defaults.Log.Format,
		"policy.default_max_fira":                     defaults.Policy.DefaultMaxFiRa,
		"policy.default_max_ccc":                      defaults.Policy.DefaultMaxCcc,
		"policy.default_max_aliro":                    defaults.Policy.DefaultMaxAliro,
		"policy.default_max_radar":                    defaults.Policy.DefaultMaxRadar,
		"policy.background_ranging_enabled":           defaults.Policy.BackgroundRangingEnabled,
		"policy.ranging_error_streak_enabled":         defaults.Policy.RangingErrorStreakEnabled,
		"policy.ranging_error_streak_timeout_ms":      defaults.Policy.RangingErrorStreakTimeoutMs,
		"policy.background_app_timeout_ms":            defaults.Policy.BackgroundAppTimeoutMs,
		"policy.deadlines.open":                       defaults.Policy.Deadlines.Open.String(),
		"policy.deadlines.start":                      defaults.Policy.Deadlines.Start.String(),
		"policy.deadlines.stop":                       defaults.Policy.Deadlines.Stop.String(),
		"policy.deadlines.reconfigure":                defaults.Policy.Deadlines.Reconfigure.String(),
		"policy.deadlines.close":                      defaults.Policy.Deadlines.Close.String(),
		"policy.deadlines.dt_tag_rounds_update":       defaults.Policy.Deadlines.DtTagRoundsUpdate.String(),
		"policy.deadlines.data_transfer_phase_config": defaults.Policy.Deadlines.DataTransferPhaseConfig.String(),
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptyGRPCAddr indicates the listen address is empty.
	ErrEmptyGRPCAddr = errors.New("grpc.addr must not be empty")

	// ErrInvalidRangingErrorMs indicates the ranging-error-streak timeout is
	// zero while the timer is enabled.
	ErrInvalidRangingErrorMs = errors.New("policy.ranging_error_streak_timeout_ms must be > 0 when policy.ranging_error_streak_enabled is true")

	// ErrInvalidBackgroundAppMs indicates the background-app timeout is zero.
	ErrInvalidBackgroundAppMs = errors.New("policy.background_app_timeout_ms must be > 0")

	// ErrInvalidDeadline indicates a policy.deadlines field is not positive.
	ErrInvalidDeadline = errors.New("policy.deadlines fields must all be > 0")

	// ErrEmptyChipId indicates a chips[] entry has no chip_id.
	ErrEmptyChipId = errors.New("chips[].chip_id must not be empty")

	// ErrDuplicateChipId indicates two chips[] entries share a chip_id.
	ErrDuplicateChipId = errors.New("duplicate chips[].chip_id")

	// ErrInvalidChipSessionLimit indicates a chips[] session cap is negative.
	ErrInvalidChipSessionLimit = errors.New("chips[] session limits must not be negative")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.GRPC.Addr == "" {
		return ErrEmptyGRPCAddr
	}

	if cfg.Policy.RangingErrorStreakEnabled && cfg.Policy.RangingErrorStreakTimeoutMs == 0 {
		return ErrInvalidRangingErrorMs
	}

	if cfg.Policy.BackgroundAppTimeoutMs == 0 {
		return ErrInvalidBackgroundAppMs
	}

	for _, d := range []time.Duration{
		cfg.Policy.Deadlines.Open,
		cfg.Policy.Deadlines.Start,
		cfg.Policy.Deadlines.Stop,
		cfg.Policy.Deadlines.Reconfigure,
		cfg.Policy.Deadlines.Close,
		cfg.Policy.Deadlines.DtTagRoundsUpdate,
		cfg.Policy.Deadlines.DataTransferPhaseConfig,
	} {
		if d <= 0 {
			return ErrInvalidDeadline
		}
	}

	return validateChips(cfg.Chips)
}

// validateChips checks each chip registry entry for correctness.
func validateChips(chips []ChipConfig) error {
	seen := make(map[string]struct{}, len(chips))

	for i, c := range chips {
		if c.ChipId == "" {
			return fmt.Errorf("chips[%d]: %w", i, ErrEmptyChipId)
		}

		if _, dup := seen[c.ChipId]; dup {
			return fmt.Errorf("chips[%d] chip_id %q: %w", i, c.ChipId, ErrDuplicateChipId)
		}
		seen[c.ChipId] = struct{}{}

		for _, limit := range []int{c.MaxFiRa, c.MaxCcc, c.MaxAliro, c.MaxRadar} {
			if limit < 0 {
				return fmt.Errorf("chips[%d] chip_id %q: %w", i, c.ChipId, ErrInvalidChipSessionLimit)
			}
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// -------------------------------------------------------------------------
// uwb.PolicyOracle wiring
// -------------------------------------------------------------------------

// PolicyOracle builds the uwb.PolicyOracle this configuration describes,
// backed by uwb.NewDefaultPolicyOracle (SPEC_FULL §6, "configPolicyOracle
// backs PolicyOracle from internal/config"). isPrivileged and isForeground
// are supplied by the platform-facing layer above this package, which is
// where attribution-link privilege and foreground-state live (spec §1's
// scope boundary, spec §2 item 3).
func (c *Config) PolicyOracle(isPrivileged, isForeground func(uwb.AttributionLink) bool) uwb.PolicyOracle {
	chipLimits := make(map[uwb.ChipId]uwb.ChipLimits, len(c.Chips))
	for _, chip := range c.Chips {
		chipLimits[uwb.ChipId(chip.ChipId)] = uwb.ChipLimits{
			MaxFiRa:  chip.MaxFiRa,
			MaxCcc:   chip.MaxCcc,
			MaxAliro: chip.MaxAliro,
			MaxRadar: chip.MaxRadar,
		}
	}

	return uwb.NewDefaultPolicyOracle(uwb.PolicyConfig{
		ChipLimits: chipLimits,
		DefaultChipLimits: uwb.ChipLimits{
			MaxFiRa:  c.Policy.DefaultMaxFiRa,
			MaxCcc:   c.Policy.DefaultMaxCcc,
			MaxAliro: c.Policy.DefaultMaxAliro,
			MaxRadar: c.Policy.DefaultMaxRadar,
		},
		BackgroundRangingEnabled:    c.Policy.BackgroundRangingEnabled,
		RangingErrorStreakEnabled:   c.Policy.RangingErrorStreakEnabled,
		RangingErrorStreakTimeoutMs: c.Policy.RangingErrorStreakTimeoutMs,
		BackgroundAppTimeoutMs:      c.Policy.BackgroundAppTimeoutMs,
		IsPrivileged:                isPrivileged,
		IsForeground:                isForeground,
	})
}

// Deadlines converts the configured per-operation timeouts to uwb.Deadlines.
func (c *Config) Deadlines() uwb.Deadlines {
	return uwb.Deadlines{
		Open:                    c.Policy.Deadlines.Open,
		Start:                   c.Policy.Deadlines.Start,
		Stop:                    c.Policy.Deadlines.Stop,
		Reconfigure:             c.Policy.Deadlines.Reconfigure,
		Close:                   c.Policy.Deadlines.Close,
		DtTagRoundsUpdate:       c.Policy.Deadlines.DtTagRoundsUpdate,
		DataTransferPhaseConfig: c.Policy.Deadlines.DataTransferPhaseConfig,
	}
}

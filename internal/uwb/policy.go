package uwb

// PolicyOracle provides the platform-level gating decisions the core
// consults but does not itself compute (spec §2 item 3): app privilege and
// foreground state, background-ranging policy, per-protocol session limits,
// and the protocol-specific "stopped params" feature gate.
type PolicyOracle interface {
	IsAppPrivileged(link AttributionLink) bool
	IsAppForeground(link AttributionLink) bool
	IsBackgroundRangingEnabled() bool
	IsRangingErrorStreakTimerEnabled() bool
	IsStoppedParamsEnabled(protocol Protocol) bool
	MaxSessionsPerChip(protocol Protocol, chipID ChipId) int
	// DefaultSessionPriorityOverride lets policy override the
	// DefaultSentinel band for a protocol; ok is false to use the
	// built-in default bands (spec §4.8).
	DefaultSessionPriorityOverride(protocol Protocol) (priority uint8, ok bool)
	// RangingErrorStreakTimeoutMs and BackgroundAppTimeoutMs back the
	// Timers component (spec §4.9).
	RangingErrorStreakTimeoutMs() uint32
	BackgroundAppTimeoutMs() uint32
}

// ChipLimits is the per-protocol session cap for one chip, the concrete
// default data source behind MaxSessionsPerChip (SPEC_FULL §4.10).
type ChipLimits struct {
	MaxFiRa  int
	MaxCcc   int
	MaxAliro int
	MaxRadar int
}

// configPolicyOracle is the default PolicyOracle, backed by static
// configuration. It never consults a live permission system -- that lives
// above the core per spec §1's scope boundary -- so IsAppPrivileged and
// IsAppForeground are simple callback-driven lookups supplied at
// construction, mirroring the teacher's pattern of injecting small
// predicate functions rather than whole subsystems.
type configPolicyOracle struct {
	chipLimits                  map[ChipId]ChipLimits
	defaultChipLimits           ChipLimits
	backgroundRangingEnabled    bool
	rangingErrorStreakEnabled   bool
	stoppedParamsEnabled        map[Protocol]bool
	rangingErrorStreakTimeoutMs uint32
	backgroundAppTimeoutMs      uint32
	privilegedCheck             func(AttributionLink) bool
	foregroundCheck             func(AttributionLink) bool
}

// PolicyConfig is the static data NewDefaultPolicyOracle is built from.
type PolicyConfig struct {
	ChipLimits                  map[ChipId]ChipLimits
	DefaultChipLimits           ChipLimits
	BackgroundRangingEnabled    bool
	RangingErrorStreakEnabled   bool
	StoppedParamsEnabled        map[Protocol]bool
	RangingErrorStreakTimeoutMs uint32
	BackgroundAppTimeoutMs      uint32
	IsPrivileged                func(AttributionLink) bool
	IsForeground                func(AttributionLink) bool
}

// NewDefaultPolicyOracle builds the config-driven PolicyOracle (SPEC_FULL
// §4.10 ChipRegistry).
func NewDefaultPolicyOracle(cfg PolicyConfig) PolicyOracle {
	privileged := cfg.IsPrivileged
	if privileged == nil {
		privileged = func(AttributionLink) bool { return false }
	}
	foreground := cfg.IsForeground
	if foreground == nil {
		foreground = func(AttributionLink) bool { return true }
	}
	limits := cfg.ChipLimits
	if limits == nil {
		limits = map[ChipId]ChipLimits{}
	}
	stopped := cfg.StoppedParamsEnabled
	if stopped == nil {
		stopped = map[Protocol]bool{}
	}
	return &configPolicyOracle{
		chipLimits:                  limits,
		defaultChipLimits:           cfg.DefaultChipLimits,
		backgroundRangingEnabled:    cfg.BackgroundRangingEnabled,
		rangingErrorStreakEnabled:   cfg.RangingErrorStreakEnabled,
		stoppedParamsEnabled:        stopped,
		rangingErrorStreakTimeoutMs: cfg.RangingErrorStreakTimeoutMs,
		backgroundAppTimeoutMs:      cfg.BackgroundAppTimeoutMs,
		privilegedCheck:             privileged,
		foregroundCheck:             foreground,
	}
}

func (o *configPolicyOracle) IsAppPrivileged(link AttributionLink) bool {
	return o.privilegedCheck(link)
}

func (o *configPolicyOracle) IsAppForeground(link AttributionLink) bool {
	return o.foregroundCheck(link)
}

func (o *configPolicyOracle) IsBackgroundRangingEnabled() bool { return o.backgroundRangingEnabled }

func (o *configPolicyOracle) IsRangingErrorStreakTimerEnabled() bool {
	return o.rangingErrorStreakEnabled
}

func (o *configPolicyOracle) IsStoppedParamsEnabled(protocol Protocol) bool {
	return o.stoppedParamsEnabled[protocol]
}

func (o *configPolicyOracle) MaxSessionsPerChip(protocol Protocol, chipID ChipId) int {
	limits, ok := o.chipLimits[chipID]
	if !ok {
		limits = o.defaultChipLimits
	}
	switch protocol {
	case ProtocolFiRa:
		return limits.MaxFiRa
	case ProtocolCcc:
		return limits.MaxCcc
	case ProtocolAliro:
		return limits.MaxAliro
	case ProtocolRadar:
		return limits.MaxRadar
	default:
		return 0
	}
}

func (o *configPolicyOracle) DefaultSessionPriorityOverride(Protocol) (uint8, bool) {
	return 0, false
}

func (o *configPolicyOracle) RangingErrorStreakTimeoutMs() uint32 {
	return o.rangingErrorStreakTimeoutMs
}
func (o *configPolicyOracle) BackgroundAppTimeoutMs() uint32 { return o.backgroundAppTimeoutMs }

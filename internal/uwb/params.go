package uwb

// Params is the tagged variant for protocol-specific session parameters
// (spec §9 "Dynamic dispatch on parameters"). The source models this with
// inheritance over a parameter base class; here it is a discriminated union:
// a Protocol tag plus an opaque payload, with typed accessors that assert
// the tag matches. A mismatched accessor call is an invariant violation
// (the caller already knows the session's Protocol) and panics rather than
// returning an error.
type Params struct {
	Protocol Protocol
	payload  any
}

// NewFiRaParams builds a Params tagged as FiRa.
func NewFiRaParams(p FiRaParams) Params { return Params{Protocol: ProtocolFiRa, payload: &p} }

// NewCccParams builds a Params tagged as Ccc.
func NewCccParams(p CccParams) Params { return Params{Protocol: ProtocolCcc, payload: &p} }

// NewAliroParams builds a Params tagged as Aliro.
func NewAliroParams(p AliroParams) Params { return Params{Protocol: ProtocolAliro, payload: &p} }

// NewRadarParams builds a Params tagged as Radar.
func NewRadarParams(p RadarParams) Params { return Params{Protocol: ProtocolRadar, payload: &p} }

// FiRa returns the FiRa payload. Panics if Protocol != ProtocolFiRa.
func (p Params) FiRa() *FiRaParams {
	v, ok := p.payload.(*FiRaParams)
	if !ok {
		invariantViolation("Params.FiRa called on non-FiRa variant")
	}
	return v
}

// Ccc returns the CCC payload. Panics if Protocol != ProtocolCcc.
func (p Params) Ccc() *CccParams {
	v, ok := p.payload.(*CccParams)
	if !ok {
		invariantViolation("Params.Ccc called on non-Ccc variant")
	}
	return v
}

// Aliro returns the ALIRO payload. Panics if Protocol != ProtocolAliro.
func (p Params) Aliro() *AliroParams {
	v, ok := p.payload.(*AliroParams)
	if !ok {
		invariantViolation("Params.Aliro called on non-Aliro variant")
	}
	return v
}

// Radar returns the Radar payload. Panics if Protocol != ProtocolRadar.
func (p Params) Radar() *RadarParams {
	v, ok := p.payload.(*RadarParams)
	if !ok {
		invariantViolation("Params.Radar called on non-Radar variant")
	}
	return v
}

// Clone returns a deep-enough copy of p safe to mutate independently; the
// Session's stored Params is otherwise immutable-by-default per spec §3 and
// mutated only through the reconfigure paths in session.go.
func (p Params) Clone() Params {
	switch p.Protocol {
	case ProtocolFiRa:
		v := *p.FiRa()
		return NewFiRaParams(v)
	case ProtocolCcc:
		v := *p.Ccc()
		return NewCccParams(v)
	case ProtocolAliro:
		v := *p.Aliro()
		return NewAliroParams(v)
	case ProtocolRadar:
		v := *p.Radar()
		return NewRadarParams(v)
	default:
		invariantViolation("Params.Clone on unknown protocol")
		return Params{}
	}
}

// RngDataNtfControl is the ranging-data-notification control mode, used by
// AppStateWatcher (spec §4.7) and the start-ranging handler to gate delivery
// without mutating the stored proximity bounds.
type RngDataNtfControl uint8

const (
	RngDataNtfEnable RngDataNtfControl = iota
	RngDataNtfDisable
	RngDataNtfEnableProximity
	RngDataNtfEnableAoaLevel
)

// CommonParams holds fields shared by every protocol's parameter set.
type CommonParams struct {
	DestAddressList   []uint64
	RangingRoundUsage RangingRoundUsage
	DeviceRole        DeviceRole
	StsConfig         StsConfig
	SessionKeyPresent bool
	SessionPriority   uint8
	// DefaultSessionPriority is true when the caller did not supply an
	// explicit, non-default priority; used to decide priorityOverride
	// (spec §4.8).
	DefaultSessionPriority bool
	RngDataNtfControl      RngDataNtfControl
	RngDataNtfProximityMin uint16
	RngDataNtfProximityMax uint16
	RxMaxPacketsToStore    int
	UciProtocolVersion     uint16
	DataRepetitionCount    uint8
	RangingIntervalMs      uint32
}

// Common returns a pointer to the CommonParams embedded in whichever
// protocol variant p holds, so routing code that only needs the shared
// fields doesn't need its own protocol switch.
func (p Params) Common() *CommonParams {
	switch p.Protocol {
	case ProtocolFiRa:
		return &p.FiRa().CommonParams
	case ProtocolCcc:
		return &p.Ccc().CommonParams
	case ProtocolAliro:
		return &p.Aliro().CommonParams
	case ProtocolRadar:
		return &p.Radar().CommonParams
	default:
		invariantViolation("Params.Common on unknown protocol")
		return nil
	}
}

// FiRaParams is the FiRa protocol parameter set.
type FiRaParams struct {
	CommonParams
	RanMultiplier         uint8
	RelativeInitiationMs  uint32
	AbsoluteInitiationUs  uint64
	HasAbsoluteInitiation bool

	// TimeBaseReferenceHandle names another session by handle whose cached
	// SessionToken this session's config apply must carry (spec §4.4: "If
	// parameters reference another session by handle ... substitute that
	// session's cached SessionToken"). ResolvedTimeBaseToken is the
	// substituted value, filled in by resolveCrossSessionReferences once
	// the referenced session's token is known; HasResolvedTimeBaseToken
	// distinguishes "resolved to token 0" from "not yet resolved".
	TimeBaseReferenceHandle  *SessionHandle
	ResolvedTimeBaseToken    SessionToken
	HasResolvedTimeBaseToken bool

	// HybridPhaseListHandles names the sessions participating in this
	// session's hybrid phase list by handle; ResolvedHybridPhaseTokens
	// holds the same substitution, one cached SessionToken per handle, in
	// the same order.
	HybridPhaseListHandles    []SessionHandle
	ResolvedHybridPhaseTokens []SessionToken
}

// CccParams is the CCC protocol parameter set.
type CccParams struct {
	CommonParams
	StsIndex                     uint32
	HopModeKey                   uint32
	StoppedParamsEnabledByPolicy bool
}

// AliroParams is the ALIRO protocol parameter set. ALIRO mirrors CCC's
// automotive-variant shape; kept distinct per spec §3 Protocol tag.
type AliroParams struct {
	CommonParams
	StsIndex   uint32
	HopModeKey uint32
}

// RadarParams is the Radar protocol parameter set.
type RadarParams struct {
	CommonParams
	BurstPeriodMs uint32
	SweepPeriodMs uint32
	FrameCount    uint16
}

package uwb

// OpenRequest carries everything needed to admit and initialize a new
// session (spec §4.2, §4.4 "Open-session handler specifics").
type OpenRequest struct {
	Handle      SessionHandle
	Id          SessionId
	SessionType SessionType
	Protocol    Protocol
	ChipId      ChipId
	Attribution AttributionSource
	Params      Params
}

// StartRequest carries the optional start-time overrides spec §4.4
// ("Start-ranging handler specifics") allows a caller to supply.
type StartRequest struct {
	Handle SessionHandle
	// RanMultiplier, InitiationMs, StsIndex are pointers so "not supplied"
	// is distinguishable from a supplied zero value.
	RanMultiplier *uint8
	InitiationMs  *uint32
	StsIndex      *uint32
	StackPriority *uint8
}

// StopRequest identifies the session to stop and, when the stop is
// internally triggered (error-streak or background-app timer), the
// SystemPolicy reason path (spec §4.4 "Stop-ranging handler specifics").
type StopRequest struct {
	Handle       SessionHandle
	SystemPolicy bool
}

// ReconfigureKind distinguishes the two reconfigure payload shapes spec
// §4.3 groups under one trigger: a parameter update, or a multicast list
// update (spec §4.4 "Multicast-list update").
type ReconfigureKind uint8

const (
	ReconfigureParams ReconfigureKind = iota
	ReconfigureMulticast
)

// ReconfigureRequest is the payload for the Idle/Active-legal reconfigure
// trigger (spec §4.3 row 7/8).
type ReconfigureRequest struct {
	Handle SessionHandle
	Kind   ReconfigureKind

	// Valid when Kind == ReconfigureParams.
	NewParams Params

	// Valid when Kind == ReconfigureMulticast.
	Action         MulticastAction
	Addresses      []uint64
	SubSessionIds  []uint32
	SubSessionKeys [][]byte
}

// SendDataRequest is the payload for a send-data command (spec §4.4
// "Send-data handler specifics").
type SendDataRequest struct {
	Handle      SessionHandle
	PeerAddress uint64
	Payload     []byte
}

// UpdateDtTagRoundsRequest is the payload for
// sessionUpdateDtTagRangingRounds.
type UpdateDtTagRoundsRequest struct {
	Handle       SessionHandle
	RoundIndexes []uint8
}

// DataTransferPhaseConfigRequest is the payload for
// setDataTransferPhaseConfig (spec §4.4 "Data-transfer phase
// configuration"). Control is the per-entry control byte whose low nibble
// determines slot-bitmap size and whose low bit selects short vs extended
// addressing.
type DataTransferPhaseConfigRequest struct {
	Handle      SessionHandle
	Repetition  uint8
	Control     uint8
	Addresses   []uint64
	SlotBitmaps [][]byte
}

// slotBitmapSize returns the expected bitmap size in bytes for control,
// per spec §4.4: 1 << ((control & 0x0F) >> 1).
func slotBitmapSize(control uint8) int {
	return 1 << ((control & 0x0F) >> 1)
}

// usesExtendedAddress reports whether control's low bit selects extended
// (vs short) addressing.
func usesExtendedAddress(control uint8) bool {
	return control&0x01 != 0
}

// HybridSessionConfigRequest is the payload for
// setHybridSessionConfiguration (spec §4.4 "Hybrid-session configuration").
type HybridSessionConfigRequest struct {
	Handle     SessionHandle
	UpdateTime uint64
	Phases     []HybridPhase
}

// DeinitRequest identifies the session to tear down.
type DeinitRequest struct {
	Handle SessionHandle
}

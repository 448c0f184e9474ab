package uwb

import "context"

// UciTransport is the down-interface to the UWB Command Interface (spec §6).
// It is an out-of-core dependency: byte framing, SPI/HAL binding, and
// multi-chip static configuration loading are deliberately not part of this
// package (spec §1). Every method is synchronous and fallible; asynchronous
// results arrive later through the SessionNotification callbacks below.
type UciTransport interface {
	InitSession(ctx context.Context, id SessionId, sessionType SessionType, chipID ChipId) (Status, error)
	DeinitSession(ctx context.Context, id SessionId, chipID ChipId) (Status, error)
	SetAppConfigurations(ctx context.Context, id SessionId, params Params, chipID ChipId, uciVersion uint16) (Status, error)
	GetAppConfigurations(ctx context.Context, id SessionId, protocol Protocol, keys []uint8, chipID ChipId, uciVersion uint16) (Status, map[uint8][]byte, error)
	StartRanging(ctx context.Context, id SessionId, chipID ChipId) (Status, error)
	StopRanging(ctx context.Context, id SessionId, chipID ChipId) (Status, error)
	ControllerMulticastListUpdate(ctx context.Context, id SessionId, action MulticastAction, addrs []uint64, subSessionIds []uint32, subSessionKeys [][]byte, chipID ChipId) (Status, error)
	SendData(ctx context.Context, id SessionId, extendedPeerAddr uint64, seq uint16, payload []byte, chipID ChipId) (Status, error)
	SetDataTransferPhaseConfig(ctx context.Context, id SessionId, repetition uint8, control uint8, addrs []uint64, slotBitmaps [][]byte, chipID ChipId) (Status, error)
	SessionUpdateDtTagRangingRounds(ctx context.Context, id SessionId, roundIndexes []uint8, chipID ChipId) (Status, error)
	SetHybridSessionConfiguration(ctx context.Context, id SessionId, updateTime uint64, phases []HybridPhase, chipID ChipId) (Status, error)
	QueryMaxDataSizeBytes(ctx context.Context, id SessionId, chipID ChipId) (uint32, Status, error)
	GetSessionToken(ctx context.Context, id SessionId, chipID ChipId) (SessionToken, Status, error)
	QueryUwbsTimestampMicros(ctx context.Context, chipID ChipId) (uint64, error)
}

// HybridPhase is one element of a hybrid-session phase list, serialized by
// real transports as little-endian (SessionToken:u32, startSlotIndex:u16,
// endSlotIndex:u16) per spec §4.4.
type HybridPhase struct {
	Token          SessionToken
	StartSlotIndex uint16
	EndSlotIndex   uint16
}

// SessionNotification is the upward callback set a UciTransport
// implementation drives. NotificationRouter is the canonical subscriber
// (spec §4.5); SessionManager does not construct the transport, so the
// caller binds these callbacks to SessionManager.Router()'s On* methods.
type SessionNotification interface {
	OnSessionStatus(id SessionId, state State, reasonCode ReasonCode)
	OnRangeData(id SessionId, report RangingReport)
	OnDataReceived(id SessionId, status Status, seq uint16, peerAddress uint64, payload []byte)
	OnDataSendStatus(id SessionId, status Status, seq uint16, txCount uint8)
	OnMulticastListUpdate(id SessionId, entries []MulticastUpdateEntry)
	OnRadarData(id SessionId, frame RadarFrame)
	OnDataTransferPhaseConfig(id SessionId, status Status)
}

// MulticastUpdateEntry is the per-controlee outcome reported by
// onMulticastListUpdate.
type MulticastUpdateEntry struct {
	Address uint64
	Status  MulticastEntryStatus
}

// RangingMeasurementKind distinguishes how a RangingReport's measurements
// were produced.
type RangingMeasurementKind uint8

const (
	RangingMeasurementTwoWay RangingMeasurementKind = iota
	RangingMeasurementOwrAoa
	RangingMeasurementDlTdoa
)

// RangingMeasurement is one peer's measurement within a RangingReport.
type RangingMeasurement struct {
	PeerAddress  uint64
	IsError      bool
	DistanceCm   uint32
	AoaAzimuth   float32
	AoaElevation float32
}

// RangingReport is the result of one onRangeData notification.
type RangingReport struct {
	Kind         RangingMeasurementKind
	Measurements []RangingMeasurement
}

// AllErrors reports whether every measurement in the frame is an error,
// the trigger condition for the ranging-error streak timer (spec §4.9).
func (r RangingReport) AllErrors() bool {
	if len(r.Measurements) == 0 {
		return false
	}
	for _, m := range r.Measurements {
		if !m.IsError {
			return false
		}
	}
	return true
}

// RadarFrame is the result of one onRadarData notification.
type RadarFrame struct {
	PeerAddress uint64
	SweepData   []byte
}

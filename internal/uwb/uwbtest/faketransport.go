// Package uwbtest provides test doubles for exercising internal/uwb without
// a real UCI-capable radio: a scriptable UciTransport and small notification
// helpers, mirroring the teacher's MockPacketConn pattern in
// internal/netio/mock_test.go.
package uwbtest

import (
	"context"
	"sync"

	"github.com/dantte-lp/uwbsessiond/internal/uwb"
)

// call records one invocation against FakeTransport, for tests that assert
// on method name and argument shape rather than wiring a full behavior hook.
type call struct {
	Method string
	Args   []any
}

// FakeTransport implements uwb.UciTransport with injectable per-method
// behavior. Every method defaults to returning uwb.StatusOk with a nil
// error; set the corresponding *Func field to override. Tests that need
// asynchronous notifications (the common case -- InitSession succeeding
// only synchronously, with the session-status notification following)
// must call the Notify accessor themselves once the synchronous call
// returns, exactly as a real UCI transport's notification thread would from
// a separate callback path.
type FakeTransport struct {
	mu    sync.Mutex
	calls []call

	Notify uwb.SessionNotification

	InitSessionFunc                     func(ctx context.Context, id uwb.SessionId, sessionType uwb.SessionType, chipID uwb.ChipId) (uwb.Status, error)
	DeinitSessionFunc                   func(ctx context.Context, id uwb.SessionId, chipID uwb.ChipId) (uwb.Status, error)
	SetAppConfigurationsFunc            func(ctx context.Context, id uwb.SessionId, params uwb.Params, chipID uwb.ChipId, uciVersion uint16) (uwb.Status, error)
	GetAppConfigurationsFunc            func(ctx context.Context, id uwb.SessionId, protocol uwb.Protocol, keys []uint8, chipID uwb.ChipId, uciVersion uint16) (uwb.Status, map[uint8][]byte, error)
	StartRangingFunc                    func(ctx context.Context, id uwb.SessionId, chipID uwb.ChipId) (uwb.Status, error)
	StopRangingFunc                     func(ctx context.Context, id uwb.SessionId, chipID uwb.ChipId) (uwb.Status, error)
	ControllerMulticastListUpdateFunc   func(ctx context.Context, id uwb.SessionId, action uwb.MulticastAction, addrs []uint64, subSessionIds []uint32, subSessionKeys [][]byte, chipID uwb.ChipId) (uwb.Status, error)
	SendDataFunc                        func(ctx context.Context, id uwb.SessionId, extendedPeerAddr uint64, seq uint16, payload []byte, chipID uwb.ChipId) (uwb.Status, error)
	SetDataTransferPhaseConfigFunc      func(ctx context.Context, id uwb.SessionId, repetition uint8, control uint8, addrs []uint64, slotBitmaps [][]byte, chipID uwb.ChipId) (uwb.Status, error)
	SessionUpdateDtTagRangingRoundsFunc func(ctx context.Context, id uwb.SessionId, roundIndexes []uint8, chipID uwb.ChipId) (uwb.Status, error)
	SetHybridSessionConfigurationFunc   func(ctx context.Context, id uwb.SessionId, updateTime uint64, phases []uwb.HybridPhase, chipID uwb.ChipId) (uwb.Status, error)
	QueryMaxDataSizeBytesFunc           func(ctx context.Context, id uwb.SessionId, chipID uwb.ChipId) (uint32, uwb.Status, error)
	GetSessionTokenFunc                 func(ctx context.Context, id uwb.SessionId, chipID uwb.ChipId) (uwb.SessionToken, uwb.Status, error)
	QueryUwbsTimestampMicrosFunc        func(ctx context.Context, chipID uwb.ChipId) (uint64, error)
}

// NewFakeTransport returns a FakeTransport whose every method succeeds
// immediately with zero-value results until overridden, except
// GetSessionToken, which returns the session id as the token.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{}
}

func (f *FakeTransport) record(method string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{Method: method, Args: args})
}

// Calls returns the recorded call log in invocation order.
func (f *FakeTransport) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.Method
	}
	return out
}

func (f *FakeTransport) InitSession(ctx context.Context, id uwb.SessionId, sessionType uwb.SessionType, chipID uwb.ChipId) (uwb.Status, error) {
	f.record("InitSession", id, sessionType, chipID)
	if f.InitSessionFunc != nil {
		return f.InitSessionFunc(ctx, id, sessionType, chipID)
	}
	return uwb.StatusOk, nil
}

func (f *FakeTransport) DeinitSession(ctx context.Context, id uwb.SessionId, chipID uwb.ChipId) (uwb.Status, error) {
	f.record("DeinitSession", id, chipID)
	if f.DeinitSessionFunc != nil {
		return f.DeinitSessionFunc(ctx, id, chipID)
	}
	return uwb.StatusOk, nil
}

func (f *FakeTransport) SetAppConfigurations(ctx context.Context, id uwb.SessionId, params uwb.Params, chipID uwb.ChipId, uciVersion uint16) (uwb.Status, error) {
	f.record("SetAppConfigurations", id, chipID, uciVersion)
	if f.SetAppConfigurationsFunc != nil {
		return f.SetAppConfigurationsFunc(ctx, id, params, chipID, uciVersion)
	}
	return uwb.StatusOk, nil
}

func (f *FakeTransport) GetAppConfigurations(ctx context.Context, id uwb.SessionId, protocol uwb.Protocol, keys []uint8, chipID uwb.ChipId, uciVersion uint16) (uwb.Status, map[uint8][]byte, error) {
	f.record("GetAppConfigurations", id, protocol, chipID)
	if f.GetAppConfigurationsFunc != nil {
		return f.GetAppConfigurationsFunc(ctx, id, protocol, keys, chipID, uciVersion)
	}
	return uwb.StatusOk, nil, nil
}

func (f *FakeTransport) StartRanging(ctx context.Context, id uwb.SessionId, chipID uwb.ChipId) (uwb.Status, error) {
	f.record("StartRanging", id, chipID)
	if f.StartRangingFunc != nil {
		return f.StartRangingFunc(ctx, id, chipID)
	}
	return uwb.StatusOk, nil
}

func (f *FakeTransport) StopRanging(ctx context.Context, id uwb.SessionId, chipID uwb.ChipId) (uwb.Status, error) {
	f.record("StopRanging", id, chipID)
	if f.StopRangingFunc != nil {
		return f.StopRangingFunc(ctx, id, chipID)
	}
	return uwb.StatusOk, nil
}

func (f *FakeTransport) ControllerMulticastListUpdate(ctx context.Context, id uwb.SessionId, action uwb.MulticastAction, addrs []uint64, subSessionIds []uint32, subSessionKeys [][]byte, chipID uwb.ChipId) (uwb.Status, error) {
	f.record("ControllerMulticastListUpdate", id, action, addrs)
	if f.ControllerMulticastListUpdateFunc != nil {
		return f.ControllerMulticastListUpdateFunc(ctx, id, action, addrs, subSessionIds, subSessionKeys, chipID)
	}
	return uwb.StatusOk, nil
}

func (f *FakeTransport) SendData(ctx context.Context, id uwb.SessionId, extendedPeerAddr uint64, seq uint16, payload []byte, chipID uwb.ChipId) (uwb.Status, error) {
	f.record("SendData", id, extendedPeerAddr, seq)
	if f.SendDataFunc != nil {
		return f.SendDataFunc(ctx, id, extendedPeerAddr, seq, payload, chipID)
	}
	return uwb.StatusOk, nil
}

func (f *FakeTransport) SetDataTransferPhaseConfig(ctx context.Context, id uwb.SessionId, repetition uint8, control uint8, addrs []uint64, slotBitmaps [][]byte, chipID uwb.ChipId) (uwb.Status, error) {
	f.record("SetDataTransferPhaseConfig", id, repetition, control)
	if f.SetDataTransferPhaseConfigFunc != nil {
		return f.SetDataTransferPhaseConfigFunc(ctx, id, repetition, control, addrs, slotBitmaps, chipID)
	}
	return uwb.StatusOk, nil
}

func (f *FakeTransport) SessionUpdateDtTagRangingRounds(ctx context.Context, id uwb.SessionId, roundIndexes []uint8, chipID uwb.ChipId) (uwb.Status, error) {
	f.record("SessionUpdateDtTagRangingRounds", id, roundIndexes)
	if f.SessionUpdateDtTagRangingRoundsFunc != nil {
		return f.SessionUpdateDtTagRangingRoundsFunc(ctx, id, roundIndexes, chipID)
	}
	return uwb.StatusOk, nil
}

func (f *FakeTransport) SetHybridSessionConfiguration(ctx context.Context, id uwb.SessionId, updateTime uint64, phases []uwb.HybridPhase, chipID uwb.ChipId) (uwb.Status, error) {
	f.record("SetHybridSessionConfiguration", id, updateTime, phases)
	if f.SetHybridSessionConfigurationFunc != nil {
		return f.SetHybridSessionConfigurationFunc(ctx, id, updateTime, phases, chipID)
	}
	return uwb.StatusOk, nil
}

func (f *FakeTransport) QueryMaxDataSizeBytes(ctx context.Context, id uwb.SessionId, chipID uwb.ChipId) (uint32, uwb.Status, error) {
	f.record("QueryMaxDataSizeBytes", id, chipID)
	if f.QueryMaxDataSizeBytesFunc != nil {
		return f.QueryMaxDataSizeBytesFunc(ctx, id, chipID)
	}
	return 0, uwb.StatusOk, nil
}

func (f *FakeTransport) GetSessionToken(ctx context.Context, id uwb.SessionId, chipID uwb.ChipId) (uwb.SessionToken, uwb.Status, error) {
	f.record("GetSessionToken", id, chipID)
	if f.GetSessionTokenFunc != nil {
		return f.GetSessionTokenFunc(ctx, id, chipID)
	}
	return uwb.SessionToken(id), uwb.StatusOk, nil
}

func (f *FakeTransport) QueryUwbsTimestampMicros(ctx context.Context, chipID uwb.ChipId) (uint64, error) {
	f.record("QueryUwbsTimestampMicros", chipID)
	if f.QueryUwbsTimestampMicrosFunc != nil {
		return f.QueryUwbsTimestampMicrosFunc(ctx, chipID)
	}
	return 0, nil
}

var _ uwb.UciTransport = (*FakeTransport)(nil)

package uwb

import "context"

// SendData issues a send-data command (spec §4.4 "Send-data handler
// specifics"). Unlike the other commands, SendData does not wait on the
// session's completion channel: the only synchronous outcome is the
// immediate UCI return; DataSent/DataSendFailed for the eventual transfer
// status arrive later through NotificationRouter.OnDataSendStatus.
func (el *EventLoop) SendData(req SendDataRequest) error {
	return el.enqueue(func() { el.handleSendData(req) })
}

func (el *EventLoop) handleSendData(req SendDataRequest) {
	session, ok := el.table.getByHandle(req.Handle)
	if !ok {
		el.sink.DataSendFailed(req.Handle, 0, ReasonUnknown)
		return
	}
	if session.State() != StateActive {
		el.sink.DataSendFailed(req.Handle, 0, ReasonUnknown)
		return
	}

	params := session.Params()
	seq := session.allocateTxSequence(SendDataInfo{
		PeerAddress: req.PeerAddress,
		Params:      params,
		Payload:     req.Payload,
	})

	session.setOperation(OperationSendData)

	el.spawnWorker(func(ctx context.Context) {
		status, err := el.transport.SendData(ctx, session.Id, req.PeerAddress, seq, req.Payload, session.ChipId)
		if err != nil || status != StatusOk {
			session.discardTxSequence(seq)
			el.sink.DataSendFailed(session.Handle, seq, MapStatusToReason(status))
		}
	})
}

// UpdateDtTagRounds issues sessionUpdateDtTagRangingRounds.
func (el *EventLoop) UpdateDtTagRounds(req UpdateDtTagRoundsRequest) error {
	return el.enqueue(func() { el.handleUpdateDtTagRounds(req) })
}

func (el *EventLoop) handleUpdateDtTagRounds(req UpdateDtTagRoundsRequest) {
	session, ok := el.table.getByHandle(req.Handle)
	if !ok {
		el.sink.DtTagRoundsUpdateStatus(req.Handle, StatusSessionNotExist)
		return
	}
	session.setOperation(OperationUpdateDtTagRounds)

	el.spawnWorker(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, el.deadlines.DtTagRoundsUpdate)
		defer cancel()
		status, err := el.transport.SessionUpdateDtTagRangingRounds(ctx, session.Id, req.RoundIndexes, session.ChipId)
		if err != nil {
			status = StatusFailed
		}
		el.sink.DtTagRoundsUpdateStatus(session.Handle, status)
	})
}

// ConfigureDataTransferPhase issues setDataTransferPhaseConfig (spec §4.4
// "Data-transfer phase configuration"); applicable only to session types
// RangingAndInBandData, DataTransfer, or InBandDataPhase.
func (el *EventLoop) ConfigureDataTransferPhase(req DataTransferPhaseConfigRequest) error {
	return el.enqueue(func() { el.handleDataTransferPhaseConfig(req) })
}

func (el *EventLoop) handleDataTransferPhaseConfig(req DataTransferPhaseConfigRequest) {
	session, ok := el.table.getByHandle(req.Handle)
	if !ok {
		el.sink.DataTransferPhaseConfigFailed(req.Handle, ReasonUnknown)
		return
	}
	switch session.SessionType {
	case SessionTypeRangingAndInBandData, SessionTypeDataTransfer, SessionTypeInBandDataPhase:
	default:
		el.sink.DataTransferPhaseConfigFailed(req.Handle, ReasonBadParameters)
		return
	}

	expectedBitmapSize := slotBitmapSize(req.Control)
	for _, bitmap := range req.SlotBitmaps {
		if len(bitmap) != expectedBitmapSize {
			el.sink.DataTransferPhaseConfigFailed(req.Handle, ReasonBadParameters)
			return
		}
	}
	_ = usesExtendedAddress(req.Control) // address-length selection is enforced at the UCI boundary.

	el.spawnWorker(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, el.deadlines.DataTransferPhaseConfig)
		defer cancel()

		ch := session.beginOperation(OperationDataTransferPhaseConfig)
		status, err := el.transport.SetDataTransferPhaseConfig(ctx, session.Id, req.Repetition, req.Control, req.Addresses, req.SlotBitmaps, session.ChipId)
		if err != nil || status != StatusOk {
			session.endOperation()
			el.sink.DataTransferPhaseConfigFailed(session.Handle, MapStatusToReason(status))
			return
		}
		_, ok := awaitCompletion(ctx, ch, el.deadlines.DataTransferPhaseConfig)
		session.endOperation()
		if !ok {
			el.metrics.CommandTimeout(OperationDataTransferPhaseConfig)
			el.sink.DataTransferPhaseConfigFailed(session.Handle, ReasonUnknown)
		}
		// success callback is emitted by NotificationRouter.OnDataTransferPhaseConfig.
	})
}

// ConfigureHybridSession issues setHybridSessionConfiguration (spec §4.4
// "Hybrid-session configuration"); each phase element is serialized
// little-endian as (SessionToken:u32, startSlotIndex:u16, endSlotIndex:u16)
// by the transport. The phases are passed through as given: each carries
// the SessionToken the caller supplied, and no handle is resolved here.
func (el *EventLoop) ConfigureHybridSession(req HybridSessionConfigRequest) error {
	return el.enqueue(func() { el.handleHybridSessionConfig(req) })
}

func (el *EventLoop) handleHybridSessionConfig(req HybridSessionConfigRequest) {
	session, ok := el.table.getByHandle(req.Handle)
	if !ok {
		el.sink.RangingReconfigureFailed(req.Handle, ReasonUnknown)
		return
	}
	session.setOperation(OperationReconfigure)

	el.spawnWorker(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, el.deadlines.Reconfigure)
		defer cancel()
		status, err := el.transport.SetHybridSessionConfiguration(ctx, session.Id, req.UpdateTime, req.Phases, session.ChipId)
		if err != nil || status != StatusOk {
			el.sink.RangingReconfigureFailed(session.Handle, MapStatusToReason(status))
			return
		}
		el.sink.RangingReconfigured(session.Handle)
	})
}

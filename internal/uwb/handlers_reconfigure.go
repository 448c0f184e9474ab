package uwb

import "context"

// Reconfigure issues a reconfigure request, legal in both Idle and Active
// (spec §4.3 rows 7/8). The UCI legality of every reconfigurable field
// across those two states is not fully enumerated by the specification
// (spec §9 "Ambiguity to flag"); this handler forwards the request to
// UciTransport and lets it reject illegal combinations rather than
// pre-validating them here.
func (el *EventLoop) Reconfigure(req ReconfigureRequest) error {
	return el.enqueue(func() { el.handleReconfigure(req) })
}

func (el *EventLoop) handleReconfigure(req ReconfigureRequest) {
	session, ok := el.table.getByHandle(req.Handle)
	if !ok {
		el.sink.RangingReconfigureFailed(req.Handle, ReasonUnknown)
		return
	}
	state := session.State()
	if state != StateIdle && state != StateActive {
		el.sink.RangingReconfigureFailed(req.Handle, ReasonUnknown)
		return
	}

	switch req.Kind {
	case ReconfigureParams:
		el.spawnWorker(func(ctx context.Context) { el.runReconfigureParamsWorker(ctx, session, req) })
	case ReconfigureMulticast:
		if err := el.validateMulticastRequest(session, req); err != nil {
			el.sink.RangingReconfigureFailed(req.Handle, ReasonBadParameters)
			return
		}
		el.spawnWorker(func(ctx context.Context) { el.runReconfigureMulticastWorker(ctx, session, req) })
	}
}

// validateMulticastRequest enforces the structural rules in spec §4.4
// "Multicast-list update": only a controller may issue it; per-subsession
// keys are only accepted for the 16/32-byte add variants, and only when
// the session was opened with provisioned-individual-key STS.
func (el *EventLoop) validateMulticastRequest(session *Session, req ReconfigureRequest) error {
	params := session.Params()
	if params.Common().DeviceRole != DeviceRoleController {
		return ErrInvalidRequest
	}
	needsKeys := req.Action == MulticastActionAdd16Byte || req.Action == MulticastActionAdd32Byte
	if len(req.SubSessionKeys) > 0 {
		if !needsKeys {
			return ErrInvalidRequest
		}
		if params.Common().StsConfig != StsConfigProvisionedIndividualKey {
			return ErrInvalidRequest
		}
	}
	if len(req.SubSessionIds) == 0 {
		req.SubSessionIds = make([]uint32, len(req.Addresses))
	}
	if len(req.SubSessionIds) != len(req.Addresses) {
		return ErrInvalidRequest
	}
	return nil
}

func (el *EventLoop) runReconfigureParamsWorker(ctx context.Context, session *Session, req ReconfigureRequest) {
	ctx, cancel := context.WithTimeout(ctx, el.deadlines.Reconfigure)
	defer cancel()

	ch := session.beginOperation(OperationReconfigure)
	status, err := el.transport.SetAppConfigurations(ctx, session.Id, req.NewParams, session.ChipId, req.NewParams.Common().UciProtocolVersion)
	if err != nil || status != StatusOk {
		session.endOperation()
		el.sink.RangingReconfigureFailed(session.Handle, MapStatusToReason(status))
		return
	}
	_, ok := awaitCompletion(ctx, ch, el.deadlines.Reconfigure)
	session.endOperation()
	if !ok {
		el.metrics.CommandTimeout(OperationReconfigure)
		el.sink.RangingReconfigureFailed(session.Handle, ReasonUnknown)
		return
	}
	session.setParams(req.NewParams)
	el.sink.RangingReconfigured(session.Handle)
}

func (el *EventLoop) runReconfigureMulticastWorker(ctx context.Context, session *Session, req ReconfigureRequest) {
	ctx, cancel := context.WithTimeout(ctx, el.deadlines.Reconfigure)
	defer cancel()

	subIds := req.SubSessionIds
	if len(subIds) == 0 {
		subIds = make([]uint32, len(req.Addresses))
	}

	ch := session.beginOperation(OperationReconfigure)
	status, err := el.transport.ControllerMulticastListUpdate(ctx, session.Id, req.Action, req.Addresses, subIds, req.SubSessionKeys, session.ChipId)
	if err != nil || status != StatusOk {
		session.endOperation()
		el.sink.RangingReconfigureFailed(session.Handle, MapStatusToReason(status))
		return
	}

	res, ok := awaitCompletion(ctx, ch, el.deadlines.Reconfigure)
	session.endOperation()
	if !ok {
		el.metrics.CommandTimeout(OperationReconfigure)
		el.sink.RangingReconfigureFailed(session.Handle, ReasonUnknown)
		return
	}

	entries, ok := res.entries.([]MulticastUpdateEntry)
	if !ok {
		el.sink.RangingReconfigureFailed(session.Handle, ReasonUnknown)
		return
	}

	isAdd := req.Action == MulticastActionAddShort || req.Action == MulticastActionAdd16Byte || req.Action == MulticastActionAdd32Byte
	for _, entry := range entries {
		if isAdd {
			if entry.Status == MulticastEntryOk {
				session.addControlee(Controlee{Address: entry.Address})
				el.sink.ControleeAdded(session.Handle, entry.Address)
			} else {
				el.sink.ControleeAddFailed(session.Handle, entry.Address, mapMulticastEntryReason(entry.Status))
			}
			continue
		}
		if entry.Status == MulticastEntryOk {
			if c, ok := session.removeControlee(entry.Address); ok && c.FilterEngine != nil {
				_ = c.FilterEngine.Close()
			}
			el.sink.ControleeRemoved(session.Handle, entry.Address)
		} else {
			el.sink.ControleeRemoveFailed(session.Handle, entry.Address, mapMulticastEntryReason(entry.Status))
		}
	}
}

func mapMulticastEntryReason(status MulticastEntryStatus) Reason {
	switch status {
	case MulticastEntryOk:
		return ReasonLocalApi
	case MulticastEntryAddressAlreadyPresent, MulticastEntryAddressNotFound:
		return ReasonBadParameters
	default:
		return ReasonUnknown
	}
}

package uwb

import (
	"sort"
	"sync"
	"time"
)

// Controlee is a peer under a controller in a multi-node session (spec §3).
// FilterEngine is an opaque handle to an AoA post-processing engine (out of
// core per spec §1); it must be Close()'d on removal if non-nil.
type Controlee struct {
	Address      uint64
	FilterEngine FilterEngine
	PoseBinding  PoseBinding
}

// FilterEngine is the out-of-core AoA filter-engine collaborator. Sessions
// hold only this narrow handle; construction and algorithmic behavior live
// outside the core (spec §1 "filter engines for AoA post-processing").
type FilterEngine interface {
	Close() error
}

// PoseBinding is the out-of-core pose-source collaborator (spec §1). The
// default pose source is reference-counted by PoseSource below.
type PoseBinding interface {
	Release()
}

// PoseSource acquires/releases the shared default pose source, reference-
// counted by the number of FiRa sessions that acquired it on construction
// with a default filter type (spec §5 "Shared resources").
type PoseSource interface {
	Acquire() PoseBinding
}

// completionResult is the payload delivered through a session's single-slot
// completion channel when NotificationRouter resolves a pending command
// (spec §9 "Thread-coupled wait on notification").
type completionResult struct {
	Status   Status
	Reason   Reason
	NewState State
	// entries carries per-command extra data: multicast entries,
	// a queried token, or nothing, depending on Operation.
	entries any
}

// Session is the per-session state owned exclusively by SessionTable (spec
// §3 "Ownership"). Every field below is guarded by mu; the only code that
// may mutate it is the EventLoop's command handlers and NotificationRouter,
// and only while holding mu -- this is the "wait-latch" spec §5 refers to.
type Session struct {
	// Immutable identity, safe to read without mu.
	Handle      SessionHandle
	Id          SessionId
	SessionType SessionType
	Protocol    Protocol
	ChipId      ChipId
	Attribution AttributionSource

	mu sync.Mutex

	params Params
	token  SessionToken

	state      State
	lastReason Reason

	stackPriority    uint8
	priorityOverride bool

	controlees []Controlee

	// rxBuffers holds undeliverable-yet payloads per peer, keyed by
	// sequence number, bounded per peer by CommonParams.RxMaxPacketsToStore
	// (spec §3 "rx buffer").
	rxBuffers map[uint64]map[uint16]ReceivedDataInfo

	nextTxSeq uint16
	txInfo    map[uint16]SendDataInfo

	rangingErrorStreakDeadline *time.Time
	nonPrivilegedBgDeadline    *time.Time

	dataDeliveryPermissionCheckNeeded bool
	needsAppConfigUpdate              bool
	needsUwbsTimestampQuery           bool
	acquiredDefaultPose               bool
	hasNonPrivilegedFgAppOrService    bool

	operation Operation

	poseBinding PoseBinding

	// pending is the single-slot completion channel a command handler
	// waits on; nil when no command is in flight. Buffer 1 so
	// NotificationRouter's send never blocks even if the handler already
	// timed out and stopped listening.
	pending chan completionResult
}

// SessionConfig is the set of fields needed to construct a Session, mirroring
// the teacher's SessionConfig-then-NewSession(cfg) pattern.
type SessionConfig struct {
	Handle      SessionHandle
	Id          SessionId
	SessionType SessionType
	Protocol    Protocol
	ChipId      ChipId
	Attribution AttributionSource
	Params      Params
}

// NewSession constructs a Session in its initial Deinit state.
func NewSession(cfg SessionConfig) *Session {
	return &Session{
		Handle:      cfg.Handle,
		Id:          cfg.Id,
		SessionType: cfg.SessionType,
		Protocol:    cfg.Protocol,
		ChipId:      cfg.ChipId,
		Attribution: cfg.Attribution,
		params:      cfg.Params,
		state:       StateDeinit,
		rxBuffers:   make(map[uint64]map[uint16]ReceivedDataInfo),
		txInfo:      make(map[uint16]SendDataInfo),
	}
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Params returns a clone of the session's stored parameters, safe for the
// caller to read without risk of a data race against a concurrent
// reconfigure.
func (s *Session) Params() Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params.Clone()
}

// Token returns the cached SessionToken (zero until InitSession completes).
func (s *Session) Token() SessionToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// StackPriority returns the session's current computed (or overridden)
// priority.
func (s *Session) StackPriority() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stackPriority
}

// HasPriorityOverride reports whether priority is frozen by a caller-
// supplied non-default value.
func (s *Session) HasPriorityOverride() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.priorityOverride
}

// setPriority is called by the admission path on open and by
// AppStateWatcher/start on recomputation (spec §4.7, §4.8).
func (s *Session) setPriority(priority uint8, override bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stackPriority = priority
	s.priorityOverride = override
}

// recomputePriorityLocked updates stackPriority unless priorityOverride is
// set; caller must hold s.mu.
func (s *Session) recomputePriorityLocked(link AttributionLink, foreground bool, policy PolicyOracle) {
	if s.priorityOverride {
		return
	}
	s.stackPriority = computeStackPriority(s.Protocol, link, foreground, policy)
}

// setOperation records the in-flight operation without allocating a
// completion slot, for commands that don't wait on a notification
// (SendData, UpdateDtTagRounds, hybrid-session configuration).
func (s *Session) setOperation(op Operation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.operation = op
}

// beginOperation records the operation about to be issued and allocates a
// fresh completion slot; returns the channel the caller must select on.
// Must be called from the EventLoop goroutine before issuing the UCI
// command (spec §4.4 step 2-3).
func (s *Session) beginOperation(op Operation) chan completionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.operation = op
	ch := make(chan completionResult, 1)
	s.pending = ch
	return ch
}

// endOperation clears the pending slot once a handler stops waiting
// (success, failure, or timeout), so a stray late notification does not
// block on a channel nobody reads -- it is still buffer-1 safe even if not
// cleared, but clearing prevents resolve() from waking a future unrelated
// operation's stale channel reference.
func (s *Session) endOperation() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
}

// resolve is called by NotificationRouter to deliver a completion to
// whichever handler is waiting; it takes s.mu itself only to read the
// pending slot and does not change the session's state (the router applies
// any new state with setState first). Returns false if nothing was waiting
// or the slot was already full, in which case the completion is dropped.
func (s *Session) resolve(res completionResult) bool {
	s.mu.Lock()
	ch := s.pending
	s.mu.Unlock()
	if ch == nil {
		return false
	}
	select {
	case ch <- res:
		return true
	default:
		// Slot already filled (handler already timed out and drained it,
		// or a duplicate notification raced in); drop, matching spec §5's
		// "subsequent notification for a removed session is logged and
		// discarded" posture generalized to the in-flight case.
		return false
	}
}

// setState applies a new lifecycle state; callers hold the invariant that
// this only happens from the EventLoop or from NotificationRouter (spec §3
// "Ownership").
func (s *Session) setState(state State, reason Reason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.lastReason = reason
}

// cacheToken stores the UCI-assigned SessionToken after a successful init
// (spec §4.4 "Open-session handler specifics").
func (s *Session) cacheToken(token SessionToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// setParams replaces the stored Params wholesale; used by reconfigure paths
// that merge new fields in (spec §4.4 "Start-ranging handler specifics").
func (s *Session) setParams(p Params) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params = p
}

// markNeedsAppConfigUpdate flags that a re-apply of app config must precede
// the next UCI command.
func (s *Session) markNeedsAppConfigUpdate(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.needsAppConfigUpdate = v
}

func (s *Session) needsAppConfigUpdateFlag() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.needsAppConfigUpdate
}

// setHasNonPrivilegedFgAppOrService updates the live fg/bg flag
// AppStateWatcher drives (spec §4.7); it never mutates stored Params.
func (s *Session) setHasNonPrivilegedFgAppOrService(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hasNonPrivilegedFgAppOrService = v
}

func (s *Session) hasNonPrivilegedFgAppOrServiceFlag() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasNonPrivilegedFgAppOrService
}

// --- rx buffer (spec §3 invariant, §4.5, §4.6) -----------------------------

// bufferReceivedData stores an inbound payload under (peerAddress, seq),
// enforcing the bounded-per-peer invariant: on overflow, the smallest
// sequence number currently stored is evicted iff the incoming sequence
// number is strictly greater. Returns false if the payload was dropped
// (incoming seq not greater than the current minimum and buffer already
// full).
func (s *Session) bufferReceivedData(info ReceivedDataInfo, maxPerPeer int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	peerBuf, ok := s.rxBuffers[info.PeerAddress]
	if !ok {
		peerBuf = make(map[uint16]ReceivedDataInfo)
		s.rxBuffers[info.PeerAddress] = peerBuf
	}
	if _, exists := peerBuf[info.Sequence]; exists {
		peerBuf[info.Sequence] = info
		return true
	}
	if maxPerPeer > 0 && len(peerBuf) >= maxPerPeer {
		minSeq, found := minKey(peerBuf)
		if !found || info.Sequence <= minSeq {
			return false
		}
		delete(peerBuf, minSeq)
	}
	peerBuf[info.Sequence] = info
	return true
}

// minKey returns the smallest sequence number key present in m.
func minKey(m map[uint16]ReceivedDataInfo) (uint16, bool) {
	first := true
	var min uint16
	for k := range m {
		if first || k < min {
			min = k
			first = false
		}
	}
	return min, !first
}

// drainReceivedData returns and removes all buffered payloads for a peer, in
// ascending sequence-number order (spec §4.6 "flushed ... in ascending
// sequence-number order").
func (s *Session) drainReceivedData(peerAddress uint64) []ReceivedDataInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	peerBuf, ok := s.rxBuffers[peerAddress]
	if !ok || len(peerBuf) == 0 {
		return nil
	}
	out := make([]ReceivedDataInfo, 0, len(peerBuf))
	for _, v := range peerBuf {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	delete(s.rxBuffers, peerAddress)
	return out
}

// --- tx tracking (spec §3 "tx tracking") -----------------------------------

// allocateTxSequence returns the next 16-bit wrapping sequence number and
// records SendDataInfo under it.
func (s *Session) allocateTxSequence(info SendDataInfo) uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.nextTxSeq
	s.nextTxSeq++
	s.txInfo[seq] = info
	return seq
}

func (s *Session) discardTxSequence(seq uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.txInfo, seq)
}

// recordTxAttempt increments the stored txCount for seq and reports the
// updated SendDataInfo plus whether seq was tracked at all. The entry is
// dropped once an attempt succeeds with txCount >= repetitionCount+1;
// a failed attempt leaves it in place (the caller discards it on a
// terminal failure status).
func (s *Session) recordTxAttempt(seq uint16, success bool, repetitionCount uint8) (SendDataInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.txInfo[seq]
	if !ok {
		return SendDataInfo{}, false
	}
	info.TxCount++
	s.txInfo[seq] = info
	retained := !(success && info.TxCount >= repetitionCount+1)
	if !retained {
		delete(s.txInfo, seq)
	}
	return info, true
}

// --- controlees (spec §4.4 "Multicast-list update") ------------------------

func (s *Session) addControlee(c Controlee) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controlees = append(s.controlees, c)
}

func (s *Session) removeControlee(address uint64) (Controlee, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.controlees {
		if c.Address == address {
			s.controlees = append(s.controlees[:i], s.controlees[i+1:]...)
			return c, true
		}
	}
	return Controlee{}, false
}

func (s *Session) hasControlee(address uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.controlees {
		if c.Address == address {
			return true
		}
	}
	return false
}

func (s *Session) controleeList() []Controlee {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Controlee, len(s.controlees))
	copy(out, s.controlees)
	return out
}

// closeControlees releases every controlee's filter engine and pose
// binding; called on session close (spec §3 "Controlee ... destroyed on ...
// session close; each holds an optional filter engine that must be closed
// on removal").
func (s *Session) closeControlees() {
	s.mu.Lock()
	list := s.controlees
	s.controlees = nil
	binding := s.poseBinding
	s.poseBinding = nil
	s.mu.Unlock()
	for _, c := range list {
		if c.FilterEngine != nil {
			_ = c.FilterEngine.Close()
		}
		if c.PoseBinding != nil {
			c.PoseBinding.Release()
		}
	}
	if binding != nil {
		binding.Release()
	}
}

// armRangingErrorStreakDeadline/clear manage the per-session streak timer
// state (spec §4.9); the Clock/Timers component owns actual scheduling and
// calls these to record/clear the logical deadline.
func (s *Session) armRangingErrorStreakDeadline(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rangingErrorStreakDeadline = &t
}

func (s *Session) clearRangingErrorStreakDeadline() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rangingErrorStreakDeadline = nil
}

func (s *Session) armBackgroundAppDeadline(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nonPrivilegedBgDeadline = &t
}

func (s *Session) clearBackgroundAppDeadline() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nonPrivilegedBgDeadline = nil
}

func (s *Session) lastReasonCode() Reason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReason
}

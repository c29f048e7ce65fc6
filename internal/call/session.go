// Package call implements the per-peer call session state machine.
// Each participant drives its own Session from local actions and from
// signaling events arriving over the relay; there is no central call
// record. State is monotonic per call id: once a call id reaches Ended
// no event may transition it again.
package call

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"carelink-backend/internal/domain"
	"carelink-backend/pkg/constants"
)

// State is the local view of the call lifecycle
type State int

const (
	StateIdle State = iota
	StateOutgoing
	StateIncoming
	StateConnected
	StateEnded
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOutgoing:
		return "outgoing"
	case StateIncoming:
		return "incoming"
	case StateConnected:
		return "connected"
	case StateEnded:
		return "ended"
	}
	return "unknown"
}

// Signaling event names carried over the relay
const (
	EventInvite = "call_invite"
	EventAnswer = "call_answer"
	EventEnd    = "call_end"
)

// InvitePayload is the data of a call_invite event
type InvitePayload struct {
	CallID   uuid.UUID       `json:"call_id"`
	FromID   string          `json:"from_id"`
	FromName string          `json:"from_name"`
	CallType domain.CallType `json:"call_type"`
}

// AnswerPayload is the data of a call_answer event
type AnswerPayload struct {
	CallID uuid.UUID `json:"call_id"`
	FromID string    `json:"from_id"`
}

// EndPayload is the data of a call_end event
type EndPayload struct {
	CallID uuid.UUID `json:"call_id"`
	FromID string    `json:"from_id"`
}

// Emitter sends a signaling event toward a peer identity
type Emitter interface {
	Emit(to, event string, data interface{})
}

// EmitterFunc adapts a function to the Emitter interface
type EmitterFunc func(to, event string, data interface{})

// Emit implements Emitter
func (f EmitterFunc) Emit(to, event string, data interface{}) { f(to, event, data) }

var (
	// ErrInvalidTransition is returned when a local action is not
	// legal in the current state.
	ErrInvalidTransition = errors.New("call: invalid transition")

	// ErrBusy is returned when starting a call while another is live
	ErrBusy = errors.New("call: session busy")
)

type stopper interface {
	Stop() bool
}

// Config holds the session dependencies
type Config struct {
	Self        string
	SelfName    string
	Media       Media
	Emitter     Emitter
	RingTimeout time.Duration
	OnState     func(State) // optional, for ringing indicators etc.
}

// Session is the state machine of one participant. A Session handles
// one call at a time; Reset returns it to Idle after a call ended.
type Session struct {
	mu sync.Mutex

	self        string
	selfName    string
	media       Media
	emitter     Emitter
	ringTimeout time.Duration
	onState     func(State)
	after       func(time.Duration, func()) stopper

	state     State
	callID    uuid.UUID
	peer      string
	callType  domain.CallType
	startedAt time.Time
	endedAt   time.Time
	ringTimer stopper
	mediaHeld bool
	ended     map[uuid.UUID]struct{}

	now func() time.Time
}

// NewSession creates an Idle session for one identity
func NewSession(cfg Config) *Session {
	if cfg.Media == nil {
		cfg.Media = NopMedia{}
	}
	if cfg.RingTimeout <= 0 {
		cfg.RingTimeout = constants.CallRingTimeout
	}
	return &Session{
		self:        cfg.Self,
		selfName:    cfg.SelfName,
		media:       cfg.Media,
		emitter:     cfg.Emitter,
		ringTimeout: cfg.RingTimeout,
		onState:     cfg.OnState,
		after: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
		state: StateIdle,
		ended: make(map[uuid.UUID]struct{}),
		now:   time.Now,
	}
}

// State returns the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CallID returns the id of the current call, or uuid.Nil when Idle
func (s *Session) CallID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callID
}

// Peer returns the identity of the current call peer
func (s *Session) Peer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peer
}

// CallType returns the media type of the current call
func (s *Session) CallType() domain.CallType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callType
}

// Snapshot materializes the current call as a shared record, or nil
// when the session is Idle.
func (s *Session) Snapshot() *domain.CallSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateIdle {
		return nil
	}
	cs := &domain.CallSession{
		CallID:       s.callID,
		Participants: [2]string{s.self, s.peer},
		CallType:     s.callType,
		Status:       domain.CallStatusCalling,
		StartedAt:    s.startedAt,
	}
	switch s.state {
	case StateConnected:
		cs.Status = domain.CallStatusConnected
	case StateEnded:
		cs.Status = domain.CallStatusEnded
		endedAt := s.endedAt
		cs.EndedAt = &endedAt
	}
	return cs
}

// Start places an outgoing call to peer. Media is acquired on entry to
// Outgoing; on acquisition failure the session stays Idle.
func (s *Session) Start(peer string, callType domain.CallType) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrBusy
	}
	if !callType.Valid() {
		s.mu.Unlock()
		return ErrInvalidTransition
	}
	if err := s.media.Acquire(callType); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mediaHeld = true
	s.state = StateOutgoing
	s.callID = uuid.New()
	s.peer = peer
	s.callType = callType
	s.startedAt = s.now()
	s.armRingTimerLocked()

	callID := s.callID
	s.mu.Unlock()

	s.notify(StateOutgoing)
	s.emitter.Emit(peer, EventInvite, InvitePayload{
		CallID:   callID,
		FromID:   s.self,
		FromName: s.selfName,
		CallType: callType,
	})
	return nil
}

// HandleInvite consumes a call_invite event.
//
// From Idle it transitions to Incoming and surfaces ringing. While
// Outgoing to the same peer it applies the mutual-call tie-break: the
// lexicographically smaller identity abandons its own call and becomes
// the effective callee, so both peers converge on a single call — the
// one created by the larger identity. All other cases are ignored.
func (s *Session) HandleInvite(p InvitePayload) {
	s.mu.Lock()
	if _, done := s.ended[p.CallID]; done {
		s.mu.Unlock()
		return
	}
	if !p.CallType.Valid() || p.FromID == "" {
		s.mu.Unlock()
		return
	}

	switch s.state {
	case StateIdle:
		s.adoptIncomingLocked(p)
		s.mu.Unlock()
		s.notify(StateIncoming)
		return
	case StateOutgoing:
		if p.FromID == s.peer && s.self < p.FromID {
			// Abandon the local outgoing call without signaling;
			// the peer discards our invite by the mirror rule.
			s.ended[s.callID] = struct{}{}
			s.disarmRingTimerLocked()
			s.releaseMediaLocked()
			s.adoptIncomingLocked(p)
			s.mu.Unlock()
			s.notify(StateIncoming)
			return
		}
	}
	s.mu.Unlock()
}

func (s *Session) adoptIncomingLocked(p InvitePayload) {
	s.state = StateIncoming
	s.callID = p.CallID
	s.peer = p.FromID
	s.callType = p.CallType
	s.startedAt = s.now()
	s.armRingTimerLocked()
}

// Answer accepts an incoming call. Media is acquired on entry to
// Connected; on acquisition failure the call ends with call_end.
func (s *Session) Answer() error {
	s.mu.Lock()
	if s.state != StateIncoming {
		s.mu.Unlock()
		return ErrInvalidTransition
	}
	if err := s.media.Acquire(s.callType); err != nil {
		peer, callID := s.peer, s.callID
		s.endLocked()
		s.mu.Unlock()
		s.notify(StateEnded)
		s.emitter.Emit(peer, EventEnd, EndPayload{CallID: callID, FromID: s.self})
		return err
	}
	s.mediaHeld = true
	s.disarmRingTimerLocked()
	s.state = StateConnected
	peer, callID := s.peer, s.callID
	s.mu.Unlock()

	s.notify(StateConnected)
	s.emitter.Emit(peer, EventAnswer, AnswerPayload{CallID: callID, FromID: s.self})
	return nil
}

// HandleAnswer consumes a call_answer event for the outgoing call
func (s *Session) HandleAnswer(p AnswerPayload) {
	s.mu.Lock()
	if s.state != StateOutgoing || p.CallID != s.callID {
		s.mu.Unlock()
		return
	}
	s.disarmRingTimerLocked()
	s.state = StateConnected
	s.mu.Unlock()
	s.notify(StateConnected)
}

// Reject declines an incoming call
func (s *Session) Reject() error {
	return s.hangup(StateIncoming)
}

// Cancel withdraws an outgoing call before it was answered
func (s *Session) Cancel() error {
	return s.hangup(StateOutgoing)
}

// End hangs up a connected call
func (s *Session) End() error {
	return s.hangup(StateConnected)
}

func (s *Session) hangup(from State) error {
	s.mu.Lock()
	if s.state != from {
		s.mu.Unlock()
		return ErrInvalidTransition
	}
	peer, callID := s.peer, s.callID
	s.endLocked()
	s.mu.Unlock()

	s.notify(StateEnded)
	s.emitter.Emit(peer, EventEnd, EndPayload{CallID: callID, FromID: s.self})
	return nil
}

// HandleEnd consumes a call_end event from the peer
func (s *Session) HandleEnd(p EndPayload) {
	s.mu.Lock()
	if p.CallID != s.callID || s.state == StateIdle || s.state == StateEnded {
		s.mu.Unlock()
		return
	}
	s.endLocked()
	s.mu.Unlock()
	s.notify(StateEnded)
}

// HandlePeerDisconnect treats the peer dropping all connections as
// equivalent to receiving call_end for the live call.
func (s *Session) HandlePeerDisconnect(identity string) {
	s.mu.Lock()
	if identity != s.peer {
		s.mu.Unlock()
		return
	}
	switch s.state {
	case StateOutgoing, StateIncoming, StateConnected:
		s.endLocked()
		s.mu.Unlock()
		s.notify(StateEnded)
	default:
		s.mu.Unlock()
	}
}

// Reset returns an Ended session to Idle so a new call can start
func (s *Session) Reset() {
	s.mu.Lock()
	if s.state != StateEnded {
		s.mu.Unlock()
		return
	}
	s.state = StateIdle
	s.callID = uuid.Nil
	s.peer = ""
	s.mu.Unlock()
	s.notify(StateIdle)
}

// endLocked performs every entry into Ended: it stamps the call id as
// terminal, disarms the ring timer, and releases media unconditionally.
func (s *Session) endLocked() {
	s.ended[s.callID] = struct{}{}
	s.disarmRingTimerLocked()
	s.releaseMediaLocked()
	s.endedAt = s.now()
	s.state = StateEnded
}

func (s *Session) releaseMediaLocked() {
	if s.mediaHeld {
		s.media.Release()
		s.mediaHeld = false
	}
}

func (s *Session) armRingTimerLocked() {
	s.disarmRingTimerLocked()
	callID := s.callID
	s.ringTimer = s.after(s.ringTimeout, func() { s.ringTimedOut(callID) })
}

func (s *Session) disarmRingTimerLocked() {
	if s.ringTimer != nil {
		s.ringTimer.Stop()
		s.ringTimer = nil
	}
}

// ringTimedOut forces an unanswered call to Ended and notifies the peer
func (s *Session) ringTimedOut(callID uuid.UUID) {
	s.mu.Lock()
	if s.callID != callID || (s.state != StateOutgoing && s.state != StateIncoming) {
		s.mu.Unlock()
		return
	}
	peer := s.peer
	s.endLocked()
	s.mu.Unlock()

	s.notify(StateEnded)
	s.emitter.Emit(peer, EventEnd, EndPayload{CallID: callID, FromID: s.self})
}

func (s *Session) notify(state State) {
	if s.onState != nil {
		s.onState(state)
	}
}

package game

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"carelink-backend/internal/domain"
	"carelink-backend/pkg/constants"
)

// Relay event names for game coordination
const (
	EventInvite  = "game_invite"
	EventAccept  = "game_accept"
	EventDecline = "game_decline"
	EventGame    = "game_event"
)

// Invite resolutions
const (
	ResolutionAccepted = "accepted"
	ResolutionDeclined = "declined"
	ResolutionTimeout  = "timeout"
)

// InviteData is the wire payload of a game_invite event
type InviteData struct {
	GameID   uuid.UUID       `json:"game_id"`
	FromID   string          `json:"from_id"`
	FromName string          `json:"from_name"`
	GameType domain.GameType `json:"game_type"`
}

// AcceptData is the wire payload of a game_accept event
type AcceptData struct {
	GameID uuid.UUID `json:"game_id"`
	FromID string    `json:"from_id"`
}

// DeclineData is the wire payload of a game_decline event.
// Reason is "timeout" when the invite expired unresolved.
type DeclineData struct {
	GameID uuid.UUID `json:"game_id"`
	FromID string    `json:"from_id,omitempty"`
	Reason string    `json:"reason,omitempty"`
}

// LeaveData announces a participant leaving a session
type LeaveData struct {
	By string `json:"by"`
}

var (
	// ErrUnknownInvite is returned for accept/decline of a missing or
	// already resolved invite.
	ErrUnknownInvite = errors.New("game: unknown invite")

	// ErrNotInvitee is returned when someone other than the invitee
	// tries to resolve an invite.
	ErrNotInvitee = errors.New("game: not the invitee")

	// ErrInvalidInvite is returned for malformed invite parameters
	ErrInvalidInvite = errors.New("game: invalid invite")
)

// Hooks are optional observation callbacks, used for metrics
type Hooks struct {
	InviteResolved func(resolution string)
	GameStarted    func(gameType string)
	GameFinished   func(gameType, outcome string)
}

type stopper interface {
	Stop() bool
}

// coordinator owns the canonical state of one running session
type coordinator struct {
	mu      sync.Mutex
	session domain.GameSession
	engine  Engine
	done    bool
}

// Manager owns pending invites and running session coordinators.
// One Manager serves the whole hub.
type Manager struct {
	mu         sync.Mutex
	invites    map[uuid.UUID]*pendingInvite
	sessions   map[uuid.UUID]*coordinator
	byIdentity map[string]map[uuid.UUID]struct{}

	sender    Sender
	inviteTTL time.Duration
	hooks     Hooks
	now       func() time.Time
	after     func(time.Duration, func()) stopper
}

type pendingInvite struct {
	invite domain.GameInvite
	timer  stopper
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithInviteTTL overrides the invite timeout
func WithInviteTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) { m.inviteTTL = ttl }
}

// WithHooks installs observation callbacks
func WithHooks(h Hooks) ManagerOption {
	return func(m *Manager) { m.hooks = h }
}

// WithManagerClock overrides the time source, for tests
func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager relaying through sender
func NewManager(sender Sender, opts ...ManagerOption) *Manager {
	m := &Manager{
		invites:    make(map[uuid.UUID]*pendingInvite),
		sessions:   make(map[uuid.UUID]*coordinator),
		byIdentity: make(map[string]map[uuid.UUID]struct{}),
		sender:     sender,
		inviteTTL:  constants.GameInviteTimeout,
		now:        time.Now,
		after: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Invite creates a pending invite and signals the invitee. An invite
// left unresolved past the timeout is cancelled on the inviter's side;
// re-sending after that is a brand-new invite.
func (m *Manager) Invite(fromID, fromName, toID string, gameType domain.GameType) (*domain.GameInvite, error) {
	if fromID == "" || toID == "" || fromID == toID || !gameType.Valid() {
		return nil, ErrInvalidInvite
	}

	now := m.now()
	invite := domain.GameInvite{
		GameID:    uuid.New(),
		FromID:    fromID,
		FromName:  fromName,
		ToID:      toID,
		GameType:  gameType,
		CreatedAt: now,
		ExpiresAt: now.Add(m.inviteTTL),
	}

	pending := &pendingInvite{invite: invite}
	m.mu.Lock()
	m.invites[invite.GameID] = pending
	pending.timer = m.after(m.inviteTTL, func() { m.inviteTimedOut(invite.GameID) })
	m.mu.Unlock()

	m.sender.Send(toID, EventInvite, InviteData{
		GameID:   invite.GameID,
		FromID:   fromID,
		FromName: fromName,
		GameType: gameType,
	})
	return &invite, nil
}

// Accept resolves an invite into a running session: the inviter becomes
// host, the invitee guest. The inviter is signalled with game_accept and
// both participants receive the engine's opening events.
func (m *Manager) Accept(gameID uuid.UUID, by string) error {
	m.mu.Lock()
	pending, ok := m.invites[gameID]
	if !ok {
		m.mu.Unlock()
		return ErrUnknownInvite
	}
	invite := pending.invite
	if invite.ToID != by {
		m.mu.Unlock()
		return ErrNotInvitee
	}
	if m.now().After(invite.ExpiresAt) {
		// Lazy expiry in case the timer has not fired yet.
		m.removeInviteLocked(gameID)
		m.mu.Unlock()
		m.resolveInvite(ResolutionTimeout)
		return ErrUnknownInvite
	}
	m.removeInviteLocked(gameID)

	session := domain.GameSession{
		GameID:    gameID,
		HostID:    invite.FromID,
		GuestID:   invite.ToID,
		GameType:  invite.GameType,
		StartedAt: m.now(),
	}
	coord := &coordinator{session: session, engine: m.newEngine(session)}
	m.sessions[gameID] = coord
	m.trackLocked(session.HostID, gameID)
	m.trackLocked(session.GuestID, gameID)
	m.mu.Unlock()

	m.resolveInvite(ResolutionAccepted)
	if m.hooks.GameStarted != nil {
		m.hooks.GameStarted(string(session.GameType))
	}

	m.sender.Send(session.HostID, EventAccept, AcceptData{GameID: gameID, FromID: by})

	coord.mu.Lock()
	outs := coord.engine.Start()
	coord.mu.Unlock()
	m.emit(gameID, outs)
	return nil
}

// Decline resolves an invite negatively and signals the inviter
func (m *Manager) Decline(gameID uuid.UUID, by string) error {
	m.mu.Lock()
	pending, ok := m.invites[gameID]
	if !ok {
		m.mu.Unlock()
		return ErrUnknownInvite
	}
	invite := pending.invite
	if invite.ToID != by {
		m.mu.Unlock()
		return ErrNotInvitee
	}
	m.removeInviteLocked(gameID)
	m.mu.Unlock()

	m.resolveInvite(ResolutionDeclined)
	m.sender.Send(invite.FromID, EventDecline, DeclineData{GameID: gameID, FromID: by})
	return nil
}

// HandleEvent routes one game_event from a participant through the
// session coordinator. Events for unknown sessions, from outsiders, or
// rejected by the engine are ignored. It reports the session's game
// type and whether the event reached an engine.
func (m *Manager) HandleEvent(from string, ev WireEvent) (string, bool) {
	m.mu.Lock()
	coord, ok := m.sessions[ev.GameID]
	m.mu.Unlock()
	if !ok {
		return "", false
	}

	coord.mu.Lock()
	if coord.done || !coord.session.Participant(from) {
		coord.mu.Unlock()
		return "", false
	}
	gameType := string(coord.session.GameType)
	if ev.Type == TypeLeave {
		coord.mu.Unlock()
		m.endSession(ev.GameID, from)
		return gameType, true
	}
	outs := coord.engine.Handle(from, ev.Type, ev.Payload)
	coord.mu.Unlock()

	m.emit(ev.GameID, outs)
	return gameType, true
}

// HandleDisconnect treats a participant dropping offline as leaving
// every session it is part of.
func (m *Manager) HandleDisconnect(identity string) {
	m.mu.Lock()
	ids := make([]uuid.UUID, 0, len(m.byIdentity[identity]))
	for gameID := range m.byIdentity[identity] {
		ids = append(ids, gameID)
	}
	m.mu.Unlock()

	for _, gameID := range ids {
		m.endSession(gameID, identity)
	}
}

// ActiveSessions returns the number of running sessions
func (m *Manager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// endSession tears a session down on behalf of the leaving identity and
// signals the surviving peer. No outcome is persisted.
func (m *Manager) endSession(gameID uuid.UUID, by string) {
	m.mu.Lock()
	coord, ok := m.sessions[gameID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.sessions, gameID)
	m.untrackLocked(coord.session.HostID, gameID)
	m.untrackLocked(coord.session.GuestID, gameID)
	m.mu.Unlock()

	coord.mu.Lock()
	coord.done = true
	peer := coord.session.Peer(by)
	gameType := coord.session.GameType
	coord.mu.Unlock()

	if peer != "" {
		m.emit(gameID, []Outbound{{To: peer, Type: TypeLeave, Data: LeaveData{By: by}}})
	}
	if m.hooks.GameFinished != nil {
		m.hooks.GameFinished(string(gameType), "abandoned")
	}
}

func (m *Manager) inviteTimedOut(gameID uuid.UUID) {
	m.mu.Lock()
	pending, ok := m.invites[gameID]
	if !ok {
		m.mu.Unlock()
		return
	}
	invite := pending.invite
	delete(m.invites, gameID)
	m.mu.Unlock()

	m.resolveInvite(ResolutionTimeout)
	m.sender.Send(invite.FromID, EventDecline, DeclineData{GameID: gameID, Reason: ResolutionTimeout})
}

func (m *Manager) newEngine(session domain.GameSession) Engine {
	switch session.GameType {
	case domain.GameTypeTicTacToe:
		return NewTicTacToe(session.HostID, session.GuestID)
	case domain.GameTypeRockPaperScissors:
		return NewRockPaperScissors(session.HostID, session.GuestID)
	default:
		return NewNumberGuess(session.HostID, session.GuestID)
	}
}

// emit wraps engine outbounds into game_event envelopes
func (m *Manager) emit(gameID uuid.UUID, outs []Outbound) {
	for _, out := range outs {
		payload, err := json.Marshal(out.Data)
		if err != nil {
			continue
		}
		m.sender.Send(out.To, EventGame, WireEvent{
			GameID:    gameID,
			GameEvent: domain.GameEvent{Type: out.Type, Payload: payload},
		})
	}
}

func (m *Manager) removeInviteLocked(gameID uuid.UUID) {
	if pending, ok := m.invites[gameID]; ok {
		if pending.timer != nil {
			pending.timer.Stop()
		}
		delete(m.invites, gameID)
	}
}

func (m *Manager) trackLocked(identity string, gameID uuid.UUID) {
	set, ok := m.byIdentity[identity]
	if !ok {
		set = make(map[uuid.UUID]struct{})
		m.byIdentity[identity] = set
	}
	set[gameID] = struct{}{}
}

func (m *Manager) untrackLocked(identity string, gameID uuid.UUID) {
	if set, ok := m.byIdentity[identity]; ok {
		delete(set, gameID)
		if len(set) == 0 {
			delete(m.byIdentity, identity)
		}
	}
}

func (m *Manager) resolveInvite(resolution string) {
	if m.hooks.InviteResolved != nil {
		m.hooks.InviteResolved(resolution)
	}
}

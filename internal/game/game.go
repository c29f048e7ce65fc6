// Package game implements the invite/accept handshake and the three
// turn-based mini-games. Session state is owned centrally by a
// per-session coordinator spawned when an invite is accepted: it
// validates moves, holds any secret state (the number-guess target),
// and relays only server-confirmed events, so peers render confirmed
// state instead of inferring it independently.
package game

import (
	"encoding/json"

	"github.com/google/uuid"

	"carelink-backend/internal/domain"
)

// Sender delivers an event toward a peer identity via the relay
type Sender interface {
	Send(to, event string, data interface{})
}

// SenderFunc adapts a function to the Sender interface
type SenderFunc func(to, event string, data interface{})

// Send implements Sender
func (f SenderFunc) Send(to, event string, data interface{}) { f(to, event, data) }

// Outbound is a server-confirmed game event addressed to one participant
type Outbound struct {
	To   string
	Type string
	Data interface{}
}

// Engine is one concrete game riding a session. Handle must ignore
// malformed or illegal input defensively and return no events for it;
// the relay performs no schema validation on its behalf.
type Engine interface {
	// Start returns the events that open the first round.
	Start() []Outbound
	// Handle processes one event from a participant.
	Handle(from, eventType string, payload json.RawMessage) []Outbound
}

// WireEvent is the data carried by a game_event envelope between the
// relay and clients: the session the event belongs to plus the opaque
// peer event itself.
type WireEvent struct {
	GameID uuid.UUID `json:"game_id"`
	domain.GameEvent
}

// In-game event types understood or emitted by the coordinators
const (
	TypeMove          = "move"
	TypeReset         = "reset"
	TypeGuess         = "guess"
	TypeLeave         = "leave"
	TypeRoundStart    = "round_start"
	TypeMoveCommitted = "move_committed"
	TypeResult        = "result"
	TypeGuessResult   = "guess_result"
)

// both addresses an outbound event to both participants
func both(host, guest, eventType string, data interface{}) []Outbound {
	return []Outbound{
		{To: host, Type: eventType, Data: data},
		{To: guest, Type: eventType, Data: data},
	}
}

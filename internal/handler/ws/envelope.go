package ws

import (
	"encoding/json"
	"time"
)

// Relay event names carried in envelopes. Call and game coordination
// events reuse the names defined by their packages.
const (
	EventMessage = "message"
	EventTyping  = "typing"
)

// Envelope is the wire frame of every relayed event. Data is opaque to
// the relay for message and typing events; call and game events are
// interpreted server-side.
type Envelope struct {
	Event string          `json:"event"`
	To    string          `json:"to,omitempty"`
	From  string          `json:"from,omitempty"`
	TS    time.Time       `json:"ts"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// callInviteRequest is the client payload when placing a call
type callInviteRequest struct {
	CallType string `json:"call_type"`
}

// gameInviteRequest is the client payload when offering a game
type gameInviteRequest struct {
	GameType string `json:"game_type"`
}

// gameRef identifies a pending invite in accept and decline payloads
type gameRef struct {
	GameID string `json:"game_id"`
}

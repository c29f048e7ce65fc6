package domain

import (
	"time"

	"github.com/google/uuid"
)

// CallType distinguishes voice-only from video calls
type CallType string

const (
	CallTypeVoice CallType = "voice"
	CallTypeVideo CallType = "video"
)

// Valid reports whether the call type is one of the known kinds
func (t CallType) Valid() bool {
	return t == CallTypeVoice || t == CallTypeVideo
}

// CallStatus is the lifecycle status of a call.
// Status is monotonic: Calling -> Connected -> Ended, or Calling -> Ended.
type CallStatus string

const (
	CallStatusCalling   CallStatus = "calling"
	CallStatusConnected CallStatus = "connected"
	CallStatusEnded     CallStatus = "ended"
)

// CallSession represents a call between exactly two participants.
// Once Ended, a session is never reopened.
type CallSession struct {
	CallID       uuid.UUID  `json:"call_id"`
	Participants [2]string  `json:"participants"`
	CallType     CallType   `json:"call_type"`
	Status       CallStatus `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
}

// Peer returns the other participant of the session, or "" if
// identity is not a participant.
func (s *CallSession) Peer(identity string) string {
	switch identity {
	case s.Participants[0]:
		return s.Participants[1]
	case s.Participants[1]:
		return s.Participants[0]
	}
	return ""
}

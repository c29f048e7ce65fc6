package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// GameType identifies one of the supported mini-games
type GameType string

const (
	GameTypeTicTacToe         GameType = "tictactoe"
	GameTypeRockPaperScissors GameType = "rps"
	GameTypeNumberGuess       GameType = "numberguess"
)

// Valid reports whether the game type is one of the known kinds
func (t GameType) Valid() bool {
	switch t {
	case GameTypeTicTacToe, GameTypeRockPaperScissors, GameTypeNumberGuess:
		return true
	}
	return false
}

// GameInvite is an ephemeral invitation from one identity to another.
// Exactly one of accept, decline, or timeout resolves it.
type GameInvite struct {
	GameID    uuid.UUID `json:"game_id"`
	FromID    string    `json:"from_id"`
	FromName  string    `json:"from_name"`
	ToID      string    `json:"to_id"`
	GameType  GameType  `json:"game_type"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// GameSession is the canonical record of one running game.
// Host is the inviter and holds no secret locally; any
// single-source-of-truth state (e.g. the number-guess target)
// lives in the session coordinator.
type GameSession struct {
	GameID    uuid.UUID `json:"game_id"`
	HostID    string    `json:"host_id"`
	GuestID   string    `json:"guest_id"`
	GameType  GameType  `json:"game_type"`
	StartedAt time.Time `json:"started_at"`
}

// Peer returns the other participant of the session, or "" if
// identity is not a participant.
func (s *GameSession) Peer(identity string) string {
	switch identity {
	case s.HostID:
		return s.GuestID
	case s.GuestID:
		return s.HostID
	}
	return ""
}

// Participant reports whether identity belongs to the session
func (s *GameSession) Participant(identity string) bool {
	return identity == s.HostID || identity == s.GuestID
}

// GameEvent is the opaque envelope exchanged between game peers.
// The relay never inspects Payload.
type GameEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// GuessVerdict is the host-validated answer to a number guess
type GuessVerdict string

const (
	VerdictTooHigh GuessVerdict = "too_high"
	VerdictTooLow  GuessVerdict = "too_low"
	VerdictCorrect GuessVerdict = "correct"
)

// GuessResult is one entry of the number-guess append-only log,
// identical on both peers.
type GuessResult struct {
	Number      int          `json:"number"`
	SubmittedBy string       `json:"submitted_by"`
	Verdict     GuessVerdict `json:"verdict"`
	Completed   bool         `json:"completed"`
}

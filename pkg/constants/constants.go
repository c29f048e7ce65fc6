// Package constants defines application-wide constants for timeouts, limits, and durations.
package constants

import "time"

// Time-related constants
const (
	// DefaultTimeout is the default timeout for most operations
	DefaultTimeout = 30 * time.Second

	// WebSocketPingInterval is the interval for WebSocket ping/pong
	WebSocketPingInterval = 60 * time.Second

	// WebSocketWriteTimeout is the per-frame write deadline
	WebSocketWriteTimeout = 10 * time.Second

	// GracefulShutdownTimeout is the timeout for graceful server shutdown
	GracefulShutdownTimeout = 30 * time.Second
)

// JWT-related constants
const (
	// AccessTokenExpiry is the default access token lifetime
	AccessTokenExpiry = 15 * time.Minute

	// RefreshTokenExpiry is the default refresh token lifetime
	RefreshTokenExpiry = 24 * time.Hour
)

// Call-related constants
const (
	// CallRingTimeout bounds how long an unanswered call may ring
	// on either side before it is forced to end.
	CallRingTimeout = 45 * time.Second

	// CallStatusCalling indicates a call is waiting to be answered
	CallStatusCalling = "calling"

	// CallStatusConnected indicates a call is in progress
	CallStatusConnected = "connected"

	// CallStatusEnded indicates a call has ended
	CallStatusEnded = "ended"

	// CallTypeVoice indicates a voice-only call
	CallTypeVoice = "voice"

	// CallTypeVideo indicates a video call
	CallTypeVideo = "video"
)

// Game-related constants
const (
	// GameInviteTimeout bounds how long a game invite stays pending
	// before it resolves as timed out on the inviter's side.
	GameInviteTimeout = 60 * time.Second

	// GameTypeTicTacToe is the 3x3 turn-based board game
	GameTypeTicTacToe = "tictactoe"

	// GameTypeRockPaperScissors is the simultaneous-choice game
	GameTypeRockPaperScissors = "rps"

	// GameTypeNumberGuess is the cooperative guessing game
	GameTypeNumberGuess = "numberguess"

	// NumberGuessMin and NumberGuessMax bound the secret target range
	NumberGuessMin = 1
	NumberGuessMax = 100
)

// Presence constants
const (
	// PresenceTTL is how long a presence key survives without refresh
	PresenceTTL = 5 * time.Minute

	// UserStatusOnline indicates a user has at least one live connection
	UserStatusOnline = "online"

	// UserStatusOffline indicates a user has no live connections
	UserStatusOffline = "offline"
)

// Message constants
const (
	// MaxMessageLength is the maximum allowed chat message length
	MaxMessageLength = 10000

	// MessageTypeText is a plain text chat message
	MessageTypeText = "text"

	// MessageTypeImage is an image reference message
	MessageTypeImage = "image"
)

// Pagination constants
const (
	// DefaultPageSize is the default number of items per page
	DefaultPageSize = 20

	// MaxPageSize is the maximum number of items per page
	MaxPageSize = 100
)

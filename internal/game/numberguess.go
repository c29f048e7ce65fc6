package game

import (
	"encoding/json"
	"math/rand"

	"carelink-backend/internal/domain"
	"carelink-backend/pkg/constants"
)

// NGGuess is the payload of a guess event
type NGGuess struct {
	Number int `json:"number"`
}

// NumberGuess is the cooperative guessing game. The secret target is
// generated at session start and lives only in the coordinator; it is
// never transmitted. Both peers receive the identical result stream
// and build the same append-only log.
type NumberGuess struct {
	host      string
	guest     string
	target    int
	completed bool
	log       []domain.GuessResult
}

// NumberGuessOption configures a NumberGuess
type NumberGuessOption func(*NumberGuess)

// WithTarget fixes the secret target, for tests
func WithTarget(target int) NumberGuessOption {
	return func(g *NumberGuess) { g.target = target }
}

// NewNumberGuess creates a fresh game with a random target in [1,100]
func NewNumberGuess(host, guest string, opts ...NumberGuessOption) *NumberGuess {
	g := &NumberGuess{
		host:   host,
		guest:  guest,
		target: rand.Intn(constants.NumberGuessMax-constants.NumberGuessMin+1) + constants.NumberGuessMin,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Start implements Engine
func (g *NumberGuess) Start() []Outbound {
	return both(g.host, g.guest, TypeRoundStart, struct {
		Min int `json:"min"`
		Max int `json:"max"`
	}{constants.NumberGuessMin, constants.NumberGuessMax})
}

// Handle implements Engine. Guesses after completion are ignored.
func (g *NumberGuess) Handle(from, eventType string, payload json.RawMessage) []Outbound {
	if eventType != TypeGuess {
		return nil
	}
	if g.completed || (from != g.host && from != g.guest) {
		return nil
	}
	var guess NGGuess
	if err := json.Unmarshal(payload, &guess); err != nil {
		return nil
	}
	if guess.Number < constants.NumberGuessMin || guess.Number > constants.NumberGuessMax {
		return nil
	}

	result := domain.GuessResult{Number: guess.Number, SubmittedBy: from}
	switch {
	case guess.Number > g.target:
		result.Verdict = domain.VerdictTooHigh
	case guess.Number < g.target:
		result.Verdict = domain.VerdictTooLow
	default:
		result.Verdict = domain.VerdictCorrect
		result.Completed = true
		g.completed = true
	}

	g.log = append(g.log, result)
	return both(g.host, g.guest, TypeGuessResult, result)
}

// Completed reports whether the target has been found
func (g *NumberGuess) Completed() bool { return g.completed }

// Log returns the append-only result log
func (g *NumberGuess) Log() []domain.GuessResult {
	return append([]domain.GuessResult(nil), g.log...)
}

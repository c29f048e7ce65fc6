package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carelink-backend/internal/domain"
	"carelink-backend/pkg/constants"
)

func ngGuess(t *testing.T, g *NumberGuess, from string, number int) []Outbound {
	t.Helper()
	return g.Handle(from, TypeGuess, mustJSON(t, NGGuess{Number: number}))
}

func TestNumberGuessVerdictSequence(t *testing.T) {
	g := NewNumberGuess("alice", "bob", WithTarget(57))
	g.Start()

	steps := []struct {
		from    string
		number  int
		verdict domain.GuessVerdict
		done    bool
	}{
		{"alice", 80, domain.VerdictTooHigh, false},
		{"bob", 10, domain.VerdictTooLow, false},
		{"alice", 57, domain.VerdictCorrect, true},
	}

	for _, step := range steps {
		outs := ngGuess(t, g, step.from, step.number)
		require.Len(t, outs, 2, "both peers see every verdict")
		for _, out := range outs {
			assert.Equal(t, TypeGuessResult, out.Type)
			result := out.Data.(domain.GuessResult)
			assert.Equal(t, step.number, result.Number)
			assert.Equal(t, step.from, result.SubmittedBy)
			assert.Equal(t, step.verdict, result.Verdict)
			assert.Equal(t, step.done, result.Completed)
		}
	}

	assert.True(t, g.Completed())
	assert.Empty(t, ngGuess(t, g, "bob", 57), "completed game ignores guesses")

	log := g.Log()
	require.Len(t, log, 3)
	assert.Equal(t, domain.VerdictCorrect, log[2].Verdict)
}

func TestNumberGuessIgnoresInvalidGuesses(t *testing.T) {
	g := NewNumberGuess("alice", "bob", WithTarget(42))
	g.Start()

	assert.Empty(t, ngGuess(t, g, "carol", 42), "outsider")
	assert.Empty(t, ngGuess(t, g, "alice", constants.NumberGuessMin-1), "below range")
	assert.Empty(t, ngGuess(t, g, "alice", constants.NumberGuessMax+1), "above range")
	assert.Empty(t, g.Log())
}

func TestNumberGuessTargetStaysInRange(t *testing.T) {
	for i := 0; i < 50; i++ {
		g := NewNumberGuess("alice", "bob")
		assert.GreaterOrEqual(t, g.target, constants.NumberGuessMin)
		assert.LessOrEqual(t, g.target, constants.NumberGuessMax)
	}
}

func TestNumberGuessStartAnnouncesBounds(t *testing.T) {
	g := NewNumberGuess("alice", "bob", WithTarget(42))

	outs := g.Start()
	require.Len(t, outs, 2)
	assert.Equal(t, "alice", outs[0].To)
	assert.Equal(t, "bob", outs[1].To)
	for _, out := range outs {
		assert.Equal(t, TypeRoundStart, out.Type)
	}
}

package game

import (
	"encoding/json"
)

// Rock-paper-scissors choices
const (
	ChoiceRock     = "rock"
	ChoicePaper    = "paper"
	ChoiceScissors = "scissors"
)

// beats maps each choice to the choice it defeats:
// rock beats scissors, scissors beats paper, paper beats rock.
var beats = map[string]string{
	ChoiceRock:     ChoiceScissors,
	ChoiceScissors: ChoicePaper,
	ChoicePaper:    ChoiceRock,
}

// RPSMove is the payload of a choice commitment
type RPSMove struct {
	Choice string `json:"choice"`
}

// RPSCommitted tells the other peer a choice was locked in, without
// disclosing it. This is the simultaneous-reveal barrier: neither
// choice is revealed until both are committed.
type RPSCommitted struct {
	By string `json:"by"`
}

// RPSResult reveals both choices and the outcome at once
type RPSResult struct {
	Choices map[string]string `json:"choices"`
	Winner  string            `json:"winner,omitempty"` // identity, empty on draw
	Draw    bool              `json:"draw,omitempty"`
}

// RockPaperScissors collects one hidden choice per participant and
// reveals both simultaneously once the second arrives.
type RockPaperScissors struct {
	host    string
	guest   string
	choices map[string]string
}

// NewRockPaperScissors creates a fresh game for one session
func NewRockPaperScissors(host, guest string) *RockPaperScissors {
	return &RockPaperScissors{
		host:    host,
		guest:   guest,
		choices: make(map[string]string),
	}
}

// Start implements Engine
func (g *RockPaperScissors) Start() []Outbound {
	return both(g.host, g.guest, TypeRoundStart, struct{}{})
}

// Handle implements Engine. A participant cannot change a committed
// choice, and unknown choices are ignored.
func (g *RockPaperScissors) Handle(from, eventType string, payload json.RawMessage) []Outbound {
	switch eventType {
	case TypeMove:
		return g.commit(from, payload)
	case TypeReset:
		return g.reset(from)
	}
	return nil
}

func (g *RockPaperScissors) commit(from string, payload json.RawMessage) []Outbound {
	if from != g.host && from != g.guest {
		return nil
	}
	if _, committed := g.choices[from]; committed {
		return nil
	}
	var mv RPSMove
	if err := json.Unmarshal(payload, &mv); err != nil {
		return nil
	}
	if _, known := beats[mv.Choice]; !known {
		return nil
	}

	g.choices[from] = mv.Choice
	other := g.other(from)

	if _, bothIn := g.choices[other]; !bothIn {
		// Only the fact of commitment leaks before the reveal.
		return []Outbound{{To: other, Type: TypeMoveCommitted, Data: RPSCommitted{By: from}}}
	}

	result := g.resolve()
	g.choices = make(map[string]string)
	return both(g.host, g.guest, TypeResult, result)
}

func (g *RockPaperScissors) resolve() RPSResult {
	hostChoice := g.choices[g.host]
	guestChoice := g.choices[g.guest]
	result := RPSResult{Choices: map[string]string{g.host: hostChoice, g.guest: guestChoice}}

	switch {
	case hostChoice == guestChoice:
		result.Draw = true
	case beats[hostChoice] == guestChoice:
		result.Winner = g.host
	default:
		result.Winner = g.guest
	}
	return result
}

// reset clears any pending choices
func (g *RockPaperScissors) reset(from string) []Outbound {
	if from != g.host && from != g.guest {
		return nil
	}
	g.choices = make(map[string]string)
	return both(g.host, g.guest, TypeRoundStart, struct{}{})
}

func (g *RockPaperScissors) other(identity string) string {
	if identity == g.host {
		return g.guest
	}
	return g.host
}

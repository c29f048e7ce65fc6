package game

import (
	"encoding/json"
)

// Tic-tac-toe board symbols
const (
	MarkX = "X"
	MarkO = "O"
)

// winningLines are the 3 rows, 3 columns and 2 diagonals of the board
var winningLines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

// TTTMove is the payload of a tic-tac-toe move event
type TTTMove struct {
	Cell int `json:"cell"`
}

// TTTRoundStart announces a new round and who moves first.
// The starter alternates between rounds so a reset never leaves the
// first move ambiguous.
type TTTRoundStart struct {
	Round   int               `json:"round"`
	Starter string            `json:"starter"`
	Symbols map[string]string `json:"symbols"`
}

// TTTMoveApplied is a server-confirmed move broadcast to both peers
type TTTMoveApplied struct {
	Cell     int    `json:"cell"`
	By       string `json:"by"`
	Symbol   string `json:"symbol"`
	NextTurn string `json:"next_turn,omitempty"`
}

// TTTResult reports the outcome of one round
type TTTResult struct {
	Winner string `json:"winner,omitempty"` // identity, empty on draw
	Draw   bool   `json:"draw,omitempty"`
	Line   []int  `json:"line,omitempty"`
}

// TicTacToe is the server-validated 3x3 board game. Host plays X and
// moves first in round one; the starter alternates on reset.
type TicTacToe struct {
	host    string
	guest   string
	board   [9]string
	turn    string
	starter string
	round   int
	over    bool // round over, awaiting reset
}

// NewTicTacToe creates a fresh game for one session
func NewTicTacToe(host, guest string) *TicTacToe {
	return &TicTacToe{
		host:    host,
		guest:   guest,
		turn:    host,
		starter: host,
		round:   1,
	}
}

// Start implements Engine
func (g *TicTacToe) Start() []Outbound {
	return both(g.host, g.guest, TypeRoundStart, g.roundStart())
}

// Handle implements Engine. Illegal moves (wrong turn, occupied cell,
// out-of-range index, round already decided) are ignored.
func (g *TicTacToe) Handle(from, eventType string, payload json.RawMessage) []Outbound {
	switch eventType {
	case TypeMove:
		return g.move(from, payload)
	case TypeReset:
		return g.reset(from)
	}
	return nil
}

func (g *TicTacToe) move(from string, payload json.RawMessage) []Outbound {
	if g.over || from != g.turn {
		return nil
	}
	var mv TTTMove
	if err := json.Unmarshal(payload, &mv); err != nil {
		return nil
	}
	if mv.Cell < 0 || mv.Cell > 8 || g.board[mv.Cell] != "" {
		return nil
	}

	symbol := g.symbolOf(from)
	g.board[mv.Cell] = symbol
	g.turn = g.other(from)

	applied := TTTMoveApplied{Cell: mv.Cell, By: from, Symbol: symbol, NextTurn: g.turn}
	out := both(g.host, g.guest, TypeMove, applied)

	if line, won := g.winningLine(symbol); won {
		g.over = true
		out = append(out, both(g.host, g.guest, TypeResult, TTTResult{Winner: from, Line: line})...)
	} else if g.full() {
		g.over = true
		out = append(out, both(g.host, g.guest, TypeResult, TTTResult{Draw: true})...)
	}
	return out
}

// reset clears the board and opens the next round with the alternate
// starter. Either participant may request it.
func (g *TicTacToe) reset(from string) []Outbound {
	if from != g.host && from != g.guest {
		return nil
	}
	g.board = [9]string{}
	g.over = false
	g.round++
	g.starter = g.other(g.starter)
	g.turn = g.starter
	return both(g.host, g.guest, TypeRoundStart, g.roundStart())
}

func (g *TicTacToe) roundStart() TTTRoundStart {
	return TTTRoundStart{
		Round:   g.round,
		Starter: g.starter,
		Symbols: map[string]string{g.host: MarkX, g.guest: MarkO},
	}
}

func (g *TicTacToe) symbolOf(identity string) string {
	if identity == g.host {
		return MarkX
	}
	return MarkO
}

func (g *TicTacToe) other(identity string) string {
	if identity == g.host {
		return g.guest
	}
	return g.host
}

func (g *TicTacToe) winningLine(symbol string) ([]int, bool) {
	for _, line := range winningLines {
		if g.board[line[0]] == symbol && g.board[line[1]] == symbol && g.board[line[2]] == symbol {
			return []int{line[0], line[1], line[2]}, true
		}
	}
	return nil, false
}

func (g *TicTacToe) full() bool {
	for _, cell := range g.board {
		if cell == "" {
			return false
		}
	}
	return true
}

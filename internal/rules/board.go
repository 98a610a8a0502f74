// Package rules wraps the chess rules engine. Boards are rebuilt from their UCI move history,
// which is the only rule state persisted by the bot.
package rules

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

var (
	ErrIllegalMove = errors.New("illegal move")
	ErrNoMoves     = errors.New("no moves to take back")
)

// Color identifies a chess side.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Other returns the opposing side.
func (c Color) Other() Color {
	if c == White {
		return Black
	}
	return White
}

// ParseColor accepts "white" or "black" in any case.
func ParseColor(s string) (Color, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "white":
		return White, true
	case "black":
		return Black, true
	default:
		return "", false
	}
}

// Result is a PGN-style game result.
type Result string

const (
	NoResult  Result = "*"
	WhiteWins Result = "1-0"
	BlackWins Result = "0-1"
	Draw      Result = "1/2-1/2"
)

// Board is a game in progress.
type Board struct {
	game *nchess.Game
	uci  []string
}

// New returns a board at the initial position.
func New() *Board {
	return &Board{game: nchess.NewGame(), uci: []string{}}
}

// FromMoves replays a UCI move history.
func FromMoves(moves []string) (*Board, error) {
	b := New()
	for _, mv := range moves {
		mv = strings.ToLower(strings.TrimSpace(mv))
		if err := b.game.PushNotationMove(mv, nchess.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("replay move %s: %w", mv, err)
		}
		b.uci = append(b.uci, mv)
	}
	return b, nil
}

// Turn is the side to move.
func (b *Board) Turn() Color {
	if b.game.Position().Turn() == nchess.White {
		return White
	}
	return Black
}

// MovesUCI returns a copy of the move history.
func (b *Board) MovesUCI() []string { return append([]string(nil), b.uci...) }

// MovesSAN returns the history in standard algebraic notation.
func (b *Board) MovesSAN() []string {
	moves := b.game.Moves()
	positions := b.game.Positions()
	out := make([]string, 0, len(moves))
	for i, mv := range moves {
		if i >= len(positions) {
			break
		}
		out = append(out, nchess.AlgebraicNotation{}.Encode(positions[i], mv))
	}
	return out
}

// Push applies a move given in UCI ("e2e4") or SAN ("Nf3") and returns it in UCI.
// The board is unchanged when the move is rejected.
func (b *Board) Push(notation string) (string, error) {
	raw := strings.TrimSpace(notation)
	if raw == "" {
		return "", ErrIllegalMove
	}
	if b.IsOver() {
		return "", ErrIllegalMove
	}
	uci := strings.ToLower(raw)
	if _, err := (nchess.UCINotation{}).Decode(b.game.Position(), uci); err == nil {
		if err := b.game.PushNotationMove(uci, nchess.UCINotation{}, nil); err == nil {
			b.uci = append(b.uci, uci)
			return uci, nil
		}
	}
	if err := b.game.PushNotationMove(raw, nchess.AlgebraicNotation{}, nil); err != nil {
		return "", fmt.Errorf("%w: %s", ErrIllegalMove, raw)
	}
	last := b.lastMove()
	if last == nil {
		return "", ErrIllegalMove
	}
	uci = strings.ToLower(last.String())
	b.uci = append(b.uci, uci)
	return uci, nil
}

// Pop takes back the most recent move.
func (b *Board) Pop() error {
	if len(b.uci) == 0 {
		return ErrNoMoves
	}
	prev, err := FromMoves(b.uci[:len(b.uci)-1])
	if err != nil {
		return err
	}
	*b = *prev
	return nil
}

// LastMove returns the squares of the most recent move.
func (b *Board) LastMove() (from, to string, ok bool) {
	mv := b.lastMove()
	if mv == nil {
		return "", "", false
	}
	return mv.S1().String(), mv.S2().String(), true
}

// InCheck reports whether the side to move is in check.
func (b *Board) InCheck() bool {
	mv := b.lastMove()
	return mv != nil && mv.HasTag(nchess.Check)
}

// Outcome is the terminal result, or NoResult while the game is undecided.
func (b *Board) Outcome() Result {
	switch b.game.Outcome() {
	case nchess.WhiteWon:
		return WhiteWins
	case nchess.BlackWon:
		return BlackWins
	case nchess.Draw:
		return Draw
	default:
		return NoResult
	}
}

// IsOver reports whether the rules engine considers the game finished.
func (b *Board) IsOver() bool { return b.Outcome() != NoResult }

// Method names how the game ended, e.g. "checkmate". Empty while undecided.
func (b *Board) Method() string {
	if !b.IsOver() {
		return ""
	}
	return strings.ToLower(b.game.Method().String())
}

// FEN of the current position.
func (b *Board) FEN() string { return b.game.Position().String() }

func (b *Board) lastMove() *nchess.Move {
	moves := b.game.Moves()
	if len(moves) == 0 {
		return nil
	}
	return moves[len(moves)-1]
}

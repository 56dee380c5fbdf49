package domain

import (
	"fmt"
	"strings"
	"time"
)

type Side uint8

const (
	White Side = iota
	Black
)

func (s Side) Opponent() Side {
	if s == White {
		return Black
	}
	return White
}

func (s Side) String() string {
	if s == Black {
		return "black"
	}
	return "white"
}

func ParseSide(v string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "white", "w":
		return White, nil
	case "black", "b":
		return Black, nil
	}
	return White, fmt.Errorf("unknown side: %q", v)
}

type PieceKind string

const (
	NoPieceKind PieceKind = ""
	Pawn        PieceKind = "p"
	Knight      PieceKind = "n"
	Bishop      PieceKind = "b"
	Rook        PieceKind = "r"
	Queen       PieceKind = "q"
	King        PieceKind = "k"
)

func (k PieceKind) Valid() bool {
	switch k {
	case Pawn, Knight, Bishop, Rook, Queen, King:
		return true
	}
	return false
}

// Square is an algebraic square name such as "e4".
type Square string

func ParseSquare(v string) (Square, error) {
	s := strings.ToLower(strings.TrimSpace(v))
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return "", fmt.Errorf("invalid square: %q", v)
	}
	return Square(s), nil
}

// Move compares with ==. An absent promotion never equals a set one.
type Move struct {
	From      Square
	To        Square
	Promotion PieceKind
}

// ParseMove reads UCI long algebraic notation ("e2e4", "e7e8q").
func ParseMove(v string) (Move, error) {
	s := strings.ToLower(strings.TrimSpace(v))
	if len(s) != 4 && len(s) != 5 {
		return Move{}, fmt.Errorf("invalid move: %q", v)
	}
	from, err := ParseSquare(s[0:2])
	if err != nil {
		return Move{}, fmt.Errorf("invalid move %q: %w", v, err)
	}
	to, err := ParseSquare(s[2:4])
	if err != nil {
		return Move{}, fmt.Errorf("invalid move %q: %w", v, err)
	}
	mv := Move{From: from, To: to}
	if len(s) == 5 {
		promo := PieceKind(s[4:5])
		switch promo {
		case Knight, Bishop, Rook, Queen:
		default:
			return Move{}, fmt.Errorf("invalid promotion in move %q", v)
		}
		mv.Promotion = promo
	}
	return mv, nil
}

func MustParseMove(v string) Move {
	mv, err := ParseMove(v)
	if err != nil {
		panic(err)
	}
	return mv
}

func (m Move) UCI() string {
	return string(m.From) + string(m.To) + string(m.Promotion)
}

func (m Move) String() string { return m.UCI() }

func MovesUCI(moves []Move) []string {
	out := make([]string, len(moves))
	for i, mv := range moves {
		out[i] = mv.UCI()
	}
	return out
}

type Mode uint8

const (
	LocalPairPlay Mode = iota
	VsAutomatedOpponent
)

func (m Mode) String() string {
	if m == VsAutomatedOpponent {
		return "computer"
	}
	return "pair"
}

func ParseMode(v string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "pair", "local", "pass_and_play":
		return LocalPairPlay, nil
	case "computer", "engine", "bot":
		return VsAutomatedOpponent, nil
	}
	return LocalPairPlay, fmt.Errorf("unknown mode: %q", v)
}

type OutcomeKind uint8

const (
	NoOutcome OutcomeKind = iota
	Checkmate
	Stalemate
	Draw
	Resignation
)

func (k OutcomeKind) String() string {
	switch k {
	case Checkmate:
		return "checkmate"
	case Stalemate:
		return "stalemate"
	case Draw:
		return "draw"
	case Resignation:
		return "resignation"
	}
	return "none"
}

// Outcome.Winner is only meaningful when HasWinner is set.
type Outcome struct {
	Kind      OutcomeKind
	Winner    Side
	HasWinner bool
}

// Result renders the outcome as a PGN result token.
func (o Outcome) Result() string {
	switch {
	case o.Kind == NoOutcome:
		return "*"
	case !o.HasWinner:
		return "1/2-1/2"
	case o.Winner == White:
		return "1-0"
	default:
		return "0-1"
	}
}

// GameRecord is a finished game handed to archive sinks.
type GameRecord struct {
	SessionID string
	Mode      string
	LocalSide string
	Trainer   string
	Result    string
	Method    string
	Winner    string
	MovesUCI  []string
	MovesSAN  []string
	PGN       string
	StartedAt time.Time
	EndedAt   time.Time
	Duration  time.Duration
}

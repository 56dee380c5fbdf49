// Package rules adapts github.com/corentings/chess/v2 to the session's move and outcome types.
package rules

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/champions-gambit/internal/domain"
)

var (
	ErrIllegalMove       = errors.New("illegal move")
	ErrPromotionRequired = errors.New("promotion piece required")
	ErrGameFinished      = errors.New("game already finished")
)

// Position is an immutable snapshot. The zero value is the standard starting position.
type Position struct {
	game *nchess.Game
}

func (p Position) current() *nchess.Game {
	if p.game == nil {
		return nchess.NewGame()
	}
	return p.game
}

// Ply reports how many half-moves led to the position.
func (p Position) Ply() int {
	if p.game == nil {
		return 0
	}
	return len(p.game.Moves())
}

// Effects are the facts about an applied move that feedback and history need.
type Effects struct {
	SAN           string
	Captured      domain.PieceKind
	CapturedSide  domain.Side
	CaptureSquare domain.Square
	Promotion     domain.PieceKind
	EnPassant     bool
	Castle        bool
	Check         bool
}

func (e Effects) IsCapture() bool { return e.Captured != domain.NoPieceKind }

type Status struct {
	GameOver bool
	Outcome  domain.Outcome
}

// Oracle is stateless and safe for concurrent use.
type Oracle struct{}

func NewOracle() *Oracle { return &Oracle{} }

func (o *Oracle) Start() Position { return Position{game: nchess.NewGame()} }

func (o *Oracle) SideToMove(pos Position) domain.Side {
	return fromColor(pos.current().Position().Turn())
}

// InCheck reports whether the side to move is in check.
func (o *Oracle) InCheck(pos Position) bool {
	moves := pos.current().Moves()
	if len(moves) == 0 {
		return false
	}
	return moves[len(moves)-1].HasTag(nchess.Check)
}

// KingSquare returns the square of the given side's king.
func (o *Oracle) KingSquare(pos Position, side domain.Side) (domain.Square, bool) {
	board := pos.current().Position().Board()
	color := toColor(side)
	for file := nchess.FileA; file <= nchess.FileH; file++ {
		for rank := nchess.Rank1; rank <= nchess.Rank8; rank++ {
			sq := nchess.NewSquare(file, rank)
			piece := board.Piece(sq)
			if piece.Type() == nchess.King && piece.Color() == color {
				return domain.Square(sq.String()), true
			}
		}
	}
	return "", false
}

func (o *Oracle) LegalDestinations(pos Position, from domain.Square) []domain.Square {
	if o.TerminalStatus(pos).GameOver {
		return nil
	}
	game := pos.current()
	seen := make(map[domain.Square]struct{})
	var out []domain.Square
	for _, mv := range game.ValidMoves() {
		if domain.Square(mv.S1().String()) != from {
			continue
		}
		to := domain.Square(mv.S2().String())
		if _, ok := seen[to]; ok {
			continue
		}
		seen[to] = struct{}{}
		out = append(out, to)
	}
	return out
}

// RequiresPromotion reports whether from->to is a legal pawn move onto the last rank.
func (o *Oracle) RequiresPromotion(pos Position, from, to domain.Square) bool {
	if o.TerminalStatus(pos).GameOver {
		return false
	}
	for _, mv := range pos.current().ValidMoves() {
		if domain.Square(mv.S1().String()) == from && domain.Square(mv.S2().String()) == to && mv.Promo() != nchess.NoPieceType {
			return true
		}
	}
	return false
}

// Apply never mutates pos; the move is played on a clone. Positions drawn by repetition
// or the fifty-move rule are finished too, even though the underlying game would accept
// further moves.
func (o *Oracle) Apply(pos Position, mv domain.Move) (Position, Effects, error) {
	if o.TerminalStatus(pos).GameOver {
		return pos, Effects{}, fmt.Errorf("%w: %s: %w", ErrIllegalMove, mv, ErrGameFinished)
	}
	game := pos.current()
	before := game.Position()
	move, err := findMove(before, mv)
	if err != nil {
		return pos, Effects{}, err
	}

	effects := describe(before, move)
	next := game.Clone()
	if err := next.Move(move, nil); err != nil {
		return pos, Effects{}, fmt.Errorf("%w: %s: %v", ErrIllegalMove, mv, err)
	}
	return Position{game: next}, effects, nil
}

func findMove(pos *nchess.Position, mv domain.Move) (*nchess.Move, error) {
	valid := pos.ValidMoves()
	needsPromotion := false
	for i := range valid {
		cand := &valid[i]
		if domain.Square(cand.S1().String()) != mv.From || domain.Square(cand.S2().String()) != mv.To {
			continue
		}
		promo := fromPieceType(cand.Promo())
		if promo == mv.Promotion {
			return cand, nil
		}
		if promo != domain.NoPieceKind {
			needsPromotion = true
		}
	}
	if needsPromotion && mv.Promotion == domain.NoPieceKind {
		return nil, fmt.Errorf("%w: %s: %w", ErrIllegalMove, mv, ErrPromotionRequired)
	}
	return nil, fmt.Errorf("%w: %s is not legal for %s", ErrIllegalMove, mv, fromColor(pos.Turn()))
}

func describe(before *nchess.Position, move *nchess.Move) Effects {
	effects := Effects{
		SAN:       nchess.AlgebraicNotation{}.Encode(before, move),
		Promotion: fromPieceType(move.Promo()),
		EnPassant: move.HasTag(nchess.EnPassant),
		Castle:    move.HasTag(nchess.KingSideCastle) || move.HasTag(nchess.QueenSideCastle),
		Check:     move.HasTag(nchess.Check),
	}
	if !move.HasTag(nchess.Capture) && !effects.EnPassant {
		return effects
	}
	captureSquare := move.S2()
	if effects.EnPassant {
		file := move.S2().File()
		rank := move.S2().Rank()
		if before.Turn() == nchess.White {
			captureSquare = nchess.NewSquare(file, rank-1)
		} else {
			captureSquare = nchess.NewSquare(file, rank+1)
		}
	}
	piece := before.Board().Piece(captureSquare)
	if piece == nchess.NoPiece {
		return effects
	}
	effects.Captured = fromPieceType(piece.Type())
	effects.CapturedSide = fromColor(piece.Color())
	effects.CaptureSquare = domain.Square(captureSquare.String())
	return effects
}

// TerminalStatus treats claimable draws (threefold repetition, fifty-move rule) as final.
func (o *Oracle) TerminalStatus(pos Position) Status {
	game := pos.current()
	switch game.Outcome() {
	case nchess.WhiteWon, nchess.BlackWon:
		winner := domain.White
		if game.Outcome() == nchess.BlackWon {
			winner = domain.Black
		}
		kind := domain.Checkmate
		if game.Method() == nchess.Resignation {
			kind = domain.Resignation
		}
		return Status{GameOver: true, Outcome: domain.Outcome{Kind: kind, Winner: winner, HasWinner: true}}
	case nchess.Draw:
		kind := domain.Draw
		if game.Method() == nchess.Stalemate {
			kind = domain.Stalemate
		}
		return Status{GameOver: true, Outcome: domain.Outcome{Kind: kind}}
	}
	for _, method := range game.EligibleDraws() {
		if method == nchess.ThreefoldRepetition || method == nchess.FiftyMoveRule {
			return Status{GameOver: true, Outcome: domain.Outcome{Kind: domain.Draw}}
		}
	}
	return Status{}
}

// Serialize returns the FEN of the position.
func (o *Oracle) Serialize(pos Position) string {
	return pos.current().Position().String()
}

// Replay rebuilds a position from the starting position.
func (o *Oracle) Replay(moves []domain.Move) (Position, error) {
	game := nchess.NewGame()
	notation := nchess.UCINotation{}
	for _, mv := range moves {
		move, err := notation.Decode(game.Position(), strings.ToLower(mv.UCI()))
		if err != nil {
			return Position{}, fmt.Errorf("decode move %s: %w", mv, err)
		}
		if err := game.Move(move, nil); err != nil {
			return Position{}, fmt.Errorf("%w: apply move %s: %v", ErrIllegalMove, mv, err)
		}
	}
	return Position{game: game}, nil
}

// SAN lists the standard algebraic notation of every move leading to pos.
func (o *Oracle) SAN(pos Position) []string {
	game := pos.current()
	moves := game.Moves()
	positions := game.Positions()
	out := make([]string, 0, len(moves))
	notation := nchess.AlgebraicNotation{}
	for i, mv := range moves {
		if i >= len(positions) {
			break
		}
		out = append(out, notation.Encode(positions[i], mv))
	}
	return out
}

func fromColor(c nchess.Color) domain.Side {
	if c == nchess.Black {
		return domain.Black
	}
	return domain.White
}

func toColor(s domain.Side) nchess.Color {
	if s == domain.Black {
		return nchess.Black
	}
	return nchess.White
}

func fromPieceType(pt nchess.PieceType) domain.PieceKind {
	switch pt {
	case nchess.Pawn:
		return domain.Pawn
	case nchess.Knight:
		return domain.Knight
	case nchess.Bishop:
		return domain.Bishop
	case nchess.Rook:
		return domain.Rook
	case nchess.Queen:
		return domain.Queen
	case nchess.King:
		return domain.King
	}
	return domain.NoPieceKind
}

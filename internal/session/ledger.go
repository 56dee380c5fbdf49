package session

import (
	"fmt"

	"github.com/park285/champions-gambit/internal/chess/rules"
	"github.com/park285/champions-gambit/internal/domain"
)

// AppliedMove is a move accepted by the ledger together with what it did on the board.
type AppliedMove struct {
	Move    domain.Move
	Side    domain.Side
	Ply     int
	Effects rules.Effects
}

// Ledger is the authoritative move history plus the redo stack. The position is always
// the replay of the applied moves. It is not safe for concurrent use; the controller
// serializes access.
type Ledger struct {
	oracle *rules.Oracle
	mode   domain.Mode
	local  domain.Side

	applied []domain.Move
	redo    []domain.Move
	pos     rules.Position
}

func NewLedger(oracle *rules.Oracle, mode domain.Mode, local domain.Side) *Ledger {
	return &Ledger{
		oracle: oracle,
		mode:   mode,
		local:  local,
		pos:    oracle.Start(),
	}
}

func (l *Ledger) Position() rules.Position { return l.pos }

func (l *Ledger) SideToMove() domain.Side { return l.oracle.SideToMove(l.pos) }

func (l *Ledger) Applied() []domain.Move { return append([]domain.Move(nil), l.applied...) }

// RedoStack returns the redo buffer bottom first; the last element is redone next.
func (l *Ledger) RedoStack() []domain.Move { return append([]domain.Move(nil), l.redo...) }

func (l *Ledger) LastMove() (domain.Move, bool) {
	if len(l.applied) == 0 {
		return domain.Move{}, false
	}
	return l.applied[len(l.applied)-1], true
}

// Apply validates mv against the current position and appends it. Any successful apply
// clears the redo stack.
func (l *Ledger) Apply(mv domain.Move) (AppliedMove, error) {
	applied, err := l.push(mv)
	if err != nil {
		return AppliedMove{}, err
	}
	l.redo = nil
	return applied, nil
}

func (l *Ledger) push(mv domain.Move) (AppliedMove, error) {
	side := l.oracle.SideToMove(l.pos)
	next, effects, err := l.oracle.Apply(l.pos, mv)
	if err != nil {
		return AppliedMove{}, &LegalityError{Move: mv, Reason: err}
	}
	l.pos = next
	l.applied = append(l.applied, mv)
	return AppliedMove{Move: mv, Side: side, Ply: len(l.applied), Effects: effects}, nil
}

// undoWidth is how many moves the next undo removes, or 0 when undo is not allowed.
// Pair play always takes back one move. Against the automated opponent undo normally
// needs the local player to be on move and removes the reply plus the local move. The
// one exception is a finished game with the opponent to move: the local player ended it,
// so width 1 takes back just that final move.
func (l *Ledger) undoWidth() int {
	n := len(l.applied)
	if n == 0 {
		return 0
	}
	if l.mode == domain.LocalPairPlay {
		return 1
	}
	toMove := l.SideToMove()
	if toMove == l.local && n >= 2 {
		return 2
	}
	// the local player delivered the final move; only that move is taken back
	if toMove != l.local && l.oracle.TerminalStatus(l.pos).GameOver {
		return 1
	}
	return 0
}

func (l *Ledger) CanUndo() bool { return l.undoWidth() > 0 }

func (l *Ledger) CanRedo() bool {
	if len(l.redo) == 0 {
		return false
	}
	return l.mode == domain.LocalPairPlay || l.SideToMove() == l.local
}

// Undo removes one move in LocalPairPlay and the opponent's reply plus the local move
// before it in VsAutomatedOpponent. Removed moves go on the redo stack so that the
// earliest of them is on top.
func (l *Ledger) Undo() ([]domain.Move, error) {
	width := l.undoWidth()
	if width == 0 {
		return nil, ErrNoHistory
	}
	keep := len(l.applied) - width
	pos, err := l.oracle.Replay(l.applied[:keep])
	if err != nil {
		return nil, fmt.Errorf("replay after undo: %w", err)
	}

	undone := append([]domain.Move(nil), l.applied[keep:]...)
	for i := len(undone) - 1; i >= 0; i-- {
		l.redo = append(l.redo, undone[i])
	}
	l.applied = l.applied[:keep]
	l.pos = pos
	return undone, nil
}

// Redo replays one move in LocalPairPlay. In VsAutomatedOpponent it replays the local move
// and then the opponent's reply when one is stacked.
func (l *Ledger) Redo() ([]AppliedMove, error) {
	if !l.CanRedo() {
		return nil, ErrNoHistory
	}
	first, err := l.popRedo()
	if err != nil {
		return nil, err
	}
	out := []AppliedMove{first}
	if l.mode == domain.LocalPairPlay || len(l.redo) == 0 {
		return out, nil
	}
	if l.SideToMove() == l.local || l.oracle.TerminalStatus(l.pos).GameOver {
		return out, nil
	}
	reply, err := l.popRedo()
	if err != nil {
		return out, err
	}
	return append(out, reply), nil
}

func (l *Ledger) popRedo() (AppliedMove, error) {
	top := l.redo[len(l.redo)-1]
	applied, err := l.push(top)
	if err != nil {
		return AppliedMove{}, fmt.Errorf("redo %s: %w", top, err)
	}
	l.redo = l.redo[:len(l.redo)-1]
	return applied, nil
}

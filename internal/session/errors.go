package session

import (
	"errors"
	"fmt"

	"github.com/park285/champions-gambit/internal/chess/rules"
	"github.com/park285/champions-gambit/internal/chess/uci"
	"github.com/park285/champions-gambit/internal/domain"
)

var (
	ErrIllegalMove       = rules.ErrIllegalMove
	ErrPromotionRequired = rules.ErrPromotionRequired
	ErrEngineUnavailable = uci.ErrEngineUnavailable
	ErrNoHistory         = errors.New("nothing eligible to undo or redo")
	ErrNotYourTurn       = errors.New("not the local player's turn")
	ErrGameOver          = errors.New("game is over")
	ErrStaleResponse     = errors.New("stale engine response")
	ErrSessionClosed     = errors.New("session closed")
	ErrNoOpponent        = errors.New("automated opponent not configured")
)

// LegalityError reports a rejected move. The ledger is unchanged when it is returned.
type LegalityError struct {
	Move   domain.Move
	Reason error
}

func (e *LegalityError) Error() string {
	return fmt.Sprintf("illegal move %s: %v", e.Move, e.Reason)
}

func (e *LegalityError) Unwrap() []error {
	return []error{ErrIllegalMove, e.Reason}
}

// StaleResponseError describes an engine reply that no longer matches the ledger.
type StaleResponseError struct {
	Tag    string
	Reason string
}

func (e *StaleResponseError) Error() string {
	return fmt.Sprintf("stale engine response %s: %s", e.Tag, e.Reason)
}

func (e *StaleResponseError) Unwrap() error { return ErrStaleResponse }

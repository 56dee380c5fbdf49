package session

import (
	"github.com/park285/champions-gambit/internal/chess"
	"github.com/park285/champions-gambit/internal/domain"
	"github.com/park285/champions-gambit/internal/feedback"
)

type EventKind string

const (
	EventNewGame           EventKind = "new_game"
	EventMoved             EventKind = "moved"
	EventUndone            EventKind = "undone"
	EventRedone            EventKind = "redone"
	EventTurn              EventKind = "turn"
	EventGameOver          EventKind = "game_over"
	EventEngineUnavailable EventKind = "engine_unavailable"
	EventFeedback          EventKind = "feedback"
	EventClosed            EventKind = "closed"
)

type Origin string

const (
	OriginLocal  Origin = "local"
	OriginEngine Origin = "engine"
	OriginRedo   Origin = "redo"
)

// GameOverReport is built once per terminal position.
type GameOverReport struct {
	Outcome domain.Outcome
	Moves   []domain.Move
	SAN     []string
	PGN     string
	Record  domain.GameRecord
}

// Snapshot is the read-only view handed to presentation after each mutation.
type Snapshot struct {
	SessionID   string
	Mode        domain.Mode
	LocalSide   domain.Side
	Trainer     string
	FEN         string
	SideToMove  domain.Side
	Turn        TurnState
	Applied     []domain.Move
	Redo        []domain.Move
	LastMove    *domain.Move
	CanUndo     bool
	CanRedo     bool
	InCheck     bool
	CheckedKing domain.Square
	GameOver    bool
	Outcome     domain.Outcome

	Selected     domain.Square
	Destinations []domain.Square

	// Opponent is the zero Trainer outside VsAutomatedOpponent.
	Opponent chess.Trainer

	EngineAvailable bool
}

// Event is delivered to subscribers in mutation order. Feedback events carry no snapshot.
type Event struct {
	Seq      uint64
	Kind     EventKind
	Origin   Origin
	Moves    []AppliedMove
	Undone   []domain.Move
	GameOver *GameOverReport
	Feedback feedback.Signal
	Err      error
	Snapshot Snapshot
}

type subscriber struct {
	id int
	fn func(Event)
}

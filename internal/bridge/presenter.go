package bridge

import (
	"errors"

	"github.com/park285/champions-gambit/internal/chess"
	"github.com/park285/champions-gambit/internal/chess/rules"
	"github.com/park285/champions-gambit/internal/domain"
	"github.com/park285/champions-gambit/internal/feedback"
	"github.com/park285/champions-gambit/internal/session"
	"github.com/park285/champions-gambit/pkg/sessiondto"
)

func ToDTOState(s session.Snapshot) *sessiondto.SessionState {
	out := &sessiondto.SessionState{
		SessionID:       s.SessionID,
		Mode:            s.Mode.String(),
		LocalSide:       s.LocalSide.String(),
		FEN:             s.FEN,
		SideToMove:      s.SideToMove.String(),
		Turn:            s.Turn.String(),
		MovesUCI:        domain.MovesUCI(s.Applied),
		RedoUCI:         domain.MovesUCI(s.Redo),
		CanUndo:         s.CanUndo,
		CanRedo:         s.CanRedo,
		InCheck:         s.InCheck,
		CheckedKing:     string(s.CheckedKing),
		GameOver:        s.GameOver,
		Result:          s.Outcome.Result(),
		Selected:        string(s.Selected),
		Destinations:    squares(s.Destinations),
		EngineAvailable: s.EngineAvailable,
	}
	if out.MovesUCI == nil {
		out.MovesUCI = []string{}
	}
	if out.RedoUCI == nil {
		out.RedoUCI = []string{}
	}
	if s.Mode == domain.VsAutomatedOpponent {
		t := ToDTOTrainer(s.Opponent)
		out.Trainer = &t
	}
	if s.LastMove != nil {
		out.LastMove = s.LastMove.UCI()
	}
	if s.GameOver {
		out.Method = s.Outcome.Kind.String()
		if s.Outcome.HasWinner {
			out.Winner = s.Outcome.Winner.String()
		}
	}
	return out
}

func ToDTOTrainer(t chess.Trainer) sessiondto.Trainer {
	return sessiondto.Trainer{
		ID:         t.ID,
		Name:       t.Name,
		Theme:      t.Theme,
		Difficulty: t.DifficultyLabel(),
		Strength:   t.Strength.Describe(),
	}
}

func ToDTOTrainers(list []chess.Trainer) []sessiondto.Trainer {
	out := make([]sessiondto.Trainer, 0, len(list))
	for _, t := range list {
		out = append(out, ToDTOTrainer(t))
	}
	return out
}

func ToDTOMove(m session.AppliedMove) sessiondto.Move {
	out := sessiondto.Move{
		UCI:       m.Move.UCI(),
		SAN:       m.Effects.SAN,
		Side:      m.Side.String(),
		Ply:       m.Ply,
		EnPassant: m.Effects.EnPassant,
		Castle:    m.Effects.Castle,
		Check:     m.Effects.Check,
	}
	if m.Effects.IsCapture() {
		out.Captured = string(m.Effects.Captured)
	}
	if m.Effects.Promotion != domain.NoPieceKind {
		out.Promotion = string(m.Effects.Promotion)
	}
	return out
}

// ToDTOEvent converts one session event to its wire envelope.
func ToDTOEvent(ev session.Event) sessiondto.Event {
	if ev.Kind == session.EventFeedback {
		out := ToDTOSignal(ev.Feedback)
		out.Seq = ev.Seq
		return out
	}

	out := sessiondto.Event{
		Seq:    ev.Seq,
		Origin: string(ev.Origin),
		State:  ToDTOState(ev.Snapshot),
	}
	switch ev.Kind {
	case session.EventNewGame:
		out.Type = sessiondto.EventSnapshot
	case session.EventMoved, session.EventRedone:
		out.Type = sessiondto.EventMoved
		if ev.Kind == session.EventRedone {
			out.Type = sessiondto.EventRedone
		}
		for _, m := range ev.Moves {
			out.Moves = append(out.Moves, ToDTOMove(m))
		}
	case session.EventUndone:
		out.Type = sessiondto.EventUndone
		out.Undone = domain.MovesUCI(ev.Undone)
	case session.EventTurn:
		out.Type = sessiondto.EventTurn
	case session.EventGameOver:
		out.Type = sessiondto.EventGameOver
		out.GameOver = toDTOGameOver(ev.GameOver)
	case session.EventEngineUnavailable:
		out.Type = sessiondto.EventEngineUnavailable
		out.Error = ErrorFor(ev.Err)
	case session.EventClosed:
		out.Type = sessiondto.EventClosed
	default:
		out.Type = sessiondto.EventType(ev.Kind)
	}
	return out
}

func ToDTOSignal(sig feedback.Signal) sessiondto.Event {
	switch sig.Kind {
	case feedback.SignalCue, feedback.SignalCueExpired:
		t := sessiondto.EventCue
		if sig.Kind == feedback.SignalCueExpired {
			t = sessiondto.EventCueExpired
		}
		return sessiondto.Event{Type: t, Cue: &sessiondto.Cue{
			ID:        sig.Cue.ID,
			Square:    string(sig.Cue.Square),
			Kind:      string(sig.Cue.Kind),
			ExpiresAt: sig.Cue.ExpiresAt.UnixMilli(),
		}}
	case feedback.SignalCheck:
		return sessiondto.Event{Type: sessiondto.EventCheck, Square: string(sig.Square)}
	case feedback.SignalCheckCleared:
		return sessiondto.Event{Type: sessiondto.EventCheckCleared}
	default:
		return sessiondto.Event{Type: sessiondto.EventSound, Sound: &sessiondto.Sound{
			Name:   string(sig.Sound.Sound),
			Volume: sig.Sound.Volume,
			Loop:   sig.Sound.Loop,
			Stop:   sig.Sound.Stop,
		}}
	}
}

func toDTOGameOver(r *session.GameOverReport) *sessiondto.GameOver {
	if r == nil {
		return nil
	}
	out := &sessiondto.GameOver{
		Result:   r.Outcome.Result(),
		Method:   r.Outcome.Kind.String(),
		MovesSAN: append([]string{}, r.SAN...),
		PGN:      r.PGN,
		Filename: rules.PGNFilename(r.Record.EndedAt),
	}
	if r.Outcome.HasWinner {
		out.Winner = r.Outcome.Winner.String()
	}
	return out
}

func ToDTOSummary(rec domain.GameRecord) sessiondto.GameSummary {
	return sessiondto.GameSummary{
		SessionID:  rec.SessionID,
		Mode:       rec.Mode,
		LocalSide:  rec.LocalSide,
		Trainer:    rec.Trainer,
		Result:     rec.Result,
		Method:     rec.Method,
		Winner:     rec.Winner,
		Plies:      len(rec.MovesUCI),
		EndedAt:    rec.EndedAt,
		DurationMS: rec.Duration.Milliseconds(),
	}
}

// ErrorFor maps a session error to its wire code.
func ErrorFor(err error) *sessiondto.DomainError {
	if err == nil {
		return nil
	}
	var de sessiondto.DomainError
	if errors.As(err, &de) {
		return &de
	}
	code := sessiondto.CodeInternal
	retryable := false
	switch {
	case errors.Is(err, session.ErrPromotionRequired):
		code = sessiondto.CodePromotionRequired
	case errors.Is(err, session.ErrNotYourTurn):
		code = sessiondto.CodeNotYourTurn
	case errors.Is(err, session.ErrIllegalMove):
		code = sessiondto.CodeIllegalMove
	case errors.Is(err, session.ErrNoHistory):
		code = sessiondto.CodeNoHistory
	case errors.Is(err, session.ErrGameOver):
		code = sessiondto.CodeGameOver
	case errors.Is(err, session.ErrSessionClosed):
		code = sessiondto.CodeSessionClosed
	case errors.Is(err, session.ErrEngineUnavailable), errors.Is(err, session.ErrNoOpponent):
		code = sessiondto.CodeEngineUnavailable
		retryable = true
	}
	return &sessiondto.DomainError{Code: code, Message: err.Error(), Retryable: retryable}
}

func squares(list []domain.Square) []string {
	if len(list) == 0 {
		return nil
	}
	out := make([]string, len(list))
	for i, sq := range list {
		out[i] = string(sq)
	}
	return out
}

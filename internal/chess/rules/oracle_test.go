package rules

import (
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/park285/champions-gambit/internal/domain"
)

func movesOf(t *testing.T, uci ...string) []domain.Move {
	t.Helper()
	out := make([]domain.Move, 0, len(uci))
	for _, s := range uci {
		mv, err := domain.ParseMove(s)
		if err != nil {
			t.Fatalf("parse %s: %v", s, err)
		}
		out = append(out, mv)
	}
	return out
}

func TestLegalDestinationsFromStart(t *testing.T) {
	o := NewOracle()
	got := o.LegalDestinations(o.Start(), "e2")
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	want := []domain.Square{"e3", "e4"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("destinations mismatch (-want +got):\n%s", diff)
	}
	if len(o.LegalDestinations(o.Start(), "e7")) != 0 {
		t.Fatalf("black pieces must not move on white's turn")
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	o := NewOracle()
	start := o.Start()
	before := o.Serialize(start)

	next, effects, err := o.Apply(start, domain.MustParseMove("e2e4"))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if o.Serialize(start) != before {
		t.Fatalf("input position changed")
	}
	if start.Ply() != 0 || next.Ply() != 1 {
		t.Fatalf("unexpected ply counts: %d %d", start.Ply(), next.Ply())
	}
	if effects.SAN != "e4" {
		t.Fatalf("expected SAN e4, got %q", effects.SAN)
	}
	if o.SideToMove(next) != domain.Black {
		t.Fatalf("expected black to move")
	}
}

func TestApplyRejectsIllegalMove(t *testing.T) {
	o := NewOracle()
	_, _, err := o.Apply(o.Start(), domain.MustParseMove("e2e5"))
	if !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("expected ErrIllegalMove, got %v", err)
	}
	_, _, err = o.Apply(o.Start(), domain.MustParseMove("e7e5"))
	if !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("expected wrong-side move to be illegal, got %v", err)
	}
}

func TestEnPassantCapture(t *testing.T) {
	o := NewOracle()
	pos, err := o.Replay(movesOf(t, "e2e4", "a7a6", "e4e5", "d7d5"))
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	_, effects, err := o.Apply(pos, domain.MustParseMove("e5d6"))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !effects.EnPassant || effects.Captured != domain.Pawn || effects.CapturedSide != domain.Black {
		t.Fatalf("unexpected effects: %+v", effects)
	}
	if effects.CaptureSquare != "d5" {
		t.Fatalf("expected capture on d5, got %s", effects.CaptureSquare)
	}
}

func TestPromotion(t *testing.T) {
	o := NewOracle()
	pos, err := o.Replay(movesOf(t, "a2a4", "b7b5", "a4b5", "a7a6", "b5a6", "g8f6", "a6a7", "f6g8"))
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !o.RequiresPromotion(pos, "a7", "b8") {
		t.Fatalf("expected a7b8 to require promotion")
	}
	_, _, err = o.Apply(pos, domain.Move{From: "a7", To: "b8"})
	if !errors.Is(err, ErrPromotionRequired) || !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("expected ErrPromotionRequired, got %v", err)
	}
	_, effects, err := o.Apply(pos, domain.MustParseMove("a7b8q"))
	if err != nil {
		t.Fatalf("apply promotion: %v", err)
	}
	if effects.Promotion != domain.Queen || effects.Captured != domain.Knight {
		t.Fatalf("unexpected effects: %+v", effects)
	}
}

func TestCheckmateStatus(t *testing.T) {
	o := NewOracle()
	pos, err := o.Replay(movesOf(t, "f2f3", "e7e5", "g2g4", "d8h4"))
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	status := o.TerminalStatus(pos)
	if !status.GameOver || status.Outcome.Kind != domain.Checkmate {
		t.Fatalf("expected checkmate, got %+v", status)
	}
	if !status.Outcome.HasWinner || status.Outcome.Winner != domain.Black {
		t.Fatalf("expected black to win, got %+v", status.Outcome)
	}
	if !o.InCheck(pos) {
		t.Fatalf("mated side must be in check")
	}
	if sq, ok := o.KingSquare(pos, domain.White); !ok || sq != "e1" {
		t.Fatalf("expected white king on e1, got %s", sq)
	}
	if _, _, err := o.Apply(pos, domain.MustParseMove("a2a3")); !errors.Is(err, ErrGameFinished) {
		t.Fatalf("expected ErrGameFinished, got %v", err)
	}
	if len(o.LegalDestinations(pos, "a2")) != 0 {
		t.Fatalf("no destinations after mate")
	}
}

func TestThreefoldRepetitionEndsGame(t *testing.T) {
	o := NewOracle()
	pos, err := o.Replay(movesOf(t,
		"g1f3", "g8f6", "f3g1", "f6g8",
		"g1f3", "g8f6", "f3g1", "f6g8",
		"g1f3", "g8f6", "f3g1", "f6g8",
	))
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	status := o.TerminalStatus(pos)
	if !status.GameOver || status.Outcome.Kind != domain.Draw || status.Outcome.HasWinner {
		t.Fatalf("expected repetition draw, got %+v", status)
	}
}

func TestRepetitionDrawRefusesFurtherMoves(t *testing.T) {
	o := NewOracle()
	pos, err := o.Replay(movesOf(t, "g1f3", "g8f6", "f3g1", "f6g8", "g1f3", "g8f6", "f3g1", "f6g8"))
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !o.TerminalStatus(pos).GameOver {
		t.Fatalf("third occurrence of the start position must end the game")
	}
	if got := o.LegalDestinations(pos, "e2"); len(got) != 0 {
		t.Fatalf("no destinations after a draw, got %v", got)
	}
	if _, _, err := o.Apply(pos, domain.MustParseMove("e2e4")); !errors.Is(err, ErrGameFinished) || !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("expected ErrGameFinished, got %v", err)
	}

	// one ply earlier the position has only occurred twice
	prev, err := o.Replay(movesOf(t, "g1f3", "g8f6", "f3g1", "f6g8", "g1f3", "g8f6", "f3g1"))
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if o.TerminalStatus(prev).GameOver || len(o.LegalDestinations(prev, "f6")) == 0 {
		t.Fatalf("position before the repetition must stay playable")
	}
}

func TestExportPGN(t *testing.T) {
	o := NewOracle()
	moves := movesOf(t, "f2f3", "e7e5", "g2g4", "d8h4")
	day := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	pgn, err := o.ExportPGN(moves, domain.Outcome{Kind: domain.Checkmate, Winner: domain.Black, HasWinner: true}, Tags{
		Date:  day,
		White: "Red",
		Black: "Giovanni \"Boss\"",
	})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	for _, want := range []string{
		"[Date \"2026.03.04\"]",
		"[Black \"Giovanni 'Boss'\"]",
		"[Result \"0-1\"]",
		"1. f3 e5 2. g4 Qh4",
	} {
		if !strings.Contains(pgn, want) {
			t.Fatalf("pgn missing %q:\n%s", want, pgn)
		}
	}
	if !strings.HasSuffix(pgn, "0-1") {
		t.Fatalf("pgn must end with result: %q", pgn)
	}
	if got := PGNFilename(day); got != "champions-gambit-2026-03-04.pgn" {
		t.Fatalf("unexpected filename %s", got)
	}
}

package bridge

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/champions-gambit/internal/chess/rules"
	"github.com/park285/champions-gambit/internal/domain"
	"github.com/park285/champions-gambit/internal/session"
	"github.com/park285/champions-gambit/pkg/sessiondto"
)

func newPairController(t *testing.T) *session.Controller {
	t.Helper()
	ctrl, err := session.New(session.Config{Mode: domain.LocalPairPlay, LocalSide: domain.White})
	require.NoError(t, err)
	require.NoError(t, ctrl.Start(context.Background()))
	t.Cleanup(ctrl.Exit)
	return ctrl
}

func play(t *testing.T, ctrl *session.Controller, list ...string) {
	t.Helper()
	for _, raw := range list {
		_, err := ctrl.Move(domain.MustParseMove(raw))
		require.NoError(t, err, "move %s", raw)
	}
}

func TestDispatchReplies(t *testing.T) {
	ctrl := newPairController(t)
	srv := NewServer(ctrl, Options{})

	got := srv.Dispatch(sessiondto.Command{ID: "1", Type: sessiondto.CommandSelect, Square: "e2"})
	require.Len(t, got, 1)
	require.Equal(t, sessiondto.EventSelection, got[0].Type)
	require.Equal(t, "1", got[0].ReplyTo)
	require.ElementsMatch(t, []string{"e3", "e4"}, got[0].Squares)

	got = srv.Dispatch(sessiondto.Command{ID: "2", Type: sessiondto.CommandMove, Move: "e2e5"})
	require.Len(t, got, 1)
	require.Equal(t, sessiondto.EventError, got[0].Type)
	require.Equal(t, "2", got[0].ReplyTo)
	require.Equal(t, sessiondto.CodeIllegalMove, got[0].Error.Code)

	got = srv.Dispatch(sessiondto.Command{ID: "3", Type: sessiondto.CommandMove, Move: "e2"})
	require.Equal(t, sessiondto.CodeBadRequest, got[0].Error.Code)

	got = srv.Dispatch(sessiondto.Command{ID: "4", Type: sessiondto.CommandUndo})
	require.Equal(t, sessiondto.CodeNoHistory, got[0].Error.Code)

	got = srv.Dispatch(sessiondto.Command{ID: "5", Type: "castle"})
	require.Equal(t, sessiondto.CodeUnknownCommand, got[0].Error.Code)

	got = srv.Dispatch(sessiondto.Command{ID: "6", Type: sessiondto.CommandChangeMode, Mode: "chaos"})
	require.Equal(t, sessiondto.CodeBadRequest, got[0].Error.Code)

	got = srv.Dispatch(sessiondto.Command{ID: "7", Type: sessiondto.CommandMove, Move: "e2e4"})
	require.Empty(t, got)
	require.Len(t, ctrl.Snapshot().Applied, 1)

	got = srv.Dispatch(sessiondto.Command{ID: "8", Type: sessiondto.CommandTrainers})
	require.Equal(t, sessiondto.EventTrainers, got[0].Type)
	require.NotEmpty(t, got[0].Trainers)

	got = srv.Dispatch(sessiondto.Command{ID: "9", Type: sessiondto.CommandSnapshot})
	require.Equal(t, []string{"e2e4"}, got[0].State.MovesUCI)
	require.Equal(t, "black", got[0].State.SideToMove)
	require.Nil(t, got[0].State.Trainer)
}

func TestDispatchPromptsForPromotion(t *testing.T) {
	ctrl := newPairController(t)
	srv := NewServer(ctrl, Options{})
	play(t, ctrl, "a2a4", "b7b5", "a4b5", "a7a6", "b5a6", "c8b7", "a6b7", "b8c6")

	got := srv.Dispatch(sessiondto.Command{ID: "p", Type: sessiondto.CommandMove, Move: "b7b8"})
	require.Len(t, got, 1)
	require.Equal(t, sessiondto.EventPromotionPrompt, got[0].Type)
	require.Equal(t, "b8", got[0].Square)
	require.Len(t, ctrl.Snapshot().Applied, 8, "a prompt must not move anything")

	require.Empty(t, srv.Dispatch(sessiondto.Command{Type: sessiondto.CommandMove, Move: "b7b8n"}))
	last := ctrl.Snapshot().LastMove
	require.NotNil(t, last)
	require.Equal(t, domain.Knight, last.Promotion)
}

func TestErrorForKeepsSentinelPrecedence(t *testing.T) {
	notYours := &session.LegalityError{Move: domain.MustParseMove("e7e5"), Reason: session.ErrNotYourTurn}
	require.Equal(t, sessiondto.CodeNotYourTurn, ErrorFor(notYours).Code)

	promo := &session.LegalityError{Move: domain.MustParseMove("b7b8"), Reason: session.ErrPromotionRequired}
	require.Equal(t, sessiondto.CodePromotionRequired, ErrorFor(promo).Code)

	engine := ErrorFor(session.ErrEngineUnavailable)
	require.Equal(t, sessiondto.CodeEngineUnavailable, engine.Code)
	require.True(t, engine.Retryable)

	require.Equal(t, sessiondto.CodeInternal, ErrorFor(errors.New("boom")).Code)
	require.Nil(t, ErrorFor(nil))
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readUntil(t *testing.T, conn *websocket.Conn, want sessiondto.EventType) sessiondto.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		var ev sessiondto.Event
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			t.Fatalf("waiting for %s: %v", want, err)
		}
		if ev.Type == want {
			return ev
		}
	}
}

func TestWebsocketBroadcastsMoves(t *testing.T) {
	ctrl := newPairController(t)
	srv := NewServer(ctrl, Options{})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(srv.Close)

	a := dial(t, ts)
	b := dial(t, ts)
	first := readUntil(t, a, sessiondto.EventSnapshot)
	require.Equal(t, "pair", first.State.Mode)
	require.Empty(t, first.State.MovesUCI)
	readUntil(t, b, sessiondto.EventSnapshot)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, a, sessiondto.Command{ID: "m1", Type: sessiondto.CommandMove, Move: "e2e4"}))

	for _, conn := range []*websocket.Conn{a, b} {
		moved := readUntil(t, conn, sessiondto.EventMoved)
		require.Len(t, moved.Moves, 1)
		require.Equal(t, "e2e4", moved.Moves[0].UCI)
		require.Equal(t, "e4", moved.Moves[0].SAN)
		require.Equal(t, "local", moved.Origin)
		require.Equal(t, "black", moved.State.SideToMove)
	}

	require.NoError(t, wsjson.Write(ctx, b, sessiondto.Command{ID: "m2", Type: sessiondto.CommandMove, Move: "e7e4"}))
	bad := readUntil(t, b, sessiondto.EventError)
	require.Equal(t, "m2", bad.ReplyTo)
	require.Equal(t, sessiondto.CodeIllegalMove, bad.Error.Code)

	require.NoError(t, b.Write(ctx, websocket.MessageText, []byte("{not json")))
	bad = readUntil(t, b, sessiondto.EventError)
	require.Equal(t, sessiondto.CodeBadRequest, bad.Error.Code)
}

func TestWebsocketClosesWithSession(t *testing.T) {
	ctrl := newPairController(t)
	srv := NewServer(ctrl, Options{})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	conn := dial(t, ts)
	readUntil(t, conn, sessiondto.EventSnapshot)
	ctrl.Exit()
	readUntil(t, conn, sessiondto.EventClosed)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	require.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
}

func TestPGNDownload(t *testing.T) {
	ctrl := newPairController(t)
	day := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	srv := NewServer(ctrl, Options{Now: func() time.Time { return day }})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	play(t, ctrl, "e2e4", "e7e5")

	resp, err := http.Get(ts.URL + "/pgn")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Disposition"), rules.PGNFilename(day))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "1. e4 e5")
	require.Contains(t, string(body), "*")
}

func TestGamesListsHistory(t *testing.T) {
	ctrl := newPairController(t)
	ended := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	var gotLimit int
	srv := NewServer(ctrl, Options{History: func(_ context.Context, limit int) ([]domain.GameRecord, error) {
		gotLimit = limit
		return []domain.GameRecord{{
			SessionID: "g1",
			Mode:      "pair",
			LocalSide: "white",
			Result:    "1-0",
			Method:    "resignation",
			Winner:    "white",
			MovesUCI:  []string{"e2e4", "e7e5"},
			EndedAt:   ended,
			Duration:  90 * time.Second,
		}}, nil
	}})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/games?limit=5")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, 5, gotLimit)
	require.Contains(t, string(body), `"session_id":"g1"`)
	require.Contains(t, string(body), `"plies":2`)
	require.Contains(t, string(body), `"duration_ms":90000`)

	bad, err := http.Get(ts.URL + "/games?limit=zero")
	require.NoError(t, err)
	bad.Body.Close()
	require.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

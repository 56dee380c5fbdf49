package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/champions-gambit/internal/chess"
	"github.com/park285/champions-gambit/internal/chess/rules"
	"github.com/park285/champions-gambit/internal/domain"
	"github.com/park285/champions-gambit/internal/session"
	"github.com/park285/champions-gambit/pkg/sessiondto"
)

// Controller is the slice of *session.Controller the bridge drives.
type Controller interface {
	Subscribe(fn func(session.Event)) func()
	Snapshot() session.Snapshot
	Select(sq domain.Square) []domain.Square
	RequiresPromotion(from, to domain.Square) bool
	Move(mv domain.Move) (session.AppliedMove, error)
	Undo() error
	Redo() error
	NewGame() error
	ChangeMode(mode domain.Mode, local domain.Side) error
	ChangeTrainer(id string) error
	Resign() error
	PGN() (string, error)
	Trainers() []chess.Trainer
}

// HistoryFunc lists archived games, newest first.
type HistoryFunc func(ctx context.Context, limit int) ([]domain.GameRecord, error)

type Options struct {
	Logger         *zap.Logger
	History        HistoryFunc
	OriginPatterns []string
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	SendBuffer     int
	Now            func() time.Time
}

// Server exposes one session controller over a websocket plus a few plain HTTP reads.
type Server struct {
	ctrl    Controller
	history HistoryFunc
	logger  *zap.Logger
	now     func() time.Time

	originPatterns []string
	pingInterval   time.Duration
	writeTimeout   time.Duration
	sendBuffer     int

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

func NewServer(ctrl Controller, opts Options) *Server {
	s := &Server{
		ctrl:           ctrl,
		history:        opts.History,
		logger:         opts.Logger,
		now:            opts.Now,
		originPatterns: opts.OriginPatterns,
		pingInterval:   opts.PingInterval,
		writeTimeout:   opts.WriteTimeout,
		sendBuffer:     opts.SendBuffer,
		clients:        make(map[*client]struct{}),
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.pingInterval <= 0 {
		s.pingInterval = 30 * time.Second
	}
	if s.writeTimeout <= 0 {
		s.writeTimeout = 5 * time.Second
	}
	if s.sendBuffer <= 0 {
		s.sendBuffer = 64
	}
	return s
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/ws", s.handleWS)
	r.Get("/pgn", s.handlePGN)
	r.Get("/trainers", s.handleTrainers)
	r.Get("/games", s.handleGames)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

// Close drops every connected client. New connections are refused afterwards.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	clients := make([]*client, 0, len(s.clients))
	for cl := range s.clients {
		clients = append(clients, cl)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, cl := range clients {
		wg.Add(1)
		go func(cl *client) {
			defer wg.Done()
			cl.close(websocket.StatusGoingAway, "server shutdown")
		}(cl)
	}
	wg.Wait()
}

type client struct {
	conn   *websocket.Conn
	out    chan sessiondto.Event
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

// send never blocks the session. A client that cannot keep up is disconnected.
func (cl *client) send(ev sessiondto.Event) {
	select {
	case <-cl.done:
	case cl.out <- ev:
	default:
		// Close waits for the peer's handshake; the session must not.
		go cl.close(websocket.StatusPolicyViolation, "client too slow")
	}
}

// close sends the close frame before cancelling reads so the peer sees code and reason.
func (cl *client) close(code websocket.StatusCode, reason string) {
	cl.once.Do(func() {
		close(cl.done)
		_ = cl.conn.Close(code, reason)
		cl.cancel()
	})
}

func (s *Server) register(cl *client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.clients[cl] = struct{}{}
	return true
}

func (s *Server) unregister(cl *client) {
	s.mu.Lock()
	delete(s.clients, cl)
	s.mu.Unlock()
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		OriginPatterns:  s.originPatterns,
	})
	if err != nil {
		s.logger.Warn("ws_accept_failed", zap.Error(err))
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	cl := &client{
		conn:   conn,
		out:    make(chan sessiondto.Event, s.sendBuffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	if !s.register(cl) {
		cl.close(websocket.StatusGoingAway, "server shutdown")
		return
	}
	defer s.unregister(cl)
	defer cl.close(websocket.StatusNormalClosure, "")

	unsubscribe := s.ctrl.Subscribe(func(ev session.Event) {
		cl.send(ToDTOEvent(ev))
	})
	defer unsubscribe()

	cl.send(sessiondto.Event{Type: sessiondto.EventSnapshot, State: ToDTOState(s.ctrl.Snapshot())})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.writeLoop(ctx, cl)
	}()
	go func() {
		defer wg.Done()
		s.pingLoop(ctx, cl)
	}()

	s.logger.Info("ws_client_connected", zap.String("remote", r.RemoteAddr))
	s.readLoop(ctx, cl)
	cl.close(websocket.StatusNormalClosure, "")
	wg.Wait()
	s.logger.Info("ws_client_disconnected", zap.String("remote", r.RemoteAddr))
}

func (s *Server) readLoop(ctx context.Context, cl *client) {
	for {
		typ, data, err := cl.conn.Read(ctx)
		if err != nil {
			if st := websocket.CloseStatus(err); st != websocket.StatusNormalClosure && st != websocket.StatusGoingAway && ctx.Err() == nil {
				s.logger.Debug("ws_read_failed", zap.Error(err))
			}
			return
		}
		if typ != websocket.MessageText {
			cl.send(errorEvent("", &sessiondto.DomainError{Code: sessiondto.CodeBadRequest, Message: "text frames only"}))
			continue
		}
		var cmd sessiondto.Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			cl.send(errorEvent("", &sessiondto.DomainError{Code: sessiondto.CodeBadRequest, Message: "malformed command"}))
			continue
		}
		for _, reply := range s.Dispatch(cmd) {
			cl.send(reply)
		}
	}
}

func (s *Server) writeLoop(ctx context.Context, cl *client) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-cl.out:
			wctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
			err := wsjson.Write(wctx, cl.conn, ev)
			cancel()
			if err != nil {
				cl.close(websocket.StatusGoingAway, "write failed")
				return
			}
			if ev.Type == sessiondto.EventClosed {
				cl.close(websocket.StatusNormalClosure, "session closed")
				return
			}
		}
	}
}

func (s *Server) pingLoop(ctx context.Context, cl *client) {
	t := time.NewTicker(s.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := cl.conn.Ping(pctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 3 {
				cl.close(websocket.StatusGoingAway, "ping timeout")
				return
			}
		}
	}
}

// Dispatch runs one command and returns the direct replies for its sender. State changes
// reach every client through the session subscription instead.
func (s *Server) Dispatch(cmd sessiondto.Command) []sessiondto.Event {
	reply := func(ev sessiondto.Event) []sessiondto.Event {
		ev.ReplyTo = cmd.ID
		return []sessiondto.Event{ev}
	}
	fail := func(err error) []sessiondto.Event {
		if err == nil {
			return nil
		}
		return []sessiondto.Event{errorEvent(cmd.ID, ErrorFor(err))}
	}
	badRequest := func(err error) []sessiondto.Event {
		return []sessiondto.Event{errorEvent(cmd.ID, &sessiondto.DomainError{Code: sessiondto.CodeBadRequest, Message: err.Error()})}
	}

	switch cmd.Type {
	case sessiondto.CommandSelect:
		var sq domain.Square
		if strings.TrimSpace(cmd.Square) != "" {
			parsed, err := domain.ParseSquare(cmd.Square)
			if err != nil {
				return badRequest(err)
			}
			sq = parsed
		}
		return reply(sessiondto.Event{
			Type:    sessiondto.EventSelection,
			Square:  string(sq),
			Squares: squares(s.ctrl.Select(sq)),
		})

	case sessiondto.CommandMove:
		mv, err := domain.ParseMove(cmd.Move)
		if err != nil {
			return badRequest(err)
		}
		if mv.Promotion == domain.NoPieceKind && s.ctrl.RequiresPromotion(mv.From, mv.To) {
			return reply(sessiondto.Event{
				Type:    sessiondto.EventPromotionPrompt,
				Square:  string(mv.To),
				Squares: []string{string(mv.From), string(mv.To)},
			})
		}
		_, err = s.ctrl.Move(mv)
		return fail(err)

	case sessiondto.CommandUndo:
		return fail(s.ctrl.Undo())
	case sessiondto.CommandRedo:
		return fail(s.ctrl.Redo())
	case sessiondto.CommandNewGame:
		return fail(s.ctrl.NewGame())
	case sessiondto.CommandResign:
		return fail(s.ctrl.Resign())

	case sessiondto.CommandChangeMode:
		mode, err := domain.ParseMode(cmd.Mode)
		if err != nil {
			return badRequest(err)
		}
		side := s.ctrl.Snapshot().LocalSide
		if strings.TrimSpace(cmd.Side) != "" {
			if side, err = domain.ParseSide(cmd.Side); err != nil {
				return badRequest(err)
			}
		}
		return fail(s.ctrl.ChangeMode(mode, side))

	case sessiondto.CommandChangeTrainer:
		if strings.TrimSpace(cmd.Trainer) == "" {
			return badRequest(errors.New("trainer is required"))
		}
		return fail(s.ctrl.ChangeTrainer(cmd.Trainer))

	case sessiondto.CommandTrainers:
		return reply(sessiondto.Event{Type: sessiondto.EventTrainers, Trainers: ToDTOTrainers(s.ctrl.Trainers())})

	case sessiondto.CommandSnapshot:
		return reply(sessiondto.Event{Type: sessiondto.EventSnapshot, State: ToDTOState(s.ctrl.Snapshot())})

	default:
		return []sessiondto.Event{errorEvent(cmd.ID, &sessiondto.DomainError{
			Code:    sessiondto.CodeUnknownCommand,
			Message: fmt.Sprintf("unknown command %q", cmd.Type),
		})}
	}
}

func errorEvent(replyTo string, de *sessiondto.DomainError) sessiondto.Event {
	return sessiondto.Event{Type: sessiondto.EventError, ReplyTo: replyTo, Error: de}
}

func (s *Server) handlePGN(w http.ResponseWriter, _ *http.Request) {
	pgn, err := s.ctrl.PGN()
	if err != nil {
		s.logger.Warn("pgn_export_failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorFor(err))
		return
	}
	w.Header().Set("Content-Type", "application/x-chess-pgn")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rules.PGNFilename(s.now())))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(pgn))
}

func (s *Server) handleTrainers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, ToDTOTrainers(s.ctrl.Trainers()))
}

func (s *Server) handleGames(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusOK, []sessiondto.GameSummary{})
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, &sessiondto.DomainError{Code: sessiondto.CodeBadRequest, Message: "invalid limit"})
			return
		}
		limit = n
	}
	recs, err := s.history(r.Context(), limit)
	if err != nil {
		s.logger.Warn("history_failed", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, &sessiondto.DomainError{Code: sessiondto.CodeInternal, Message: err.Error(), Retryable: true})
		return
	}
	out := make([]sessiondto.GameSummary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, ToDTOSummary(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

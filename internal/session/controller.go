// Package session owns one game: the move ledger, whose turn it is, the automated opponent
// and the reports that leave the session when a game ends.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/champions-gambit/internal/chess"
	"github.com/park285/champions-gambit/internal/chess/rules"
	"github.com/park285/champions-gambit/internal/chess/uci"
	"github.com/park285/champions-gambit/internal/domain"
	"github.com/park285/champions-gambit/internal/feedback"
)

const archiveTimeout = 10 * time.Second

var errNotStarted = errors.New("session not started")

// Archiver receives every finished game. Save runs off the session lock.
type Archiver interface {
	Save(ctx context.Context, rec domain.GameRecord) error
}

type Config struct {
	Oracle           *rules.Oracle
	Engines          *uci.Slot
	Roster           *chess.Roster
	TrainerID        string
	Mode             domain.Mode
	LocalSide        domain.Side
	EngineDelay      time.Duration
	FirstEngineDelay time.Duration
	Feedback         *feedback.Dispatcher
	Archive          Archiver
	Logger           *zap.Logger
	Now              func() time.Time
}

// Controller serializes every mutation of a session. Events produced by a mutation are
// delivered after the lock is released, in the order they were produced.
type Controller struct {
	oracle     *rules.Oracle
	engines    *uci.Slot
	roster     *chess.Roster
	feedback   *feedback.Dispatcher
	archive    Archiver
	logger     *zap.Logger
	now        func() time.Time
	delay      time.Duration
	firstDelay time.Duration
	deadline   func(uci.Strength) time.Duration

	mu        sync.Mutex
	ctx       context.Context
	cancelCtx context.CancelFunc
	started   bool
	closed    bool
	sessionID string
	startedAt time.Time
	mode      domain.Mode
	local     domain.Side
	trainer   chess.Trainer
	ledger    *Ledger
	coord     coordinator
	term      terminationDetector
	resigned  *domain.Outcome
	selected  domain.Square

	engine     *uci.Adapter
	engineGen  uint64
	engineDown bool

	seq      uint64
	queue    []Event
	draining bool
	subs     []subscriber
	nextSub  int
}

func New(cfg Config) (*Controller, error) {
	oracle := cfg.Oracle
	if oracle == nil {
		oracle = rules.NewOracle()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	roster := cfg.Roster
	if roster == nil {
		r, err := chess.LoadRoster("")
		if err != nil {
			return nil, fmt.Errorf("load trainers: %w", err)
		}
		roster = r
	}
	trainerID := cfg.TrainerID
	if trainerID == "" {
		trainerID = chess.DefaultTrainerID
	}
	trainer, err := roster.Get(trainerID)
	if err != nil {
		return nil, err
	}
	delay := cfg.EngineDelay
	if delay <= 0 {
		delay = DefaultEngineDelay
	}
	firstDelay := cfg.FirstEngineDelay
	if firstDelay <= 0 {
		firstDelay = DefaultFirstEngineDelay
	}
	dispatcher := cfg.Feedback
	if dispatcher == nil {
		dispatcher = feedback.NewDispatcher(feedback.Config{Settings: feedback.DefaultSettings(), Logger: logger}, nil)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	c := &Controller{
		oracle:     oracle,
		engines:    cfg.Engines,
		roster:     roster,
		feedback:   dispatcher,
		archive:    cfg.Archive,
		logger:     logger,
		now:        now,
		delay:      delay,
		firstDelay: firstDelay,
		deadline:   chess.SearchDeadline,
		mode:       cfg.Mode,
		local:      cfg.LocalSide,
		trainer:    trainer,
		ledger:     NewLedger(oracle, cfg.Mode, cfg.LocalSide),
	}
	dispatcher.SetEmitter(c.onFeedbackSignal)
	return c, nil
}

// Start begins the first game. ctx bounds engine start-up for the life of the session.
func (c *Controller) Start(ctx context.Context) error {
	defer c.flush()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrSessionClosed
	}
	if c.started {
		return nil
	}
	c.ctx, c.cancelCtx = context.WithCancel(ctx)
	c.started = true
	c.resetGameLocked()
	return nil
}

func (c *Controller) NewGame() error {
	defer c.flush()
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.openLocked(); err != nil {
		return err
	}
	c.resetGameLocked()
	return nil
}

// ChangeMode starts a new game in the given mode.
func (c *Controller) ChangeMode(mode domain.Mode, local domain.Side) error {
	if mode != domain.LocalPairPlay && mode != domain.VsAutomatedOpponent {
		return fmt.Errorf("unknown mode %d", mode)
	}
	defer c.flush()
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.openLocked(); err != nil {
		return err
	}
	c.mode = mode
	c.local = local
	c.resetGameLocked()
	return nil
}

// ChangeTrainer swaps the automated opponent and starts a new game against it.
func (c *Controller) ChangeTrainer(id string) error {
	trainer, err := c.roster.Get(id)
	if err != nil {
		return err
	}
	defer c.flush()
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.openLocked(); err != nil {
		return err
	}
	c.trainer = trainer
	c.resetGameLocked()
	return nil
}

// Move applies a move entered by the local player.
func (c *Controller) Move(mv domain.Move) (AppliedMove, error) {
	defer c.flush()
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.playableLocked(); err != nil {
		return AppliedMove{}, err
	}
	// covers repetition and fifty-move draws, which the rules library would still play on
	if c.oracle.TerminalStatus(c.ledger.Position()).GameOver {
		return AppliedMove{}, ErrGameOver
	}
	if c.mode == domain.VsAutomatedOpponent && c.ledger.SideToMove() != c.local {
		return AppliedMove{}, &LegalityError{Move: mv, Reason: ErrNotYourTurn}
	}
	return c.applyLocked(mv, OriginLocal)
}

func (c *Controller) Undo() error {
	defer c.flush()
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.playableLocked(); err != nil {
		return err
	}
	undone, err := c.ledger.Undo()
	if err != nil {
		return err
	}
	c.selected = ""
	c.queueLocked(Event{Kind: EventUndone, Origin: OriginLocal, Undone: undone})
	c.afterMutationLocked(c.feedback.HistoryStepped())
	return nil
}

func (c *Controller) Redo() error {
	defer c.flush()
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.playableLocked(); err != nil {
		return err
	}
	applied, err := c.ledger.Redo()
	if len(applied) == 0 {
		return err
	}
	c.selected = ""
	c.queueLocked(Event{Kind: EventRedone, Origin: OriginRedo, Moves: applied})
	c.afterMutationLocked(c.feedback.HistoryStepped())
	return err
}

// Resign ends the game in favour of the other side. In pair play the side to move resigns.
func (c *Controller) Resign() error {
	defer c.flush()
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.playableLocked(); err != nil {
		return err
	}
	if c.oracle.TerminalStatus(c.ledger.Position()).GameOver {
		return ErrGameOver
	}
	loser := c.local
	if c.mode == domain.LocalPairPlay {
		loser = c.ledger.SideToMove()
	}
	outcome := domain.Outcome{Kind: domain.Resignation, Winner: loser.Opponent(), HasWinner: true}
	c.resigned = &outcome
	c.term.markFired()
	c.cancelRequestLocked()
	c.selected = ""
	c.queueLocked(Event{Kind: EventTurn})
	c.gameOverLocked(outcome)
	return nil
}

// Exit ends the session. Pending timers are cancelled and the engine is terminated.
func (c *Controller) Exit() {
	defer c.flush()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.cancelRequestLocked()
	c.engineGen++
	c.engines.Release()
	c.engine = nil
	c.feedback.Reset()
	if c.cancelCtx != nil {
		c.cancelCtx()
	}
	c.queueLocked(Event{Kind: EventClosed})
	c.logger.Info("session_closed", zap.String("session_id", c.sessionID))
}

// Select records the origin square the local player picked and returns where it can go.
// An empty result clears the selection.
func (c *Controller) Select(sq domain.Square) []domain.Square {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.playableLocked() != nil || !c.inputAllowedLocked() {
		c.selected = ""
		return nil
	}
	dests := c.oracle.LegalDestinations(c.ledger.Position(), sq)
	if len(dests) == 0 {
		c.selected = ""
		return nil
	}
	c.selected = sq
	return dests
}

func (c *Controller) LegalDestinations(sq domain.Square) []domain.Square {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.oracle.LegalDestinations(c.ledger.Position(), sq)
}

func (c *Controller) RequiresPromotion(from, to domain.Square) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.oracle.RequiresPromotion(c.ledger.Position(), from, to)
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) CanUndo() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resigned == nil && c.ledger.CanUndo()
}

func (c *Controller) CanRedo() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resigned == nil && c.ledger.CanRedo()
}

func (c *Controller) LastMove() (domain.Move, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ledger.LastMove()
}

func (c *Controller) Trainer() chess.Trainer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trainer
}

func (c *Controller) Trainers() []chess.Trainer { return c.roster.List() }

func (c *Controller) FeedbackSettings() feedback.Settings { return c.feedback.Settings() }

func (c *Controller) UpdateFeedbackSettings(s feedback.Settings) { c.feedback.UpdateSettings(s) }

// PGN exports the current game. Unfinished games end in "*".
func (c *Controller) PGN() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.oracle.ExportPGN(c.ledger.Applied(), c.outcomeLocked(), c.pgnTagsLocked(c.outcomeLocked()))
}

// Subscribe registers fn for every event. The returned func removes it.
func (c *Controller) Subscribe(fn func(Event)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextSub++
	id := c.nextSub
	c.subs = append(c.subs, subscriber{id: id, fn: fn})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, s := range c.subs {
			if s.id == id {
				c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
				return
			}
		}
	}
}

func (c *Controller) openLocked() error {
	if c.closed {
		return ErrSessionClosed
	}
	if !c.started {
		return errNotStarted
	}
	return nil
}

func (c *Controller) playableLocked() error {
	if err := c.openLocked(); err != nil {
		return err
	}
	if c.resigned != nil {
		return ErrGameOver
	}
	return nil
}

func (c *Controller) inputAllowedLocked() bool {
	return c.mode == domain.LocalPairPlay || c.ledger.SideToMove() == c.local
}

func (c *Controller) resetGameLocked() {
	c.cancelRequestLocked()
	c.coord = newCoordinator(c.mode, c.local, c.delay, c.firstDelay)
	c.sessionID = uuid.NewString()
	c.startedAt = c.now()
	c.ledger = NewLedger(c.oracle, c.mode, c.local)
	c.term.reset()
	c.resigned = nil
	c.selected = ""
	c.feedback.Reset()
	c.startEngineLocked()

	c.logger.Info("game_started",
		zap.String("session_id", c.sessionID),
		zap.String("mode", c.mode.String()),
		zap.String("local_side", c.local.String()),
		zap.String("trainer", c.trainer.ID),
	)
	c.queueLocked(Event{Kind: EventNewGame})
	c.afterMutationLocked(nil)
}

func (c *Controller) startEngineLocked() {
	c.engineGen++
	gen := c.engineGen
	c.engine = nil
	c.engineDown = false

	if c.mode != domain.VsAutomatedOpponent {
		c.engines.Release()
		return
	}
	if c.engines == nil {
		c.engineFailedLocked(ErrNoOpponent)
		return
	}
	adapter, err := c.engines.Replace(uci.Handlers{
		OnBestMove: func(tag string, mv domain.Move) { c.onBestMove(gen, tag, mv) },
		OnFailure:  func(err error) { c.onEngineFailure(gen, err) },
	})
	if err != nil {
		c.engineFailedLocked(fmt.Errorf("%w: %v", ErrEngineUnavailable, err))
		return
	}
	c.engine = adapter
	adapter.Configure(c.trainer.Strength)

	ctx := c.ctx
	go func() {
		err := adapter.Initialize(ctx)
		if err == nil || errors.Is(err, uci.ErrTerminated) || errors.Is(err, context.Canceled) {
			return
		}
		c.onEngineFailure(gen, err)
	}()
}

func (c *Controller) applyLocked(mv domain.Move, origin Origin) (AppliedMove, error) {
	applied, err := c.ledger.Apply(mv)
	if err != nil {
		return AppliedMove{}, err
	}
	c.selected = ""
	c.logger.Debug("move_applied",
		zap.String("session_id", c.sessionID),
		zap.String("origin", string(origin)),
		zap.String("move", mv.UCI()),
		zap.Int("ply", applied.Ply),
	)
	c.queueLocked(Event{Kind: EventMoved, Origin: origin, Moves: []AppliedMove{applied}})
	c.afterMutationLocked(c.feedback.MoveApplied(mv, applied.Effects))
	return applied, nil
}

// afterMutationLocked runs after every ledger change: turn evaluation, then termination,
// then presentation feedback.
func (c *Controller) afterMutationLocked(cues []feedback.Signal) {
	pos := c.ledger.Position()
	status := c.oracle.TerminalStatus(pos)

	c.cancelRequestLocked()
	if c.coord.evaluate(c.ledger.SideToMove(), status.GameOver) == AwaitingAutomatedReply {
		c.scheduleRequestLocked()
	}
	c.queueLocked(Event{Kind: EventTurn})

	outcome, fired := c.term.observe(status)
	c.queueFeedbackLocked(cues)
	switch {
	case fired:
		c.gameOverLocked(outcome)
	case !status.GameOver:
		king, _ := c.oracle.KingSquare(pos, c.ledger.SideToMove())
		c.queueFeedbackLocked(c.feedback.Check(c.oracle.InCheck(pos), king))
	}
}

func (c *Controller) scheduleRequestLocked() {
	if c.engine == nil || c.engineDown {
		return
	}
	pos := c.ledger.Position()
	gen := c.engineGen
	c.coord.schedule(pos.Ply(), c.oracle.Serialize(pos), func(tag string) { c.fireRequest(gen, tag) })
}

func (c *Controller) cancelRequestLocked() {
	if c.coord.cancel() && c.engine != nil {
		c.engine.Cancel()
	}
}

func (c *Controller) fireRequest(gen uint64, tag string) {
	defer c.flush()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || gen != c.engineGen || c.engineDown || c.engine == nil {
		return
	}
	req, ok := c.coord.claim(tag)
	if !ok {
		return
	}
	deadline := c.deadline(c.trainer.Strength)
	req.watchdog = time.AfterFunc(deadline, func() { c.onWatchdog(gen, tag) })
	c.engine.RequestMove(tag, uci.Snapshot{Moves: domain.MovesUCI(c.ledger.Applied())}, c.trainer.Strength)
	c.logger.Debug("engine_request",
		zap.String("tag", tag),
		zap.Int("ply", req.ply),
		zap.Duration("deadline", deadline),
	)
}

func (c *Controller) onBestMove(gen uint64, tag string, mv domain.Move) {
	defer c.flush()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	if gen != c.engineGen {
		c.logger.Debug("engine_reply_dropped", zap.Error(&StaleResponseError{Tag: tag, Reason: "engine replaced"}))
		return
	}
	pos := c.ledger.Position()
	if err := c.coord.resolve(tag, pos.Ply(), c.oracle.Serialize(pos)); err != nil {
		c.logger.Debug("engine_reply_dropped", zap.Error(err))
		return
	}
	if _, err := c.applyLocked(mv, OriginEngine); err != nil {
		c.engineFailedLocked(fmt.Errorf("%w: rejected reply %s: %v", ErrEngineUnavailable, mv, err))
	}
}

func (c *Controller) onWatchdog(gen uint64, tag string) {
	defer c.flush()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || gen != c.engineGen {
		return
	}
	if p := c.coord.pending; p == nil || p.tag != tag || !p.issued {
		return
	}
	c.engineFailedLocked(fmt.Errorf("%w: no reply within %s", ErrEngineUnavailable, c.deadline(c.trainer.Strength)))
}

func (c *Controller) onEngineFailure(gen uint64, err error) {
	defer c.flush()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || gen != c.engineGen {
		return
	}
	c.engineFailedLocked(err)
}

// engineFailedLocked disables the opponent for the rest of the game. The turn stays with
// the opponent; the local player can still resign, exit or start a new game.
func (c *Controller) engineFailedLocked(err error) {
	if c.engineDown {
		return
	}
	c.engineDown = true
	c.coord.cancel()
	c.engines.Release()
	c.engine = nil
	c.logger.Warn("engine_unavailable",
		zap.String("session_id", c.sessionID),
		zap.String("trainer", c.trainer.ID),
		zap.Error(err),
	)
	c.queueLocked(Event{Kind: EventEngineUnavailable, Err: err})
}

func (c *Controller) gameOverLocked(outcome domain.Outcome) {
	moves := c.ledger.Applied()
	pgn, err := c.oracle.ExportPGN(moves, outcome, c.pgnTagsLocked(outcome))
	if err != nil {
		c.logger.Warn("pgn_export_failed", zap.String("session_id", c.sessionID), zap.Error(err))
	}
	ended := c.now()
	rec := domain.GameRecord{
		SessionID: c.sessionID,
		Mode:      c.mode.String(),
		LocalSide: c.local.String(),
		Trainer:   c.trainerLabelLocked(),
		Result:    outcome.Result(),
		Method:    outcome.Kind.String(),
		MovesUCI:  domain.MovesUCI(moves),
		MovesSAN:  c.oracle.SAN(c.ledger.Position()),
		PGN:       pgn,
		StartedAt: c.startedAt,
		EndedAt:   ended,
		Duration:  ended.Sub(c.startedAt),
	}
	if outcome.HasWinner {
		rec.Winner = outcome.Winner.String()
	}

	c.logger.Info("game_over",
		zap.String("session_id", c.sessionID),
		zap.String("result", rec.Result),
		zap.String("method", rec.Method),
		zap.Int("plies", len(moves)),
	)
	c.queueLocked(Event{Kind: EventGameOver, GameOver: &GameOverReport{
		Outcome: outcome,
		Moves:   moves,
		SAN:     rec.MovesSAN,
		PGN:     pgn,
		Record:  rec,
	}})
	c.queueFeedbackLocked(c.feedback.GameOver())

	if c.archive != nil {
		go c.archiveRecord(rec)
	}
}

func (c *Controller) archiveRecord(rec domain.GameRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	if err := c.archive.Save(ctx, rec); err != nil {
		c.logger.Warn("archive_failed", zap.String("session_id", rec.SessionID), zap.Error(err))
	}
}

func (c *Controller) outcomeLocked() domain.Outcome {
	if c.resigned != nil {
		return *c.resigned
	}
	return c.oracle.TerminalStatus(c.ledger.Position()).Outcome
}

func (c *Controller) trainerLabelLocked() string {
	if c.mode != domain.VsAutomatedOpponent {
		return ""
	}
	return c.trainer.ID
}

func (c *Controller) pgnTagsLocked(outcome domain.Outcome) rules.Tags {
	tags := rules.Tags{
		Event:       "Champion's Gambit",
		Site:        "Local",
		Date:        c.startedAt,
		White:       "White",
		Black:       "Black",
		Termination: outcome.Kind.String(),
	}
	if c.mode == domain.VsAutomatedOpponent {
		opponent := fmt.Sprintf("%s (%s)", c.trainer.Name, c.trainer.DifficultyLabel())
		if c.local == domain.White {
			tags.White, tags.Black = "Player", opponent
		} else {
			tags.White, tags.Black = opponent, "Player"
		}
	}
	return tags
}

func (c *Controller) snapshotLocked() Snapshot {
	pos := c.ledger.Position()
	status := c.oracle.TerminalStatus(pos)
	toMove := c.ledger.SideToMove()

	s := Snapshot{
		SessionID:  c.sessionID,
		Mode:       c.mode,
		LocalSide:  c.local,
		Trainer:    c.trainerLabelLocked(),
		FEN:        c.oracle.Serialize(pos),
		SideToMove: toMove,
		Applied:    c.ledger.Applied(),
		Redo:       c.ledger.RedoStack(),
		CanUndo:    c.resigned == nil && c.ledger.CanUndo(),
		CanRedo:    c.resigned == nil && c.ledger.CanRedo(),
		InCheck:    c.oracle.InCheck(pos),
		GameOver:   status.GameOver || c.resigned != nil,
		Outcome:    c.outcomeLocked(),
		Selected:   c.selected,

		EngineAvailable: c.mode == domain.VsAutomatedOpponent && c.engine != nil && !c.engineDown,
	}
	s.Turn = c.coord.evaluate(toMove, s.GameOver)
	if last, ok := c.ledger.LastMove(); ok {
		s.LastMove = &last
	}
	if s.InCheck {
		s.CheckedKing, _ = c.oracle.KingSquare(pos, toMove)
	}
	if c.selected != "" {
		s.Destinations = c.oracle.LegalDestinations(pos, c.selected)
	}
	if c.mode == domain.VsAutomatedOpponent {
		s.Opponent = c.trainer
	}
	return s
}

func (c *Controller) onFeedbackSignal(sig feedback.Signal) {
	defer c.flush()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.queueFeedbackLocked([]feedback.Signal{sig})
}

func (c *Controller) queueFeedbackLocked(signals []feedback.Signal) {
	for _, sig := range signals {
		c.seq++
		c.queue = append(c.queue, Event{Seq: c.seq, Kind: EventFeedback, Feedback: sig})
	}
}

func (c *Controller) queueLocked(ev Event) {
	c.seq++
	ev.Seq = c.seq
	ev.Snapshot = c.snapshotLocked()
	c.queue = append(c.queue, ev)
}

// flush delivers queued events outside the lock. Only one goroutine drains at a time so
// subscribers see events in sequence order, even when they call back into the controller.
func (c *Controller) flush() {
	c.mu.Lock()
	if c.draining {
		c.mu.Unlock()
		return
	}
	c.draining = true
	for len(c.queue) > 0 {
		batch := c.queue
		c.queue = nil
		subs := append([]subscriber(nil), c.subs...)
		c.mu.Unlock()
		for _, ev := range batch {
			for _, s := range subs {
				s.fn(ev)
			}
		}
		c.mu.Lock()
	}
	c.draining = false
	c.mu.Unlock()
}

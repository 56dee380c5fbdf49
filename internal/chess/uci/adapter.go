package uci

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/champions-gambit/internal/domain"
)

const (
	defaultGracePeriod  = time.Second
	defaultReadyTimeout = 4 * time.Second
)

var (
	ErrEngineUnavailable = errors.New("engine unavailable")
	ErrTerminated        = errors.New("engine terminated")
	errProcessExited     = errors.New("engine process exited")
	errReadyTimeout      = errors.New("engine did not become ready")
)

type State int32

const (
	Uninitialized State = iota
	Initializing
	Ready
	Configuring
	Terminated
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	case Configuring:
		return "configuring"
	case Terminated:
		return "terminated"
	}
	return "uninitialized"
}

// Handlers are invoked from the adapter's reader goroutine, never under its lock.
type Handlers struct {
	OnBestMove func(tag string, mv domain.Move)
	OnFailure  func(err error)
}

type Option func(*Adapter)

func WithLogger(l *zap.Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithGracePeriod sets how long to wait for uciok before probing with isready.
func WithGracePeriod(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.gracePeriod = d
		}
	}
}

func WithReadyTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.readyTimeout = d
		}
	}
}

type command struct {
	lines     []string
	tag       string
	configure bool
}

// Adapter drives one engine process. Commands issued before readiness are queued and
// flushed in order; replies are attributed to request tags in the order searches started.
type Adapter struct {
	transport    Transport
	handlers     Handlers
	logger       *zap.Logger
	gracePeriod  time.Duration
	readyTimeout time.Duration

	mu           sync.Mutex
	state        State
	queue        []command
	inflight     []string
	probes       int
	fallbackSent bool
	fallback     *time.Timer
	started      bool
	ready        chan struct{}
	done         chan struct{}
}

func NewAdapter(t Transport, h Handlers, opts ...Option) *Adapter {
	a := &Adapter{
		transport:    t,
		handlers:     h,
		logger:       zap.NewNop(),
		gracePeriod:  defaultGracePeriod,
		readyTimeout: defaultReadyTimeout,
		ready:        make(chan struct{}),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Initialize spawns the engine and blocks until it is ready, ctx ends, or the ready
// timeout elapses. Commands may be issued concurrently while it waits.
func (a *Adapter) Initialize(ctx context.Context) error {
	a.mu.Lock()
	switch a.state {
	case Terminated:
		a.mu.Unlock()
		return ErrTerminated
	case Uninitialized:
		a.state = Initializing
	default:
		a.mu.Unlock()
		return a.waitReady(ctx)
	}
	a.mu.Unlock()

	lines, err := a.transport.Start(ctx)
	if err != nil {
		a.fail(fmt.Errorf("start: %w", err))
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}

	a.mu.Lock()
	if a.state == Terminated {
		a.mu.Unlock()
		_ = a.transport.Close()
		return ErrTerminated
	}
	a.started = true
	go a.readLoop(lines)
	a.writeLocked("uci")
	a.fallback = time.AfterFunc(a.gracePeriod, a.probeReadiness)
	a.mu.Unlock()

	return a.waitReady(ctx)
}

func (a *Adapter) waitReady(ctx context.Context) error {
	timer := time.NewTimer(a.readyTimeout)
	defer timer.Stop()

	select {
	case <-a.ready:
		return nil
	case <-a.done:
		return ErrTerminated
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		a.fail(errReadyTimeout)
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, errReadyTimeout)
	}
}

func (a *Adapter) probeReadiness() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != Initializing {
		return
	}
	a.logger.Warn("engine_uciok_timeout", zap.Duration("grace", a.gracePeriod))
	a.fallbackSent = true
	a.writeLocked("isready")
}

// Configure resets the engine for a new game and applies the strength.
func (a *Adapter) Configure(s Strength) {
	cmd := command{lines: configureCommands(s), configure: true}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.dispatchLocked(cmd)
}

// RequestMove asks for a move in snap. The reply is delivered to OnBestMove with tag.
func (a *Adapter) RequestMove(tag string, snap Snapshot, s Strength) {
	cmd := command{
		lines: []string{buildPositionCommand(snap.FEN, snap.Moves), buildGoCommand(s)},
		tag:   tag,
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.dispatchLocked(cmd)
}

// Cancel drops queued requests and stops the running search. The stopped search still
// answers under its original tag.
func (a *Adapter) Cancel() {
	a.mu.Lock()
	defer a.mu.Unlock()

	kept := a.queue[:0]
	for _, cmd := range a.queue {
		if cmd.tag == "" {
			kept = append(kept, cmd)
		}
	}
	a.queue = kept

	if (a.state == Ready || a.state == Configuring) && len(a.inflight) > 0 {
		a.writeLocked("stop")
	}
}

// Terminate is idempotent.
func (a *Adapter) Terminate() {
	a.mu.Lock()
	if a.state == Terminated {
		a.mu.Unlock()
		return
	}
	a.state = Terminated
	a.stopFallbackLocked()
	a.queue = nil
	a.inflight = nil
	close(a.done)
	started := a.started
	if started {
		_ = a.transport.WriteLine("quit")
	}
	a.mu.Unlock()

	if started {
		if err := a.transport.Close(); err != nil {
			a.logger.Debug("engine_close", zap.Error(err))
		}
	}
	a.logger.Debug("engine_terminated")
}

func (a *Adapter) dispatchLocked(cmd command) {
	switch a.state {
	case Terminated:
		a.logger.Debug("engine_command_dropped", zap.Strings("lines", cmd.lines))
	case Uninitialized, Initializing:
		a.queue = append(a.queue, cmd)
	default:
		a.issueLocked(cmd)
	}
}

func (a *Adapter) issueLocked(cmd command) {
	if cmd.configure {
		a.state = Configuring
		a.probes++
	}
	if cmd.tag != "" {
		if len(a.inflight) > 0 {
			a.writeLocked("stop")
		}
		a.inflight = append(a.inflight, cmd.tag)
	}
	for _, line := range cmd.lines {
		a.writeLocked(line)
	}
}

func (a *Adapter) writeLocked(line string) {
	if err := a.transport.WriteLine(line); err != nil {
		a.logger.Warn("engine_write_failed", zap.String("line", line), zap.Error(err))
		go a.fail(fmt.Errorf("write %q: %w", line, err))
	}
}

func (a *Adapter) becomeReadyLocked() {
	a.stopFallbackLocked()
	a.state = Ready
	queued := a.queue
	a.queue = nil
	for _, cmd := range queued {
		a.issueLocked(cmd)
	}
	close(a.ready)
	a.logger.Debug("engine_ready", zap.Int("flushed", len(queued)))
}

func (a *Adapter) stopFallbackLocked() {
	if a.fallback != nil {
		a.fallback.Stop()
		a.fallback = nil
	}
}

func (a *Adapter) readLoop(lines <-chan string) {
	for line := range lines {
		a.handleLine(strings.TrimSpace(line))
	}
	a.fail(errProcessExited)
}

func (a *Adapter) handleLine(line string) {
	switch {
	case line == "":
	case line == "uciok":
		a.mu.Lock()
		if a.state == Initializing {
			a.becomeReadyLocked()
		}
		a.mu.Unlock()
	case line == "readyok":
		a.mu.Lock()
		switch {
		case a.state == Initializing:
			if a.fallbackSent {
				a.fallbackSent = false
				a.becomeReadyLocked()
			}
		case a.fallbackSent:
			// answer to the fallback probe sent before uciok arrived
			a.fallbackSent = false
		case a.state == Configuring:
			a.probes--
			if a.probes <= 0 {
				a.probes = 0
				a.state = Ready
			}
		}
		a.mu.Unlock()
	case strings.HasPrefix(line, "bestmove"):
		a.deliverBestMove(line)
	}
}

func (a *Adapter) deliverBestMove(line string) {
	a.mu.Lock()
	if a.state == Terminated {
		a.mu.Unlock()
		return
	}
	if len(a.inflight) == 0 {
		a.mu.Unlock()
		a.logger.Warn("engine_bestmove_unattributed", zap.String("line", line))
		return
	}
	tag := a.inflight[0]
	a.inflight = a.inflight[1:]
	a.mu.Unlock()

	mv, ok, err := parseBestMove(line)
	if err != nil {
		a.logger.Warn("engine_bestmove_invalid", zap.String("line", line), zap.Error(err))
		return
	}
	if !ok {
		a.logger.Debug("engine_no_move", zap.String("tag", tag))
		return
	}
	if a.handlers.OnBestMove != nil {
		a.handlers.OnBestMove(tag, mv)
	}
}

func (a *Adapter) fail(err error) {
	a.mu.Lock()
	if a.state == Terminated {
		a.mu.Unlock()
		return
	}
	a.state = Terminated
	a.stopFallbackLocked()
	a.queue = nil
	a.inflight = nil
	close(a.done)
	started := a.started
	a.mu.Unlock()

	if started {
		_ = a.transport.Close()
	}
	a.logger.Error("engine_failed", zap.Error(err))
	if a.handlers.OnFailure != nil {
		a.handlers.OnFailure(fmt.Errorf("%w: %v", ErrEngineUnavailable, err))
	}
}

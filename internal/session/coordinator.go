package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/park285/champions-gambit/internal/domain"
)

const (
	DefaultEngineDelay      = 2000 * time.Millisecond
	DefaultFirstEngineDelay = 1000 * time.Millisecond
)

type TurnState uint8

const (
	LocalTurn TurnState = iota
	AwaitingAutomatedReply
)

func (t TurnState) String() string {
	if t == AwaitingAutomatedReply {
		return "awaiting_reply"
	}
	return "local"
}

// pendingRequest ties one engine request to the ledger state it was scheduled for.
type pendingRequest struct {
	tag      string
	ply      int
	fen      string
	issued   bool
	debounce *time.Timer
	watchdog *time.Timer
}

func (p *pendingRequest) stop() {
	if p.debounce != nil {
		p.debounce.Stop()
	}
	if p.watchdog != nil {
		p.watchdog.Stop()
	}
}

// coordinator decides whose turn it is and owns the debounced engine request. At most
// one request is pending; scheduling a new one cancels the old.
type coordinator struct {
	mode       domain.Mode
	local      domain.Side
	delay      time.Duration
	firstDelay time.Duration
	first      bool
	pending    *pendingRequest
}

func newCoordinator(mode domain.Mode, local domain.Side, delay, firstDelay time.Duration) coordinator {
	return coordinator{mode: mode, local: local, delay: delay, firstDelay: firstDelay, first: true}
}

func (c *coordinator) evaluate(toMove domain.Side, gameOver bool) TurnState {
	if c.mode == domain.LocalPairPlay || gameOver || toMove == c.local {
		return LocalTurn
	}
	return AwaitingAutomatedReply
}

func (c *coordinator) schedule(ply int, fen string, fire func(tag string)) *pendingRequest {
	c.cancel()
	delay := c.delay
	if c.first {
		delay = c.firstDelay
		c.first = false
	}
	req := &pendingRequest{tag: uuid.NewString(), ply: ply, fen: fen}
	req.debounce = time.AfterFunc(delay, func() { fire(req.tag) })
	c.pending = req
	return req
}

// cancel drops the pending request and reports whether it had reached the engine.
func (c *coordinator) cancel() bool {
	p := c.pending
	if p == nil {
		return false
	}
	c.pending = nil
	p.stop()
	return p.issued
}

// claim marks the pending request as sent when its debounce timer fires.
func (c *coordinator) claim(tag string) (*pendingRequest, bool) {
	p := c.pending
	if p == nil || p.tag != tag || p.issued {
		return nil, false
	}
	p.issued = true
	return p, true
}

// resolve accepts a reply only for the issued request and only while the ledger still
// sits at the position the request was made for.
func (c *coordinator) resolve(tag string, ply int, fen string) error {
	p := c.pending
	switch {
	case p == nil:
		return &StaleResponseError{Tag: tag, Reason: "no request pending"}
	case p.tag != tag:
		return &StaleResponseError{Tag: tag, Reason: "superseded by " + p.tag}
	case !p.issued:
		return &StaleResponseError{Tag: tag, Reason: "request not yet issued"}
	case p.ply != ply || p.fen != fen:
		return &StaleResponseError{Tag: tag, Reason: "position changed"}
	}
	c.pending = nil
	p.stop()
	return nil
}

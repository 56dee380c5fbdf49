package uci

import (
	"errors"
	"sync"
)

var errNoFactory = errors.New("engine factory required")

// Factory builds a fresh, uninitialized adapter bound to h.
type Factory func(h Handlers) (*Adapter, error)

// Slot owns at most one live adapter. Replacing it terminates the old engine before the
// new one is built, so a session never runs two engine processes.
type Slot struct {
	factory Factory

	mu      sync.Mutex
	current *Adapter
}

func NewSlot(factory Factory) *Slot {
	return &Slot{factory: factory}
}

func (s *Slot) Replace(h Handlers) (*Adapter, error) {
	if s == nil || s.factory == nil {
		return nil, errNoFactory
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		s.current.Terminate()
		s.current = nil
	}
	next, err := s.factory(h)
	if err != nil {
		return nil, err
	}
	s.current = next
	return next, nil
}

func (s *Slot) Current() *Adapter {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Release terminates the live adapter, if any.
func (s *Slot) Release() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.current.Terminate()
		s.current = nil
	}
}

package chess

import (
	"time"

	"github.com/park285/champions-gambit/internal/chess/uci"
)

// SearchDeadline bounds how long a reply for s may take before the engine is considered
// stalled.
func SearchDeadline(s uci.Strength) time.Duration {
	if s.NodeBudget > 0 {
		return 10 * time.Second
	}
	if s.Depth > 0 {
		base := time.Duration(s.Depth) * 300 * time.Millisecond
		if byTime := time.Duration(s.MoveTimeMillis+2000) * time.Millisecond * 3; byTime > base {
			base = byTime
		}
		if base < 6*time.Second {
			base = 6 * time.Second
		}
		if base > 20*time.Second {
			base = 20 * time.Second
		}
		return base
	}
	ms := s.MoveTimeMillis
	if ms <= 0 {
		ms = uci.DefaultMoveTimeMillis
	}
	return time.Duration(ms+2000) * time.Millisecond * 3
}

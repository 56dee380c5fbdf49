package session

import (
	"github.com/park285/champions-gambit/internal/chess/rules"
	"github.com/park285/champions-gambit/internal/domain"
)

// terminationDetector reports a terminal position once per game. A non-terminal
// observation re-arms it.
type terminationDetector struct {
	fired bool
}

func (d *terminationDetector) observe(status rules.Status) (domain.Outcome, bool) {
	if !status.GameOver {
		d.fired = false
		return domain.Outcome{}, false
	}
	if d.fired {
		return domain.Outcome{}, false
	}
	d.fired = true
	return status.Outcome, true
}

// markFired suppresses reports for outcomes decided outside the board, such as resignation.
func (d *terminationDetector) markFired() { d.fired = true }

func (d *terminationDetector) reset() { d.fired = false }

// Package feedback turns applied moves and check state into short-lived presentation cues.
// Nothing here is read back by game logic.
package feedback

import (
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/champions-gambit/internal/chess/rules"
	"github.com/park285/champions-gambit/internal/domain"
)

const DefaultCueTTL = 1200 * time.Millisecond

type CueKind string

const (
	CueCapture   CueKind = "capture"
	CuePromotion CueKind = "promotion"
)

type Cue struct {
	ID        uint64
	Square    domain.Square
	Kind      CueKind
	ExpiresAt time.Time
}

type Sound string

const (
	SoundMove      Sound = "move"
	SoundCapture   Sound = "capture"
	SoundPromotion Sound = "promotion"
	SoundVictory   Sound = "victory"
	SoundCheck     Sound = "check"
)

// SoundCue asks the presentation to start (or, with Stop, end) a sound effect.
type SoundCue struct {
	Sound  Sound
	Volume float64
	Loop   bool
	Stop   bool
}

type SignalKind string

const (
	SignalCue          SignalKind = "cue"
	SignalCueExpired   SignalKind = "cue_expired"
	SignalCheck        SignalKind = "check"
	SignalCheckCleared SignalKind = "check_cleared"
	SignalSound        SignalKind = "sound"
)

type Signal struct {
	Kind   SignalKind
	Cue    Cue
	Square domain.Square
	Sound  SoundCue
}

type Settings struct {
	MasterVolume float64 `yaml:"master_volume"`
	MusicVolume  float64 `yaml:"music_volume"`
	SfxVolume    float64 `yaml:"sfx_volume"`
	Muted        bool    `yaml:"muted"`
}

func DefaultSettings() Settings {
	return Settings{MasterVolume: 0.5, MusicVolume: 0.5, SfxVolume: 0.5}
}

// sfx gain per sound relative to master*sfx volume
var gains = map[Sound]float64{
	SoundCapture:   2.5,
	SoundPromotion: 0.75,
}

type Config struct {
	CueTTL   time.Duration
	Settings Settings
	Logger   *zap.Logger
}

// Dispatcher is built once per session composition and shared by reference. Immediate
// signals are returned to the caller; expirations arrive later through the emit callback.
type Dispatcher struct {
	ttl    time.Duration
	logger *zap.Logger
	emit   func(Signal)

	mu          sync.Mutex
	settings    Settings
	seq         uint64
	timers      map[uint64]*time.Timer
	checkActive bool
}

func NewDispatcher(cfg Config, emit func(Signal)) *Dispatcher {
	ttl := cfg.CueTTL
	if ttl <= 0 {
		ttl = DefaultCueTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if emit == nil {
		emit = func(Signal) {}
	}
	return &Dispatcher{
		ttl:      ttl,
		logger:   logger,
		emit:     emit,
		settings: cfg.Settings,
		timers:   make(map[uint64]*time.Timer),
	}
}

// SetEmitter replaces the callback that receives cue expirations.
func (d *Dispatcher) SetEmitter(emit func(Signal)) {
	if emit == nil {
		emit = func(Signal) {}
	}
	d.mu.Lock()
	d.emit = emit
	d.mu.Unlock()
}

func (d *Dispatcher) Settings() Settings {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.settings
}

func (d *Dispatcher) UpdateSettings(s Settings) {
	d.mu.Lock()
	d.settings = s
	d.mu.Unlock()
}

// MoveApplied emits capture and promotion cues for a freshly played move.
func (d *Dispatcher) MoveApplied(mv domain.Move, effects rules.Effects) []Signal {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []Signal
	if effects.IsCapture() {
		out = append(out, d.cueLocked(mv.To, CueCapture))
		out = d.appendSoundLocked(out, SoundCapture)
	} else {
		out = d.appendSoundLocked(out, SoundMove)
	}
	if effects.Promotion != domain.NoPieceKind {
		out = append(out, d.cueLocked(mv.To, CuePromotion))
		out = d.appendSoundLocked(out, SoundPromotion)
	}
	return out
}

// HistoryStepped covers undo and redo, which only get the plain move sound.
func (d *Dispatcher) HistoryStepped() []Signal {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.appendSoundLocked(nil, SoundMove)
}

// Check reports the check level after a mutation. CheckActive repeats while in check;
// CheckCleared fires once on the transition out.
func (d *Dispatcher) Check(inCheck bool, king domain.Square) []Signal {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case inCheck:
		out := []Signal{{Kind: SignalCheck, Square: king}}
		if !d.checkActive {
			d.checkActive = true
			if vol, ok := d.volumeLocked(SoundCheck); ok {
				out = append(out, Signal{Kind: SignalSound, Sound: SoundCue{Sound: SoundCheck, Volume: vol, Loop: true}})
			}
		}
		return out
	case d.checkActive:
		d.checkActive = false
		return []Signal{
			{Kind: SignalCheckCleared},
			{Kind: SignalSound, Sound: SoundCue{Sound: SoundCheck, Stop: true}},
		}
	}
	return nil
}

// GameOver ends any check state, including a check escaped by delivering mate, and plays
// the victory sound.
func (d *Dispatcher) GameOver() []Signal {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []Signal
	if d.checkActive {
		d.checkActive = false
		out = append(out,
			Signal{Kind: SignalCheckCleared},
			Signal{Kind: SignalSound, Sound: SoundCue{Sound: SoundCheck, Stop: true}},
		)
	}
	return d.appendSoundLocked(out, SoundVictory)
}

// Reset cancels pending expirations and forgets check state.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, t := range d.timers {
		t.Stop()
		delete(d.timers, id)
	}
	d.checkActive = false
}

func (d *Dispatcher) cueLocked(sq domain.Square, kind CueKind) Signal {
	d.seq++
	cue := Cue{ID: d.seq, Square: sq, Kind: kind, ExpiresAt: time.Now().Add(d.ttl)}
	d.timers[cue.ID] = time.AfterFunc(d.ttl, func() { d.expire(cue) })
	return Signal{Kind: SignalCue, Cue: cue}
}

func (d *Dispatcher) expire(cue Cue) {
	d.mu.Lock()
	_, live := d.timers[cue.ID]
	delete(d.timers, cue.ID)
	emit := d.emit
	d.mu.Unlock()
	if !live {
		return
	}
	emit(Signal{Kind: SignalCueExpired, Cue: cue})
}

func (d *Dispatcher) appendSoundLocked(out []Signal, s Sound) []Signal {
	vol, ok := d.volumeLocked(s)
	if !ok {
		return out
	}
	return append(out, Signal{Kind: SignalSound, Sound: SoundCue{Sound: s, Volume: vol}})
}

func (d *Dispatcher) volumeLocked(s Sound) (float64, bool) {
	if d.settings.Muted {
		return 0, false
	}
	vol := d.settings.MasterVolume * d.settings.SfxVolume
	if g, ok := gains[s]; ok {
		vol *= g
	}
	if vol <= 0 {
		return 0, false
	}
	return math.Min(vol, 1.0), true
}

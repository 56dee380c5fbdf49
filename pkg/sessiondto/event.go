package sessiondto

type EventType string

const (
	EventSnapshot          EventType = "snapshot"
	EventMoved             EventType = "moved"
	EventUndone            EventType = "undone"
	EventRedone            EventType = "redone"
	EventTurn              EventType = "turn"
	EventCue               EventType = "cue"
	EventCueExpired        EventType = "cue_expired"
	EventCheck             EventType = "check"
	EventCheckCleared      EventType = "check_cleared"
	EventGameOver          EventType = "game_over"
	EventEngineUnavailable EventType = "engine_unavailable"
	EventSound             EventType = "sound"
	EventSelection         EventType = "selection"
	EventPromotionPrompt   EventType = "promotion_prompt"
	EventTrainers          EventType = "trainers"
	EventClosed            EventType = "closed"
	EventError             EventType = "error"
)

// Event is the server to client envelope. Only the fields relevant to Type are set.
type Event struct {
	Type     EventType     `json:"type"`
	Seq      uint64        `json:"seq,omitempty"`
	ReplyTo  string        `json:"reply_to,omitempty"`
	State    *SessionState `json:"state,omitempty"`
	Moves    []Move        `json:"moves,omitempty"`
	Undone   []string      `json:"undone,omitempty"`
	Origin   string        `json:"origin,omitempty"`
	Cue      *Cue          `json:"cue,omitempty"`
	Square   string        `json:"square,omitempty"`
	Squares  []string      `json:"squares,omitempty"`
	Sound    *Sound        `json:"sound,omitempty"`
	GameOver *GameOver     `json:"game_over,omitempty"`
	Trainers []Trainer     `json:"trainers,omitempty"`
	Error    *DomainError  `json:"error,omitempty"`
}

type Cue struct {
	ID        uint64 `json:"id"`
	Square    string `json:"square"`
	Kind      string `json:"kind"`
	ExpiresAt int64  `json:"expires_at_ms"`
}

type Sound struct {
	Name   string  `json:"name"`
	Volume float64 `json:"volume,omitempty"`
	Loop   bool    `json:"loop,omitempty"`
	Stop   bool    `json:"stop,omitempty"`
}

type GameOver struct {
	Result   string   `json:"result"`
	Method   string   `json:"method"`
	Winner   string   `json:"winner,omitempty"`
	MovesSAN []string `json:"moves_san"`
	PGN      string   `json:"pgn"`
	Filename string   `json:"filename"`
}

package sessiondto

import "time"

type GameSummary struct {
	SessionID  string    `json:"session_id"`
	Mode       string    `json:"mode"`
	LocalSide  string    `json:"local_side"`
	Trainer    string    `json:"trainer,omitempty"`
	Result     string    `json:"result"`
	Method     string    `json:"method"`
	Winner     string    `json:"winner,omitempty"`
	Plies      int       `json:"plies"`
	EndedAt    time.Time `json:"ended_at"`
	DurationMS int64     `json:"duration_ms"`
}

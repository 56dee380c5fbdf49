// Package archive stores finished games. Every sink receives the same domain.GameRecord;
// failures are returned to the caller, which only logs them.
package archive

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/park285/champions-gambit/internal/domain"
)

// Sink stores a finished game. A session whose game ends again after an undo saves a
// record with the same SessionID; sinks replace the earlier one.
type Sink interface {
	Save(ctx context.Context, rec domain.GameRecord) error
}

// Document is the JSON form shared by the redis and webhook sinks.
type Document struct {
	SessionID  string    `json:"session_id"`
	Mode       string    `json:"mode"`
	LocalSide  string    `json:"local_side"`
	Trainer    string    `json:"trainer,omitempty"`
	Result     string    `json:"result"`
	Method     string    `json:"method"`
	Winner     string    `json:"winner,omitempty"`
	MovesUCI   []string  `json:"moves_uci"`
	MovesSAN   []string  `json:"moves_san"`
	PGN        string    `json:"pgn"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
	DurationMS int64     `json:"duration_ms"`
}

func NewDocument(rec domain.GameRecord) Document {
	return Document{
		SessionID:  rec.SessionID,
		Mode:       rec.Mode,
		LocalSide:  rec.LocalSide,
		Trainer:    rec.Trainer,
		Result:     rec.Result,
		Method:     rec.Method,
		Winner:     rec.Winner,
		MovesUCI:   nonNil(rec.MovesUCI),
		MovesSAN:   nonNil(rec.MovesSAN),
		PGN:        rec.PGN,
		StartedAt:  rec.StartedAt,
		EndedAt:    rec.EndedAt,
		DurationMS: rec.Duration.Milliseconds(),
	}
}

func (d Document) Record() domain.GameRecord {
	return domain.GameRecord{
		SessionID: d.SessionID,
		Mode:      d.Mode,
		LocalSide: d.LocalSide,
		Trainer:   d.Trainer,
		Result:    d.Result,
		Method:    d.Method,
		Winner:    d.Winner,
		MovesUCI:  d.MovesUCI,
		MovesSAN:  d.MovesSAN,
		PGN:       d.PGN,
		StartedAt: d.StartedAt,
		EndedAt:   d.EndedAt,
		Duration:  time.Duration(d.DurationMS) * time.Millisecond,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Multi saves to every sink and reports all failures together.
type Multi []Sink

func (m Multi) Save(ctx context.Context, rec domain.GameRecord) error {
	var result *multierror.Error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Save(ctx, rec); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Close closes the sinks that hold connections.
func (m Multi) Close() error {
	var result *multierror.Error
	for _, s := range m {
		if c, ok := s.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				result = multierror.Append(result, err)
			}
		}
	}
	return result.ErrorOrNil()
}

package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/park285/champions-gambit/internal/domain"
)

const schema = `
	CREATE TABLE IF NOT EXISTS gambit_games (
		session_id    TEXT PRIMARY KEY,
		mode          TEXT NOT NULL,
		local_side    TEXT NOT NULL,
		trainer       TEXT NOT NULL DEFAULT '',
		result        TEXT NOT NULL,
		result_method TEXT NOT NULL,
		winner        TEXT NOT NULL DEFAULT '',
		moves_uci     JSONB NOT NULL,
		moves_san     JSONB NOT NULL,
		pgn           TEXT NOT NULL,
		started_at    TIMESTAMPTZ NOT NULL,
		ended_at      TIMESTAMPTZ NOT NULL,
		duration_ms   BIGINT NOT NULL
	)`

type PostgresSink struct {
	db *sql.DB
}

func NewPostgresSink(databaseURL string) (*PostgresSink, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &PostgresSink{db: db}, nil
}

func (s *PostgresSink) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save upserts the game keyed by session id.
func (s *PostgresSink) Save(ctx context.Context, rec domain.GameRecord) error {
	movesUCI, err := json.Marshal(nonNil(rec.MovesUCI))
	if err != nil {
		return fmt.Errorf("marshal moves_uci: %w", err)
	}
	movesSAN, err := json.Marshal(nonNil(rec.MovesSAN))
	if err != nil {
		return fmt.Errorf("marshal moves_san: %w", err)
	}

	const query = `
		INSERT INTO gambit_games (
			session_id, mode, local_side, trainer,
			result, result_method, winner, moves_uci, moves_san, pgn,
			started_at, ended_at, duration_ms
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9::jsonb, $10, $11, $12, $13
		) ON CONFLICT (session_id) DO UPDATE SET
			result=EXCLUDED.result,
			result_method=EXCLUDED.result_method,
			winner=EXCLUDED.winner,
			moves_uci=EXCLUDED.moves_uci,
			moves_san=EXCLUDED.moves_san,
			pgn=EXCLUDED.pgn,
			ended_at=EXCLUDED.ended_at,
			duration_ms=EXCLUDED.duration_ms`

	duration := rec.Duration.Milliseconds()
	if duration < 0 {
		duration = 0
	}
	_, err = s.db.ExecContext(ctx, query,
		rec.SessionID, rec.Mode, rec.LocalSide, rec.Trainer,
		rec.Result, rec.Method, rec.Winner, string(movesUCI), string(movesSAN), rec.PGN,
		rec.StartedAt, rec.EndedAt, duration,
	)
	if err != nil {
		return fmt.Errorf("upsert game: %w", err)
	}
	return nil
}

// Recent returns up to limit games ordered by end time, newest first.
func (s *PostgresSink) Recent(ctx context.Context, limit int) ([]domain.GameRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	const query = `
		SELECT
			session_id, mode, local_side, trainer,
			result, result_method, winner, moves_uci, moves_san, pgn,
			started_at, ended_at, duration_ms
		FROM gambit_games
		ORDER BY ended_at DESC
		LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("select games: %w", err)
	}
	defer rows.Close()

	out := make([]domain.GameRecord, 0, limit)
	for rows.Next() {
		var (
			rec          domain.GameRecord
			movesUCIJSON []byte
			movesSANJSON []byte
			durationMS   int64
		)
		if err := rows.Scan(
			&rec.SessionID, &rec.Mode, &rec.LocalSide, &rec.Trainer,
			&rec.Result, &rec.Method, &rec.Winner, &movesUCIJSON, &movesSANJSON, &rec.PGN,
			&rec.StartedAt, &rec.EndedAt, &durationMS,
		); err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		if err := json.Unmarshal(movesUCIJSON, &rec.MovesUCI); err != nil {
			return nil, fmt.Errorf("unmarshal moves_uci: %w", err)
		}
		if err := json.Unmarshal(movesSANJSON, &rec.MovesSAN); err != nil {
			return nil, fmt.Errorf("unmarshal moves_san: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

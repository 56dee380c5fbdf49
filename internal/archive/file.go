package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/park285/champions-gambit/internal/chess/rules"
	"github.com/park285/champions-gambit/internal/domain"
)

const maxFileSuffix = 999

// FileSink writes each finished game as a PGN file named after the day it ended.
// Later games on the same day get a numbered suffix. A session saved again rewrites the
// file it was first written to.
type FileSink struct {
	dir string

	mu    sync.Mutex
	paths map[string]string
}

func NewFileSink(dir string) (*FileSink, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("pgn directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create pgn directory: %w", err)
	}
	return &FileSink{dir: dir, paths: make(map[string]string)}, nil
}

func (s *FileSink) Dir() string { return s.dir }

func (s *FileSink) Save(ctx context.Context, rec domain.GameRecord) error {
	if strings.TrimSpace(rec.PGN) == "" {
		return fmt.Errorf("game %s has no pgn", rec.SessionID)
	}
	_, err := s.write(ctx, rec)
	return err
}

func (s *FileSink) write(ctx context.Context, rec domain.GameRecord) (string, error) {
	key := strings.TrimSpace(rec.SessionID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if path, ok := s.paths[key]; ok {
		if err := os.WriteFile(path, []byte(rec.PGN+"\n"), 0o644); err != nil {
			return "", fmt.Errorf("rewrite %s: %w", path, err)
		}
		return path, nil
	}
	path, err := s.create(ctx, rec)
	if err != nil {
		return "", err
	}
	s.paths[key] = path
	return path, nil
}

func (s *FileSink) create(ctx context.Context, rec domain.GameRecord) (string, error) {
	name := rules.PGNFilename(rec.EndedAt)
	base := strings.TrimSuffix(name, filepath.Ext(name))
	for n := 1; n <= maxFileSuffix; n++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		candidate := name
		if n > 1 {
			candidate = fmt.Sprintf("%s-%d.pgn", base, n)
		}
		path := filepath.Join(s.dir, candidate)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("open %s: %w", path, err)
		}
		if _, err := f.WriteString(rec.PGN + "\n"); err != nil {
			_ = f.Close()
			return "", fmt.Errorf("write %s: %w", path, err)
		}
		return path, f.Close()
	}
	return "", fmt.Errorf("no free pgn filename for %s in %s", name, s.dir)
}

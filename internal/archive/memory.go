package archive

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/park285/champions-gambit/internal/domain"
)

// MemorySink keeps games in process. Used when nothing else is configured.
type MemorySink struct {
	mu sync.RWMutex

	games map[string]domain.GameRecord
	order []string
}

func NewMemorySink() *MemorySink {
	return &MemorySink{games: make(map[string]domain.GameRecord)}
}

func (m *MemorySink) Save(_ context.Context, rec domain.GameRecord) error {
	key := strings.TrimSpace(rec.SessionID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.games[key]; exists {
		m.order = slices.DeleteFunc(m.order, func(k string) bool { return k == key })
	}
	rec.MovesUCI = append([]string(nil), rec.MovesUCI...)
	rec.MovesSAN = append([]string(nil), rec.MovesSAN...)
	m.games[key] = rec
	m.order = append(m.order, key)
	return nil
}

func (m *MemorySink) Get(sessionID string) (domain.GameRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.games[strings.TrimSpace(sessionID)]
	return rec, ok
}

// Recent returns up to limit games, latest end time first.
func (m *MemorySink) Recent(limit int) []domain.GameRecord {
	m.mu.RLock()
	items := make([]domain.GameRecord, 0, len(m.order))
	for _, key := range m.order {
		items = append(items, m.games[key])
	}
	m.mu.RUnlock()

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].EndedAt.After(items[j].EndedAt)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

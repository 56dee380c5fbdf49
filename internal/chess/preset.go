package chess

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	yaml "gopkg.in/yaml.v3"

	"github.com/park285/champions-gambit/internal/chess/uci"
)

//go:embed trainers.yaml
var defaultFiles embed.FS

const DefaultTrainerID = "erika"

// Trainer is an automated opponent: a display identity plus the engine strength it plays at.
type Trainer struct {
	ID       string       `yaml:"id"`
	Name     string       `yaml:"name"`
	Elo      int          `yaml:"elo"`
	Theme    string       `yaml:"theme"`
	Strength uci.Strength `yaml:"strength"`
}

func (t Trainer) DifficultyLabel() string { return fmt.Sprintf("%d ELO", t.Elo) }

type rosterFile struct {
	Trainers []Trainer `yaml:"trainers"`
}

// Roster holds the trainers keyed by id. Embedded defaults load first; files in an
// override directory replace or add trainers by id.
type Roster struct {
	mu       sync.RWMutex
	trainers map[string]Trainer
	order    []string
}

func LoadRoster(overrideDir string) (*Roster, error) {
	r := &Roster{trainers: make(map[string]Trainer)}
	raw, err := fs.ReadFile(defaultFiles, "trainers.yaml")
	if err != nil {
		return nil, fmt.Errorf("read embedded trainers: %w", err)
	}
	if err := r.applyYAML(raw, "embedded"); err != nil {
		return nil, err
	}
	if strings.TrimSpace(overrideDir) != "" {
		if err := r.applyDir(overrideDir); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Roster) applyDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read trainer dir: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	seen := make(map[string]string)
	for _, name := range files {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		var file rosterFile
		if err := yaml.Unmarshal(b, &file); err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
		for _, t := range file.Trainers {
			id := normalizeID(t.ID)
			if prev, ok := seen[id]; ok {
				return fmt.Errorf("duplicate trainer %q in %s and %s", id, prev, name)
			}
			seen[id] = name
		}
		if err := r.applyYAML(b, name); err != nil {
			return err
		}
	}
	return nil
}

func (r *Roster) applyYAML(b []byte, source string) error {
	var file rosterFile
	if err := yaml.Unmarshal(b, &file); err != nil {
		return fmt.Errorf("parse %s trainers: %w", source, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range file.Trainers {
		t.ID = normalizeID(t.ID)
		if t.Strength.Name == "" {
			t.Strength.Name = t.ID
		}
		if err := ValidateTrainer(t); err != nil {
			return fmt.Errorf("%s: %w", source, err)
		}
		if _, exists := r.trainers[t.ID]; !exists {
			r.order = append(r.order, t.ID)
		}
		r.trainers[t.ID] = t
	}
	return nil
}

func (r *Roster) Get(id string) (Trainer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.trainers[normalizeID(id)]
	if !ok {
		return Trainer{}, fmt.Errorf("unknown trainer: %s", id)
	}
	return t, nil
}

// List returns trainers in roster order: embedded order first, then additions.
func (r *Roster) List() []Trainer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Trainer, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.trainers[id])
	}
	return out
}

func ValidateTrainer(t Trainer) error {
	switch {
	case t.ID == "":
		return fmt.Errorf("trainer id required")
	case strings.TrimSpace(t.Name) == "":
		return fmt.Errorf("trainer %s name required", t.ID)
	case t.Elo < 0:
		return fmt.Errorf("trainer %s elo must be >= 0: %d", t.ID, t.Elo)
	}
	if err := t.Strength.Validate(); err != nil {
		return fmt.Errorf("trainer %s: %w", t.ID, err)
	}
	return nil
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

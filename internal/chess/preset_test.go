package chess

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/park285/champions-gambit/internal/chess/uci"
)

func TestEmbeddedRoster(t *testing.T) {
	r, err := LoadRoster("")
	if err != nil {
		t.Fatalf("load roster: %v", err)
	}
	list := r.List()
	if len(list) != 10 {
		t.Fatalf("expected 10 trainers, got %d", len(list))
	}
	if list[0].ID != "brock" || list[9].ID != "champion" {
		t.Fatalf("unexpected order: %s..%s", list[0].ID, list[9].ID)
	}

	brock, err := r.Get("Brock")
	if err != nil {
		t.Fatalf("get brock: %v", err)
	}
	if brock.Strength.NodeBudget != 200 || brock.Strength.SkillLevel != 0 {
		t.Fatalf("unexpected brock strength: %+v", brock.Strength)
	}
	champ, _ := r.Get("champion")
	if champ.Strength.TargetElo != 2850 || champ.Strength.Depth != 18 || champ.Strength.MoveTimeMillis != 2500 {
		t.Fatalf("unexpected champion strength: %+v", champ.Strength)
	}
	if champ.DifficultyLabel() != "3000 ELO" {
		t.Fatalf("unexpected label %q", champ.DifficultyLabel())
	}
	if _, err := r.Get(DefaultTrainerID); err != nil {
		t.Fatalf("default trainer missing: %v", err)
	}
}

func TestRosterOverrideDir(t *testing.T) {
	dir := t.TempDir()
	override := `trainers:
  - id: brock
    name: Brock
    elo: 450
    strength: {nodes: 300, skill_level: 1}
  - id: lance
    name: Lance
    elo: 2300
    strength: {elo: 2200, depth: 12, move_time_ms: 1500}
`
	if err := os.WriteFile(filepath.Join(dir, "10-league.yaml"), []byte(override), 0o644); err != nil {
		t.Fatalf("write override: %v", err)
	}
	r, err := LoadRoster(dir)
	if err != nil {
		t.Fatalf("load roster: %v", err)
	}
	brock, _ := r.Get("brock")
	if brock.Elo != 450 || brock.Strength.NodeBudget != 300 {
		t.Fatalf("override not applied: %+v", brock)
	}
	if len(r.List()) != 11 || r.List()[10].ID != "lance" {
		t.Fatalf("expected lance appended, got %d trainers", len(r.List()))
	}
}

func TestRosterRejectsInvalidStrength(t *testing.T) {
	dir := t.TempDir()
	bad := "trainers:\n  - id: broken\n    name: Broken\n    strength: {nodes: 100, depth: 4}\n"
	if err := os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte(bad), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := LoadRoster(dir)
	if err == nil || !strings.Contains(err.Error(), "broken") {
		t.Fatalf("expected validation error naming trainer, got %v", err)
	}
}

func TestRosterRejectsDuplicateOverrides(t *testing.T) {
	dir := t.TempDir()
	one := "trainers:\n  - id: misty\n    name: Misty\n    strength: {nodes: 900}\n"
	for _, name := range []string{"a.yaml", "b.yml"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(one), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if _, err := LoadRoster(dir); err == nil {
		t.Fatalf("expected duplicate override error")
	}
}

func TestSearchDeadline(t *testing.T) {
	if got := SearchDeadline(uci.Strength{NodeBudget: 200}); got != 10*time.Second {
		t.Fatalf("nodes deadline %v", got)
	}
	if got := SearchDeadline(uci.Strength{Depth: 3, MoveTimeMillis: 400}); got != 7200*time.Millisecond {
		t.Fatalf("depth deadline %v", got)
	}
	if got := SearchDeadline(uci.Strength{Depth: 18, MoveTimeMillis: 2500}); got != 13500*time.Millisecond {
		t.Fatalf("deep deadline %v", got)
	}
	if got := SearchDeadline(uci.Strength{}); got != 9*time.Second {
		t.Fatalf("default deadline %v", got)
	}
}

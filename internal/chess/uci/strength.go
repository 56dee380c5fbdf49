package uci

import (
	"fmt"
)

const (
	minSkillLevel = 0
	maxSkillLevel = 20

	// DefaultMoveTimeMillis is used when a strength sets no search limit.
	DefaultMoveTimeMillis = 1000
)

// Strength tunes the engine for one opponent. The search profile is exactly one of
// NodeBudget, Depth+MoveTimeMillis, or TargetElo+Depth+MoveTimeMillis. SkillLevel applies
// when TargetElo is unset.
type Strength struct {
	Name           string `yaml:"name"`
	NodeBudget     int    `yaml:"nodes"`
	Depth          int    `yaml:"depth"`
	MoveTimeMillis int    `yaml:"move_time_ms"`
	TargetElo      int    `yaml:"elo"`
	SkillLevel     int    `yaml:"skill_level"`
}

func (s Strength) RatingLimited() bool { return s.TargetElo > 0 }

func (s Strength) Validate() error {
	switch {
	case s.SkillLevel < minSkillLevel || s.SkillLevel > maxSkillLevel:
		return fmt.Errorf("skill level %d out of range 0-20", s.SkillLevel)
	case s.NodeBudget < 0:
		return fmt.Errorf("node budget must be >= 0: %d", s.NodeBudget)
	case s.Depth < 0:
		return fmt.Errorf("depth must be >= 0: %d", s.Depth)
	case s.MoveTimeMillis < 0:
		return fmt.Errorf("move time must be >= 0: %d", s.MoveTimeMillis)
	case s.TargetElo < 0:
		return fmt.Errorf("elo must be >= 0: %d", s.TargetElo)
	}

	nodes := s.NodeBudget > 0 && s.Depth == 0 && s.MoveTimeMillis == 0 && s.TargetElo == 0
	fixed := s.NodeBudget == 0 && s.Depth > 0 && s.MoveTimeMillis > 0 && s.TargetElo == 0
	rated := s.NodeBudget == 0 && s.Depth > 0 && s.MoveTimeMillis > 0 && s.TargetElo > 0
	if !nodes && !fixed && !rated {
		return fmt.Errorf("strength %q must set exactly one of nodes, depth+move time, elo+depth+move time", s.Name)
	}
	return nil
}

// Describe renders the search profile for listings.
func (s Strength) Describe() string {
	switch {
	case s.NodeBudget > 0:
		return fmt.Sprintf("nodes %d, skill %d", s.NodeBudget, s.SkillLevel)
	case s.TargetElo > 0:
		return fmt.Sprintf("elo %d, depth %d, %dms", s.TargetElo, s.Depth, s.MoveTimeMillis)
	case s.Depth > 0:
		return fmt.Sprintf("depth %d, %dms, skill %d", s.Depth, s.MoveTimeMillis, s.SkillLevel)
	}
	return fmt.Sprintf("%dms, skill %d", DefaultMoveTimeMillis, s.SkillLevel)
}

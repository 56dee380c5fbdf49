package uci

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/park285/champions-gambit/internal/domain"
)

const noMove = "(none)"

// Snapshot is the position a search request is issued against.
type Snapshot struct {
	FEN   string
	Moves []string
}

func buildPositionCommand(fen string, moves []string) string {
	var sb strings.Builder
	if strings.TrimSpace(fen) == "" || fen == "startpos" {
		sb.WriteString("position startpos")
	} else {
		sb.WriteString("position fen ")
		sb.WriteString(fen)
	}
	if len(moves) > 0 {
		sb.WriteString(" moves ")
		sb.WriteString(strings.Join(moves, " "))
	}
	return sb.String()
}

// buildGoCommand picks a single limit: nodes, then depth, then move time.
func buildGoCommand(s Strength) string {
	switch {
	case s.NodeBudget > 0:
		return "go nodes " + strconv.Itoa(s.NodeBudget)
	case s.Depth > 0:
		return "go depth " + strconv.Itoa(s.Depth)
	case s.MoveTimeMillis > 0:
		return "go movetime " + strconv.Itoa(s.MoveTimeMillis)
	}
	return "go movetime " + strconv.Itoa(DefaultMoveTimeMillis)
}

func configureCommands(s Strength) []string {
	cmds := []string{"ucinewgame"}
	if s.RatingLimited() {
		cmds = append(cmds,
			"setoption name UCI_LimitStrength value true",
			fmt.Sprintf("setoption name UCI_Elo value %d", s.TargetElo),
		)
	} else {
		cmds = append(cmds,
			"setoption name UCI_LimitStrength value false",
			fmt.Sprintf("setoption name Skill Level value %d", s.SkillLevel),
		)
	}
	return append(cmds, "isready")
}

// parseBestMove returns ok=false for "bestmove (none)" and malformed lines.
func parseBestMove(line string) (domain.Move, bool, error) {
	parts := strings.Fields(line)
	if len(parts) < 2 || parts[0] != "bestmove" {
		return domain.Move{}, false, fmt.Errorf("malformed bestmove line: %q", line)
	}
	if parts[1] == noMove || parts[1] == "0000" {
		return domain.Move{}, false, nil
	}
	mv, err := domain.ParseMove(parts[1])
	if err != nil {
		return domain.Move{}, false, err
	}
	return mv, true, nil
}

package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/park285/champions-gambit/internal/domain"
)

// Tags are the PGN seven-tag-roster fields the session knows about.
type Tags struct {
	Event       string
	Site        string
	Date        time.Time
	White       string
	Black       string
	Termination string
}

// ExportPGN renders the applied moves as a PGN document ending in the outcome's result token.
func (o *Oracle) ExportPGN(moves []domain.Move, outcome domain.Outcome, tags Tags) (string, error) {
	pos, err := o.Replay(moves)
	if err != nil {
		return "", err
	}
	return buildPGN(o.SAN(pos), outcome.Result(), tags), nil
}

// PGNFilename is the download name used for a game exported on the given day.
func PGNFilename(day time.Time) string {
	return fmt.Sprintf("champions-gambit-%04d-%02d-%02d.pgn", day.Year(), int(day.Month()), day.Day())
}

func buildPGN(san []string, result string, tags Tags) string {
	var b strings.Builder
	date := tags.Date
	if date.IsZero() {
		date = time.Now()
	}
	event := tags.Event
	if strings.TrimSpace(event) == "" {
		event = "Champions Gambit"
	}
	site := tags.Site
	if strings.TrimSpace(site) == "" {
		site = "Local"
	}
	b.WriteString(fmt.Sprintf("[Event \"%s\"]\n", sanitizePGN(event)))
	b.WriteString(fmt.Sprintf("[Site \"%s\"]\n", sanitizePGN(site)))
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString("[Round \"-\"]\n")
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", sanitizePGN(orDefault(tags.White, "White"))))
	b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", sanitizePGN(orDefault(tags.Black, "Black"))))
	if strings.TrimSpace(tags.Termination) != "" {
		b.WriteString(fmt.Sprintf("[Termination \"%s\"]\n", sanitizePGN(strings.ToLower(tags.Termination))))
	}
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n\n", result))

	for i := 0; i < len(san); i += 2 {
		turn := (i / 2) + 1
		b.WriteString(fmt.Sprintf("%d. %s", turn, strings.TrimSpace(san[i])))
		if i+1 < len(san) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(san[i+1]))
		}
		b.WriteString(" ")
	}
	b.WriteString(result)
	return b.String()
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

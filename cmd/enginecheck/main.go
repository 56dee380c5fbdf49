package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/park285/champions-gambit/internal/chess"
	"github.com/park285/champions-gambit/internal/chess/uci"
	"github.com/park285/champions-gambit/internal/domain"
)

// enginecheck starts the configured engine, applies a trainer's strength and asks for one
// move from the initial position.
func main() {
	path := flag.String("engine", os.Getenv("STOCKFISH_PATH"), "path to a UCI engine binary")
	trainerID := flag.String("trainer", chess.DefaultTrainerID, "trainer whose strength to apply")
	timeout := flag.Duration("timeout", 0, "overall deadline (defaults to the trainer's search deadline plus 10s)")
	flag.Parse()

	if *path == "" {
		log.Fatal("STOCKFISH_PATH or -engine is required")
	}

	roster, err := chess.LoadRoster(os.Getenv("GAMBIT_TRAINERS_DIR"))
	if err != nil {
		log.Fatalf("load trainers: %v", err)
	}
	trainer, err := roster.Get(*trainerID)
	if err != nil {
		log.Fatalf("trainer: %v", err)
	}

	factory, err := chess.NewEngineFactory(chess.EngineConfig{BinaryPath: *path})
	if err != nil {
		log.Fatalf("engine: %v", err)
	}

	d := *timeout
	if d <= 0 {
		d = chess.SearchDeadline(trainer.Strength) + 10*time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()

	type result struct {
		move domain.Move
		err  error
	}
	done := make(chan result, 1)
	report := func(r result) {
		select {
		case done <- r:
		default:
		}
	}
	adapter, err := factory(uci.Handlers{
		OnBestMove: func(_ string, mv domain.Move) { report(result{move: mv}) },
		OnFailure:  func(err error) { report(result{err: err}) },
	})
	if err != nil {
		log.Fatalf("engine: %v", err)
	}
	defer adapter.Terminate()

	adapter.Configure(trainer.Strength)
	started := time.Now()
	if err := adapter.Initialize(ctx); err != nil {
		log.Fatalf("initialize: %v", err)
	}
	log.Printf("engine ready in %s (%s, %s)", time.Since(started).Round(time.Millisecond), trainer.Name, trainer.Strength.Describe())

	started = time.Now()
	adapter.RequestMove("enginecheck", uci.Snapshot{}, trainer.Strength)
	select {
	case r := <-done:
		if r.err != nil {
			log.Fatalf("engine failed: %v", r.err)
		}
		fmt.Printf("bestmove %s (%s)\n", r.move.UCI(), time.Since(started).Round(time.Millisecond))
	case <-ctx.Done():
		log.Fatalf("no reply: %v", ctx.Err())
	}
}

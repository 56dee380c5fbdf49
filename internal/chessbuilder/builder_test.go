package chessbuilder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/park285/champions-gambit/internal/config"
	"github.com/park285/champions-gambit/internal/domain"
	"github.com/park285/champions-gambit/internal/session"
)

func baseConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	return &config.AppConfig{
		Mode:               "pair",
		LocalSide:          "white",
		EngineDelayMS:      10,
		EngineFirstDelayMS: 5,
		CueTTLMS:           20,
		ListenAddr:         "127.0.0.1:0",
		PGNDir:             filepath.Join(t.TempDir(), "pgn"),
		MasterVolume:       0.5,
		SfxVolume:          0.5,
		MusicVolume:        0.5,
	}
}

func TestNewWiresArchiveSinks(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	cfg := baseConfig(t)
	cfg.RedisURL = fmt.Sprintf("redis://%s/0", mr.Addr())
	deps, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Close() })
	require.Len(t, deps.Archive, 3, "memory, file and redis")

	done := make(chan struct{}, 1)
	deps.Controller.Subscribe(func(ev session.Event) {
		if ev.Kind == session.EventGameOver {
			done <- struct{}{}
		}
	})
	require.NoError(t, deps.Controller.Start(context.Background()))
	for _, raw := range []string{"f2f3", "e7e5", "g2g4", "d8h4"} {
		_, err := deps.Controller.Move(domain.MustParseMove(raw))
		require.NoError(t, err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("game over never reported")
	}

	// archiving is asynchronous
	require.Eventually(t, func() bool {
		recs, err := deps.History(context.Background(), 10)
		return err == nil && len(recs) == 1
	}, 2*time.Second, 10*time.Millisecond)

	recs, err := deps.History(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, "0-1", recs[0].Result)
	require.Len(t, deps.Memory.Recent(10), 1)

	entries, err := os.ReadDir(cfg.PGNDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestNewReportsBrokenSinks(t *testing.T) {
	cfg := baseConfig(t)
	cfg.RedisURL = "http://not-redis"
	cfg.WebhookURL = "ftp://nope"
	_, err := New(cfg, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid redis url")
	require.Contains(t, err.Error(), "invalid webhook url")
}

func TestNewRejectsMissingEngineBinary(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Mode = "computer"
	cfg.StockfishPath = filepath.Join(t.TempDir(), "no-such-engine")
	_, err := New(cfg, nil)
	require.ErrorContains(t, err, "init engine")
}

func TestComputerModeWithoutEngineStillRuns(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Mode = "computer"
	cfg.PGNDir = ""
	deps, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Close() })

	unavailable := make(chan struct{}, 1)
	deps.Controller.Subscribe(func(ev session.Event) {
		if ev.Kind == session.EventEngineUnavailable {
			select {
			case unavailable <- struct{}{}:
			default:
			}
		}
	})
	require.NoError(t, deps.Controller.Start(context.Background()))
	select {
	case <-unavailable:
	case <-time.After(2 * time.Second):
		t.Fatal("missing engine must be reported")
	}
	require.False(t, deps.Controller.Snapshot().EngineAvailable)
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/adrg/xdg"
	"github.com/google/go-cmp/cmp"

	"github.com/park285/champions-gambit/internal/domain"
)

func clearEnv(t *testing.T) {
	t.Helper()
	t.Cleanup(xdg.Reload)
	for _, k := range []string{
		"GAMBIT_CONFIG", "STOCKFISH_PATH", "GAMBIT_TRAINERS_DIR", "GAMBIT_MODE", "GAMBIT_LOCAL_SIDE",
		"GAMBIT_TRAINER", "GAMBIT_LISTEN_ADDR", "GAMBIT_PGN_DIR", "REDIS_URL", "DATABASE_URL",
		"GAMBIT_WEBHOOK_URL", "GAMBIT_WEBHOOK_TOKEN", "GAMBIT_ALLOWED_ORIGINS",
		"GAMBIT_ENGINE_DELAY_MS", "GAMBIT_ENGINE_FIRST_DELAY_MS", "GAMBIT_CUE_TTL_MS",
		"GAMBIT_MASTER_VOLUME", "GAMBIT_SFX_VOLUME", "GAMBIT_MUSIC_VOLUME", "GAMBIT_MUTED",
	} {
		t.Setenv(k, "")
	}
	// keep the developer's own config file out of the test
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_DIRS", t.TempDir())
	xdg.Reload()
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("GAMBIT_CONFIG", filepath.Join(t.TempDir(), "none.yaml"))
	if _, err := Load(); err == nil {
		t.Fatal("an explicit missing config file must fail")
	}

	t.Setenv("GAMBIT_CONFIG", "")
	t.Setenv("GAMBIT_PGN_DIR", "/tmp/pgn")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SessionMode() != domain.VsAutomatedOpponent || cfg.Side() != domain.White {
		t.Fatalf("unexpected mode/side: %s %s", cfg.Mode, cfg.LocalSide)
	}
	if cfg.EngineDelay() != 2*time.Second || cfg.EngineFirstDelay() != time.Second {
		t.Fatalf("unexpected delays: %v %v", cfg.EngineDelay(), cfg.EngineFirstDelay())
	}
	if cfg.CueTTL() != 1200*time.Millisecond {
		t.Fatalf("unexpected cue ttl: %v", cfg.CueTTL())
	}
	if cfg.PGNDir != "/tmp/pgn" {
		t.Fatalf("pgn dir = %q", cfg.PGNDir)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte(`
mode: pair
local_side: black
trainer: koga
engine_delay_ms: 500
allowed_origins: ["localhost:*"]
redis_url: redis://file:6379/0
master_volume: 0.8
`)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GAMBIT_CONFIG", path)
	t.Setenv("GAMBIT_TRAINER", "giovanni")
	t.Setenv("GAMBIT_MUTED", "true")
	t.Setenv("GAMBIT_ALLOWED_ORIGINS", "app.local, 127.0.0.1:*")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := struct {
		Mode, Side, Trainer, Redis, File string
		Delay                            int
		Volume                           float64
		Muted                            bool
		Origins                          []string
	}{"pair", "black", "giovanni", "redis://file:6379/0", path, 500, 0.8, true, []string{"app.local", "127.0.0.1:*"}}
	got := want
	got.Mode, got.Side, got.Trainer, got.Redis, got.File = cfg.Mode, cfg.LocalSide, cfg.Trainer, cfg.RedisURL, cfg.File
	got.Delay, got.Volume, got.Muted, got.Origins = cfg.EngineDelayMS, cfg.MasterVolume, cfg.Muted, cfg.AllowedOrigins
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
	if cfg.SessionMode() != domain.LocalPairPlay {
		t.Fatalf("mode = %v", cfg.SessionMode())
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*AppConfig){
		"mode":   func(c *AppConfig) { c.Mode = "blitz" },
		"side":   func(c *AppConfig) { c.LocalSide = "green" },
		"volume": func(c *AppConfig) { c.SfxVolume = 1.5 },
		"delay":  func(c *AppConfig) { c.EngineDelayMS = -1 },
		"listen": func(c *AppConfig) { c.ListenAddr = " " },
	}
	for name, mutate := range cases {
		cfg := defaults()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
	if err := defaults().Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestBadNumberInEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("GAMBIT_ENGINE_DELAY_MS", "soon")
	if _, err := Load(); err == nil {
		t.Fatal("expected parse error")
	}
}

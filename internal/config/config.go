package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"github.com/park285/champions-gambit/internal/domain"
)

const configRelPath = "champions-gambit/config.yaml"

type AppConfig struct {
	StockfishPath string `yaml:"stockfish_path"`
	TrainersDir   string `yaml:"trainers_dir"`

	Mode      string `yaml:"mode"`
	LocalSide string `yaml:"local_side"`
	Trainer   string `yaml:"trainer"`

	EngineDelayMS      int `yaml:"engine_delay_ms"`
	EngineFirstDelayMS int `yaml:"engine_first_delay_ms"`
	CueTTLMS           int `yaml:"cue_ttl_ms"`

	ListenAddr     string   `yaml:"listen_addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`

	PGNDir       string `yaml:"pgn_dir"`
	RedisURL     string `yaml:"redis_url"`
	DatabaseURL  string `yaml:"database_url"`
	WebhookURL   string `yaml:"webhook_url"`
	WebhookToken string `yaml:"webhook_token"`

	MasterVolume float64 `yaml:"master_volume"`
	SfxVolume    float64 `yaml:"sfx_volume"`
	MusicVolume  float64 `yaml:"music_volume"`
	Muted        bool    `yaml:"muted"`

	// File is the YAML file that was applied, empty when none was found.
	File string `yaml:"-"`
}

func defaults() *AppConfig {
	pgnDir := strings.TrimSpace(xdg.UserDirs.Download)
	if pgnDir == "" {
		pgnDir = "."
	}
	return &AppConfig{
		Mode:               "computer",
		LocalSide:          "white",
		EngineDelayMS:      2000,
		EngineFirstDelayMS: 1000,
		CueTTLMS:           1200,
		ListenAddr:         "127.0.0.1:8787",
		PGNDir:             pgnDir,
		MasterVolume:       0.5,
		SfxVolume:          0.5,
		MusicVolume:        0.5,
	}
}

// Load builds the configuration from defaults, then an optional YAML file, then the
// environment. Environment values win.
func Load() (*AppConfig, error) {
	cfg := defaults()

	path := strings.TrimSpace(os.Getenv("GAMBIT_CONFIG"))
	explicit := path != ""
	if !explicit {
		if found, err := xdg.SearchConfigFile(configRelPath); err == nil {
			path = found
		}
	}
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			if explicit || !errors.Is(err, os.ErrNotExist) {
				return nil, err
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) applyFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	c.File = path
	return nil
}

func (c *AppConfig) applyEnv() error {
	setString(&c.StockfishPath, "STOCKFISH_PATH")
	setString(&c.TrainersDir, "GAMBIT_TRAINERS_DIR")
	setString(&c.Mode, "GAMBIT_MODE")
	setString(&c.LocalSide, "GAMBIT_LOCAL_SIDE")
	setString(&c.Trainer, "GAMBIT_TRAINER")
	setString(&c.ListenAddr, "GAMBIT_LISTEN_ADDR")
	setString(&c.PGNDir, "GAMBIT_PGN_DIR")
	setString(&c.RedisURL, "REDIS_URL")
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.WebhookURL, "GAMBIT_WEBHOOK_URL")
	setString(&c.WebhookToken, "GAMBIT_WEBHOOK_TOKEN")

	if v := strings.TrimSpace(os.Getenv("GAMBIT_ALLOWED_ORIGINS")); v != "" {
		c.AllowedOrigins = nil
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				c.AllowedOrigins = append(c.AllowedOrigins, s)
			}
		}
	}

	for _, f := range []struct {
		key string
		dst *int
	}{
		{"GAMBIT_ENGINE_DELAY_MS", &c.EngineDelayMS},
		{"GAMBIT_ENGINE_FIRST_DELAY_MS", &c.EngineFirstDelayMS},
		{"GAMBIT_CUE_TTL_MS", &c.CueTTLMS},
	} {
		if v := strings.TrimSpace(os.Getenv(f.key)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", f.key, err)
			}
			*f.dst = n
		}
	}

	for _, f := range []struct {
		key string
		dst *float64
	}{
		{"GAMBIT_MASTER_VOLUME", &c.MasterVolume},
		{"GAMBIT_SFX_VOLUME", &c.SfxVolume},
		{"GAMBIT_MUSIC_VOLUME", &c.MusicVolume},
	} {
		if v := strings.TrimSpace(os.Getenv(f.key)); v != "" {
			x, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", f.key, err)
			}
			*f.dst = x
		}
	}

	if v := strings.TrimSpace(os.Getenv("GAMBIT_MUTED")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("GAMBIT_MUTED: %w", err)
		}
		c.Muted = b
	}
	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func (c *AppConfig) Validate() error {
	if _, err := domain.ParseMode(c.Mode); err != nil {
		return err
	}
	if _, err := domain.ParseSide(c.LocalSide); err != nil {
		return err
	}
	if c.EngineDelayMS < 0 || c.EngineFirstDelayMS < 0 || c.CueTTLMS < 0 {
		return errors.New("delays must not be negative")
	}
	for name, v := range map[string]float64{
		"master_volume": c.MasterVolume,
		"sfx_volume":    c.SfxVolume,
		"music_volume":  c.MusicVolume,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s out of range [0,1]: %v", name, v)
		}
	}
	if strings.TrimSpace(c.ListenAddr) == "" {
		return errors.New("listen address is required")
	}
	return nil
}

func (c *AppConfig) SessionMode() domain.Mode {
	m, _ := domain.ParseMode(c.Mode)
	return m
}

func (c *AppConfig) Side() domain.Side {
	s, _ := domain.ParseSide(c.LocalSide)
	return s
}

func (c *AppConfig) EngineDelay() time.Duration {
	return time.Duration(c.EngineDelayMS) * time.Millisecond
}

func (c *AppConfig) EngineFirstDelay() time.Duration {
	return time.Duration(c.EngineFirstDelayMS) * time.Millisecond
}

func (c *AppConfig) CueTTL() time.Duration {
	return time.Duration(c.CueTTLMS) * time.Millisecond
}

package chess

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/park285/champions-gambit/internal/chess/uci"
)

type EngineConfig struct {
	BinaryPath   string
	Args         []string
	GracePeriod  time.Duration
	ReadyTimeout time.Duration
	Logger       *zap.Logger
}

// NewEngineFactory checks the engine binary once and returns a factory that spawns a
// fresh process per adapter.
func NewEngineFactory(cfg EngineConfig) (uci.Factory, error) {
	if cfg.BinaryPath == "" {
		return nil, fmt.Errorf("binary path required")
	}
	if _, err := os.Stat(cfg.BinaryPath); err != nil {
		return nil, fmt.Errorf("stockfish binary check: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []uci.Option{
		uci.WithLogger(logger.Named("uci")),
		uci.WithGracePeriod(cfg.GracePeriod),
		uci.WithReadyTimeout(cfg.ReadyTimeout),
	}
	return func(h uci.Handlers) (*uci.Adapter, error) {
		return uci.NewAdapter(uci.NewProcessTransport(cfg.BinaryPath, cfg.Args...), h, opts...), nil
	}, nil
}

package chessbuilder

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/park285/champions-gambit/internal/archive"
	"github.com/park285/champions-gambit/internal/bridge"
	"github.com/park285/champions-gambit/internal/chess"
	"github.com/park285/champions-gambit/internal/chess/uci"
	"github.com/park285/champions-gambit/internal/config"
	"github.com/park285/champions-gambit/internal/domain"
	"github.com/park285/champions-gambit/internal/feedback"
	"github.com/park285/champions-gambit/internal/session"
)

type Deps struct {
	Controller *session.Controller
	Server     *bridge.Server
	Roster     *chess.Roster
	Archive    archive.Multi
	Memory     *archive.MemorySink
	History    bridge.HistoryFunc
}

// New wires one session and everything around it. Optional sinks are built only when
// their setting is present.
func New(cfg *config.AppConfig, logger *zap.Logger) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	roster, err := chess.LoadRoster(cfg.TrainersDir)
	if err != nil {
		return nil, fmt.Errorf("load trainers: %w", err)
	}

	// Without an engine binary the session still runs; computer mode reports the opponent
	// as unavailable.
	var engines *uci.Slot
	if strings.TrimSpace(cfg.StockfishPath) != "" {
		factory, err := chess.NewEngineFactory(chess.EngineConfig{BinaryPath: cfg.StockfishPath, Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("init engine: %w", err)
		}
		engines = uci.NewSlot(factory)
	} else if cfg.SessionMode() == domain.VsAutomatedOpponent {
		logger.Warn("engine_not_configured", zap.String("hint", "set STOCKFISH_PATH"))
	}

	sinks, mem, history, err := buildArchive(cfg, logger)
	if err != nil {
		return nil, err
	}

	dispatcher := feedback.NewDispatcher(feedback.Config{
		CueTTL: cfg.CueTTL(),
		Settings: feedback.Settings{
			MasterVolume: cfg.MasterVolume,
			MusicVolume:  cfg.MusicVolume,
			SfxVolume:    cfg.SfxVolume,
			Muted:        cfg.Muted,
		},
		Logger: logger.Named("feedback"),
	}, nil)

	ctrl, err := session.New(session.Config{
		Engines:          engines,
		Roster:           roster,
		TrainerID:        cfg.Trainer,
		Mode:             cfg.SessionMode(),
		LocalSide:        cfg.Side(),
		EngineDelay:      cfg.EngineDelay(),
		FirstEngineDelay: cfg.EngineFirstDelay(),
		Feedback:         dispatcher,
		Archive:          sinks,
		Logger:           logger.Named("session"),
	})
	if err != nil {
		_ = sinks.Close()
		return nil, err
	}

	server := bridge.NewServer(ctrl, bridge.Options{
		Logger:         logger.Named("bridge"),
		History:        history,
		OriginPatterns: cfg.AllowedOrigins,
	})

	return &Deps{
		Controller: ctrl,
		Server:     server,
		Roster:     roster,
		Archive:    sinks,
		Memory:     mem,
		History:    history,
	}, nil
}

// buildArchive returns the configured sinks plus the listing source for game history.
// Postgres is preferred for listing, then Redis, then the in-process sink.
func buildArchive(cfg *config.AppConfig, logger *zap.Logger) (archive.Multi, *archive.MemorySink, bridge.HistoryFunc, error) {
	mem := archive.NewMemorySink()
	sinks := archive.Multi{mem}
	history := func(_ context.Context, limit int) ([]domain.GameRecord, error) {
		return mem.Recent(limit), nil
	}

	var errs error
	if dir := strings.TrimSpace(cfg.PGNDir); dir != "" {
		fs, err := archive.NewFileSink(dir)
		if err != nil {
			errs = multierror.Append(errs, err)
		} else {
			sinks = append(sinks, fs)
		}
	}
	if u := strings.TrimSpace(cfg.RedisURL); u != "" {
		rs, err := archive.NewRedisSink(u, 0)
		if err != nil {
			errs = multierror.Append(errs, err)
		} else {
			sinks = append(sinks, rs)
			history = rs.Recent
		}
	}
	if u := strings.TrimSpace(cfg.DatabaseURL); u != "" {
		ps, err := archive.NewPostgresSink(u)
		if err != nil {
			errs = multierror.Append(errs, err)
		} else {
			sinks = append(sinks, ps)
			history = ps.Recent
		}
	}
	if u := strings.TrimSpace(cfg.WebhookURL); u != "" {
		var opts []archive.WebhookOption
		if token := strings.TrimSpace(cfg.WebhookToken); token != "" {
			opts = append(opts, archive.WithHeaderProvider(func() map[string]string {
				return map[string]string{"Authorization": "Bearer " + token}
			}))
		}
		ws, err := archive.NewWebhookSink(u, opts...)
		if err != nil {
			errs = multierror.Append(errs, err)
		} else {
			sinks = append(sinks, ws)
		}
	}
	if errs != nil {
		_ = sinks.Close()
		return nil, nil, nil, fmt.Errorf("archive: %w", errs)
	}
	logger.Info("archive_ready", zap.Int("sinks", len(sinks)))
	return sinks, mem, history, nil
}

// Close ends the session and releases archive connections. Safe to call once the HTTP
// server has stopped.
func (d *Deps) Close() error {
	if d == nil {
		return nil
	}
	if d.Server != nil {
		d.Server.Close()
	}
	if d.Controller != nil {
		d.Controller.Exit()
	}
	return d.Archive.Close()
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/park285/champions-gambit/internal/chess"
	"github.com/park285/champions-gambit/internal/chessbuilder"
	appcfg "github.com/park285/champions-gambit/internal/config"
	"github.com/park285/champions-gambit/internal/obslog"
)

func main() {
	listTrainers := flag.Bool("list-trainers", false, "print the trainer roster and exit")
	flag.Parse()

	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	if *listTrainers {
		roster, err := chess.LoadRoster(cfg.TrainersDir)
		if err != nil {
			log.Fatalf("load trainers: %v", err)
		}
		for _, t := range roster.List() {
			fmt.Printf("%-10s %-12s %-9s %s\n", t.ID, t.Name, t.DifficultyLabel(), t.Strength.Describe())
		}
		return
	}

	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()
	if cfg.File != "" {
		logger.Info("config_loaded", zap.String("file", cfg.File))
	}

	deps, err := chessbuilder.New(cfg, logger)
	if err != nil {
		logger.Fatal("init_failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := deps.Controller.Start(ctx); err != nil {
		logger.Fatal("session_start_failed", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           deps.Server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown_signal")
	case err := <-serveErr:
		if err != nil {
			logger.Error("server_failed", zap.Error(err))
		}
	}

	// websocket connections are hijacked, so drop them before Shutdown waits on handlers
	deps.Server.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server_shutdown", zap.Error(err))
	}
	if err := deps.Close(); err != nil {
		logger.Warn("archive_close", zap.Error(err))
	}
	if err, ok := <-serveErr; ok && err != nil {
		os.Exit(1)
	}
}

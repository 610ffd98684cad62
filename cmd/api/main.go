package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/celloweb-ai/MOC-Studio-BR/internal/app"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/config"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/obs"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := obs.InitLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, version, logger)
	if err != nil {
		logger.Fatal("startup_failed", zap.Error(err))
	}
	defer a.Close()

	storage := "memory"
	if cfg.Postgres.DSN != "" {
		storage = "postgres"
	}
	logger.Info("starting",
		zap.String("version", version),
		zap.String("env", cfg.Env),
		zap.String("storage", storage),
		zap.String("transition_policy", cfg.MOC.TransitionPolicy),
	)

	if err := a.Run(ctx); err != nil {
		logger.Error("server_error", zap.Error(err))
		a.Close()
		os.Exit(1)
	}
	logger.Info("stopped")
}

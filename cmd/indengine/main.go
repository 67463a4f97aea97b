package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taengine/config"
	"taengine/internal/indengine"
	"taengine/internal/logger"
	"taengine/internal/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	log := logger.Init("indengine", logger.ParseLevel(cfg.LogLevel))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svc, err := indengine.New(ctx, cfg)
	if err != nil {
		log.Error("init failed", "error", err)
		os.Exit(1)
	}

	srv := metrics.NewServer(cfg.HTTPAddr, svc.Handler())
	srv.Start()

	runErr := svc.Run(ctx)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer stopCancel()
	if err := srv.Stop(stopCtx); err != nil {
		log.Warn("http shutdown", "error", err)
	}
	if runErr != nil {
		log.Error("fatal", "error", runErr)
		os.Exit(1)
	}
}

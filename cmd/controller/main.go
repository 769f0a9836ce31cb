package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/canopy-network/backlog-autoscaler/app/controller"
	"github.com/canopy-network/backlog-autoscaler/pkg/config"
	"github.com/canopy-network/backlog-autoscaler/pkg/logging"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, cfgErr := config.Load()

	level, encoding := "info", "json"
	if cfg != nil {
		level, encoding = cfg.Log.Level, cfg.Log.Encoding
	}
	logger, err := logging.New(level, encoding)
	if err != nil {
		// nothing else to do here, we'll just log to stderr
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if cfgErr != nil {
		logger.Fatal("Invalid configuration", zap.Error(cfgErr))
	}

	app, err := controller.Initialize(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Startup connectivity error", zap.Error(err))
	}
	app.LogPools()

	// Immediate pass before cron
	app.ReconcileOnce(ctx)

	// Start cron scheduler
	app.StartCron()

	// Setup server
	app.SetupServer()

	// Start server
	app.Start(ctx)
}

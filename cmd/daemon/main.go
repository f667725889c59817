package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/octoradar/octoradar/cfg"
	"github.com/octoradar/octoradar/internal/githubapi"
	"github.com/octoradar/octoradar/internal/scheduler"
	"github.com/octoradar/octoradar/internal/syncer"
	"github.com/octoradar/octoradar/pkg/db"
	"github.com/octoradar/octoradar/pkg/log"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	viperLoader, _ := cfg.NewViperLoader()
	loader, _ := cfg.NewLoader(viperLoader)
	config, err := loader.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger, _ := log.NewCslLoggerWithLevel(config.Log.Level)

	// Setup database
	mongo, _ := db.NewMongo(config)
	if err := mongo.EnsureIndexes(ctx); err != nil {
		logger.Error(ctx, "Failed to ensure database indexes: %v", err)
		os.Exit(1)
	}
	defer mongo.Close()

	// Build the sync pipeline
	caller := githubapi.NewCaller(logger, config)
	sync, err := syncer.Factory(config.Daemon.SyncerVersion, logger, config, mongo, caller)
	if err != nil {
		logger.Error(ctx, "Failed to create syncer: %v", err)
		os.Exit(1)
	}

	sched, err := scheduler.NewScheduler(logger, config, sync)
	if err != nil {
		logger.Error(ctx, "Failed to create scheduler: %v", err)
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info(ctx, "Received shutdown signal, gracefully shutting down...")
		cancel()
	}()

	logger.Info(ctx, "Starting OctoRadar daemon (syncer %s, interval %d minutes)",
		config.Daemon.SyncerVersion, config.Daemon.IntervalMin)

	runErr := sched.Run(ctx)

	if v2, ok := sync.(*syncer.SyncerV2); ok {
		if err := v2.Close(); err != nil {
			logger.Error(ctx, "Error closing Kafka producers: %v", err)
		}
	}

	switch {
	case errors.Is(runErr, scheduler.ErrTooManyFailures):
		logger.Critical(ctx, "Daemon exiting: %v", runErr)
		os.Exit(1)
	case errors.Is(runErr, context.Canceled):
		logger.Info(ctx, "Daemon stopped")
	case runErr != nil:
		logger.Error(ctx, "Daemon exiting: %v", runErr)
		os.Exit(1)
	}
}

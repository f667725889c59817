package main

import (
	"context"
	"fmt"
	"os"

	"github.com/octoradar/octoradar/cfg"
	"github.com/octoradar/octoradar/internal/api"
	"github.com/octoradar/octoradar/internal/githubapi"
	"github.com/octoradar/octoradar/internal/model"
	"github.com/octoradar/octoradar/internal/scheduler"
	"github.com/octoradar/octoradar/internal/server"
	"github.com/octoradar/octoradar/internal/syncer"
	"github.com/octoradar/octoradar/pkg/db"
	"github.com/octoradar/octoradar/pkg/log"
)

func main() {
	ctx := context.Background()

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
	defer mongo.Close()

	// Models backing the read endpoints
	orgModel, _ := model.NewOrgs(config, logger, mongo)
	repoModel, _ := model.NewRepos(config, logger, mongo)

	// Sync control surface: the server can trigger out-of-schedule runs
	// but does not run the interval loop itself.
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
	syncAPI := api.NewSyncAPI(logger, config, mongo, sched)

	srv := server.NewServer(logger, config, orgModel, repoModel, syncAPI)
	if err := srv.Run(); err != nil {
		logger.Error(ctx, "Server exited with error: %v", err)
		os.Exit(1)
	}
}

// Package api exposes a facade over the sync scheduler for control
// surfaces (the HTTP server, primarily).

package api

import (
	"context"
	"sync"
	"time"

	"github.com/octoradar/octoradar/cfg"
	"github.com/octoradar/octoradar/internal/scheduler"
	"github.com/octoradar/octoradar/pkg/db"
	"github.com/octoradar/octoradar/pkg/log"
)

// SyncStats describes the state of the sync cycle for API consumers.
type SyncStats struct {
	IsRunning      bool      `json:"isRunning"`
	RunID          string    `json:"runId,omitempty"`
	StartTime      time.Time `json:"startTime,omitempty"`
	Duration       string    `json:"duration,omitempty"`
	OrgsSynced     int       `json:"orgsSynced"`
	OrgsPruned     int       `json:"orgsPruned"`
	ReposSynced    int       `json:"reposSynced"`
	ReposPublished int       `json:"reposPublished"`
	Errors         int       `json:"errors"`
	LastError      string    `json:"lastError,omitempty"`
}

type SyncAPI struct {
	Logger    log.Logger
	Config    *cfg.Config
	Mongo     *db.Mongo
	Scheduler *scheduler.Scheduler

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewSyncAPI(logger log.Logger, config *cfg.Config, mongo *db.Mongo, sched *scheduler.Scheduler) *SyncAPI {
	return &SyncAPI{
		Logger:    logger,
		Config:    config,
		Mongo:     mongo,
		Scheduler: sched,
	}
}

// StartSync kicks off an out-of-schedule sync run in the background.
func (a *SyncAPI) StartSync() (string, error) {
	if a.Scheduler.IsRunning() {
		return "A sync run is already in progress", nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()

	go func() {
		defer cancel()
		if _, err := a.Scheduler.TriggerNow(runCtx); err != nil {
			a.Logger.Error(runCtx, "Triggered sync run failed: %v", err)
		}
		a.mu.Lock()
		a.cancel = nil
		a.mu.Unlock()
	}()

	return "Started sync run", nil
}

// StopSync cancels a run started through StartSync. Scheduled runs are
// owned by the daemon's own context and are not affected.
func (a *SyncAPI) StopSync() (string, error) {
	a.mu.Lock()
	cancel := a.cancel
	a.mu.Unlock()

	if cancel == nil {
		return "No triggered sync run is in progress", nil
	}
	cancel()
	return "Stopping sync run (may take some time to complete)", nil
}

// GetSyncStats reports the state of the most recent run.
func (a *SyncAPI) GetSyncStats() *SyncStats {
	stats := &SyncStats{
		IsRunning: a.Scheduler.IsRunning(),
	}

	report := a.Scheduler.LastReport()
	if report == nil {
		return stats
	}

	stats.RunID = report.RunID
	stats.StartTime = report.StartTime
	stats.Duration = report.Duration().String()
	stats.OrgsSynced = report.OrgsSynced
	stats.OrgsPruned = report.OrgsPruned
	stats.ReposSynced = report.ReposSynced
	stats.ReposPublished = report.ReposPublished
	stats.Errors = report.Errors
	stats.LastError = report.LastError
	return stats
}

// GetDatabaseStatus checks the database connection.
func (a *SyncAPI) GetDatabaseStatus() (string, error) {
	if a.Mongo == nil {
		return "Database not initialized", nil
	}
	if err := a.Mongo.Ping(); err != nil {
		return "Database not connected: " + err.Error(), err
	}
	return "Database connected", nil
}

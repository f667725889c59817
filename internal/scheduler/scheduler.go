// Package scheduler runs the fetch-and-store cycle at a configured
// interval, like a cron job with overlap prevention.

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/octoradar/octoradar/cfg"
	"github.com/octoradar/octoradar/internal/githubapi"
	"github.com/octoradar/octoradar/internal/syncer"
	"github.com/octoradar/octoradar/pkg/log"
)

// ErrTooManyFailures is returned when the configured number of
// consecutive sync failures is reached and the daemon must exit.
var ErrTooManyFailures = errors.New("reached the maximum number of consecutive sync failures")

// ErrSyncInProgress is returned by TriggerNow when a run is already in
// flight.
var ErrSyncInProgress = errors.New("a sync run is already in progress")

type Scheduler struct {
	Logger log.Logger
	Config *cfg.Config
	Syncer syncer.Syncer

	// Interval between run starts. A run longer than the interval is
	// followed immediately by the next one.
	Interval time.Duration

	// MaxConsecutiveErrors stops the scheduler when this many runs fail
	// in a row.
	MaxConsecutiveErrors int

	// RetryMaxElapsed bounds the in-run retry of transient errors.
	RetryMaxElapsed time.Duration

	// RetryInitialInterval is the first backoff delay between retries.
	RetryInitialInterval time.Duration

	mu         sync.Mutex
	running    bool
	lastReport *syncer.Report
}

func NewScheduler(logger log.Logger, config *cfg.Config, s syncer.Syncer) (*Scheduler, error) {
	maxErrors := config.Daemon.MaxConsecutiveErrors
	if maxErrors <= 0 {
		maxErrors = 10
	}
	retryMax := time.Duration(config.Daemon.RetryMaxElapsedSec) * time.Second
	if retryMax <= 0 {
		retryMax = 2 * time.Minute
	}

	return &Scheduler{
		Logger:               logger,
		Config:               config,
		Syncer:               s,
		Interval:             time.Duration(config.Daemon.IntervalMin) * time.Minute,
		MaxConsecutiveErrors: maxErrors,
		RetryMaxElapsed:      retryMax,
		RetryInitialInterval: backoff.DefaultInitialInterval,
	}, nil
}

// Run executes the sync cycle until the context is canceled or too many
// consecutive runs fail. Each cycle sleeps only the remainder of the
// interval after the run's own duration.
func (s *Scheduler) Run(ctx context.Context) error {
	failures := 0

	for {
		s.Logger.Info(ctx, "Executing sync run")
		start := time.Now()

		err := s.runOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
			s.Logger.Error(ctx, "Sync run failed (%d/%d consecutive): %v", failures, s.MaxConsecutiveErrors, err)
			if failures >= s.MaxConsecutiveErrors {
				s.Logger.Critical(ctx, "Reached the maximum number of consecutive failures. Exiting.")
				return ErrTooManyFailures
			}
		} else {
			failures = 0
		}

		duration := time.Since(start)
		s.Logger.Info(ctx, "Execution time: %v", duration.Round(time.Second))

		sleep := s.Interval - duration
		if sleep < 0 {
			sleep = 0
		}
		s.Logger.Info(ctx, "Sleeping for %v", sleep.Round(time.Second))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
}

// TriggerNow starts a single out-of-schedule run, refusing to overlap a
// run already in flight.
func (s *Scheduler) TriggerNow(ctx context.Context) (*syncer.Report, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.release()
	return s.syncWithRetry(ctx)
}

// LastReport returns the report of the most recently finished run, or
// nil when none has run yet.
func (s *Scheduler) LastReport() *syncer.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReport
}

// IsRunning reports whether a run is currently in flight.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) runOnce(ctx context.Context) error {
	if err := s.acquire(); err != nil {
		// The interval loop never overlaps itself; a concurrent
		// TriggerNow holds the slot, skip this tick.
		s.Logger.Warn(ctx, "Skipping scheduled run: %v", err)
		return nil
	}
	defer s.release()

	_, err := s.syncWithRetry(ctx)
	return err
}

func (s *Scheduler) acquire() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrSyncInProgress
	}
	s.running = true
	return nil
}

func (s *Scheduler) release() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// syncWithRetry runs one sync, retrying transient errors with
// exponential backoff until RetryMaxElapsed is spent.
func (s *Scheduler) syncWithRetry(ctx context.Context) (*syncer.Report, error) {
	var report *syncer.Report

	// BackOff implementations are stateful; always use a fresh instance.
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = s.RetryMaxElapsed
	if s.RetryInitialInterval > 0 {
		bo.InitialInterval = s.RetryInitialInterval
	}

	err := backoff.Retry(func() error {
		var syncErr error
		report, syncErr = s.Syncer.Sync(ctx)
		if syncErr == nil {
			return nil
		}
		if isTransient(syncErr) {
			s.Logger.Warn(ctx, "Transient sync error, will retry: %v", syncErr)
			return syncErr
		}
		return backoff.Permanent(syncErr)
	}, backoff.WithContext(bo, ctx))

	s.mu.Lock()
	if report != nil {
		s.lastReport = report
	}
	s.mu.Unlock()

	if err != nil {
		return report, fmt.Errorf("sync run failed: %w", err)
	}
	return report, nil
}

// isTransient classifies errors worth retrying within a run: server
// errors from GitHub. Rate-limit waits and client errors are handed to
// the next scheduled run instead.
func isTransient(err error) bool {
	var apiErr *githubapi.ApiError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	return false
}

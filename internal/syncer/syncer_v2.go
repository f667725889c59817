// Syncer version 2
// Concurrent variant: bounded worker pools fetch organizations and
// repositories in parallel and publish the snapshots to Kafka topics.
// The consumer binaries persist them into the database; only the
// organization pruning writes directly.

package syncer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/octoradar/octoradar/cfg"
	"github.com/octoradar/octoradar/internal/githubapi"
	"github.com/octoradar/octoradar/internal/model"
	kafkapkg "github.com/octoradar/octoradar/pkg/kafka"
	"github.com/octoradar/octoradar/pkg/log"
)

type SyncerV2 struct {
	Logger       log.Logger
	Config       *cfg.Config
	Github       GithubSource
	Orgs         OrgStore
	OrgProducer  Publisher
	RepoProducer Publisher

	orgWorkers  chan struct{}
	repoWorkers chan struct{}
	errorChan   chan error

	processedRepos map[string]bool
	processedLock  sync.RWMutex

	lastErrLock sync.Mutex
	lastErr     string
}

func NewSyncerV2(logger log.Logger, config *cfg.Config, github GithubSource, orgs OrgStore, repos RepoStore) (*SyncerV2, error) {
	orgProducer := kafkapkg.NewProducer(config, logger, config.Kafka.TopicOrg)
	repoProducer := kafkapkg.NewProducer(config, logger, config.Kafka.TopicRepo)
	return NewSyncerV2WithPublishers(logger, config, github, orgs, orgProducer, repoProducer)
}

func NewSyncerV2WithPublishers(logger log.Logger, config *cfg.Config, github GithubSource, orgs OrgStore, orgProducer, repoProducer Publisher) (*SyncerV2, error) {
	maxOrgWorkers := 5
	maxRepoWorkers := 20

	return &SyncerV2{
		Logger:         logger,
		Config:         config,
		Github:         github,
		Orgs:           orgs,
		OrgProducer:    orgProducer,
		RepoProducer:   repoProducer,
		orgWorkers:     make(chan struct{}, maxOrgWorkers),
		repoWorkers:    make(chan struct{}, maxRepoWorkers),
		errorChan:      make(chan error, 200),
		processedRepos: make(map[string]bool, 10000),
	}, nil
}

func (s *SyncerV2) Sync(ctx context.Context) (*Report, error) {
	report := newReport()
	defer func() { report.EndTime = time.Now() }()

	s.Logger.Info(ctx, "Sync run %s started (concurrent)", report.RunID)

	// The dedup set is per run; a repository seen last run must be
	// refreshed this run.
	s.processedLock.Lock()
	s.processedRepos = make(map[string]bool, len(s.processedRepos))
	s.processedLock.Unlock()

	syncCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.errorMonitor(syncCtx)

	names, err := s.reconcileAndPublishOrganizations(syncCtx, report)
	if err != nil {
		report.Errors++
		report.LastError = err.Error()
		return report, err
	}

	var (
		wg        sync.WaitGroup
		published int32
		errCount  int32
	)

	for _, org := range names {
		select {
		case <-syncCtx.Done():
			return report, syncCtx.Err()
		case s.orgWorkers <- struct{}{}:
		}

		wg.Add(1)
		go func(org string) {
			defer wg.Done()
			defer func() { <-s.orgWorkers }()

			repos, err := s.Github.OrgRepositories(syncCtx, org)
			if err != nil {
				atomic.AddInt32(&errCount, 1)
				s.reportError(fmt.Errorf("failed to list repositories for org %s: %w", org, err))
				return
			}

			for _, repo := range repos {
				select {
				case <-syncCtx.Done():
					return
				case s.repoWorkers <- struct{}{}:
				}

				wg.Add(1)
				go func(repo githubapi.RepoResponse) {
					defer wg.Done()
					defer func() { <-s.repoWorkers }()

					key := org + "/" + repo.Name
					if !s.markProcessed(key) {
						return
					}

					languages, _ := s.Github.RepositoryLanguages(syncCtx, org, repo.Name)
					contributors, _ := s.Github.RepositoryContributors(syncCtx, org, repo.Name)

					doc := buildRepositoryDocument(repo, org, languages, contributors, time.Now())
					msg := model.RepoMessage{Repository: doc}
					if err := s.RepoProducer.Publish(syncCtx, "repo", msg); err != nil {
						atomic.AddInt32(&errCount, 1)
						s.reportError(fmt.Errorf("failed to publish repository %s: %w", key, err))
						return
					}
					atomic.AddInt32(&published, 1)
				}(repo)
			}
		}(org)
	}

	wg.Wait()

	report.ReposPublished = int(atomic.LoadInt32(&published))
	report.Errors += int(atomic.LoadInt32(&errCount))
	s.lastErrLock.Lock()
	if s.lastErr != "" && report.LastError == "" {
		report.LastError = s.lastErr
	}
	s.lastErrLock.Unlock()

	s.Logger.Info(ctx, "Sync run %s finished: %d repositories published, %d new orgs, %d pruned orgs, %d errors",
		report.RunID, report.ReposPublished, report.OrgsSynced, report.OrgsPruned, report.Errors)

	return report, nil
}

// reconcileAndPublishOrganizations publishes every organization snapshot
// to Kafka and prunes stored organizations that GitHub no longer
// returns. Pruning has to compare against the database, so it writes
// directly instead of going through the topic.
func (s *SyncerV2) reconcileAndPublishOrganizations(ctx context.Context, report *Report) ([]string, error) {
	stored, err := s.Orgs.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load organizations from the database: %w", err)
	}

	if !s.Config.Daemon.FetchOrganizations && len(stored) > 0 {
		names := make([]string, 0, len(stored))
		for _, org := range stored {
			names = append(names, org.Name)
		}
		return names, nil
	}

	githubOrgs, err := s.Github.Organizations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch organizations: %w", err)
	}

	names := make([]string, 0, len(githubOrgs))
	for _, org := range githubOrgs {
		names = append(names, org.Login)
		msg := model.OrgMessage{Name: org.Login, Description: org.Description}
		if err := s.OrgProducer.Publish(ctx, "org", msg); err != nil {
			return nil, fmt.Errorf("failed to publish organization %s: %w", org.Login, err)
		}
		report.OrgsSynced++
	}

	removed, err := s.Orgs.FindNotIn(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("failed to look up deleted organizations: %w", err)
	}
	if len(removed) > 0 {
		removedNames := make([]string, 0, len(removed))
		for _, org := range removed {
			removedNames = append(removedNames, org.Name)
		}
		count, err := s.Orgs.DeleteMany(ctx, removedNames)
		if err != nil {
			return nil, fmt.Errorf("failed to delete organizations: %w", err)
		}
		report.OrgsPruned += int(count)
	}

	return names, nil
}

func (s *SyncerV2) errorMonitor(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-s.errorChan:
			if err != nil {
				s.Logger.Error(ctx, "Error during sync: %v", err)
			}
		}
	}
}

func (s *SyncerV2) reportError(err error) {
	s.lastErrLock.Lock()
	s.lastErr = err.Error()
	s.lastErrLock.Unlock()

	select {
	case s.errorChan <- err:
	default:
	}
}

// markProcessed records the repository key and reports whether it was
// new. Check and set happen under one lock so concurrent workers cannot
// both claim the same repository.
func (s *SyncerV2) markProcessed(key string) bool {
	s.processedLock.Lock()
	defer s.processedLock.Unlock()
	if s.processedRepos[key] {
		return false
	}
	s.processedRepos[key] = true
	return true
}

// Close shuts down the Kafka producers. Called once when the daemon
// exits, not per run.
func (s *SyncerV2) Close() error {
	var firstErr error
	if err := s.OrgProducer.Close(); err != nil {
		firstErr = err
	}
	if err := s.RepoProducer.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

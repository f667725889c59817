// Syncer version 1
// Sequential full pass: reconcile organizations, then fetch and upsert
// every repository one by one under the shared rate limit.

package syncer

import (
	"context"
	"time"

	"github.com/octoradar/octoradar/cfg"
	"github.com/octoradar/octoradar/pkg/log"
)

type SyncerV1 struct {
	Logger log.Logger
	Config *cfg.Config
	Github GithubSource
	Orgs   OrgStore
	Repos  RepoStore
}

func NewSyncerV1(logger log.Logger, config *cfg.Config, github GithubSource, orgs OrgStore, repos RepoStore) (*SyncerV1, error) {
	return &SyncerV1{
		Logger: logger,
		Config: config,
		Github: github,
		Orgs:   orgs,
		Repos:  repos,
	}, nil
}

func (s *SyncerV1) Sync(ctx context.Context) (*Report, error) {
	report := newReport()
	defer func() { report.EndTime = time.Now() }()

	s.Logger.Info(ctx, "Sync run %s started", report.RunID)

	names, err := reconcileOrganizations(ctx, s.Logger, s.Config, s.Github, s.Orgs, report)
	if err != nil {
		report.Errors++
		report.LastError = err.Error()
		return report, err
	}

	s.Logger.Info(ctx, "Syncing repositories for %d organizations", len(names))

	for index, org := range names {
		if ctx.Err() != nil {
			report.LastError = ctx.Err().Error()
			return report, ctx.Err()
		}

		s.Logger.Info(ctx, "Total completed: %d%%", (index*100)/len(names))

		repos, err := s.Github.OrgRepositories(ctx, org)
		if err != nil {
			// One broken organization must not abort the run.
			s.Logger.Error(ctx, "Error while retrieving repositories for org %s: %v", org, err)
			report.Errors++
			report.LastError = err.Error()
			continue
		}
		s.Logger.Info(ctx, "Found %d repositories for organization %s", len(repos), org)

		for _, repo := range repos {
			if ctx.Err() != nil {
				report.LastError = ctx.Err().Error()
				return report, ctx.Err()
			}

			languages, _ := s.Github.RepositoryLanguages(ctx, org, repo.Name)
			contributors, _ := s.Github.RepositoryContributors(ctx, org, repo.Name)

			doc := buildRepositoryDocument(repo, org, languages, contributors, time.Now())
			if err := s.Repos.Upsert(ctx, &doc); err != nil {
				report.Errors++
				report.LastError = err.Error()
				return report, err
			}
			report.ReposSynced++
		}
	}

	s.Logger.Info(ctx, "Sync run %s finished: %d repositories, %d new orgs, %d pruned orgs, %d errors",
		report.RunID, report.ReposSynced, report.OrgsSynced, report.OrgsPruned, report.Errors)

	return report, nil
}

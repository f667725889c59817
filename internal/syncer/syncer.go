// Package syncer implements the fetch-and-store cycle: it pulls
// organizations and repositories from the GitHub API and reconciles
// them into the database.

package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/octoradar/octoradar/cfg"
	"github.com/octoradar/octoradar/internal/githubapi"
	"github.com/octoradar/octoradar/internal/model"
	"github.com/octoradar/octoradar/pkg/db"
	"github.com/octoradar/octoradar/pkg/log"
)

// GithubSource is the slice of the GitHub client the syncers consume.
type GithubSource interface {
	Organizations(ctx context.Context) ([]githubapi.OrgResponse, error)
	OrgRepositories(ctx context.Context, org string) ([]githubapi.RepoResponse, error)
	RepositoryLanguages(ctx context.Context, org, repo string) (map[string]int64, error)
	RepositoryContributors(ctx context.Context, org, repo string) ([]githubapi.ContributorResponse, error)
}

// OrgStore is the organization persistence surface the syncers need.
type OrgStore interface {
	Upsert(ctx context.Context, name, description string) error
	FindAll(ctx context.Context) ([]model.Organization, error)
	FindNotIn(ctx context.Context, names []string) ([]model.Organization, error)
	DeleteMany(ctx context.Context, names []string) (int64, error)
}

// RepoStore is the repository persistence surface the syncers need.
type RepoStore interface {
	Upsert(ctx context.Context, doc *model.Repository) error
}

// Publisher publishes snapshots to a message topic.
type Publisher interface {
	Publish(ctx context.Context, key string, value interface{}) error
	Close() error
}

// Report summarizes a single sync run.
type Report struct {
	RunID          string    `json:"run_id"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	OrgsSynced     int       `json:"orgs_synced"`
	OrgsPruned     int       `json:"orgs_pruned"`
	ReposSynced    int       `json:"repos_synced"`
	ReposPublished int       `json:"repos_published"`
	Errors         int       `json:"errors"`
	LastError      string    `json:"last_error,omitempty"`
}

func newReport() *Report {
	return &Report{
		RunID:     uuid.NewString(),
		StartTime: time.Now(),
	}
}

func (r *Report) Duration() time.Duration {
	end := r.EndTime
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(r.StartTime)
}

// Syncer runs one full fetch-and-store cycle.
type Syncer interface {
	Sync(ctx context.Context) (*Report, error)
}

// Factory builds the syncer selected in the daemon configuration.
func Factory(version string, logger log.Logger, config *cfg.Config, mongo *db.Mongo, github GithubSource) (Syncer, error) {
	orgs, err := model.NewOrgs(config, logger, mongo)
	if err != nil {
		return nil, err
	}
	repos, err := model.NewRepos(config, logger, mongo)
	if err != nil {
		return nil, err
	}

	switch version {
	case "v1":
		return NewSyncerV1(logger, config, github, orgs, repos)
	case "v2":
		return NewSyncerV2(logger, config, github, orgs, repos)
	default:
		return nil, fmt.Errorf("unsupported syncer version: %s", version)
	}
}

// diffOrganizations splits the GitHub listing against the stored one:
// organizations present on GitHub but not in the database, and stored
// names no longer present on GitHub.
func diffOrganizations(github []githubapi.OrgResponse, stored []model.Organization) (added []githubapi.OrgResponse, removed []string) {
	storedNames := make(map[string]bool, len(stored))
	for _, org := range stored {
		storedNames[org.Name] = true
	}
	githubNames := make(map[string]bool, len(github))
	for _, org := range github {
		githubNames[org.Login] = true
		if !storedNames[org.Login] {
			added = append(added, org)
		}
	}
	for _, org := range stored {
		if !githubNames[org.Name] {
			removed = append(removed, org.Name)
		}
	}
	return added, removed
}

// buildRepositoryDocument maps a GitHub repository listing plus its
// language and contributor details onto the stored document shape.
func buildRepositoryDocument(repo githubapi.RepoResponse, org string, languages map[string]int64, contributors []githubapi.ContributorResponse, now time.Time) model.Repository {
	var contributorInfo []model.Contributor
	for _, contributor := range contributors {
		contributorInfo = append(contributorInfo, model.Contributor{
			Name:          contributor.Login,
			Contributions: contributor.Contributions,
		})
	}

	return model.Repository{
		Name:           repo.Name,
		Organization:   org,
		CreatedAt:      repo.CreatedAt,
		LatestCommitAt: repo.PushedAt,
		Archived:       repo.Archived,
		Disabled:       repo.Disabled,
		OpenIssues:     repo.OpenIssuesCount,
		HasIssues:      repo.HasIssues,
		URL:            repo.HtmlUrl,
		DefaultBranch:  repo.DefaultBranch,
		MainLanguage:   repo.Language,
		Languages:      languages,
		Contributors:   contributorInfo,
		Size:           []model.SizeEntry{{Size: repo.Size, Timestamp: now}},
		LastUpdateInDB: now,
	}
}

// reconcileOrganizations refreshes the organizations collection from
// GitHub when configured to do so (or when the collection is empty) and
// returns the organization names to sync repositories for.
func reconcileOrganizations(ctx context.Context, logger log.Logger, config *cfg.Config, github GithubSource, orgs OrgStore, report *Report) ([]string, error) {
	stored, err := orgs.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load organizations from the database: %w", err)
	}

	if !config.Daemon.FetchOrganizations && len(stored) > 0 {
		names := make([]string, 0, len(stored))
		for _, org := range stored {
			names = append(names, org.Name)
		}
		return names, nil
	}

	logger.Info(ctx, "Fetching organizations from GitHub...")
	githubOrgs, err := github.Organizations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch organizations: %w", err)
	}

	added, removed := diffOrganizations(githubOrgs, stored)

	logger.Info(ctx, "Found %d new organizations, inserting into the database...", len(added))
	for _, org := range added {
		if err := orgs.Upsert(ctx, org.Login, org.Description); err != nil {
			return nil, fmt.Errorf("failed to insert organization %s: %w", org.Login, err)
		}
		report.OrgsSynced++
	}

	if len(removed) > 0 {
		logger.Info(ctx, "Found %d deleted organizations, deleting from the database...", len(removed))
		count, err := orgs.DeleteMany(ctx, removed)
		if err != nil {
			return nil, fmt.Errorf("failed to delete organizations: %w", err)
		}
		if count != int64(len(removed)) {
			logger.Error(ctx, "Expected to delete %d organizations, deleted %d", len(removed), count)
		}
		report.OrgsPruned += int(count)
	}

	names := make([]string, 0, len(githubOrgs))
	for _, org := range githubOrgs {
		names = append(names, org.Login)
	}
	return names, nil
}

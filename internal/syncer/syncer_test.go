package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/octoradar/octoradar/cfg"
	"github.com/octoradar/octoradar/internal/githubapi"
	"github.com/octoradar/octoradar/internal/model"
	"github.com/octoradar/octoradar/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGithub struct {
	orgs        []githubapi.OrgResponse
	reposByOrg  map[string][]githubapi.RepoResponse
	repoListErr map[string]error
	languages   map[string]map[string]int64
}

func (f *fakeGithub) Organizations(ctx context.Context) ([]githubapi.OrgResponse, error) {
	return f.orgs, nil
}

func (f *fakeGithub) OrgRepositories(ctx context.Context, org string) ([]githubapi.RepoResponse, error) {
	if err := f.repoListErr[org]; err != nil {
		return nil, err
	}
	return f.reposByOrg[org], nil
}

func (f *fakeGithub) RepositoryLanguages(ctx context.Context, org, repo string) (map[string]int64, error) {
	return f.languages[org+"/"+repo], nil
}

func (f *fakeGithub) RepositoryContributors(ctx context.Context, org, repo string) ([]githubapi.ContributorResponse, error) {
	return []githubapi.ContributorResponse{{Login: "alice", Contributions: 3}}, nil
}

type fakeOrgStore struct {
	mu       sync.Mutex
	stored   []model.Organization
	upserted []string
	deleted  []string
}

func (f *fakeOrgStore) Upsert(ctx context.Context, name, description string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted = append(f.upserted, name)
	return nil
}

func (f *fakeOrgStore) FindAll(ctx context.Context) ([]model.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stored, nil
}

func (f *fakeOrgStore) FindNotIn(ctx context.Context, names []string) ([]model.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	keep := make(map[string]bool, len(names))
	for _, name := range names {
		keep[name] = true
	}
	var missing []model.Organization
	for _, org := range f.stored {
		if !keep[org.Name] {
			missing = append(missing, org)
		}
	}
	return missing, nil
}

func (f *fakeOrgStore) DeleteMany(ctx context.Context, names []string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, names...)
	return int64(len(names)), nil
}

type fakeRepoStore struct {
	mu   sync.Mutex
	docs []model.Repository
}

func (f *fakeRepoStore) Upsert(ctx context.Context, doc *model.Repository) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs = append(f.docs, *doc)
	return nil
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []interface{}
}

func (f *fakePublisher) Publish(ctx context.Context, key string, value interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, value)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

func testConfig(t *testing.T) *cfg.Config {
	t.Helper()
	loader, err := cfg.NewMockLoader()
	require.NoError(t, err)
	config, err := loader.Load()
	require.NoError(t, err)
	return config
}

func testLogger(t *testing.T) log.Logger {
	t.Helper()
	logger, err := log.NewCslLoggerWithLevel("critical")
	require.NoError(t, err)
	return logger
}

func TestDiffOrganizations(t *testing.T) {
	github := []githubapi.OrgResponse{
		{Login: "acme"},
		{Login: "globex"},
	}
	stored := []model.Organization{
		{Name: "globex"},
		{Name: "hooli"},
	}

	added, removed := diffOrganizations(github, stored)

	require.Len(t, added, 1)
	assert.Equal(t, "acme", added[0].Login)
	assert.Equal(t, []string{"hooli"}, removed)
}

func TestBuildRepositoryDocument(t *testing.T) {
	now := time.Now()
	repo := githubapi.RepoResponse{
		Name:            "radar",
		CreatedAt:       now.Add(-24 * time.Hour),
		PushedAt:        now.Add(-time.Hour),
		Archived:        true,
		OpenIssuesCount: 4,
		HasIssues:       true,
		HtmlUrl:         "https://github.com/acme/radar",
		DefaultBranch:   "main",
		Language:        "Go",
		Size:            512,
	}
	languages := map[string]int64{"Go": 1000}
	contributors := []githubapi.ContributorResponse{{Login: "alice", Contributions: 9}}

	doc := buildRepositoryDocument(repo, "acme", languages, contributors, now)

	assert.Equal(t, "acme", doc.Organization)
	assert.Equal(t, "radar", doc.Name)
	assert.True(t, doc.Archived)
	assert.Equal(t, 4, doc.OpenIssues)
	assert.Equal(t, "Go", doc.MainLanguage)
	assert.Equal(t, languages, doc.Languages)
	require.Len(t, doc.Contributors, 1)
	assert.Equal(t, "alice", doc.Contributors[0].Name)
	require.Len(t, doc.Size, 1)
	assert.Equal(t, int64(512), doc.Size[0].Size)
	assert.Equal(t, now, doc.LastUpdateInDB)
}

func TestSyncerV1FullPass(t *testing.T) {
	github := &fakeGithub{
		orgs: []githubapi.OrgResponse{
			{Login: "acme", Description: "Acme Corp"},
			{Login: "globex"},
		},
		reposByOrg: map[string][]githubapi.RepoResponse{
			"acme":   {{Name: "radar", Size: 10}, {Name: "anvil", Size: 20}},
			"globex": {{Name: "power", Size: 30}},
		},
		languages: map[string]map[string]int64{
			"acme/radar": {"Go": 100},
		},
	}
	orgs := &fakeOrgStore{
		stored: []model.Organization{
			{Name: "globex"},
			{Name: "hooli"}, // no longer on GitHub
		},
	}
	repos := &fakeRepoStore{}

	s, err := NewSyncerV1(testLogger(t), testConfig(t), github, orgs, repos)
	require.NoError(t, err)

	report, err := s.Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.OrgsSynced)
	assert.Equal(t, 1, report.OrgsPruned)
	assert.Equal(t, 3, report.ReposSynced)
	assert.Equal(t, 0, report.Errors)
	assert.NotEmpty(t, report.RunID)

	assert.Equal(t, []string{"acme"}, orgs.upserted)
	assert.Equal(t, []string{"hooli"}, orgs.deleted)
	require.Len(t, repos.docs, 3)
}

func TestSyncerV1SkipsBrokenOrganization(t *testing.T) {
	github := &fakeGithub{
		orgs: []githubapi.OrgResponse{
			{Login: "acme"},
			{Login: "globex"},
		},
		reposByOrg: map[string][]githubapi.RepoResponse{
			"globex": {{Name: "power"}},
		},
		repoListErr: map[string]error{
			"acme": errors.New("boom"),
		},
	}
	orgs := &fakeOrgStore{}
	repos := &fakeRepoStore{}

	s, err := NewSyncerV1(testLogger(t), testConfig(t), github, orgs, repos)
	require.NoError(t, err)

	report, err := s.Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Errors)
	assert.Contains(t, report.LastError, "boom")
	assert.Equal(t, 1, report.ReposSynced)
	require.Len(t, repos.docs, 1)
	assert.Equal(t, "globex", repos.docs[0].Organization)
}

func TestSyncerV1SkipsGithubFetchWhenConfiguredAndStored(t *testing.T) {
	config := testConfig(t)
	config.Daemon.FetchOrganizations = false

	github := &fakeGithub{
		reposByOrg: map[string][]githubapi.RepoResponse{
			"globex": {{Name: "power"}},
		},
	}
	orgs := &fakeOrgStore{
		stored: []model.Organization{{Name: "globex"}},
	}
	repos := &fakeRepoStore{}

	s, err := NewSyncerV1(testLogger(t), config, github, orgs, repos)
	require.NoError(t, err)

	report, err := s.Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, report.OrgsSynced)
	assert.Equal(t, 1, report.ReposSynced)
	assert.Empty(t, orgs.upserted)
}

func TestSyncerV2PublishesSnapshots(t *testing.T) {
	github := &fakeGithub{
		orgs: []githubapi.OrgResponse{
			{Login: "acme", Description: "Acme Corp"},
		},
		reposByOrg: map[string][]githubapi.RepoResponse{
			// Duplicate listing entry: must be published once.
			"acme": {{Name: "radar"}, {Name: "radar"}, {Name: "anvil"}},
		},
	}
	orgs := &fakeOrgStore{
		stored: []model.Organization{{Name: "hooli"}},
	}
	orgProducer := &fakePublisher{}
	repoProducer := &fakePublisher{}

	s, err := NewSyncerV2WithPublishers(testLogger(t), testConfig(t), github, orgs, orgProducer, repoProducer)
	require.NoError(t, err)

	report, err := s.Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.OrgsSynced)
	assert.Equal(t, 1, report.OrgsPruned)
	assert.Equal(t, 2, report.ReposPublished)
	assert.Equal(t, 1, orgProducer.count())
	assert.Equal(t, 2, repoProducer.count())
	assert.Equal(t, []string{"hooli"}, orgs.deleted)
}

func TestFactoryRejectsUnknownVersion(t *testing.T) {
	_, err := Factory("v9", testLogger(t), testConfig(t), nil, &fakeGithub{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported syncer version")
}

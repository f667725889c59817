package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/octoradar/octoradar/cfg"
	"github.com/octoradar/octoradar/internal/api"
	"github.com/octoradar/octoradar/internal/model"
	"github.com/octoradar/octoradar/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOrgLister struct {
	orgs []model.Organization
	err  error
}

func (f *fakeOrgLister) FindAll(ctx context.Context) ([]model.Organization, error) {
	return f.orgs, f.err
}

type fakeRepoLister struct {
	repos  []model.Repository
	totals []model.LanguageTotal
	err    error
}

func (f *fakeRepoLister) FindAll(ctx context.Context, organization string) ([]model.Repository, error) {
	if f.err != nil {
		return nil, f.err
	}
	if organization == "" {
		return f.repos, nil
	}
	var filtered []model.Repository
	for _, repo := range f.repos {
		if repo.Organization == organization {
			filtered = append(filtered, repo)
		}
	}
	return filtered, nil
}

func (f *fakeRepoLister) LanguageTotals(ctx context.Context) ([]model.LanguageTotal, error) {
	return f.totals, f.err
}

type fakeSyncController struct {
	started  bool
	stopped  bool
	stats    *api.SyncStats
	dbStatus string
	dbErr    error
}

func (f *fakeSyncController) StartSync() (string, error) {
	f.started = true
	return "Started sync run", nil
}

func (f *fakeSyncController) StopSync() (string, error) {
	f.stopped = true
	return "Stopping sync run", nil
}

func (f *fakeSyncController) GetSyncStats() *api.SyncStats {
	if f.stats != nil {
		return f.stats
	}
	return &api.SyncStats{}
}

func (f *fakeSyncController) GetDatabaseStatus() (string, error) {
	return f.dbStatus, f.dbErr
}

func newTestServer(t *testing.T, orgs *fakeOrgLister, repos *fakeRepoLister, sync *fakeSyncController) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	loader, err := cfg.NewMockLoader()
	require.NoError(t, err)
	config, err := loader.Load()
	require.NoError(t, err)

	logger, err := log.NewCslLoggerWithLevel("critical")
	require.NoError(t, err)

	return NewServer(logger, config, orgs, repos, sync).Router()
}

func doRequest(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	router.ServeHTTP(w, req)
	return w
}

func TestHealthzOK(t *testing.T) {
	router := newTestServer(t, &fakeOrgLister{}, &fakeRepoLister{}, &fakeSyncController{dbStatus: "Database connected"})

	w := doRequest(router, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "Database connected", body["database"])
}

func TestHealthzDegraded(t *testing.T) {
	sync := &fakeSyncController{dbStatus: "Database not connected", dbErr: errors.New("dial timeout")}
	router := newTestServer(t, &fakeOrgLister{}, &fakeRepoLister{}, sync)

	w := doRequest(router, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGetOrganizations(t *testing.T) {
	orgs := &fakeOrgLister{orgs: []model.Organization{{Name: "acme", Description: "Acme Corp"}}}
	router := newTestServer(t, orgs, &fakeRepoLister{}, &fakeSyncController{})

	w := doRequest(router, http.MethodGet, "/organizations")
	require.Equal(t, http.StatusOK, w.Code)

	var body []model.Organization
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, "acme", body[0].Name)
}

func TestGetOrganizationsEmptyIsArray(t *testing.T) {
	router := newTestServer(t, &fakeOrgLister{}, &fakeRepoLister{}, &fakeSyncController{})

	w := doRequest(router, http.MethodGet, "/organizations")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", w.Body.String())
}

func TestGetRepositoriesFilteredByOrg(t *testing.T) {
	repos := &fakeRepoLister{repos: []model.Repository{
		{Name: "radar", Organization: "acme"},
		{Name: "power", Organization: "globex"},
	}}
	router := newTestServer(t, &fakeOrgLister{}, repos, &fakeSyncController{})

	w := doRequest(router, http.MethodGet, "/repositories?org=acme")
	require.Equal(t, http.StatusOK, w.Code)

	var body []model.Repository
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, "radar", body[0].Name)
}

func TestGetRepositoriesError(t *testing.T) {
	repos := &fakeRepoLister{err: errors.New("cursor timeout")}
	router := newTestServer(t, &fakeOrgLister{}, repos, &fakeSyncController{})

	w := doRequest(router, http.MethodGet, "/repositories")
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Internal Server Error")
}

func TestGetOrgStats(t *testing.T) {
	repos := &fakeRepoLister{repos: []model.Repository{
		{Name: "radar", Organization: "acme", OpenIssues: 3, LatestCommitAt: time.Now()},
		{Name: "anvil", Organization: "acme", OpenIssues: 1},
	}}
	router := newTestServer(t, &fakeOrgLister{}, repos, &fakeSyncController{})

	w := doRequest(router, http.MethodGet, "/stats/organizations")
	require.Equal(t, http.StatusOK, w.Code)

	var body []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, "acme", body[0]["organization"])
	assert.Equal(t, float64(2), body[0]["repo_count"])
	assert.Equal(t, float64(4), body[0]["open_issues"])
}

func TestGetLanguageTotals(t *testing.T) {
	repos := &fakeRepoLister{totals: []model.LanguageTotal{{Language: "Go", Bytes: 1500}}}
	router := newTestServer(t, &fakeOrgLister{}, repos, &fakeSyncController{})

	w := doRequest(router, http.MethodGet, "/stats/languages")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"language":"Go"`)
}

func TestSyncTrigger(t *testing.T) {
	sync := &fakeSyncController{}
	router := newTestServer(t, &fakeOrgLister{}, &fakeRepoLister{}, sync)

	w := doRequest(router, http.MethodPost, "/sync/trigger")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.True(t, sync.started)
}

func TestSyncStatus(t *testing.T) {
	sync := &fakeSyncController{stats: &api.SyncStats{IsRunning: true, RunID: "abc"}}
	router := newTestServer(t, &fakeOrgLister{}, &fakeRepoLister{}, sync)

	w := doRequest(router, http.MethodGet, "/sync/status")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"runId":"abc"`)
	assert.Contains(t, w.Body.String(), `"isRunning":true`)
}

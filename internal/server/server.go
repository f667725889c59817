// Package server exposes the stored GitHub data over a read-only HTTP
// API, plus a couple of sync control endpoints.

package server

import (
	"context"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/octoradar/octoradar/cfg"
	"github.com/octoradar/octoradar/internal/api"
	"github.com/octoradar/octoradar/internal/model"
	"github.com/octoradar/octoradar/internal/stats"
	"github.com/octoradar/octoradar/pkg/log"
)

// OrgLister reads organizations from the store.
type OrgLister interface {
	FindAll(ctx context.Context) ([]model.Organization, error)
}

// RepoLister reads repositories from the store.
type RepoLister interface {
	FindAll(ctx context.Context, organization string) ([]model.Repository, error)
	LanguageTotals(ctx context.Context) ([]model.LanguageTotal, error)
}

// SyncController drives the sync cycle on behalf of API clients.
type SyncController interface {
	StartSync() (string, error)
	StopSync() (string, error)
	GetSyncStats() *api.SyncStats
	GetDatabaseStatus() (string, error)
}

type Server struct {
	Logger log.Logger
	Config *cfg.Config
	Orgs   OrgLister
	Repos  RepoLister
	Sync   SyncController
}

func NewServer(logger log.Logger, config *cfg.Config, orgs OrgLister, repos RepoLister, sync SyncController) *Server {
	return &Server{
		Logger: logger,
		Config: config,
		Orgs:   orgs,
		Repos:  repos,
		Sync:   sync,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/healthz", s.handleHealth)
	router.GET("/organizations", s.handleOrganizations)
	router.GET("/repositories", s.handleRepositories)

	statsGroup := router.Group("/stats")
	{
		statsGroup.GET("/organizations", s.handleOrgStats)
		statsGroup.GET("/summary", s.handleSummary)
		statsGroup.GET("/languages", s.handleLanguages)
	}

	syncGroup := router.Group("/sync")
	{
		syncGroup.POST("/trigger", s.handleSyncTrigger)
		syncGroup.POST("/stop", s.handleSyncStop)
		syncGroup.GET("/status", s.handleSyncStatus)
	}

	return router
}

// Run serves the API until the listener fails or the process exits.
func (s *Server) Run() error {
	addr := net.JoinHostPort(s.Config.Server.Host, s.Config.Server.Port)
	s.Logger.Info(context.Background(), "Running server on %s", addr)
	return s.Router().Run(addr)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.Logger.Info(c.Request.Context(), "Received %s request to: %s", c.Request.Method, c.Request.URL.Path)
		c.Next()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	status, err := s.Sync.GetDatabaseStatus()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": status})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "database": status})
}

func (s *Server) handleOrganizations(c *gin.Context) {
	orgs, err := s.Orgs.FindAll(c.Request.Context())
	if err != nil {
		s.internalError(c, err)
		return
	}
	if orgs == nil {
		orgs = []model.Organization{}
	}
	c.JSON(http.StatusOK, orgs)
}

func (s *Server) handleRepositories(c *gin.Context) {
	repos, err := s.Repos.FindAll(c.Request.Context(), c.Query("org"))
	if err != nil {
		s.internalError(c, err)
		return
	}
	if repos == nil {
		repos = []model.Repository{}
	}
	c.JSON(http.StatusOK, repos)
}

func (s *Server) handleOrgStats(c *gin.Context) {
	repos, err := s.Repos.FindAll(c.Request.Context(), c.Query("org"))
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats.Aggregate(repos))
}

func (s *Server) handleSummary(c *gin.Context) {
	repos, err := s.Repos.FindAll(c.Request.Context(), "")
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats.Summarize(repos))
}

func (s *Server) handleLanguages(c *gin.Context) {
	totals, err := s.Repos.LanguageTotals(c.Request.Context())
	if err != nil {
		s.internalError(c, err)
		return
	}
	if totals == nil {
		totals = []model.LanguageTotal{}
	}
	c.JSON(http.StatusOK, totals)
}

func (s *Server) handleSyncTrigger(c *gin.Context) {
	message, err := s.Sync.StartSync()
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": message})
}

func (s *Server) handleSyncStop(c *gin.Context) {
	message, err := s.Sync.StopSync()
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": message})
}

func (s *Server) handleSyncStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.Sync.GetSyncStats())
}

func (s *Server) internalError(c *gin.Context, err error) {
	s.Logger.Error(c.Request.Context(), "Request failed: %v", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error - " + err.Error()})
}

// Package githubapi provides a caller for the GitHub REST API. It
// fetches organization, repository, language and contributor data based
// on the provided configuration, handles authentication with an access
// token when one is configured, and reacts to rate-limit headers.

package githubapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/octoradar/octoradar/cfg"
	"github.com/octoradar/octoradar/internal/limiter"
	"github.com/octoradar/octoradar/pkg/log"
)

// ApiError is returned when GitHub answers with an unexpected status code.
type ApiError struct {
	StatusCode int
	URL        string
}

func (e *ApiError) Error() string {
	return fmt.Sprintf("github api returned status %d for url %s", e.StatusCode, e.URL)
}

type Caller struct {
	Logger      log.Logger
	Config      *cfg.Config
	rateLimiter *limiter.RateLimiter
	client      *http.Client
}

func NewCaller(logger log.Logger, config *cfg.Config) *Caller {
	return &Caller{
		Logger:      logger,
		Config:      config,
		rateLimiter: limiter.NewRateLimiter(config.GithubApi.RequestsPerSecond),
		client:      &http.Client{Timeout: 30 * time.Second},
	}
}

// HandleRateLimit inspects the rate-limit headers of a response and
// reports whether the caller must back off before retrying.
func (c *Caller) HandleRateLimit(ctx context.Context, resp *http.Response) (bool, error) {
	rateRemaining := resp.Header.Get("X-RateLimit-Remaining")

	if resp.StatusCode == http.StatusForbidden && rateRemaining == "0" {
		resetTimeStr := resp.Header.Get("X-RateLimit-Reset")
		resetTimeInt, err := strconv.ParseInt(resetTimeStr, 10, 64)

		if err != nil {
			waitTime := time.Duration(c.Config.GithubApi.RateLimitResetMin) * time.Minute
			c.Logger.Warn(ctx, "Rate limit hit and reset time unknown, waiting %v minutes", c.Config.GithubApi.RateLimitResetMin)
			return true, fmt.Errorf("github rate limit reached, wait %v", waitTime)
		}

		resetTime := time.Unix(resetTimeInt, 0)
		waitTime := time.Until(resetTime)
		if waitTime < 0 {
			waitTime = time.Duration(c.Config.GithubApi.RateLimitResetMin) * time.Minute
		}

		c.Logger.Warn(ctx, "Rate limit hit, need to wait %v until %v",
			waitTime.Round(time.Second), resetTime.Format(time.RFC3339))

		return true, fmt.Errorf("github rate limit reached, reset at: %v", resetTime.Format(time.RFC3339))
	}

	return false, nil
}

// throttle blocks until the client-side limiter admits another request.
func (c *Caller) throttle() {
	delay := time.Duration(c.Config.GithubApi.ThrottleDelayMs) * time.Millisecond
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	for !c.rateLimiter.Allow() {
		time.Sleep(delay)
	}
}

// get performs an authenticated GET against the configured API base URL
// and decodes a 200 response into out. A 204 leaves out untouched.
func (c *Caller) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	c.throttle()

	fullUrl := strings.TrimRight(c.Config.GithubApi.ApiUrl, "/") + path
	if len(query) > 0 {
		fullUrl += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullUrl, nil)
	if err != nil {
		return err
	}

	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if c.Config.GithubApi.AccessToken != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.Config.GithubApi.AccessToken))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("cannot send request to %s: %w", fullUrl, err)
	}
	defer resp.Body.Close()

	isRateLimited, rateLimitErr := c.HandleRateLimit(ctx, resp)
	if isRateLimited {
		return rateLimitErr
	}

	if resp.StatusCode == http.StatusNoContent {
		c.Logger.Warn(ctx, "No content returned from url: %s", fullUrl)
		return nil
	}

	if resp.StatusCode != http.StatusOK {
		return &ApiError{StatusCode: resp.StatusCode, URL: fullUrl}
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// getPaginated walks every page of a list endpoint until a short page
// signals the end of the result set.
func (c *Caller) getPaginated(ctx context.Context, path string, decodePage func([]byte) (int, error)) error {
	perPage := c.Config.GithubApi.PerPage
	if perPage <= 0 {
		perPage = 100
	}

	for page := 1; ; page++ {
		query := url.Values{}
		query.Set("per_page", strconv.Itoa(perPage))
		query.Set("page", strconv.Itoa(page))

		var raw json.RawMessage
		if err := c.get(ctx, path, query, &raw); err != nil {
			return err
		}
		if raw == nil {
			return nil
		}

		count, err := decodePage(raw)
		if err != nil {
			return err
		}
		if count < perPage {
			return nil
		}
	}
}

// Organizations retrieves every organization the authenticated user has
// access to.
func (c *Caller) Organizations(ctx context.Context) ([]OrgResponse, error) {
	var orgs []OrgResponse
	err := c.getPaginated(ctx, "/user/orgs", func(raw []byte) (int, error) {
		var page []OrgResponse
		if err := json.Unmarshal(raw, &page); err != nil {
			return 0, err
		}
		orgs = append(orgs, page...)
		return len(page), nil
	})
	if err != nil {
		return nil, err
	}

	c.Logger.Info(ctx, "Fetched %d organizations from GitHub", len(orgs))
	return orgs, nil
}

// OrgRepositories retrieves every repository of the given organization.
func (c *Caller) OrgRepositories(ctx context.Context, org string) ([]RepoResponse, error) {
	var repos []RepoResponse
	path := fmt.Sprintf("/orgs/%s/repos", org)
	err := c.getPaginated(ctx, path, func(raw []byte) (int, error) {
		var page []RepoResponse
		if err := json.Unmarshal(raw, &page); err != nil {
			return 0, err
		}
		repos = append(repos, page...)
		return len(page), nil
	})
	if err != nil {
		return nil, err
	}

	c.Logger.Info(ctx, "Fetched %d repositories for organization %s", len(repos), org)
	return repos, nil
}

// RepositoryLanguages retrieves the byte counts per language for a
// repository. Errors degrade to a nil map so a single repository cannot
// abort a sync run.
func (c *Caller) RepositoryLanguages(ctx context.Context, org, repo string) (map[string]int64, error) {
	var languages map[string]int64
	path := fmt.Sprintf("/repos/%s/%s/languages", org, repo)
	if err := c.get(ctx, path, nil, &languages); err != nil {
		c.Logger.Error(ctx, "Error while retrieving languages for repository %s/%s: %v", org, repo, err)
		return nil, nil
	}
	return languages, nil
}

// RepositoryContributors retrieves the contributors of a repository.
// A 204 (empty repository) yields an empty slice; other errors degrade
// to nil like RepositoryLanguages.
func (c *Caller) RepositoryContributors(ctx context.Context, org, repo string) ([]ContributorResponse, error) {
	var contributors []ContributorResponse
	path := fmt.Sprintf("/repos/%s/%s/contributors", org, repo)
	if err := c.get(ctx, path, nil, &contributors); err != nil {
		c.Logger.Error(ctx, "Error while retrieving contributors for repository %s/%s: %v", org, repo, err)
		return nil, nil
	}
	return contributors, nil
}

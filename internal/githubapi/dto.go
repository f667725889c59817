// Data transfer objects for the subset of the GitHub REST API the
// daemon consumes.

package githubapi

import "time"

type OrgResponse struct {
	Login       string `json:"login"`
	ID          int64  `json:"id"`
	Description string `json:"description"`
}

type RepoResponse struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	FullName        string    `json:"full_name"`
	CreatedAt       time.Time `json:"created_at"`
	PushedAt        time.Time `json:"pushed_at"`
	Archived        bool      `json:"archived"`
	Disabled        bool      `json:"disabled"`
	OpenIssuesCount int       `json:"open_issues_count"`
	HasIssues       bool      `json:"has_issues"`
	HtmlUrl         string    `json:"html_url"`
	DefaultBranch   string    `json:"default_branch"`
	Language        string    `json:"language"`
	Size            int64     `json:"size"`
}

type ContributorResponse struct {
	Login         string `json:"login"`
	Contributions int    `json:"contributions"`
}

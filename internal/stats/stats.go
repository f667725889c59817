// Package stats folds stored repository documents into the aggregates
// served by the HTTP API.

package stats

import (
	"sort"
	"time"

	"github.com/octoradar/octoradar/internal/model"
)

// ContributorStat is a contributor with contributions summed across the
// repositories of one organization.
type ContributorStat struct {
	Name          string `json:"name"`
	Contributions int    `json:"contributions"`
}

// OrgStats aggregates the repositories of a single organization.
type OrgStats struct {
	Organization    string            `json:"organization"`
	RepoCount       int               `json:"repo_count"`
	ArchivedCount   int               `json:"archived_count"`
	DisabledCount   int               `json:"disabled_count"`
	OpenIssues      int               `json:"open_issues"`
	LanguageBytes   map[string]int64  `json:"language_bytes,omitempty"`
	TopContributors []ContributorStat `json:"top_contributors,omitempty"`
	LatestCommitAt  time.Time         `json:"latest_commit_at"`
	TotalSizeKB     int64             `json:"total_size_kb"`
}

// Summary aggregates the whole fleet.
type Summary struct {
	Organizations int              `json:"organizations"`
	Repositories  int              `json:"repositories"`
	OpenIssues    int              `json:"open_issues"`
	ArchivedCount int              `json:"archived_count"`
	LanguageBytes map[string]int64 `json:"language_bytes,omitempty"`
}

// topContributorsLimit caps how many contributors are reported per
// organization.
const topContributorsLimit = 10

// Aggregate folds repository documents into per-organization stats,
// sorted by organization name.
func Aggregate(repos []model.Repository) []OrgStats {
	byOrg := make(map[string]*OrgStats)
	contributions := make(map[string]map[string]int)

	for _, repo := range repos {
		org := byOrg[repo.Organization]
		if org == nil {
			org = &OrgStats{Organization: repo.Organization}
			byOrg[repo.Organization] = org
			contributions[repo.Organization] = make(map[string]int)
		}

		org.RepoCount++
		if repo.Archived {
			org.ArchivedCount++
		}
		if repo.Disabled {
			org.DisabledCount++
		}
		org.OpenIssues += repo.OpenIssues
		if repo.LatestCommitAt.After(org.LatestCommitAt) {
			org.LatestCommitAt = repo.LatestCommitAt
		}

		for language, bytes := range repo.Languages {
			if org.LanguageBytes == nil {
				org.LanguageBytes = make(map[string]int64)
			}
			org.LanguageBytes[language] += bytes
		}

		for _, contributor := range repo.Contributors {
			contributions[repo.Organization][contributor.Name] += contributor.Contributions
		}

		if len(repo.Size) > 0 {
			// The newest history entry is the current size.
			newest := repo.Size[0]
			for _, entry := range repo.Size[1:] {
				if entry.Timestamp.After(newest.Timestamp) {
					newest = entry
				}
			}
			org.TotalSizeKB += newest.Size
		}
	}

	result := make([]OrgStats, 0, len(byOrg))
	for name, org := range byOrg {
		org.TopContributors = rankContributors(contributions[name])
		result = append(result, *org)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Organization < result[j].Organization
	})
	return result
}

// Summarize folds repository documents into a fleet-wide summary.
func Summarize(repos []model.Repository) Summary {
	summary := Summary{}
	orgs := make(map[string]bool)

	for _, repo := range repos {
		orgs[repo.Organization] = true
		summary.Repositories++
		summary.OpenIssues += repo.OpenIssues
		if repo.Archived {
			summary.ArchivedCount++
		}
		for language, bytes := range repo.Languages {
			if summary.LanguageBytes == nil {
				summary.LanguageBytes = make(map[string]int64)
			}
			summary.LanguageBytes[language] += bytes
		}
	}

	summary.Organizations = len(orgs)
	return summary
}

func rankContributors(totals map[string]int) []ContributorStat {
	if len(totals) == 0 {
		return nil
	}

	ranked := make([]ContributorStat, 0, len(totals))
	for name, count := range totals {
		ranked = append(ranked, ContributorStat{Name: name, Contributions: count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Contributions != ranked[j].Contributions {
			return ranked[i].Contributions > ranked[j].Contributions
		}
		return ranked[i].Name < ranked[j].Name
	})

	if len(ranked) > topContributorsLimit {
		ranked = ranked[:topContributorsLimit]
	}
	return ranked
}

package model

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/octoradar/octoradar/cfg"
	"github.com/octoradar/octoradar/pkg/db"
	"github.com/octoradar/octoradar/pkg/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SizeEntry is one point of the repository size history.
type SizeEntry struct {
	Size      int64     `bson:"size" json:"size"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

// Contributor is a repository contributor with its contribution count.
type Contributor struct {
	Name          string `bson:"name" json:"name"`
	Contributions int    `bson:"contributions" json:"contributions"`
}

// Repository is the document stored in the repositories collection,
// keyed by (organization, name).
type Repository struct {
	Name           string           `bson:"name" json:"name"`
	Organization   string           `bson:"organization" json:"organization"`
	CreatedAt      time.Time        `bson:"created_at" json:"created_at"`
	LatestCommitAt time.Time        `bson:"latest_commit_at" json:"latest_commit_at"`
	Archived       bool             `bson:"archived" json:"archived"`
	Disabled       bool             `bson:"disabled" json:"disabled"`
	OpenIssues     int              `bson:"open_issues" json:"open_issues"`
	HasIssues      bool             `bson:"has_issues" json:"has_issues"`
	URL            string           `bson:"url" json:"url"`
	DefaultBranch  string           `bson:"default_branch" json:"default_branch"`
	MainLanguage   string           `bson:"main_language" json:"main_language"`
	Languages      map[string]int64 `bson:"languages,omitempty" json:"languages,omitempty"`
	Contributors   []Contributor    `bson:"contributors,omitempty" json:"contributors,omitempty"`
	Size           []SizeEntry      `bson:"size" json:"size"`
	LastUpdateInDB time.Time        `bson:"last_update_in_db" json:"last_update_in_db"`
}

// LanguageTotal is one row of the per-language byte aggregation.
type LanguageTotal struct {
	Language string `bson:"_id" json:"language"`
	Bytes    int64  `bson:"bytes" json:"bytes"`
}

// Repos accesses the repositories collection.
type Repos struct {
	Model
}

func NewRepos(config *cfg.Config, logger log.Logger, mongo *db.Mongo) (*Repos, error) {
	return &Repos{
		Model: Model{
			Config: config,
			Logger: logger,
			Mongo:  mongo,
		},
	}, nil
}

func (r *Repos) CollectionName() string {
	if name := r.Config.Mongo.RepositoriesCollection; name != "" {
		return name
	}
	return "repositories"
}

// MergeSizeHistory appends next to the history only when the newest
// stored entry is older than minInterval, so the history grows at most
// one point per configured interval. The history is returned sorted by
// timestamp.
func MergeSizeHistory(history []SizeEntry, next SizeEntry, minInterval time.Duration) []SizeEntry {
	if len(history) == 0 {
		return []SizeEntry{next}
	}

	merged := make([]SizeEntry, len(history))
	copy(merged, history)
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp.Before(merged[j].Timestamp)
	})

	last := merged[len(merged)-1]
	if next.Timestamp.Sub(last.Timestamp) > minInterval {
		merged = append(merged, next)
	}
	return merged
}

func (r *Repos) sizeHistoryInterval() time.Duration {
	days := r.Config.Daemon.SizeHistoryIntervalDays
	if days <= 0 {
		days = 7
	}
	return time.Duration(days) * 24 * time.Hour
}

// Upsert stores the repository document. Derived fields are replaced
// wholesale, except the size history which keeps previously accumulated
// entries and only grows per the configured interval.
func (r *Repos) Upsert(ctx context.Context, doc *Repository) error {
	coll, err := r.collection(r.CollectionName())
	if err != nil {
		return err
	}

	opCtx, cancel := context.WithTimeout(ctx, r.opTimeout())
	defer cancel()

	filter := bson.M{"name": doc.Name, "organization": doc.Organization}

	var existing Repository
	findErr := coll.FindOne(opCtx, filter).Decode(&existing)
	switch {
	case findErr == mongo.ErrNoDocuments:
		// First sighting, the single fresh size entry stands.
	case findErr != nil:
		return fmt.Errorf("failed to look up repository %s/%s: %w", doc.Organization, doc.Name, findErr)
	default:
		if len(doc.Size) > 0 {
			doc.Size = MergeSizeHistory(existing.Size, doc.Size[len(doc.Size)-1], r.sizeHistoryInterval())
		} else {
			doc.Size = existing.Size
		}
	}

	_, err = coll.UpdateOne(opCtx, filter, bson.M{"$set": doc}, options.Update().SetUpsert(true))
	if err != nil {
		r.Logger.Error(ctx, "Failed to upsert repository %s/%s: %v", doc.Organization, doc.Name, err)
		return fmt.Errorf("failed to upsert repository %s/%s: %w", doc.Organization, doc.Name, err)
	}
	return nil
}

// UpsertBatch stores a batch of repository documents. Each document
// goes through Upsert so the size-history merge still applies; the
// per-document round trip is the price of that merge.
func (r *Repos) UpsertBatch(ctx context.Context, docs []Repository) error {
	for i := range docs {
		if err := r.Upsert(ctx, &docs[i]); err != nil {
			return err
		}
	}
	r.Logger.Info(ctx, "Upserted batch of %d repositories", len(docs))
	return nil
}

// FindAll returns the stored repositories, optionally filtered by
// organization.
func (r *Repos) FindAll(ctx context.Context, organization string) ([]Repository, error) {
	coll, err := r.collection(r.CollectionName())
	if err != nil {
		return nil, err
	}

	opCtx, cancel := context.WithTimeout(ctx, r.opTimeout())
	defer cancel()

	filter := bson.M{}
	if organization != "" {
		filter["organization"] = organization
	}

	cursor, err := coll.Find(opCtx, filter, options.Find().SetSort(bson.D{
		{Key: "organization", Value: 1},
		{Key: "name", Value: 1},
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to query repositories: %w", err)
	}
	defer cursor.Close(opCtx)

	var repos []Repository
	if err := cursor.All(opCtx, &repos); err != nil {
		return nil, fmt.Errorf("failed to decode repositories: %w", err)
	}
	return repos, nil
}

// LanguageTotals aggregates the byte counts of every language across
// all stored repositories, largest first.
func (r *Repos) LanguageTotals(ctx context.Context) ([]LanguageTotal, error) {
	coll, err := r.collection(r.CollectionName())
	if err != nil {
		return nil, err
	}

	opCtx, cancel := context.WithTimeout(ctx, r.opTimeout())
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$project", Value: bson.M{"langs": bson.M{"$objectToArray": "$languages"}}}},
		{{Key: "$unwind", Value: "$langs"}},
		{{Key: "$group", Value: bson.M{"_id": "$langs.k", "bytes": bson.M{"$sum": "$langs.v"}}}},
		{{Key: "$sort", Value: bson.M{"bytes": -1}}},
	}

	cursor, err := coll.Aggregate(opCtx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate language totals: %w", err)
	}
	defer cursor.Close(opCtx)

	var totals []LanguageTotal
	if err := cursor.All(opCtx, &totals); err != nil {
		return nil, fmt.Errorf("failed to decode language totals: %w", err)
	}
	return totals, nil
}

package model

import (
	"context"
	"fmt"
	"time"

	"github.com/octoradar/octoradar/cfg"
	"github.com/octoradar/octoradar/pkg/db"
	"github.com/octoradar/octoradar/pkg/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Organization is the document stored in the organizations collection.
type Organization struct {
	Name        string    `bson:"name" json:"name"`
	Description string    `bson:"description" json:"description"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at" json:"updated_at"`
}

// Orgs accesses the organizations collection.
type Orgs struct {
	Model
}

func NewOrgs(config *cfg.Config, logger log.Logger, mongo *db.Mongo) (*Orgs, error) {
	return &Orgs{
		Model: Model{
			Config: config,
			Logger: logger,
			Mongo:  mongo,
		},
	}, nil
}

func (o *Orgs) CollectionName() string {
	if name := o.Config.Mongo.OrganizationsCollection; name != "" {
		return name
	}
	return "organizations"
}

// Upsert inserts the organization or refreshes its description.
func (o *Orgs) Upsert(ctx context.Context, name, description string) error {
	coll, err := o.collection(o.CollectionName())
	if err != nil {
		return err
	}

	opCtx, cancel := context.WithTimeout(ctx, o.opTimeout())
	defer cancel()

	now := time.Now()
	update := bson.M{
		"$set": bson.M{
			"description": description,
			"updated_at":  now,
		},
		"$setOnInsert": bson.M{
			"name":       name,
			"created_at": now,
		},
	}

	_, err = coll.UpdateOne(opCtx, bson.M{"name": name}, update, options.Update().SetUpsert(true))
	if err != nil {
		o.Logger.Error(ctx, "Failed to upsert organization %s: %v", name, err)
		return fmt.Errorf("failed to upsert organization %s: %w", name, err)
	}
	return nil
}

func (o *Orgs) FindAll(ctx context.Context) ([]Organization, error) {
	return o.find(ctx, bson.M{})
}

// FindNotIn returns the organizations stored in the database whose name
// is not in the given list. Used to detect organizations that no longer
// exist on GitHub.
func (o *Orgs) FindNotIn(ctx context.Context, names []string) ([]Organization, error) {
	return o.find(ctx, bson.M{"name": bson.M{"$nin": names}})
}

func (o *Orgs) find(ctx context.Context, filter bson.M) ([]Organization, error) {
	coll, err := o.collection(o.CollectionName())
	if err != nil {
		return nil, err
	}

	opCtx, cancel := context.WithTimeout(ctx, o.opTimeout())
	defer cancel()

	cursor, err := coll.Find(opCtx, filter, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to query organizations: %w", err)
	}
	defer cursor.Close(opCtx)

	var orgs []Organization
	if err := cursor.All(opCtx, &orgs); err != nil {
		return nil, fmt.Errorf("failed to decode organizations: %w", err)
	}
	return orgs, nil
}

// DeleteMany removes the named organizations and returns how many
// documents were deleted.
func (o *Orgs) DeleteMany(ctx context.Context, names []string) (int64, error) {
	if len(names) == 0 {
		return 0, nil
	}

	coll, err := o.collection(o.CollectionName())
	if err != nil {
		return 0, err
	}

	opCtx, cancel := context.WithTimeout(ctx, o.opTimeout())
	defer cancel()

	result, err := coll.DeleteMany(opCtx, bson.M{"name": bson.M{"$in": names}})
	if err != nil {
		return 0, fmt.Errorf("failed to delete organizations: %w", err)
	}
	return result.DeletedCount, nil
}

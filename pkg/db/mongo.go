package db

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/octoradar/octoradar/cfg"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type Mongo struct {
	Config  *cfg.Config
	once    sync.Once
	client  *mongo.Client
	initErr error
}

func NewMongo(config *cfg.Config) (*Mongo, error) {
	return &Mongo{
		Config: config,
	}, nil
}

func (m *Mongo) URI() string {
	return fmt.Sprintf("mongodb://%s:%s", m.Config.Mongo.Host, m.Config.Mongo.Port)
}

func (m *Mongo) Client() (*mongo.Client, error) {
	m.once.Do(func() {
		connectTimeout := time.Duration(m.Config.Mongo.ConnectTimeoutSec) * time.Second
		if connectTimeout <= 0 {
			connectTimeout = 10 * time.Second
		}

		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()

		opts := options.Client().
			ApplyURI(m.URI()).
			SetConnectTimeout(connectTimeout).
			SetAppName(m.Config.App.Name)

		var client *mongo.Client
		client, m.initErr = mongo.Connect(ctx, opts)
		if m.initErr != nil {
			return
		}

		m.client = client
	})
	return m.client, m.initErr
}

// Database returns a handle to the configured database, connecting lazily
// on first use.
func (m *Mongo) Database() (*mongo.Database, error) {
	client, err := m.Client()
	if err != nil {
		return nil, err
	}
	return client.Database(m.Config.Mongo.Database), nil
}

func (m *Mongo) Ping() error {
	client, err := m.Client()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return client.Ping(ctx, readpref.Primary())
}

func (m *Mongo) Close() error {
	if m.client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return m.client.Disconnect(ctx)
	}
	return nil
}

// EnsureIndexes creates the unique indexes the upsert paths rely on:
// organizations by name, repositories by (organization, name).
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	database, err := m.Database()
	if err != nil {
		return err
	}

	orgIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := database.Collection(m.Config.Mongo.OrganizationsCollection).Indexes().CreateOne(ctx, orgIndex); err != nil {
		return fmt.Errorf("failed to create organizations index: %w", err)
	}

	repoIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "organization", Value: 1}, {Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := database.Collection(m.Config.Mongo.RepositoriesCollection).Indexes().CreateOne(ctx, repoIndex); err != nil {
		return fmt.Errorf("failed to create repositories index: %w", err)
	}

	return nil
}

package model

import (
	"time"

	"github.com/octoradar/octoradar/cfg"
	"github.com/octoradar/octoradar/pkg/db"
	"github.com/octoradar/octoradar/pkg/log"
	"go.mongodb.org/mongo-driver/mongo"
)

// Model carries the shared dependencies of every collection accessor.
type Model struct {
	Config *cfg.Config
	Logger log.Logger
	Mongo  *db.Mongo
}

func (m *Model) collection(name string) (*mongo.Collection, error) {
	database, err := m.Mongo.Database()
	if err != nil {
		return nil, err
	}
	return database.Collection(name), nil
}

func (m *Model) opTimeout() time.Duration {
	sec := m.Config.Mongo.OperationTimeoutSec
	if sec <= 0 {
		sec = 30
	}
	return time.Duration(sec) * time.Second
}

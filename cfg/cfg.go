package cfg

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

type (
	App struct {
		Name    string
		Version string
	}

	Mongo struct {
		Host                    string `validate:"required"`
		Port                    string `validate:"required"`
		Database                string `validate:"required"`
		OrganizationsCollection string
		RepositoriesCollection  string
		ConnectTimeoutSec       int
		OperationTimeoutSec     int
	}

	GithubApi struct {
		AccessToken       string
		ApiUrl            string `validate:"required,url"`
		PerPage           int    `validate:"min=1,max=100"`
		RequestsPerSecond int    `validate:"min=1"`
		ThrottleDelayMs   int
		RateLimitResetMin int
	}

	Daemon struct {
		IntervalMin             int `validate:"min=1"`
		FetchOrganizations      bool
		SizeHistoryIntervalDays int `validate:"min=1"`
		MaxConsecutiveErrors    int `validate:"min=1"`
		RetryMaxElapsedSec      int
		SyncerVersion           string `validate:"oneof=v1 v2"`
	}

	Kafka struct {
		Brokers        []string
		TopicOrg       string
		TopicRepo      string
		ConsumerGroup  string
		BatchSize      int
		BatchTimeoutMs int
	}

	Server struct {
		Host string
		Port string
	}

	Log struct {
		Level string `validate:"oneof=debug info warn error critical"`
	}
)

type Config struct {
	App       App
	Mongo     Mongo
	GithubApi GithubApi
	Daemon    Daemon
	Kafka     Kafka
	Server    Server
	Log       Log
}

// Validate checks the loaded configuration against the struct tags
// before any component is built from it.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

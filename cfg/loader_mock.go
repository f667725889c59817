package cfg

type MockLoader struct{}

func NewMockLoader() (*MockLoader, error) {
	return &MockLoader{}, nil
}

func (ml *MockLoader) Load() (*Config, error) {
	return &Config{
		// App
		App: App{
			Name:    "octoradar-daemon",
			Version: "0.0.1",
		},

		// Mongo
		Mongo: Mongo{
			Host:                    "127.0.0.1",
			Port:                    "27017",
			Database:                "octoradar",
			OrganizationsCollection: "organizations",
			RepositoriesCollection:  "repositories",
			ConnectTimeoutSec:       10,
			OperationTimeoutSec:     30,
		},

		// GithubApi
		GithubApi: GithubApi{
			AccessToken:       "",
			ApiUrl:            "https://api.github.com",
			PerPage:           100,
			RequestsPerSecond: 10,
			ThrottleDelayMs:   200,
			RateLimitResetMin: 5,
		},

		// Daemon
		Daemon: Daemon{
			IntervalMin:             60,
			FetchOrganizations:      true,
			SizeHistoryIntervalDays: 7,
			MaxConsecutiveErrors:    10,
			RetryMaxElapsedSec:      120,
			SyncerVersion:           "v1",
		},

		// Kafka
		Kafka: Kafka{
			Brokers:        []string{"127.0.0.1:9092"},
			TopicOrg:       "octoradar.organizations",
			TopicRepo:      "octoradar.repositories",
			ConsumerGroup:  "octoradar-consumer-group",
			BatchSize:      100,
			BatchTimeoutMs: 5000,
		},

		// Server
		Server: Server{
			Host: "0.0.0.0",
			Port: "8080",
		},

		// Log
		Log: Log{
			Level: "info",
		},
	}, nil
}

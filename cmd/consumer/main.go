package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/octoradar/octoradar/cfg"
	"github.com/octoradar/octoradar/internal/model"
	"github.com/octoradar/octoradar/pkg/db"
	"github.com/octoradar/octoradar/pkg/kafka"
	"github.com/octoradar/octoradar/pkg/log"
)

func main() {
	// Parse command line arguments
	consumerType := flag.String("type", "", "Type of consumer to run (org, repo)")
	flag.Parse()

	if *consumerType == "" {
		fmt.Println("Please specify a consumer type: -type=[org|repo]")
		os.Exit(1)
	}

	// Load configuration
	viperLoader, _ := cfg.NewViperLoader()
	loader, _ := cfg.NewLoader(viperLoader)
	config, err := loader.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger, _ := log.NewCslLoggerWithLevel(config.Log.Level)

	// Setup database
	mongo, _ := db.NewMongo(config)

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create models
	orgModel, _ := model.NewOrgs(config, logger, mongo)
	repoModel, _ := model.NewRepos(config, logger, mongo)

	// Setup signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	switch *consumerType {
	case "org":
		startOrgConsumer(ctx, config, logger, orgModel)
	case "repo":
		startRepoConsumer(ctx, config, logger, repoModel)
	default:
		logger.Error(ctx, "Unknown consumer type: %s", *consumerType)
		os.Exit(1)
	}

	// Wait for termination signal
	<-sigCh
	logger.Info(ctx, "Received shutdown signal, gracefully shutting down...")
	cancel()
}

func startOrgConsumer(ctx context.Context, config *cfg.Config, logger log.Logger, orgModel *model.Orgs) {
	consumer := kafka.NewConsumer(config, logger, config.Kafka.TopicOrg, config.Kafka.ConsumerGroup+"-org")

	consumer.RegisterHandler("org", func(data []byte) error {
		var orgMsg model.OrgMessage
		if err := json.Unmarshal(data, &orgMsg); err != nil {
			return fmt.Errorf("failed to unmarshal org message: %w", err)
		}
		if err := orgModel.Upsert(ctx, orgMsg.Name, orgMsg.Description); err != nil {
			return fmt.Errorf("failed to save organization to database: %w", err)
		}
		return nil
	})

	go func() {
		if err := consumer.Start(ctx); err != nil {
			logger.Error(ctx, "Org consumer error: %v", err)
		}
	}()

	logger.Info(ctx, "Organization consumer started successfully")
}

func startRepoConsumer(ctx context.Context, config *cfg.Config, logger log.Logger, repoModel *model.Repos) {
	consumer := kafka.NewConsumer(config, logger, config.Kafka.TopicRepo, config.Kafka.ConsumerGroup+"-repo")

	batchSize := config.Kafka.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	batchTimeout := time.Duration(config.Kafka.BatchTimeoutMs) * time.Millisecond
	if batchTimeout <= 0 {
		batchTimeout = 5 * time.Second
	}

	// Channel to collect messages for batch processing
	messages := make(chan model.RepoMessage, batchSize*2)

	go processBatchedRepos(ctx, messages, batchSize, batchTimeout, logger, repoModel)

	consumer.RegisterHandler("repo", func(data []byte) error {
		var repoMsg model.RepoMessage
		if err := json.Unmarshal(data, &repoMsg); err != nil {
			return fmt.Errorf("failed to unmarshal repo message: %w", err)
		}

		select {
		case messages <- repoMsg:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})

	go func() {
		if err := consumer.Start(ctx); err != nil {
			logger.Error(ctx, "Repo consumer error: %v", err)
		}
	}()

	logger.Info(ctx, "Repository consumer started successfully")
}

// processBatchedRepos groups incoming repository snapshots into batches
// and flushes them on size or timeout.
func processBatchedRepos(ctx context.Context, messages <-chan model.RepoMessage, batchSize int,
	batchTimeout time.Duration, logger log.Logger, repoModel *model.Repos) {

	var batch []model.RepoMessage
	timer := time.NewTimer(batchTimeout)

	for {
		select {
		case <-ctx.Done():
			// Flush remaining messages before exiting
			if len(batch) > 0 {
				flushBatch(ctx, batch, logger, repoModel)
			}
			return

		case msg := <-messages:
			batch = append(batch, msg)
			if len(batch) >= batchSize {
				flushBatch(ctx, batch, logger, repoModel)
				batch = nil
				timer.Reset(batchTimeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				flushBatch(ctx, batch, logger, repoModel)
				batch = nil
			}
			timer.Reset(batchTimeout)
		}
	}
}

func flushBatch(ctx context.Context, batch []model.RepoMessage, logger log.Logger, repoModel *model.Repos) {
	if len(batch) == 0 {
		return
	}

	logger.Info(ctx, "Processing batch of %d repositories", len(batch))

	docs := make([]model.Repository, 0, len(batch))
	for _, msg := range batch {
		docs = append(docs, msg.Repository)
	}

	if err := repoModel.UpsertBatch(ctx, docs); err != nil {
		logger.Error(ctx, "Failed to save batch of repositories: %v", err)
	}
}

package config

import (
	"context"
	"fmt"

	"github.com/stagehand-ai/stagehand/pkg/queue"
	"github.com/stagehand-ai/stagehand/pkg/storage"
)

// NewStorageProvider builds the storage provider named by the config
func NewStorageProvider(cfg StorageConfig) (storage.Provider, error) {
	switch cfg.Type {
	case "", "memory":
		return storage.NewMemoryProvider(), nil
	case "postgres":
		return storage.NewPostgreSQLProvider(storage.PostgreSQLProviderConfig{
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			Database: cfg.Postgres.Database,
			SSLMode:  cfg.Postgres.SSLMode,
		})
	case "dynamodb":
		return storage.NewDynamoDBProvider(storage.DynamoDBProviderConfig{
			Region:      cfg.DynamoDB.Region,
			Endpoint:    cfg.DynamoDB.Endpoint,
			TablePrefix: cfg.DynamoDB.TablePrefix,
		})
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// NewJobQueue builds the job queue named by the config
func NewJobQueue(ctx context.Context, cfg QueueConfig) (queue.JobQueue, error) {
	switch cfg.Type {
	case "", "memory":
		return queue.NewMemoryQueue(0), nil
	case "redis":
		return queue.NewRedisQueue(ctx, queue.RedisQueueOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	default:
		return nil, fmt.Errorf("unknown queue type %q", cfg.Type)
	}
}

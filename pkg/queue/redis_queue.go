package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// RedisQueue is a redis-backed JobQueue. Dedupe claims are SETNX keys with
// the dedupe window as TTL, so they work across processes.
type RedisQueue struct {
	client    *redis.Client
	listKey   string
	dedupeKey string
	window    time.Duration
	now       func() time.Time
}

// RedisQueueOptions configure a redis queue
type RedisQueueOptions struct {
	// Addr is the redis host:port
	Addr string

	// Password authenticates when non-empty
	Password string

	// DB selects the redis database
	DB int

	// Namespace prefixes all keys; defaults to "stagehand"
	Namespace string
}

// NewRedisQueue creates a redis queue and verifies connectivity
func NewRedisQueue(ctx context.Context, opts RedisQueueOptions) (*RedisQueue, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "stagehand"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisQueue{
		client:    client,
		listKey:   namespace + ":jobs",
		dedupeKey: namespace + ":dedupe:",
		window:    DefaultDedupeWindow,
		now:       time.Now,
	}, nil
}

// Enqueue implements JobQueue
func (q *RedisQueue) Enqueue(ctx context.Context, jobType string, payload map[string]interface{}, opts EnqueueOptions) (Job, bool, error) {
	if opts.IdempotencyKey != "" {
		claimed, err := q.client.SetNX(ctx, q.dedupeKey+opts.IdempotencyKey, "1", q.window).Result()
		if err != nil {
			return Job{}, false, fmt.Errorf("failed to claim idempotency key: %w", err)
		}
		if !claimed {
			return Job{}, true, nil
		}
	}

	job := Job{
		ID:             uuid.New().String(),
		Type:           jobType,
		Payload:        payload,
		IdempotencyKey: opts.IdempotencyKey,
		MaxAttempts:    opts.MaxAttempts,
		CreatedAt:      q.now().UTC(),
	}

	encoded, err := json.Marshal(job)
	if err != nil {
		return Job{}, false, fmt.Errorf("failed to encode job: %w", err)
	}
	if err := q.client.LPush(ctx, q.listKey, encoded).Err(); err != nil {
		return Job{}, false, fmt.Errorf("failed to enqueue job: %w", err)
	}

	return job, false, nil
}

// Dequeue implements JobQueue. It polls with a short blocking pop so context
// cancellation is honored promptly.
func (q *RedisQueue) Dequeue(ctx context.Context) (Job, error) {
	for {
		result, err := q.client.BRPop(ctx, time.Second, q.listKey).Result()
		if err == redis.Nil {
			select {
			case <-ctx.Done():
				return Job{}, ctx.Err()
			default:
				continue
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return Job{}, ctx.Err()
			}
			return Job{}, fmt.Errorf("failed to dequeue job: %w", err)
		}

		// BRPop returns [key, value]
		var job Job
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			return Job{}, fmt.Errorf("failed to decode job: %w", err)
		}
		return job, nil
	}
}

// Close implements JobQueue
func (q *RedisQueue) Close() error {
	return q.client.Close()
}

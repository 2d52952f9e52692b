// Package queue implements the background job queue used by workflow
// triggers, with idempotent enqueueing so one trigger firing twice yields
// one job.
package queue

import (
	"context"
	"errors"
	"time"
)

// ErrQueueClosed is returned when enqueueing to or dequeueing from a closed
// queue
var ErrQueueClosed = errors.New("job queue closed")

// DefaultDedupeWindow is how long an idempotency key suppresses duplicates
const DefaultDedupeWindow = 2 * time.Minute

// Job is one queued unit of work
type Job struct {
	// ID identifies the job
	ID string `json:"id"`

	// Type routes the job to a handler, e.g. "workflow_run"
	Type string `json:"type"`

	// Payload carries the handler input
	Payload map[string]interface{} `json:"payload"`

	// IdempotencyKey deduplicates enqueues within the dedupe window
	IdempotencyKey string `json:"idempotency_key,omitempty"`

	// MaxAttempts bounds handler retries; zero means one attempt
	MaxAttempts int `json:"max_attempts,omitempty"`

	// Attempts counts handler invocations so far
	Attempts int `json:"attempts"`

	// CreatedAt is when the job was first enqueued
	CreatedAt time.Time `json:"created_at"`
}

// EnqueueOptions are the optional enqueue parameters
type EnqueueOptions struct {
	// IdempotencyKey suppresses a duplicate enqueue within the dedupe
	// window when non-empty
	IdempotencyKey string

	// MaxAttempts bounds handler retries
	MaxAttempts int
}

// JobQueue is the queue contract. Enqueue reports deduped=true, with the
// zero Job, when the idempotency key was already claimed.
type JobQueue interface {
	// Enqueue adds a job
	Enqueue(ctx context.Context, jobType string, payload map[string]interface{}, opts EnqueueOptions) (Job, bool, error)

	// Dequeue blocks until a job is available or the context ends
	Dequeue(ctx context.Context) (Job, error)

	// Close stops the queue
	Close() error
}

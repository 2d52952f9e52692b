package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryQueue is an in-process JobQueue for single-node deployments and
// tests
type MemoryQueue struct {
	mu      sync.Mutex
	jobs    chan Job
	claimed map[string]time.Time
	window  time.Duration
	closed  bool
	now     func() time.Time
}

// NewMemoryQueue creates a memory queue with the default dedupe window
func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 256
	}
	return &MemoryQueue{
		jobs:    make(chan Job, capacity),
		claimed: make(map[string]time.Time),
		window:  DefaultDedupeWindow,
		now:     time.Now,
	}
}

// Enqueue implements JobQueue
func (q *MemoryQueue) Enqueue(ctx context.Context, jobType string, payload map[string]interface{}, opts EnqueueOptions) (Job, bool, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return Job{}, false, ErrQueueClosed
	}

	now := q.now()
	if opts.IdempotencyKey != "" {
		// Expired claims are pruned lazily on enqueue
		for key, claimedAt := range q.claimed {
			if now.Sub(claimedAt) > q.window {
				delete(q.claimed, key)
			}
		}
		if _, dup := q.claimed[opts.IdempotencyKey]; dup {
			q.mu.Unlock()
			return Job{}, true, nil
		}
		q.claimed[opts.IdempotencyKey] = now
	}
	q.mu.Unlock()

	job := Job{
		ID:             uuid.New().String(),
		Type:           jobType,
		Payload:        payload,
		IdempotencyKey: opts.IdempotencyKey,
		MaxAttempts:    opts.MaxAttempts,
		CreatedAt:      now.UTC(),
	}

	select {
	case q.jobs <- job:
		return job, false, nil
	case <-ctx.Done():
		return Job{}, false, ctx.Err()
	}
}

// Dequeue implements JobQueue
func (q *MemoryQueue) Dequeue(ctx context.Context) (Job, error) {
	select {
	case job, ok := <-q.jobs:
		if !ok {
			return Job{}, ErrQueueClosed
		}
		return job, nil
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}
}

// Close implements JobQueue
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	return nil
}

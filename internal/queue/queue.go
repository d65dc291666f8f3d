package queue

import (
	"context"
	"time"
)

// Package queue buffers execution log entries between the request path and
// the batch writer so that logging never blocks a response.
//
// Two backends are available:
//
//  1. Memory queue (channel-based): no persistence, no external
//     dependencies, suitable for standalone deployments.
//  2. Redis queue (list-based): survives restarts and supports multiple
//     engine replicas draining the same stream.
//
// Entries that repeatedly fail to persist are parked in a dead-letter queue
// for operator inspection instead of being dropped.

// Queue is the transport between producers and the batch worker.
type Queue interface {
	// Enqueue adds an entry to the queue.
	Enqueue(ctx context.Context, item interface{}) error

	// Dequeue retrieves up to maxItems entries, blocking until at least
	// one is available or the context is cancelled.
	Dequeue(ctx context.Context, maxItems int) ([]interface{}, error)

	// DequeueWithTimeout retrieves up to maxItems entries, returning an
	// empty slice if none arrive before the timeout.
	DequeueWithTimeout(ctx context.Context, maxItems int, timeout time.Duration) ([]interface{}, error)

	// Length returns the current queue depth.
	Length(ctx context.Context) (int, error)

	// Close shuts down the queue.
	Close() error
}

// DeadLetterQueue holds entries the worker gave up on.
type DeadLetterQueue interface {
	// Add parks a failed entry together with its last error.
	Add(ctx context.Context, item interface{}, err error) error

	// List retrieves parked entries.
	List(ctx context.Context, maxItems int) ([]DeadLetterItem, error)

	// Remove deletes a parked entry after it has been handled.
	Remove(ctx context.Context, id string) error

	// Close shuts down the dead letter queue.
	Close() error
}

// DeadLetterItem is one parked entry.
type DeadLetterItem struct {
	ID        string
	Item      interface{}
	Error     string
	Timestamp time.Time
	Retries   int
}

// Config holds queue configuration.
type Config struct {
	// BatchSize is the maximum number of entries handed to the worker at once.
	BatchSize int

	// BatchTimeout is how long the worker waits before flushing a partial batch.
	BatchTimeout time.Duration

	// MaxRetries is how many times a failed batch is retried before the DLQ.
	MaxRetries int

	// RetryBackoff is the initial backoff between batch retries.
	RetryBackoff time.Duration

	// UseRedis selects the Redis backend over the in-memory one.
	UseRedis bool

	// RedisAddr, RedisPassword and RedisDB configure the Redis backend.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// QueueName keys the Redis list and its dead-letter hash.
	QueueName string
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig(queueName string) *Config {
	return &Config{
		BatchSize:    100,
		BatchTimeout: 5 * time.Second,
		MaxRetries:   3,
		RetryBackoff: 1 * time.Second,
		UseRedis:     false,
		QueueName:    queueName,
	}
}

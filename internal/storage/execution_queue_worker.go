package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"reply_engine/internal/archive"
	"reply_engine/internal/models"
	"reply_engine/internal/queue"
	"reply_engine/internal/utils"
)

// ExecutionRecorder persists execution log entries. Satisfied by
// ExecutionRepository; narrowed to an interface so the worker is testable
// without a database.
type ExecutionRecorder interface {
	Create(ctx context.Context, entry *models.ExecutionLog) error
	CreateBatch(ctx context.Context, entries []*models.ExecutionLog) error
}

// ExecutionQueueWorker drains the execution log queue and persists entries
// in batches, keeping logging off the response path. Batches that fail are
// retried per entry with exponential backoff; entries that still fail are
// parked in the dead-letter queue. Persisted batches are optionally
// forwarded to the S3 archive.
type ExecutionQueueWorker struct {
	queue       queue.Queue
	dlq         queue.DeadLetterQueue
	recorder    ExecutionRecorder
	sink        archive.Sink
	config      *queue.Config
	stopChan    chan struct{}
	stoppedChan chan struct{}
}

// NewExecutionQueueWorker creates an execution log worker. sink may be nil
// when archiving is disabled.
func NewExecutionQueueWorker(q queue.Queue, dlq queue.DeadLetterQueue, recorder ExecutionRecorder, sink archive.Sink, config *queue.Config) *ExecutionQueueWorker {
	if config == nil {
		config = queue.DefaultConfig("execution")
	}

	return &ExecutionQueueWorker{
		queue:       q,
		dlq:         dlq,
		recorder:    recorder,
		sink:        sink,
		config:      config,
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}
}

// Start starts the worker goroutine
func (w *ExecutionQueueWorker) Start(ctx context.Context) {
	go w.run(ctx)
}

// Stop gracefully stops the worker
func (w *ExecutionQueueWorker) Stop() error {
	close(w.stopChan)
	<-w.stoppedChan
	return nil
}

// Record enqueues an execution log entry for asynchronous persistence. This
// is the engine's ExecutionSink.
func (w *ExecutionQueueWorker) Record(ctx context.Context, entry *models.ExecutionLog) error {
	return w.queue.Enqueue(ctx, entry)
}

func (w *ExecutionQueueWorker) run(ctx context.Context) {
	defer close(w.stoppedChan)

	logger := utils.NewLogger("execlog-worker")

	for {
		select {
		case <-w.stopChan:
			logger.Info("Execution log worker stopping")
			return
		case <-ctx.Done():
			logger.Info("Execution log worker context cancelled")
			return
		default:
			w.processBatch(ctx, logger)
		}
	}
}

func (w *ExecutionQueueWorker) processBatch(ctx context.Context, logger *utils.Logger) {
	items, err := w.queue.DequeueWithTimeout(ctx, w.config.BatchSize, w.config.BatchTimeout)
	if err != nil {
		logger.Error("Failed to dequeue execution logs", "error", err)
		time.Sleep(1 * time.Second)
		return
	}

	if len(items) == 0 {
		return
	}

	logger.Debug("Processing execution log batch", "count", len(items))

	entries := make([]*models.ExecutionLog, 0, len(items))
	for _, item := range items {
		var entry models.ExecutionLog
		if err := w.unmarshalItem(item, &entry); err != nil {
			logger.Error("Failed to unmarshal execution log", "error", err)
			continue
		}
		entries = append(entries, &entry)
	}

	if len(entries) == 0 {
		return
	}

	if err := w.recorder.CreateBatch(ctx, entries); err != nil {
		logger.Error("Failed to insert batch, falling back to individual inserts", "error", err)
		persisted := entries[:0]
		for _, entry := range entries {
			if err := w.processEntry(ctx, entry, logger); err != nil {
				logger.Error("Failed to persist execution log", "error", err)
				continue
			}
			persisted = append(persisted, entry)
		}
		entries = persisted
	}

	w.forwardToArchive(ctx, entries, logger)
}

// processEntry persists a single entry with retries; exhausted entries go to
// the dead-letter queue.
func (w *ExecutionQueueWorker) processEntry(ctx context.Context, entry *models.ExecutionLog, logger *utils.Logger) error {
	var lastErr error
	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := w.config.RetryBackoff * time.Duration(1<<uint(attempt-1))
			logger.Debug("Retrying execution log insert", "attempt", attempt, "backoff", backoff)
			time.Sleep(backoff)
		}

		if err := w.recorder.Create(ctx, entry); err != nil {
			lastErr = err
			logger.Error("Failed to insert execution log", "attempt", attempt, "error", err)
			continue
		}

		return nil
	}

	if w.dlq != nil {
		if err := w.dlq.Add(ctx, entry, lastErr); err != nil {
			logger.Error("Failed to add to dead letter queue", "error", err)
		} else {
			logger.Warn("Execution log moved to DLQ", "id", entry.ID, "error", lastErr)
		}
	}

	return fmt.Errorf("%w: %v", queue.ErrMaxRetriesExceeded, lastErr)
}

// forwardToArchive is best-effort: the database row is the source of truth,
// so archive failures are logged and dropped.
func (w *ExecutionQueueWorker) forwardToArchive(ctx context.Context, entries []*models.ExecutionLog, logger *utils.Logger) {
	if w.sink == nil || len(entries) == 0 {
		return
	}

	if _, err := w.sink.WriteBatch(ctx, entries); err != nil {
		logger.Error("Failed to archive execution log batch", "error", err, "count", len(entries))
	}
}

func (w *ExecutionQueueWorker) unmarshalItem(item interface{}, entry *models.ExecutionLog) error {
	switch v := item.(type) {
	case *models.ExecutionLog:
		*entry = *v
		return nil
	case models.ExecutionLog:
		*entry = v
		return nil
	case []byte:
		return json.Unmarshal(v, entry)
	case json.RawMessage:
		return json.Unmarshal(v, entry)
	default:
		data, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("failed to marshal item: %w", err)
		}
		return json.Unmarshal(data, entry)
	}
}

// GetQueueLength returns the current queue depth
func (w *ExecutionQueueWorker) GetQueueLength(ctx context.Context) (int, error) {
	return w.queue.Length(ctx)
}

// GetDeadLetterItems lists parked entries
func (w *ExecutionQueueWorker) GetDeadLetterItems(ctx context.Context, maxItems int) ([]queue.DeadLetterItem, error) {
	if w.dlq == nil {
		return nil, fmt.Errorf("dead letter queue not configured")
	}
	return w.dlq.List(ctx, maxItems)
}

// RetryDeadLetterItem re-enqueues a parked entry
func (w *ExecutionQueueWorker) RetryDeadLetterItem(ctx context.Context, id string) error {
	if w.dlq == nil {
		return fmt.Errorf("dead letter queue not configured")
	}

	items, err := w.dlq.List(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to list dead letter items: %w", err)
	}

	for _, dlItem := range items {
		if dlItem.ID == id {
			if err := w.queue.Enqueue(ctx, dlItem.Item); err != nil {
				return fmt.Errorf("failed to re-enqueue item: %w", err)
			}
			if err := w.dlq.Remove(ctx, id); err != nil {
				return fmt.Errorf("failed to remove from DLQ: %w", err)
			}
			return nil
		}
	}

	return queue.ErrItemNotFound
}

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"credit_audit/internal/models"
	"credit_audit/internal/queue"
	"credit_audit/internal/utils"
)

// AuditInserter is the slice of the repository the worker needs. The
// store itself never retries (that stays with callers like this one).
type AuditInserter interface {
	Insert(ctx context.Context, record *models.CreditValidationAudit) error
	InsertBatch(ctx context.Context, records []*models.CreditValidationAudit) error
}

// AuditQueueWorker drains the ingest queue and lands audit records in
// batches. A batch goes into a single transaction; when the batch fails
// the worker falls back to per-record inserts with exponential backoff,
// and records that exhaust their retries move to the dead-letter queue.
//
// Records that fail validation skip the retries entirely. Retrying
// cannot fix a malformed record.
type AuditQueueWorker struct {
	queue       queue.Queue
	dlq         queue.DeadLetterQueue
	store       AuditInserter
	config      *queue.Config
	logger      *zap.Logger
	stopChan    chan struct{}
	stoppedChan chan struct{}
}

// NewAuditQueueWorker creates a worker over the given queue and store.
func NewAuditQueueWorker(q queue.Queue, dlq queue.DeadLetterQueue, store AuditInserter, config *queue.Config, logger *zap.Logger) *AuditQueueWorker {
	if config == nil {
		config = queue.DefaultConfig("audit")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AuditQueueWorker{
		queue:       q,
		dlq:         dlq,
		store:       store,
		config:      config,
		logger:      logger.Named("audit-worker"),
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}
}

// Start starts the worker goroutine.
func (w *AuditQueueWorker) Start(ctx context.Context) {
	go w.run(ctx)
}

// Stop stops the worker and waits for the in-flight batch to finish.
func (w *AuditQueueWorker) Stop() error {
	close(w.stopChan)
	<-w.stoppedChan
	return nil
}

// Enqueue buffers one record for the worker.
func (w *AuditQueueWorker) Enqueue(ctx context.Context, record *models.CreditValidationAudit) error {
	return w.queue.Enqueue(ctx, record)
}

func (w *AuditQueueWorker) run(ctx context.Context) {
	defer close(w.stoppedChan)

	for {
		select {
		case <-w.stopChan:
			w.logger.Info("audit worker stopping")
			w.drain(ctx)
			return
		case <-ctx.Done():
			w.logger.Info("audit worker context cancelled")
			return
		default:
			w.processBatch(ctx)
		}
	}
}

// drain empties what is already queued before shutdown so accepted
// records are not lost on a clean exit.
func (w *AuditQueueWorker) drain(ctx context.Context) {
	for {
		length, err := w.queue.Length(ctx)
		if err != nil || length == 0 {
			return
		}
		w.processBatch(ctx)
	}
}

func (w *AuditQueueWorker) processBatch(ctx context.Context) {
	items, err := w.queue.DequeueWithTimeout(ctx, w.config.BatchSize, w.config.BatchTimeout)
	if err != nil {
		if errors.Is(err, queue.ErrQueueClosed) {
			return
		}
		w.logger.Error("failed to dequeue audit records", zap.Error(err))
		time.Sleep(1 * time.Second)
		return
	}

	if len(items) == 0 {
		return
	}

	records := make([]*models.CreditValidationAudit, 0, len(items))
	for _, item := range items {
		var record models.CreditValidationAudit
		if err := w.unmarshalItem(item, &record); err != nil {
			w.logger.Error("failed to unmarshal audit record", zap.Error(err))
			w.deadLetter(ctx, item, err)
			continue
		}
		records = append(records, &record)
	}

	if len(records) == 0 {
		return
	}

	err = w.store.InsertBatch(ctx, records)
	if err == nil {
		w.logger.Debug("inserted audit batch", zap.Int("count", len(records)))
		return
	}
	w.logger.Warn("batch insert failed, falling back to per-record inserts",
		zap.Int("count", len(records)), zap.Error(err))

	for _, record := range records {
		if err := w.processRecord(ctx, record); err != nil {
			w.logger.Error("failed to persist audit record",
				zap.String("transaction_id", record.TransactionID), zap.Error(err))
		}
	}
}

// processRecord inserts one record with retries and exponential backoff.
func (w *AuditQueueWorker) processRecord(ctx context.Context, record *models.CreditValidationAudit) error {
	var lastErr error
	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := w.config.RetryBackoff * time.Duration(1<<uint(attempt-1))
			w.logger.Debug("retrying audit record",
				zap.String("transaction_id", record.TransactionID),
				zap.Int("attempt", attempt), zap.Duration("backoff", backoff))
			time.Sleep(backoff)
		}

		err := w.store.Insert(ctx, record)
		if err == nil {
			return nil
		}
		lastErr = err

		var validationErr *models.ValidationError
		if errors.As(err, &validationErr) || IsConstraintViolation(err) {
			// Malformed record or integrity violation: retrying cannot fix it.
			break
		}
		if !utils.IsRecoverableError(err) {
			// Unknown failure class. Park it in the DLQ for replay
			// instead of burning retries on it.
			break
		}
	}

	w.deadLetter(ctx, record, lastErr)
	return fmt.Errorf("%w: %v", queue.ErrMaxRetriesExceeded, lastErr)
}

func (w *AuditQueueWorker) deadLetter(ctx context.Context, item interface{}, cause error) {
	if w.dlq == nil {
		return
	}
	if err := w.dlq.Add(ctx, item, cause); err != nil {
		w.logger.Error("failed to add audit record to dead letter queue", zap.Error(err))
		return
	}
	w.logger.Warn("audit record moved to DLQ", zap.Error(cause))
}

// unmarshalItem converts a queue item back into an audit record. The
// memory queue carries the struct itself, the Redis queue carries JSON.
func (w *AuditQueueWorker) unmarshalItem(item interface{}, record *models.CreditValidationAudit) error {
	switch v := item.(type) {
	case *models.CreditValidationAudit:
		*record = *v
		return nil
	case models.CreditValidationAudit:
		*record = v
		return nil
	case []byte:
		return json.Unmarshal(v, record)
	case json.RawMessage:
		return json.Unmarshal(v, record)
	case string:
		return json.Unmarshal([]byte(v), record)
	default:
		data, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("failed to marshal queue item: %w", err)
		}
		return json.Unmarshal(data, record)
	}
}

// QueueLength reports the current ingest backlog.
func (w *AuditQueueWorker) QueueLength(ctx context.Context) (int, error) {
	return w.queue.Length(ctx)
}

// DeadLetterItems returns items parked in the dead letter queue.
func (w *AuditQueueWorker) DeadLetterItems(ctx context.Context, maxItems int) ([]queue.DeadLetterItem, error) {
	if w.dlq == nil {
		return nil, fmt.Errorf("dead letter queue not configured")
	}
	return w.dlq.List(ctx, maxItems)
}

// RetryDeadLetterItem puts a dead-lettered record back on the queue.
func (w *AuditQueueWorker) RetryDeadLetterItem(ctx context.Context, id string) error {
	if w.dlq == nil {
		return fmt.Errorf("dead letter queue not configured")
	}

	items, err := w.dlq.List(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to list dead letter items: %w", err)
	}

	for _, dlItem := range items {
		if dlItem.ID != id {
			continue
		}
		if err := w.queue.Enqueue(ctx, dlItem.Item); err != nil {
			return fmt.Errorf("failed to re-enqueue item: %w", err)
		}
		if err := w.dlq.Remove(ctx, id); err != nil {
			return fmt.Errorf("failed to remove from DLQ: %w", err)
		}
		return nil
	}

	return queue.ErrItemNotFound
}

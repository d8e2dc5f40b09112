package queue

import (
	"context"
	"testing"
	"time"
)

// TestQueueDeadLetterFlow walks a record through the full lifecycle: queued,
// batch-dequeued, parked in the DLQ after exhausted retries, replayed, and
// finally drained.
func TestQueueDeadLetterFlow(t *testing.T) {
	config := DefaultConfig("validations")
	config.BatchSize = 5
	config.BatchTimeout = 100 * time.Millisecond

	q := NewMemoryQueue(config)
	dlq := NewMemoryDeadLetterQueue()
	defer q.Close()
	defer dlq.Close()

	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := q.Enqueue(ctx, auditPayload(i)); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	length, err := q.Length(ctx)
	if err != nil {
		t.Fatalf("Length failed: %v", err)
	}
	if length != 10 {
		t.Errorf("Expected queue length 10, got %d", length)
	}

	batch, err := q.Dequeue(ctx, config.BatchSize)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if len(batch) != 5 {
		t.Errorf("Expected batch of 5, got %d", len(batch))
	}

	// The first record of the batch kept failing to insert
	if err := dlq.Add(ctx, batch[0], ErrMaxRetriesExceeded); err != nil {
		t.Fatalf("DLQ Add failed: %v", err)
	}

	batch, err = q.Dequeue(ctx, config.BatchSize)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if len(batch) != 5 {
		t.Errorf("Expected batch of 5, got %d", len(batch))
	}

	length, err = q.Length(ctx)
	if err != nil {
		t.Fatalf("Length failed: %v", err)
	}
	if length != 0 {
		t.Errorf("Expected drained queue, got length %d", length)
	}

	parked, err := dlq.List(ctx, 10)
	if err != nil {
		t.Fatalf("DLQ List failed: %v", err)
	}
	if len(parked) != 1 {
		t.Fatalf("Expected 1 parked record, got %d", len(parked))
	}
	if parked[0].Error != ErrMaxRetriesExceeded.Error() {
		t.Errorf("Expected error %v, got %s", ErrMaxRetriesExceeded, parked[0].Error)
	}

	// Replay: back onto the queue, off the DLQ
	if err := q.Enqueue(ctx, parked[0].Item); err != nil {
		t.Fatalf("Re-enqueue failed: %v", err)
	}
	if err := dlq.Remove(ctx, parked[0].ID); err != nil {
		t.Fatalf("DLQ Remove failed: %v", err)
	}

	parked, err = dlq.List(ctx, 10)
	if err != nil {
		t.Fatalf("DLQ List failed: %v", err)
	}
	if len(parked) != 0 {
		t.Errorf("Expected empty DLQ after replay, got %d items", len(parked))
	}

	batch, err = q.Dequeue(ctx, 1)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if len(batch) != 1 {
		t.Errorf("Expected 1 replayed record, got %d", len(batch))
	}
}

// TestPartialBatchReturnsPromptly checks that a dequeue does not sit out its
// timeout when records are already waiting, full batch or not.
func TestPartialBatchReturnsPromptly(t *testing.T) {
	config := DefaultConfig("validations")
	config.BatchSize = 10
	config.BatchTimeout = 200 * time.Millisecond

	q := NewMemoryQueue(config)
	defer q.Close()

	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := q.Enqueue(ctx, auditPayload(i)); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	start := time.Now()
	items, err := q.DequeueWithTimeout(ctx, config.BatchSize, config.BatchTimeout)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("DequeueWithTimeout failed: %v", err)
	}
	if len(items) != 5 {
		t.Errorf("Expected partial batch of 5, got %d", len(items))
	}
	if elapsed > 50*time.Millisecond {
		t.Errorf("Partial batch should return promptly, took %v", elapsed)
	}

	for i := 0; i < 10; i++ {
		if err := q.Enqueue(ctx, auditPayload(i)); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	start = time.Now()
	items, err = q.Dequeue(ctx, config.BatchSize)
	elapsed = time.Since(start)

	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if len(items) != 10 {
		t.Errorf("Expected full batch of 10, got %d", len(items))
	}
	if elapsed > 50*time.Millisecond {
		t.Errorf("Full batch should return promptly, took %v", elapsed)
	}
}

// TestConcurrentProducerConsumer drives a slow producer against a batching
// consumer, the shape of an ingest burst draining through the worker.
func TestConcurrentProducerConsumer(t *testing.T) {
	config := DefaultConfig("validations")
	config.BatchSize = 20
	q := NewMemoryQueue(config)
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const total = 100
	processed := 0
	done := make(chan struct{})

	go func() {
		for i := 0; i < total; i++ {
			_ = q.Enqueue(ctx, auditPayload(i))
			time.Sleep(time.Millisecond)
		}
	}()

	go func() {
		for processed < total {
			items, err := q.DequeueWithTimeout(ctx, config.BatchSize, 50*time.Millisecond)
			if err != nil {
				continue
			}
			processed += len(items)
		}
		close(done)
	}()

	select {
	case <-done:
		if processed != total {
			t.Errorf("Expected %d records processed, got %d", total, processed)
		}
	case <-time.After(5 * time.Second):
		t.Errorf("Timed out after processing %d/%d records", processed, total)
	}
}

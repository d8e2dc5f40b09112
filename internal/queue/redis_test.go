package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func redisTestConfig(t *testing.T, name string) *Config {
	t.Helper()

	mr := miniredis.RunT(t)
	config := DefaultConfig(name)
	config.UseRedis = true
	config.RedisAddr = mr.Addr()
	return config
}

func TestRedisQueue_EnqueueDequeue(t *testing.T) {
	config := redisTestConfig(t, "validations")

	q, err := NewRedisQueue(config)
	if err != nil {
		t.Fatalf("NewRedisQueue failed: %v", err)
	}
	defer q.Close()

	ctx := context.Background()

	record := map[string]string{"transaction_id": "txn-001", "model_version": "claude-sonnet-4"}
	if err := q.Enqueue(ctx, record); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	items, err := q.Dequeue(ctx, 1)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}

	if len(items) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(items))
	}
}

func TestRedisQueue_BatchDequeue(t *testing.T) {
	config := redisTestConfig(t, "validations")
	config.BatchSize = 5

	q, err := NewRedisQueue(config)
	if err != nil {
		t.Fatalf("NewRedisQueue failed: %v", err)
	}
	defer q.Close()

	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := q.Enqueue(ctx, map[string]int{"attempt": i}); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	length, err := q.Length(ctx)
	if err != nil {
		t.Fatalf("Length failed: %v", err)
	}
	if length != 10 {
		t.Errorf("Expected length 10, got %d", length)
	}

	items, err := q.Dequeue(ctx, 5)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if len(items) != 5 {
		t.Errorf("Expected 5 items, got %d", len(items))
	}

	length, err = q.Length(ctx)
	if err != nil {
		t.Fatalf("Length failed: %v", err)
	}
	if length != 5 {
		t.Errorf("Expected length 5 after first dequeue, got %d", length)
	}
}

func TestRedisQueue_DequeueWithTimeout(t *testing.T) {
	config := redisTestConfig(t, "validations")

	q, err := NewRedisQueue(config)
	if err != nil {
		t.Fatalf("NewRedisQueue failed: %v", err)
	}
	defer q.Close()

	ctx := context.Background()

	// Nothing queued: returns empty after the timeout, not an error
	items, err := q.DequeueWithTimeout(ctx, 1, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("DequeueWithTimeout failed: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("Expected 0 items on timeout, got %d", len(items))
	}

	if err := q.Enqueue(ctx, map[string]string{"transaction_id": "txn-002"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	items, err = q.DequeueWithTimeout(ctx, 1, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("DequeueWithTimeout failed: %v", err)
	}
	if len(items) != 1 {
		t.Errorf("Expected 1 item, got %d", len(items))
	}
}

func TestRedisQueue_SurvivesReconnect(t *testing.T) {
	config := redisTestConfig(t, "validations")

	ctx := context.Background()

	// Queue records, then drop the connection
	q1, err := NewRedisQueue(config)
	if err != nil {
		t.Fatalf("NewRedisQueue failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		if err := q1.Enqueue(ctx, map[string]int{"attempt": i}); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	if err := q1.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// A fresh instance picks the backlog up where it was left
	q2, err := NewRedisQueue(config)
	if err != nil {
		t.Fatalf("NewRedisQueue failed: %v", err)
	}
	defer q2.Close()

	length, err := q2.Length(ctx)
	if err != nil {
		t.Fatalf("Length failed: %v", err)
	}
	if length != 5 {
		t.Errorf("Expected 5 items after reconnect, got %d", length)
	}

	items, err := q2.Dequeue(ctx, 10)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if len(items) != 5 {
		t.Errorf("Expected 5 items, got %d", len(items))
	}
}

func TestRedisDeadLetterQueue_AddList(t *testing.T) {
	config := redisTestConfig(t, "validations")

	dlq, err := NewRedisDeadLetterQueue(config)
	if err != nil {
		t.Fatalf("NewRedisDeadLetterQueue failed: %v", err)
	}
	defer dlq.Close()

	ctx := context.Background()

	rejected := map[string]string{"transaction_id": "txn-010", "resumen": "oversized"}
	if err := dlq.Add(ctx, rejected, ErrMaxRetriesExceeded); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	unreachable := map[string]string{"transaction_id": "txn-011"}
	if err := dlq.Add(ctx, unreachable, ErrQueueClosed); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	items, err := dlq.List(ctx, 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	if len(items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(items))
	}

	for _, item := range items {
		if item.Error == "" {
			t.Error("Expected non-empty error message")
		}
		if item.ID == "" {
			t.Error("Expected non-empty ID")
		}
	}
}

func TestRedisDeadLetterQueue_Remove(t *testing.T) {
	config := redisTestConfig(t, "validations")

	dlq, err := NewRedisDeadLetterQueue(config)
	if err != nil {
		t.Fatalf("NewRedisDeadLetterQueue failed: %v", err)
	}
	defer dlq.Close()

	ctx := context.Background()

	if err := dlq.Add(ctx, map[string]string{"transaction_id": "txn-012"}, ErrMaxRetriesExceeded); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	items, err := dlq.List(ctx, 1)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(items))
	}

	if err := dlq.Remove(ctx, items[0].ID); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	items, err = dlq.List(ctx, 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("Expected 0 items after removal, got %d", len(items))
	}
}

func TestRedisDeadLetterQueue_SurvivesReconnect(t *testing.T) {
	config := redisTestConfig(t, "validations")

	ctx := context.Background()

	dlq1, err := NewRedisDeadLetterQueue(config)
	if err != nil {
		t.Fatalf("NewRedisDeadLetterQueue failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := dlq1.Add(ctx, map[string]int{"attempt": i}, ErrMaxRetriesExceeded); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	if err := dlq1.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	dlq2, err := NewRedisDeadLetterQueue(config)
	if err != nil {
		t.Fatalf("NewRedisDeadLetterQueue failed: %v", err)
	}
	defer dlq2.Close()

	items, err := dlq2.List(ctx, 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 3 {
		t.Errorf("Expected 3 items after reconnect, got %d", len(items))
	}
}

package logging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"credit_audit/internal/models"
)

// ArchiveBuffer stages audit records in a Redis list between the insert
// path and the S3 archiver, so a restart does not lose records that
// were accepted but not yet archived.
type ArchiveBuffer struct {
	client    *redis.Client
	queueKey  string
	maxSize   int64 // oldest entries are dropped past this (0 = unlimited)
	batchSize int
}

// ArchiveBufferConfig holds buffer settings.
type ArchiveBufferConfig struct {
	QueueKey  string
	MaxSize   int64
	BatchSize int
}

// DefaultArchiveBufferConfig returns default buffer settings.
func DefaultArchiveBufferConfig() ArchiveBufferConfig {
	return ArchiveBufferConfig{
		QueueKey:  "audit:archive:queue",
		MaxSize:   100000,
		BatchSize: 100,
	}
}

// NewArchiveBuffer creates a buffer over the given Redis client.
func NewArchiveBuffer(client *redis.Client, cfg ArchiveBufferConfig) *ArchiveBuffer {
	if cfg.QueueKey == "" {
		cfg.QueueKey = "audit:archive:queue"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &ArchiveBuffer{
		client:    client,
		queueKey:  cfg.QueueKey,
		maxSize:   cfg.MaxSize,
		batchSize: cfg.BatchSize,
	}
}

// enqueueScript pushes one entry and trims the list to maxSize in one
// atomic step.
var enqueueScript = redis.NewScript(`
	local key = KEYS[1]
	local value = ARGV[1]
	local max_size = tonumber(ARGV[2])

	redis.call('RPUSH', key, value)

	local len = redis.call('LLEN', key)
	if len > max_size then
		redis.call('LTRIM', key, len - max_size, -1)
	end

	return len
`)

// Enqueue stages one record.
func (b *ArchiveBuffer) Enqueue(ctx context.Context, record *models.CreditValidationAudit) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}

	if b.maxSize > 0 {
		if _, err := enqueueScript.Run(ctx, b.client, []string{b.queueKey}, data, b.maxSize).Result(); err != nil {
			return fmt.Errorf("failed to enqueue archive record: %w", err)
		}
		return nil
	}

	if err := b.client.RPush(ctx, b.queueKey, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue archive record: %w", err)
	}
	return nil
}

// dequeueScript reads and removes up to count entries atomically,
// oldest first.
var dequeueScript = redis.NewScript(`
	local key = KEYS[1]
	local count = tonumber(ARGV[1])

	local records = redis.call('LRANGE', key, 0, count - 1)
	if #records > 0 then
		redis.call('LTRIM', key, #records, -1)
	end

	return records
`)

// Dequeue removes and returns up to count staged records.
func (b *ArchiveBuffer) Dequeue(ctx context.Context, count int) ([]*models.CreditValidationAudit, error) {
	if count <= 0 {
		count = b.batchSize
	}

	result, err := dequeueScript.Run(ctx, b.client, []string{b.queueKey}, count).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue archive records: %w", err)
	}

	records := make([]*models.CreditValidationAudit, 0, len(result))
	for i, data := range result {
		var record models.CreditValidationAudit
		if err := json.Unmarshal([]byte(data), &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal archive record %d: %w", i, err)
		}
		records = append(records, &record)
	}

	return records, nil
}

// Length reports how many records are staged.
func (b *ArchiveBuffer) Length(ctx context.Context) (int64, error) {
	length, err := b.client.LLen(ctx, b.queueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read archive buffer length: %w", err)
	}
	return length, nil
}

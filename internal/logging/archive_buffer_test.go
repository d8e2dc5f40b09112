package logging

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credit_audit/internal/models"
)

func newTestBuffer(t *testing.T, cfg ArchiveBufferConfig) *ArchiveBuffer {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewArchiveBuffer(client, cfg)
}

func bufferRecord(transactionID string) *models.CreditValidationAudit {
	return &models.CreditValidationAudit{
		TransactionID: transactionID,
		ModelVersion:  "v1",
		PromptVersion: models.DefaultPromptVersion,
		Status:        models.StatusSuccess,
		CreatedAt:     time.Now().UTC(),
	}
}

func TestArchiveBuffer_EnqueueDequeue(t *testing.T) {
	buffer := newTestBuffer(t, DefaultArchiveBufferConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, buffer.Enqueue(ctx, bufferRecord(fmt.Sprintf("txn-%03d", i))))
	}

	length, err := buffer.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), length)

	records, err := buffer.Dequeue(ctx, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	// Oldest first.
	assert.Equal(t, "txn-000", records[0].TransactionID)
	assert.Equal(t, "txn-001", records[1].TransactionID)

	length, err = buffer.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), length)
}

func TestArchiveBuffer_DequeueEmpty(t *testing.T) {
	buffer := newTestBuffer(t, DefaultArchiveBufferConfig())

	records, err := buffer.Dequeue(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestArchiveBuffer_MaxSizeDropsOldest(t *testing.T) {
	cfg := DefaultArchiveBufferConfig()
	cfg.MaxSize = 2
	buffer := newTestBuffer(t, cfg)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, buffer.Enqueue(ctx, bufferRecord(fmt.Sprintf("txn-%03d", i))))
	}

	length, err := buffer.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), length)

	records, err := buffer.Dequeue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "txn-002", records[0].TransactionID)
	assert.Equal(t, "txn-003", records[1].TransactionID)
}

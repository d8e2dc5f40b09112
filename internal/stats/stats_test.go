package stats

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *RedisStatsService {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisStatsService(client, time.Hour)
}

func TestNoopService(t *testing.T) {
	service := NewNoopService()
	ctx := context.Background()

	require.NoError(t, service.RecordOutcome(ctx, "APROBADO", "SUCCESS"))

	snapshot, err := service.DailyCounts(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, snapshot.Decisions)
	assert.Empty(t, snapshot.Statuses)
}

func TestRedisStatsService_RecordOutcome(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	require.NoError(t, service.RecordOutcome(ctx, "APROBADO", "SUCCESS"))
	require.NoError(t, service.RecordOutcome(ctx, "APROBADO", "SUCCESS"))
	require.NoError(t, service.RecordOutcome(ctx, "RECHAZADO", "SUCCESS"))
	require.NoError(t, service.RecordOutcome(ctx, "", "ERROR"))

	snapshot, err := service.DailyCounts(ctx, time.Now())
	require.NoError(t, err)

	assert.Equal(t, int64(2), snapshot.Decisions["APROBADO"])
	assert.Equal(t, int64(1), snapshot.Decisions["RECHAZADO"])
	assert.Equal(t, int64(3), snapshot.Statuses["SUCCESS"])
	assert.Equal(t, int64(1), snapshot.Statuses["ERROR"])
}

func TestRedisStatsService_EmptyDecisionOnlyCountsStatus(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	require.NoError(t, service.RecordOutcome(ctx, "", "ERROR"))

	snapshot, err := service.DailyCounts(ctx, time.Now())
	require.NoError(t, err)

	assert.Empty(t, snapshot.Decisions)
	assert.Equal(t, int64(1), snapshot.Statuses["ERROR"])
}

func TestRedisStatsService_DailyCountsOtherDayIsEmpty(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	require.NoError(t, service.RecordOutcome(ctx, "APROBADO", "SUCCESS"))

	snapshot, err := service.DailyCounts(ctx, time.Now().AddDate(0, 0, -1))
	require.NoError(t, err)

	assert.Empty(t, snapshot.Decisions)
	assert.Empty(t, snapshot.Statuses)
}

package stats

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Service tracks how many validation attempts landed per decision and
// per status. The counters feed the reporting surface; the audit table
// itself stays append-only and is never aggregated into by writers.
type Service interface {
	// RecordOutcome increments the daily counters for one stored attempt.
	RecordOutcome(ctx context.Context, decision, status string) error

	// DailyCounts returns the decision and status counters for one day.
	DailyCounts(ctx context.Context, day time.Time) (*DailySnapshot, error)
}

// DailySnapshot holds one day's counters.
type DailySnapshot struct {
	Day       string           `json:"day"`
	Decisions map[string]int64 `json:"decisions"`
	Statuses  map[string]int64 `json:"statuses"`
}

// NoopService discards outcomes and reports empty counters.
type NoopService struct{}

func NewNoopService() *NoopService {
	return &NoopService{}
}

func (s *NoopService) RecordOutcome(ctx context.Context, decision, status string) error {
	return nil
}

func (s *NoopService) DailyCounts(ctx context.Context, day time.Time) (*DailySnapshot, error) {
	return &DailySnapshot{
		Day:       day.UTC().Format("2006-01-02"),
		Decisions: map[string]int64{},
		Statuses:  map[string]int64{},
	}, nil
}

// RedisStatsService keeps the counters in Redis so every instance of
// the service increments the same numbers.
type RedisStatsService struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedisStatsService creates a stats service over the given client.
// Counters expire after ttl; 60 days keeps two months of dashboards.
func NewRedisStatsService(client *redis.Client, ttl time.Duration) *RedisStatsService {
	if ttl <= 0 {
		ttl = 60 * 24 * time.Hour
	}
	return &RedisStatsService{
		redis: client,
		ttl:   ttl,
	}
}

// incrScript bumps a counter and refreshes its TTL atomically, so a
// counter never survives past its retention window.
var incrScript = redis.NewScript(`
	local key = KEYS[1]
	local ttl = tonumber(ARGV[1])

	local total = redis.call('INCR', key)
	redis.call('EXPIRE', key, ttl)
	return total
`)

// RecordOutcome increments the day's decision and status counters. An
// empty decision (failed attempt, no verdict) only counts under status.
func (s *RedisStatsService) RecordOutcome(ctx context.Context, decision, status string) error {
	day := time.Now().UTC().Format("2006-01-02")
	ttlSeconds := int(s.ttl.Seconds())

	if decision != "" {
		key := s.decisionKey(day, decision)
		if _, err := incrScript.Run(ctx, s.redis, []string{key}, ttlSeconds).Result(); err != nil {
			return fmt.Errorf("failed to record decision outcome: %w", err)
		}
	}

	if status != "" {
		key := s.statusKey(day, status)
		if _, err := incrScript.Run(ctx, s.redis, []string{key}, ttlSeconds).Result(); err != nil {
			return fmt.Errorf("failed to record status outcome: %w", err)
		}
	}

	return nil
}

// DailyCounts scans the day's counters and returns them by bucket.
func (s *RedisStatsService) DailyCounts(ctx context.Context, day time.Time) (*DailySnapshot, error) {
	dayStr := day.UTC().Format("2006-01-02")
	snapshot := &DailySnapshot{
		Day:       dayStr,
		Decisions: make(map[string]int64),
		Statuses:  make(map[string]int64),
	}

	pattern := fmt.Sprintf("audit:stats:%s:*", dayStr)
	var cursor uint64
	for {
		keys, nextCursor, err := s.redis.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan stats keys: %w", err)
		}

		for _, key := range keys {
			if err := s.collectKey(ctx, key, snapshot); err != nil {
				return nil, err
			}
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return snapshot, nil
}

func (s *RedisStatsService) collectKey(ctx context.Context, key string, snapshot *DailySnapshot) error {
	// Key layout: audit:stats:<yyyy-mm-dd>:<kind>:<bucket>
	parts := strings.SplitN(key, ":", 5)
	if len(parts) != 5 {
		return nil
	}
	kind, bucket := parts[3], parts[4]

	val, err := s.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read stats counter %s: %w", key, err)
	}

	total, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return fmt.Errorf("corrupt stats counter %s: %w", key, err)
	}

	switch kind {
	case "decision":
		snapshot.Decisions[bucket] = total
	case "status":
		snapshot.Statuses[bucket] = total
	}
	return nil
}

func (s *RedisStatsService) decisionKey(day, decision string) string {
	return fmt.Sprintf("audit:stats:%s:decision:%s", day, decision)
}

func (s *RedisStatsService) statusKey(day, status string) string {
	return fmt.Sprintf("audit:stats:%s:status:%s", day, status)
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds configuration for the audit service.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Queue     QueueConfig
	Mirror    MirrorConfig
	Archive   ArchiveConfig
	Stats     StatsConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	RequestTimeout  time.Duration // per-request budget enforced by middleware
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	LatestCacheSize int
	LatestCacheTTL  time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Address      string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// QueueConfig holds settings for the async ingest queue and its worker
type QueueConfig struct {
	UseRedis     bool // Redis-backed queue; in-memory otherwise
	QueueName    string
	BatchSize    int
	BatchTimeout time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// MirrorConfig holds settings for the local JSONL mirror of stored records
type MirrorConfig struct {
	Enabled          bool
	FilePathTemplate string
	MaxSize          int64
	MaxFiles         int
	BufferSize       int
	FlushInterval    time.Duration
}

// ArchiveConfig holds configuration for the S3-based archival sink
type ArchiveConfig struct {
	Enabled       bool          // Whether to archive records to S3
	BufferMaxSize int64         // Cap on the Redis staging list
	BatchSize     int           // Records drained from the buffer per round
	FlushSize     int           // Flush to S3 after this many records
	FlushInterval time.Duration // Flush to S3 after this duration
	S3Bucket      string        // S3 bucket name
	S3Region      string        // AWS region
	S3Prefix      string        // Prefix for S3 keys (e.g., "audit/")
	PodName       string        // Pod identifier for multi-pod deployments
	EncryptionKey string        // Base64 AES key; empty archives plaintext
}

// StatsConfig holds settings for the Redis decision/status counters
type StatsConfig struct {
	Enabled bool
	TTL     time.Duration
}

// RateLimitConfig holds settings for the ingest rate limiter
type RateLimitConfig struct {
	Enabled bool
	Limit   int
	Window  time.Duration
}

// LoggingConfig holds application log settings
type LoggingConfig struct {
	Level      string
	FilePath   string // empty logs to stdout only
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

func getEnvInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getEnvInt64(key string, defaultValue int64) int64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	intVal, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return defaultValue
	}
	return intVal
}

func getEnvBool(key string, defaultValue bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	boolVal, err := strconv.ParseBool(val)
	if err != nil {
		return defaultValue
	}
	return boolVal
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(val)
	if err != nil {
		return defaultValue
	}

	return duration
}

func getEnvString(key string, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val
}

// Load reads configuration from environment variables (and, later, other sources).
func Load() (*Config, error) {
	// Load database configuration
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvString("HTTP_PORT", "8080"),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			RequestTimeout:  getEnvDuration("SERVER_REQUEST_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			URL:             dbURL,
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute),
			LatestCacheSize: getEnvInt("LATEST_CACHE_SIZE", 1000),
			LatestCacheTTL:  getEnvDuration("LATEST_CACHE_TTL", 5*time.Minute),
		},
		Redis: RedisConfig{
			Address:      getEnvString("REDIS_ADDRESS", "localhost:6379"),
			Password:     getEnvString("REDIS_PASSWORD", ""),
			DB:           getEnvInt("REDIS_DB", 0),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Queue: QueueConfig{
			UseRedis:     getEnvBool("QUEUE_USE_REDIS", false),
			QueueName:    getEnvString("QUEUE_NAME", "validations"),
			BatchSize:    getEnvInt("QUEUE_BATCH_SIZE", 100),
			BatchTimeout: getEnvDuration("QUEUE_BATCH_TIMEOUT", 5*time.Second),
			MaxRetries:   getEnvInt("QUEUE_MAX_RETRIES", 3),
			RetryBackoff: getEnvDuration("QUEUE_RETRY_BACKOFF", 1*time.Second),
		},
		Mirror: MirrorConfig{
			Enabled:          getEnvBool("MIRROR_ENABLED", false),
			FilePathTemplate: getEnvString("MIRROR_FILE_PATH_TEMPLATE", "/var/log/credit-audit/audit-%s.jsonl"),
			MaxSize:          getEnvInt64("MIRROR_MAX_SIZE", 10_485_760),              // default 10 MB
			MaxFiles:         getEnvInt("MIRROR_MAX_FILES", 5),                        // default 5
			BufferSize:       getEnvInt("MIRROR_BUFFER_SIZE", 100),                    // default 100
			FlushInterval:    getEnvDuration("MIRROR_FLUSH_INTERVAL", 60*time.Second), // default 60 seconds
		},
		Archive: ArchiveConfig{
			Enabled:       getEnvBool("ARCHIVE_ENABLED", false),
			BufferMaxSize: getEnvInt64("ARCHIVE_BUFFER_MAX_SIZE", 100_000),
			BatchSize:     getEnvInt("ARCHIVE_BATCH_SIZE", 100),
			FlushSize:     getEnvInt("ARCHIVE_FLUSH_SIZE", 1000),
			FlushInterval: getEnvDuration("ARCHIVE_FLUSH_INTERVAL", 5*time.Minute),
			S3Bucket:      getEnvString("ARCHIVE_S3_BUCKET", ""),
			S3Region:      getEnvString("ARCHIVE_S3_REGION", "us-east-1"),
			S3Prefix:      getEnvString("ARCHIVE_S3_PREFIX", "audit/"),
			PodName:       getEnvString("POD_NAME", "audit-0"),
			EncryptionKey: getEnvString("ARCHIVE_ENCRYPTION_KEY", ""),
		},
		Stats: StatsConfig{
			Enabled: getEnvBool("STATS_ENABLED", true),
			TTL:     getEnvDuration("STATS_TTL", 60*24*time.Hour),
		},
		RateLimit: RateLimitConfig{
			Enabled: getEnvBool("RATE_LIMIT_ENABLED", false),
			Limit:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
			Window:  getEnvDuration("RATE_LIMIT_WINDOW", 1*time.Minute),
		},
		Logging: LoggingConfig{
			Level:      getEnvString("LOG_LEVEL", "info"),
			FilePath:   getEnvString("LOG_FILE_PATH", ""),
			MaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 10),
			MaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 30),
			Compress:   getEnvBool("LOG_COMPRESS", true),
		},
	}

	return cfg, nil
}

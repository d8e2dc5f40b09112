package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"credit_audit/internal/config"
	"credit_audit/internal/logging"
	"credit_audit/internal/metrics"
	"credit_audit/internal/queue"
	"credit_audit/internal/ratelimit"
	"credit_audit/internal/stats"
	"credit_audit/internal/storage"
)

// Dependencies aggregates all services the HTTP layer needs. NewRouter
// builds them; Shutdown tears them down in reverse order.
type Dependencies struct {
	DB        *storage.DB
	Redis     *storage.RedisClient
	Repo      *storage.AuditRepository
	Worker    *storage.AuditQueueWorker
	Mirror    *logging.AuditMirror
	Sink      logging.Sink
	Stats     stats.Service
	Metrics   metrics.Metrics
	RateLimit ratelimit.Limiter
	Logger    *zap.Logger
}

// NewRouter creates an HTTP router with all dependencies wired up.
func NewRouter(cfg *config.Config, logger *zap.Logger) (chi.Router, *Dependencies, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	// Initialize database
	db, err := storage.NewDB(storage.DBConfig{
		DSN:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		LatestCacheSize: cfg.Database.LatestCacheSize,
		LatestCacheTTL:  cfg.Database.LatestCacheTTL,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Initialize Redis client
	redisClient, err := storage.NewRedisClient(storage.RedisConfig{
		Address:      cfg.Redis.Address,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to initialize Redis: %w", err)
	}

	repo := db.NewAuditRepository()

	// Ingest queue and its writer
	queueCfg := queue.DefaultConfig(cfg.Queue.QueueName)
	queueCfg.UseRedis = cfg.Queue.UseRedis
	queueCfg.BatchSize = cfg.Queue.BatchSize
	queueCfg.BatchTimeout = cfg.Queue.BatchTimeout
	queueCfg.MaxRetries = cfg.Queue.MaxRetries
	queueCfg.RetryBackoff = cfg.Queue.RetryBackoff

	var ingestQueue queue.Queue
	var ingestDLQ queue.DeadLetterQueue
	if queueCfg.UseRedis {
		queueCfg.RedisAddr = cfg.Redis.Address
		queueCfg.RedisPassword = cfg.Redis.Password
		queueCfg.RedisDB = cfg.Redis.DB
		ingestQueue, err = queue.NewRedisQueue(queueCfg)
		if err != nil {
			redisClient.Close()
			db.Close()
			return nil, nil, fmt.Errorf("failed to create ingest queue: %w", err)
		}
		ingestDLQ, err = queue.NewRedisDeadLetterQueue(queueCfg)
		if err != nil {
			redisClient.Close()
			db.Close()
			return nil, nil, fmt.Errorf("failed to create ingest DLQ: %w", err)
		}
	} else {
		ingestQueue = queue.NewMemoryQueue(queueCfg)
		ingestDLQ = queue.NewMemoryDeadLetterQueue()
	}

	worker := storage.NewAuditQueueWorker(ingestQueue, ingestDLQ, repo, queueCfg, logger)
	worker.Start(context.Background())

	// Local JSONL mirror of every stored record
	var mirror *logging.AuditMirror
	if cfg.Mirror.Enabled {
		mirror, err = logging.NewAuditMirror(
			cfg.Mirror.FilePathTemplate,
			cfg.Mirror.MaxSize,
			cfg.Mirror.MaxFiles,
			cfg.Mirror.BufferSize,
			cfg.Mirror.FlushInterval,
		)
		if err != nil {
			worker.Stop()
			redisClient.Close()
			db.Close()
			return nil, nil, fmt.Errorf("failed to initialize audit mirror: %w", err)
		}
	}

	// S3 archival sink
	var sink logging.Sink = logging.NewNoopSink()
	if cfg.Archive.Enabled {
		var encryptor logging.Encryptor
		if cfg.Archive.EncryptionKey != "" {
			encryptor, err = storage.NewEncryptionFromBase64(cfg.Archive.EncryptionKey)
			if err != nil {
				worker.Stop()
				redisClient.Close()
				db.Close()
				return nil, nil, fmt.Errorf("failed to initialize archive encryption: %w", err)
			}
		}

		buffer := logging.NewArchiveBuffer(redisClient.Client(), logging.ArchiveBufferConfig{
			QueueKey:  "audit:archive:queue",
			MaxSize:   cfg.Archive.BufferMaxSize,
			BatchSize: cfg.Archive.BatchSize,
		})
		writer, err := logging.NewS3Writer(
			context.Background(),
			cfg.Archive.S3Bucket,
			cfg.Archive.S3Region,
			cfg.Archive.S3Prefix,
			cfg.Archive.PodName,
			encryptor,
			logger,
		)
		if err != nil {
			worker.Stop()
			redisClient.Close()
			db.Close()
			return nil, nil, fmt.Errorf("failed to initialize archive writer: %w", err)
		}
		sink = logging.NewS3Sink(buffer, writer, logging.S3SinkConfig{
			FlushSize:     cfg.Archive.FlushSize,
			FlushInterval: cfg.Archive.FlushInterval,
		}, logger)
	}

	// Throughput counters
	var statsSvc stats.Service = stats.NewNoopService()
	if cfg.Stats.Enabled {
		statsSvc = stats.NewRedisStatsService(redisClient.Client(), cfg.Stats.TTL)
	}

	// Ingest rate limiter
	var limiter ratelimit.Limiter = ratelimit.NewNoopLimiter()
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.NewSlidingWindowLimiter(redisClient.Client(), cfg.RateLimit.Limit, cfg.RateLimit.Window)
	}

	deps := &Dependencies{
		DB:        db,
		Redis:     redisClient,
		Repo:      repo,
		Worker:    worker,
		Mirror:    mirror,
		Sink:      sink,
		Stats:     statsSvc,
		Metrics:   metrics.NewPrometheusMetrics(),
		RateLimit: limiter,
		Logger:    logger,
	}

	return buildRouter(deps, cfg), deps, nil
}

func buildRouter(deps *Dependencies, cfg *config.Config) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Server.RequestTimeout))
	r.Use(requestLogger(deps.Logger))
	r.Use(httpMetrics(deps.Metrics))

	// The service sits behind an internal gateway; origins are not a
	// trust boundary here.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	handler := NewAuditHandler(deps.Repo, deps.Worker, AuditHandlerOptions{
		Mirror:    deps.Mirror,
		Sink:      deps.Sink,
		Stats:     deps.Stats,
		Metrics:   deps.Metrics,
		RateLimit: deps.RateLimit,
		Logger:    deps.Logger,
	})

	r.Route("/api/v1", func(r chi.Router) {
		registerAuditRoutes(r, handler)
	})

	r.Get("/health", deps.handleHealth)
	r.Method(http.MethodGet, "/metrics", deps.Metrics.HTTPHandler())

	return r
}

// registerAuditRoutes mounts the audit endpoints on r. Split out so
// handler tests can mount them on a bare router.
func registerAuditRoutes(r chi.Router, h *AuditHandler) {
	r.Post("/audit", h.CreateAudit)
	r.Get("/audit", h.ListAudits)
	r.Get("/audit/{transactionID}", h.GetHistory)
	r.Get("/audit/{transactionID}/latest", h.GetLatest)
	r.Get("/reports/summary", h.ReportsSummary)
}

// Shutdown stops the background machinery and closes connections. The
// worker goes first so queued records still reach the database.
func (deps *Dependencies) Shutdown(ctx context.Context) error {
	var errs []error

	if deps.Worker != nil {
		if err := deps.Worker.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop queue worker: %w", err))
		}
	}
	if deps.Mirror != nil {
		deps.Mirror.Shutdown()
	}
	if deps.Sink != nil {
		if err := deps.Sink.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shut down archive sink: %w", err))
		}
	}
	if deps.Redis != nil {
		if err := deps.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		}
	}
	if deps.DB != nil {
		if err := deps.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}

	return errors.Join(errs...)
}

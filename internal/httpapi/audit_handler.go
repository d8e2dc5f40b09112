package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"credit_audit/internal/logging"
	"credit_audit/internal/metrics"
	"credit_audit/internal/models"
	"credit_audit/internal/ratelimit"
	"credit_audit/internal/stats"
	"credit_audit/internal/storage"
	"credit_audit/internal/utils"
)

// AuditStore is the slice of the repository the handlers need. Tests
// run against a stub; production wires *storage.AuditRepository.
type AuditStore interface {
	Insert(ctx context.Context, record *models.CreditValidationAudit) error
	GetByTransactionID(ctx context.Context, transactionID string) ([]*models.CreditValidationAudit, error)
	GetLatestByTransactionID(ctx context.Context, transactionID string) (*models.CreditValidationAudit, error)
	ListRecent(ctx context.Context, filter storage.ListFilter, limit, offset int) ([]*models.CreditValidationAudit, error)
	CountByDecision(ctx context.Context, tr storage.TimeRange) (map[string]int64, error)
	CountByStatus(ctx context.Context, tr storage.TimeRange) (map[string]int64, error)
	GetUsageTotals(ctx context.Context, tr storage.TimeRange) (*storage.UsageTotals, error)
}

// Enqueuer hands a record to the async ingest path.
type Enqueuer interface {
	Enqueue(ctx context.Context, record *models.CreditValidationAudit) error
}

// AuditHandlerOptions carries the optional collaborators. Nil fields
// fall back to no-ops.
type AuditHandlerOptions struct {
	Mirror    *logging.AuditMirror
	Sink      logging.Sink
	Stats     stats.Service
	Metrics   metrics.Metrics
	RateLimit ratelimit.Limiter
	Logger    *zap.Logger
}

// AuditHandler serves the audit record endpoints.
type AuditHandler struct {
	store   AuditStore
	queue   Enqueuer
	mirror  *logging.AuditMirror
	sink    logging.Sink
	stats   stats.Service
	metrics metrics.Metrics
	limiter ratelimit.Limiter
	logger  *zap.Logger
}

func NewAuditHandler(store AuditStore, queue Enqueuer, opts AuditHandlerOptions) *AuditHandler {
	if opts.Sink == nil {
		opts.Sink = logging.NewNoopSink()
	}
	if opts.Stats == nil {
		opts.Stats = stats.NewNoopService()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNoopMetrics()
	}
	if opts.RateLimit == nil {
		opts.RateLimit = ratelimit.NewNoopLimiter()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &AuditHandler{
		store:   store,
		queue:   queue,
		mirror:  opts.Mirror,
		sink:    opts.Sink,
		stats:   opts.Stats,
		metrics: opts.Metrics,
		limiter: opts.RateLimit,
		logger:  opts.Logger.Named("audit-api"),
	}
}

type createAuditResponse struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateAudit stores one validation attempt. The default path inserts
// synchronously and answers 201 with the generated key; ?async=1
// enqueues for the queue worker and answers 202. A body that carries
// claude_response_raw without claude_response_parsed gets the verdict
// fields derived server-side.
func (h *AuditHandler) CreateAudit(w http.ResponseWriter, r *http.Request) {
	var record models.CreditValidationAudit
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	// The key is always generated here, whatever the caller sent.
	record.ID = 0

	if !h.limiter.Allow(r.Context(), callerKey(&record, r)) {
		utils.RespondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	deriveDictamen(&record)

	if r.URL.Query().Get("async") == "1" {
		// Validate up front; the worker has no channel to report a 400.
		if err := record.Validate(); err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := h.queue.Enqueue(r.Context(), &record); err != nil {
			h.logger.Error("failed to enqueue audit record",
				zap.String("transaction_id", record.TransactionID), zap.Error(err))
			utils.RespondWithError(w, http.StatusServiceUnavailable, "failed to enqueue audit record")
			return
		}
		utils.RespondWithJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
		return
	}

	start := time.Now()
	if err := h.store.Insert(r.Context(), &record); err != nil {
		var validationErr *models.ValidationError
		if errors.As(err, &validationErr) {
			utils.RespondWithError(w, http.StatusBadRequest, validationErr.Error())
			return
		}
		h.logger.Error("failed to store audit record",
			zap.String("transaction_id", record.TransactionID), zap.Error(err))
		utils.RespondWithError(w, http.StatusServiceUnavailable, "failed to store audit record")
		return
	}
	h.metrics.RecordInsert(record.Status, time.Since(start))
	h.afterStore(r.Context(), &record)

	utils.RespondWithJSON(w, http.StatusCreated, createAuditResponse{
		ID:        record.ID,
		CreatedAt: record.CreatedAt,
	})
}

// afterStore fans a stored record out to the best-effort consumers.
// None of them may fail the request; the row is already committed.
func (h *AuditHandler) afterStore(ctx context.Context, record *models.CreditValidationAudit) {
	decision := utils.StringPtrValue(record.Decision)
	h.logger.Info("audit record stored",
		zap.Int64("id", record.ID),
		zap.String("transaction_id", record.TransactionID),
		zap.String("person_hash", personHash(record)),
		zap.String("status", record.Status),
		zap.String("decision", decision))

	if err := h.stats.RecordOutcome(ctx, decision, record.Status); err != nil {
		h.logger.Warn("failed to record outcome counters", zap.Error(err))
	}

	if h.mirror != nil {
		h.mirror.Log(record)
	}
	if err := h.sink.Enqueue(record); err != nil {
		h.logger.Warn("failed to stage record for archive",
			zap.String("transaction_id", record.TransactionID), zap.Error(err))
	}
}

// GetHistory returns every attempt for a transaction, newest first. An
// unknown transaction is an empty list, not a 404.
func (h *AuditHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "transactionID")

	start := time.Now()
	records, err := h.store.GetByTransactionID(r.Context(), transactionID)
	if err != nil {
		h.logger.Error("failed to read audit history",
			zap.String("transaction_id", transactionID), zap.Error(err))
		utils.RespondWithError(w, http.StatusServiceUnavailable, "failed to read audit records")
		return
	}
	h.metrics.RecordQueryDuration("get_by_transaction_id", time.Since(start))

	utils.RespondWithJSON(w, http.StatusOK, records)
}

// GetLatest returns the most recent attempt for a transaction, or 404.
func (h *AuditHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "transactionID")

	start := time.Now()
	record, err := h.store.GetLatestByTransactionID(r.Context(), transactionID)
	if errors.Is(err, storage.ErrAuditRecordNotFound) {
		utils.RespondWithError(w, http.StatusNotFound, "no audit records for transaction")
		return
	}
	if err != nil {
		h.logger.Error("failed to read latest audit record",
			zap.String("transaction_id", transactionID), zap.Error(err))
		utils.RespondWithError(w, http.StatusServiceUnavailable, "failed to read audit records")
		return
	}
	h.metrics.RecordQueryDuration("get_latest_by_transaction_id", time.Since(start))

	utils.RespondWithJSON(w, http.StatusOK, record)
}

// ListAudits returns a page of recent records, filterable by
// transaction_id, decision, status and a created_at range.
func (h *AuditHandler) ListAudits(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	tr, err := parseTimeRange(q.Get("from"), q.Get("to"))
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	filter := storage.ListFilter{
		TransactionID: q.Get("transaction_id"),
		Decision:      q.Get("decision"),
		Status:        q.Get("status"),
		Range:         tr,
	}
	limit := parseIntParam(q.Get("limit"), 50)
	offset := parseIntParam(q.Get("offset"), 0)

	start := time.Now()
	records, err := h.store.ListRecent(r.Context(), filter, limit, offset)
	if err != nil {
		h.logger.Error("failed to list audit records", zap.Error(err))
		utils.RespondWithError(w, http.StatusServiceUnavailable, "failed to read audit records")
		return
	}
	h.metrics.RecordQueryDuration("list_recent", time.Since(start))

	utils.RespondWithJSON(w, http.StatusOK, records)
}

type summaryResponse struct {
	From      *time.Time           `json:"from,omitempty"`
	To        *time.Time           `json:"to,omitempty"`
	Decisions map[string]int64     `json:"decisions"`
	Statuses  map[string]int64     `json:"statuses"`
	Usage     *storage.UsageTotals `json:"usage"`
	Today     *stats.DailySnapshot `json:"today,omitempty"`
}

// ReportsSummary aggregates counts by decision and status plus token
// and latency usage over a time range, alongside today's live counters.
func (h *AuditHandler) ReportsSummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	tr, err := parseTimeRange(q.Get("from"), q.Get("to"))
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	decisions, err := h.store.CountByDecision(r.Context(), tr)
	if err != nil {
		h.logger.Error("failed to count by decision", zap.Error(err))
		utils.RespondWithError(w, http.StatusServiceUnavailable, "failed to build summary")
		return
	}
	statuses, err := h.store.CountByStatus(r.Context(), tr)
	if err != nil {
		h.logger.Error("failed to count by status", zap.Error(err))
		utils.RespondWithError(w, http.StatusServiceUnavailable, "failed to build summary")
		return
	}
	usage, err := h.store.GetUsageTotals(r.Context(), tr)
	if err != nil {
		h.logger.Error("failed to aggregate usage", zap.Error(err))
		utils.RespondWithError(w, http.StatusServiceUnavailable, "failed to build summary")
		return
	}
	h.metrics.RecordQueryDuration("reports_summary", time.Since(start))

	resp := summaryResponse{
		Decisions: decisions,
		Statuses:  statuses,
		Usage:     usage,
	}
	if !tr.From.IsZero() {
		resp.From = &tr.From
	}
	if !tr.To.IsZero() {
		resp.To = &tr.To
	}

	// The live counters are redis-backed and best-effort.
	if today, err := h.stats.DailyCounts(r.Context(), time.Now().UTC()); err == nil {
		resp.Today = today
	} else {
		h.logger.Warn("failed to read daily counters", zap.Error(err))
	}

	utils.RespondWithJSON(w, http.StatusOK, resp)
}

// deriveDictamen fills the verdict columns from the raw model response
// when the caller did not send a parsed document. A raw response that
// carries no JSON still gets audited as-is.
func deriveDictamen(record *models.CreditValidationAudit) {
	if record.ClaudeResponseParsed != nil || record.ClaudeResponseRaw == nil {
		return
	}
	parsed, err := models.ExtractResponseJSON(*record.ClaudeResponseRaw)
	if err != nil {
		return
	}
	models.ApplyDictamen(record, parsed)
}

// personHash hashes the subject identifier so log lines never carry the
// raw document number.
func personHash(record *models.CreditValidationAudit) string {
	if record.PersonID == nil || *record.PersonID == "" {
		return ""
	}
	return utils.HashString(*record.PersonID)
}

// callerKey identifies the submitter for rate limiting: created_by
// when present, remote address otherwise.
func callerKey(record *models.CreditValidationAudit, r *http.Request) string {
	if record.CreatedBy != nil && *record.CreatedBy != "" {
		return *record.CreatedBy
	}
	return r.RemoteAddr
}

func parseTimeRange(from, to string) (storage.TimeRange, error) {
	var tr storage.TimeRange

	if from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return tr, fmt.Errorf("invalid 'from' timestamp, want RFC3339: %s", from)
		}
		tr.From = t
	}
	if to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return tr, fmt.Errorf("invalid 'to' timestamp, want RFC3339: %s", to)
		}
		tr.To = t
	}
	return tr, nil
}

func parseIntParam(value string, defaultValue int) int {
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

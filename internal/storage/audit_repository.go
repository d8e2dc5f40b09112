package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"credit_audit/internal/models"
)

// auditColumns is the full column list in table order. INSERT and SELECT
// share it so struct scans never drift from the schema.
const auditColumns = `id, transaction_id, person_id,
	input_ocr, input_buro, input_truora, input_tasks,
	consolidated_prompt, claude_response_raw, claude_response_parsed,
	decision, producto, monto_maximo, plazo_maximo, capacidad_disponible,
	tiene_inaceptables, cantidad_embargos, procesos_demandado_60m, resumen,
	tokens_input, tokens_output, latency_kala_api_ms, latency_claude_ms, latency_total_ms,
	claude_retries, model_version, prompt_version, status, error_message,
	created_at, created_by`

const insertAuditQuery = `
	INSERT INTO credit_validation_audit (
		transaction_id, person_id,
		input_ocr, input_buro, input_truora, input_tasks,
		consolidated_prompt, claude_response_raw, claude_response_parsed,
		decision, producto, monto_maximo, plazo_maximo, capacidad_disponible,
		tiene_inaceptables, cantidad_embargos, procesos_demandado_60m, resumen,
		tokens_input, tokens_output, latency_kala_api_ms, latency_claude_ms, latency_total_ms,
		claude_retries, model_version, prompt_version, status, error_message,
		created_at, created_by
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		$11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
		$21, $22, $23, $24, $25, $26, $27, $28, $29, $30
	)
	RETURNING id`

// TimeRange bounds a query on created_at. The lower bound is inclusive,
// the upper bound exclusive. A zero value leaves that side open.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// ListFilter narrows a recent-records listing. Empty fields match
// everything.
type ListFilter struct {
	TransactionID string
	Decision      string
	Status        string
	Range         TimeRange
}

// UsageTotals aggregates token spend and latency over a time range.
type UsageTotals struct {
	Attempts          int64   `db:"attempts" json:"attempts"`
	TokensInput       int64   `db:"tokens_input" json:"tokens_input"`
	TokensOutput      int64   `db:"tokens_output" json:"tokens_output"`
	AvgLatencyTotalMS float64 `db:"avg_latency_total_ms" json:"avg_latency_total_ms"`
	AvgClaudeRetries  float64 `db:"avg_claude_retries" json:"avg_claude_retries"`
}

// AuditRepository is the data-access layer for credit_validation_audit.
// The table is append-only: this type exposes inserts and reads, never
// updates or deletes.
type AuditRepository struct {
	db *DB
}

// NewAuditRepository creates a repository bound to the given database.
func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Insert writes one validation attempt as a new row. The record is
// validated before any database work, defaults are filled in, and the
// INSERT runs inside its own transaction so a failure leaves no partial
// row. On success record.ID carries the generated key.
//
// Duplicate transaction IDs are expected (retries produce one row per
// attempt) and are not an error.
func (r *AuditRepository) Insert(ctx context.Context, record *models.CreditValidationAudit) error {
	if err := prepareForInsert(record); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return &PersistenceError{Op: "begin audit insert", Err: err}
	}

	if err := insertRow(ctx, tx, record); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return &PersistenceError{Op: "commit audit insert", Err: err}
	}

	r.db.latestCache.Delete(record.TransactionID)
	return nil
}

// InsertTx writes one record using the caller's transaction. The queue
// worker uses it to land a whole batch atomically. The caller owns
// commit and rollback; the latest-record cache entry for the
// transaction ID is dropped immediately, which at worst costs a reread.
func (r *AuditRepository) InsertTx(ctx context.Context, tx *sqlx.Tx, record *models.CreditValidationAudit) error {
	if err := prepareForInsert(record); err != nil {
		return err
	}
	if err := insertRow(ctx, tx, record); err != nil {
		return err
	}
	r.db.latestCache.Delete(record.TransactionID)
	return nil
}

// InsertBatch writes several records in one transaction. Either every
// record lands or none does; the queue worker relies on that to retry a
// whole batch safely.
func (r *AuditRepository) InsertBatch(ctx context.Context, records []*models.CreditValidationAudit) error {
	if len(records) == 0 {
		return nil
	}

	for _, record := range records {
		if err := prepareForInsert(record); err != nil {
			return err
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return &PersistenceError{Op: "begin audit batch insert", Err: err}
	}

	for _, record := range records {
		if err := insertRow(ctx, tx, record); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return &PersistenceError{Op: "commit audit batch insert", Err: err}
	}

	for _, record := range records {
		r.db.latestCache.Delete(record.TransactionID)
	}
	return nil
}

func prepareForInsert(record *models.CreditValidationAudit) error {
	if err := record.Validate(); err != nil {
		return err
	}
	record.Normalize()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	return nil
}

func insertRow(ctx context.Context, q sqlx.QueryerContext, record *models.CreditValidationAudit) error {
	err := q.QueryRowxContext(ctx, insertAuditQuery,
		record.TransactionID, record.PersonID,
		record.InputOCR, record.InputBuro, record.InputTruora, record.InputTasks,
		record.ConsolidatedPrompt, record.ClaudeResponseRaw, record.ClaudeResponseParsed,
		record.Decision, record.Producto, record.MontoMaximo, record.PlazoMaximo, record.CapacidadDisponible,
		record.TieneInaceptables, record.CantidadEmbargos, record.ProcesosDemandado60M, record.Resumen,
		record.TokensInput, record.TokensOutput, record.LatencyKalaAPIMS, record.LatencyClaudeMS, record.LatencyTotalMS,
		record.ClaudeRetries, record.ModelVersion, record.PromptVersion, record.Status, record.ErrorMessage,
		record.CreatedAt, record.CreatedBy,
	).Scan(&record.ID)
	if err != nil {
		return &PersistenceError{Op: "insert audit record", Err: err}
	}
	return nil
}

// GetByTransactionID returns every attempt recorded for a transaction,
// newest first. No attempts is an empty result, not an error.
func (r *AuditRepository) GetByTransactionID(ctx context.Context, transactionID string) ([]*models.CreditValidationAudit, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM credit_validation_audit
		WHERE transaction_id = $1
		ORDER BY created_at DESC, id DESC`, auditColumns)

	records := []*models.CreditValidationAudit{}
	if err := r.db.conn.SelectContext(ctx, &records, query, transactionID); err != nil {
		return nil, &PersistenceError{Op: "get audit records by transaction id", Err: err}
	}
	return records, nil
}

// GetLatestByTransactionID returns the most recent attempt for a
// transaction, or ErrAuditRecordNotFound when none exists. Hits are
// served from the in-process cache until an insert for the same
// transaction invalidates the entry.
func (r *AuditRepository) GetLatestByTransactionID(ctx context.Context, transactionID string) (*models.CreditValidationAudit, error) {
	if record, found := r.db.latestCache.Get(transactionID); found {
		return record, nil
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM credit_validation_audit
		WHERE transaction_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, auditColumns)

	var record models.CreditValidationAudit
	err := r.db.conn.GetContext(ctx, &record, query, transactionID)
	if err == sql.ErrNoRows {
		return nil, ErrAuditRecordNotFound
	}
	if err != nil {
		return nil, &PersistenceError{Op: "get latest audit record", Err: err}
	}

	r.db.latestCache.Set(transactionID, &record)
	return &record, nil
}

// GetByID returns a single row by primary key, or
// ErrAuditRecordNotFound.
func (r *AuditRepository) GetByID(ctx context.Context, id int64) (*models.CreditValidationAudit, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM credit_validation_audit
		WHERE id = $1`, auditColumns)

	var record models.CreditValidationAudit
	err := r.db.conn.GetContext(ctx, &record, query, id)
	if err == sql.ErrNoRows {
		return nil, ErrAuditRecordNotFound
	}
	if err != nil {
		return nil, &PersistenceError{Op: "get audit record by id", Err: err}
	}
	return &record, nil
}

// QueryByDecision streams every record with the given decision inside
// the time range, newest first. The caller must Close the cursor.
func (r *AuditRepository) QueryByDecision(ctx context.Context, decision string, tr TimeRange) (*AuditCursor, error) {
	return r.queryByColumn(ctx, "decision", decision, tr)
}

// QueryByStatus streams every record with the given status inside the
// time range, newest first. The caller must Close the cursor.
func (r *AuditRepository) QueryByStatus(ctx context.Context, status string, tr TimeRange) (*AuditCursor, error) {
	return r.queryByColumn(ctx, "status", status, tr)
}

// queryByColumn builds the WHERE clause for the two streaming queries.
// column is always one of the fixed names above, never caller input.
func (r *AuditRepository) queryByColumn(ctx context.Context, column, value string, tr TimeRange) (*AuditCursor, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM credit_validation_audit
		WHERE %s = $1`, auditColumns, column)
	args := []interface{}{value}

	clause, args := timeRangeClause(tr, args)
	query += clause + " ORDER BY created_at DESC, id DESC"

	rows, err := r.db.conn.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, &PersistenceError{Op: fmt.Sprintf("query audit records by %s", column), Err: err}
	}
	return &AuditCursor{rows: rows}, nil
}

// ListRecent returns a page of records matching the filter, newest
// first. It backs the listing endpoint, which wants a bounded slice
// rather than a cursor.
func (r *AuditRepository) ListRecent(ctx context.Context, filter ListFilter, limit, offset int) ([]*models.CreditValidationAudit, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM credit_validation_audit
		WHERE 1=1`, auditColumns)
	args := []interface{}{}

	if filter.TransactionID != "" {
		args = append(args, filter.TransactionID)
		query += fmt.Sprintf(" AND transaction_id = $%d", len(args))
	}
	if filter.Decision != "" {
		args = append(args, filter.Decision)
		query += fmt.Sprintf(" AND decision = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	clause, args := timeRangeClause(filter.Range, args)
	query += clause

	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))
	args = append(args, offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	records := []*models.CreditValidationAudit{}
	if err := r.db.conn.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, &PersistenceError{Op: "list audit records", Err: err}
	}
	return records, nil
}

// CountByDecision returns row counts grouped by decision inside the
// time range. Rows without a decision (failed attempts) count under the
// empty string.
func (r *AuditRepository) CountByDecision(ctx context.Context, tr TimeRange) (map[string]int64, error) {
	return r.countByColumn(ctx, "decision", tr)
}

// CountByStatus returns row counts grouped by status inside the time
// range.
func (r *AuditRepository) CountByStatus(ctx context.Context, tr TimeRange) (map[string]int64, error) {
	return r.countByColumn(ctx, "status", tr)
}

func (r *AuditRepository) countByColumn(ctx context.Context, column string, tr TimeRange) (map[string]int64, error) {
	query := fmt.Sprintf(`
		SELECT COALESCE(%s, '') AS bucket, COUNT(*) AS total
		FROM credit_validation_audit
		WHERE 1=1`, column)
	args := []interface{}{}

	clause, args := timeRangeClause(tr, args)
	query += clause + " GROUP BY bucket"

	rows, err := r.db.conn.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, &PersistenceError{Op: fmt.Sprintf("count audit records by %s", column), Err: err}
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var bucket string
		var total int64
		if err := rows.Scan(&bucket, &total); err != nil {
			return nil, &PersistenceError{Op: fmt.Sprintf("count audit records by %s", column), Err: err}
		}
		counts[bucket] = total
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Op: fmt.Sprintf("count audit records by %s", column), Err: err}
	}
	return counts, nil
}

// GetUsageTotals aggregates attempt count, token spend and latency for
// the reporting endpoint. Averages ignore NULLs, sums treat them as 0.
func (r *AuditRepository) GetUsageTotals(ctx context.Context, tr TimeRange) (*UsageTotals, error) {
	query := `
		SELECT
			COUNT(*) AS attempts,
			COALESCE(SUM(tokens_input), 0) AS tokens_input,
			COALESCE(SUM(tokens_output), 0) AS tokens_output,
			COALESCE(AVG(latency_total_ms), 0) AS avg_latency_total_ms,
			COALESCE(AVG(claude_retries), 0) AS avg_claude_retries
		FROM credit_validation_audit
		WHERE 1=1`
	args := []interface{}{}

	clause, args := timeRangeClause(tr, args)
	query += clause

	var totals UsageTotals
	if err := r.db.conn.GetContext(ctx, &totals, query, args...); err != nil {
		return nil, &PersistenceError{Op: "aggregate audit usage", Err: err}
	}
	return &totals, nil
}

func timeRangeClause(tr TimeRange, args []interface{}) (string, []interface{}) {
	clause := ""
	if !tr.From.IsZero() {
		args = append(args, tr.From)
		clause += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if !tr.To.IsZero() {
		args = append(args, tr.To)
		clause += fmt.Sprintf(" AND created_at < $%d", len(args))
	}
	return clause, args
}

// AuditCursor walks a result set one row at a time without loading it
// into memory. Typical use:
//
//	cursor, err := repo.QueryByDecision(ctx, models.DecisionAprobado, tr)
//	if err != nil { ... }
//	defer cursor.Close()
//	for cursor.Next() {
//		record := cursor.Record()
//		...
//	}
//	if err := cursor.Err(); err != nil { ... }
//
// A fresh cursor from a new call restarts the scan from the beginning.
type AuditCursor struct {
	rows    *sqlx.Rows
	current *models.CreditValidationAudit
	err     error
}

// Next advances to the next record. It returns false at the end of the
// result set or on error; check Err afterwards to tell the two apart.
func (c *AuditCursor) Next() bool {
	if c.err != nil {
		return false
	}
	if !c.rows.Next() {
		c.err = c.rows.Err()
		c.current = nil
		return false
	}
	var record models.CreditValidationAudit
	if err := c.rows.StructScan(&record); err != nil {
		c.err = &PersistenceError{Op: "scan audit record", Err: err}
		c.current = nil
		return false
	}
	c.current = &record
	return true
}

// Record returns the row the last successful Next call produced.
func (c *AuditCursor) Record() *models.CreditValidationAudit {
	return c.current
}

// Err returns the first error hit while iterating, if any.
func (c *AuditCursor) Err() error {
	return c.err
}

// Close releases the underlying rows. Always call it, Next reaching the
// end does not release the connection on its own.
func (c *AuditCursor) Close() error {
	return c.rows.Close()
}

package models

import (
	"fmt"
	"time"
)

// Status values for a validation attempt. PROCESSING exists only while an
// attempt is in flight; persisted rows carry SUCCESS or ERROR.
const (
	StatusSuccess    = "SUCCESS"
	StatusError      = "ERROR"
	StatusProcessing = "PROCESSING"
)

// DefaultPromptVersion is applied when the caller does not report which
// prompt template produced the response.
const DefaultPromptVersion = "1.0.0"

// Column width limits for the bounded string fields.
const (
	MaxTransactionIDLen = 36
	MaxPersonIDLen      = 36
	MaxDecisionLen      = 20
	MaxProductoLen      = 30
	MaxResumenLen       = 300
	MaxModelVersionLen  = 50
	MaxPromptVersionLen = 20
	MaxStatusLen        = 20
	MaxCreatedByLen     = 100
)

// CreditValidationAudit is one immutable row in credit_validation_audit:
// a single credit-validation attempt with its input snapshots, the model
// response, the extracted verdict and timing/usage metrics.
//
// Only TransactionID and ModelVersion are required. Everything else is
// optional so that attempts that failed mid-flight still leave a row
// (status ERROR plus error_message, nothing more).
type CreditValidationAudit struct {
	ID            int64   `db:"id" json:"id"`
	TransactionID string  `db:"transaction_id" json:"transaction_id"`
	PersonID      *string `db:"person_id" json:"person_id,omitempty"`

	// Point-in-time captures of the upstream payloads. Shapes are owned
	// by the upstream systems and stored opaque.
	InputOCR    JSONB `db:"input_ocr" json:"input_ocr,omitempty"`
	InputBuro   JSONB `db:"input_buro" json:"input_buro,omitempty"`
	InputTruora JSONB `db:"input_truora" json:"input_truora,omitempty"`
	InputTasks  JSONB `db:"input_tasks" json:"input_tasks,omitempty"`

	ConsolidatedPrompt   *string `db:"consolidated_prompt" json:"consolidated_prompt,omitempty"`
	ClaudeResponseRaw    *string `db:"claude_response_raw" json:"claude_response_raw,omitempty"`
	ClaudeResponseParsed JSONB   `db:"claude_response_parsed" json:"claude_response_parsed,omitempty"`

	// Verdict fields extracted from the parsed response.
	Decision             *string  `db:"decision" json:"decision,omitempty"`
	Producto             *string  `db:"producto" json:"producto,omitempty"`
	MontoMaximo          *float64 `db:"monto_maximo" json:"monto_maximo,omitempty"`
	PlazoMaximo          *int     `db:"plazo_maximo" json:"plazo_maximo,omitempty"`
	CapacidadDisponible  *float64 `db:"capacidad_disponible" json:"capacidad_disponible,omitempty"`
	TieneInaceptables    *bool    `db:"tiene_inaceptables" json:"tiene_inaceptables,omitempty"`
	CantidadEmbargos     *int     `db:"cantidad_embargos" json:"cantidad_embargos,omitempty"`
	ProcesosDemandado60M *int     `db:"procesos_demandado_60m" json:"procesos_demandado_60m,omitempty"`
	Resumen              *string  `db:"resumen" json:"resumen,omitempty"`

	TokensInput      *int `db:"tokens_input" json:"tokens_input,omitempty"`
	TokensOutput     *int `db:"tokens_output" json:"tokens_output,omitempty"`
	LatencyKalaAPIMS *int `db:"latency_kala_api_ms" json:"latency_kala_api_ms,omitempty"`
	LatencyClaudeMS  *int `db:"latency_claude_ms" json:"latency_claude_ms,omitempty"`
	LatencyTotalMS   *int `db:"latency_total_ms" json:"latency_total_ms,omitempty"`
	ClaudeRetries    int  `db:"claude_retries" json:"claude_retries"`

	ModelVersion  string  `db:"model_version" json:"model_version"`
	PromptVersion string  `db:"prompt_version" json:"prompt_version"`
	Status        string  `db:"status" json:"status"`
	ErrorMessage  *string `db:"error_message" json:"error_message,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	CreatedBy *string   `db:"created_by" json:"created_by,omitempty"`
}

// ValidationError describes a record rejected before any persistence
// attempt: a missing required field or an oversized bounded string.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid audit record: %s %s", e.Field, e.Reason)
}

// Validate checks required fields and column width limits. It returns a
// *ValidationError describing the first violation found, or nil.
func (r *CreditValidationAudit) Validate() error {
	if r.TransactionID == "" {
		return &ValidationError{Field: "transaction_id", Reason: "is required"}
	}
	if r.ModelVersion == "" {
		return &ValidationError{Field: "model_version", Reason: "is required"}
	}

	bounded := []struct {
		field string
		value string
		max   int
	}{
		{"transaction_id", r.TransactionID, MaxTransactionIDLen},
		{"model_version", r.ModelVersion, MaxModelVersionLen},
		{"prompt_version", r.PromptVersion, MaxPromptVersionLen},
		{"status", r.Status, MaxStatusLen},
		{"person_id", deref(r.PersonID), MaxPersonIDLen},
		{"decision", deref(r.Decision), MaxDecisionLen},
		{"producto", deref(r.Producto), MaxProductoLen},
		{"resumen", deref(r.Resumen), MaxResumenLen},
		{"created_by", deref(r.CreatedBy), MaxCreatedByLen},
	}

	for _, b := range bounded {
		if runeLen(b.value) > b.max {
			return &ValidationError{
				Field:  b.field,
				Reason: fmt.Sprintf("exceeds %d characters", b.max),
			}
		}
	}

	return nil
}

// Normalize applies the column defaults to unset fields so that a record
// built by a partial caller matches what the table itself would store.
func (r *CreditValidationAudit) Normalize() {
	if r.Status == "" {
		r.Status = StatusSuccess
	}
	if r.PromptVersion == "" {
		r.PromptVersion = DefaultPromptVersion
	}
}

// IsError reports whether the attempt ended in an error state.
func (r *CreditValidationAudit) IsError() bool {
	return r.Status == StatusError
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func runeLen(s string) int {
	return len([]rune(s))
}

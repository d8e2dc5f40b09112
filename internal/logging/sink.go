package logging

import (
	"context"

	"credit_audit/internal/models"
)

// Sink receives a copy of every audit record the service stores. Sinks
// are best-effort: the database row is the source of truth, a sink
// failure never fails the insert.
type Sink interface {
	// Enqueue hands one stored record to the sink.
	Enqueue(record *models.CreditValidationAudit) error

	// Shutdown flushes whatever the sink still buffers.
	Shutdown(ctx context.Context) error
}

// NoopSink discards records. Used when archiving is disabled.
type NoopSink struct{}

func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (s *NoopSink) Enqueue(record *models.CreditValidationAudit) error {
	return nil
}

func (s *NoopSink) Shutdown(ctx context.Context) error {
	return nil
}

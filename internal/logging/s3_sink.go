package logging

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"credit_audit/internal/models"
)

// S3SinkConfig holds archive sink settings.
type S3SinkConfig struct {
	FlushSize     int           // flush once this many records are staged
	FlushInterval time.Duration // or after this long, whichever first
}

// DefaultS3SinkConfig returns default sink settings.
func DefaultS3SinkConfig() S3SinkConfig {
	return S3SinkConfig{
		FlushSize:     1000,
		FlushInterval: 5 * time.Minute,
	}
}

// S3Sink implements Sink by staging records in the Redis archive
// buffer and periodically flushing them to S3. Staging in Redis keeps
// the insert path fast and survives a restart mid-batch.
type S3Sink struct {
	buffer *ArchiveBuffer
	writer *S3Writer
	config S3SinkConfig
	logger *zap.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewS3Sink creates the sink and starts its flush loop.
func NewS3Sink(buffer *ArchiveBuffer, writer *S3Writer, cfg S3SinkConfig, logger *zap.Logger) *S3Sink {
	if cfg.FlushSize <= 0 {
		cfg.FlushSize = DefaultS3SinkConfig().FlushSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultS3SinkConfig().FlushInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sink := &S3Sink{
		buffer: buffer,
		writer: writer,
		config: cfg,
		logger: logger.Named("archive-sink"),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	go sink.run()
	return sink
}

// Enqueue stages one record for archiving.
func (s *S3Sink) Enqueue(record *models.CreditValidationAudit) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.buffer.Enqueue(ctx, record); err != nil {
		return fmt.Errorf("failed to stage record for archive: %w", err)
	}
	return nil
}

// Shutdown stops the flush loop and drains the buffer.
func (s *S3Sink) Shutdown(ctx context.Context) error {
	close(s.stopCh)
	<-s.doneCh
	return s.drain(ctx)
}

func (s *S3Sink) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.flushOnce(context.Background(), false)
		case <-s.stopCh:
			return
		}
	}
}

// flushOnce uploads one batch. When force is false it waits until
// FlushSize records are staged, so objects stay reasonably sized.
func (s *S3Sink) flushOnce(ctx context.Context, force bool) {
	length, err := s.buffer.Length(ctx)
	if err != nil {
		s.logger.Error("failed to read archive buffer length", zap.Error(err))
		return
	}
	if length == 0 {
		return
	}
	if !force && length < int64(s.config.FlushSize) {
		return
	}

	records, err := s.buffer.Dequeue(ctx, s.config.FlushSize)
	if err != nil {
		s.logger.Error("failed to dequeue archive batch", zap.Error(err))
		return
	}
	if len(records) == 0 {
		return
	}

	if _, err := s.writer.WriteBatch(ctx, records); err != nil {
		s.logger.Error("failed to archive batch", zap.Int("count", len(records)), zap.Error(err))
	}
}

func (s *S3Sink) drain(ctx context.Context) error {
	for {
		length, err := s.buffer.Length(ctx)
		if err != nil {
			return err
		}
		if length == 0 {
			return nil
		}
		s.flushOnce(ctx, true)

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

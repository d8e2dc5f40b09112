package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"credit_audit/internal/models"
)

// Encryptor encrypts an archive payload before upload. Satisfied by
// storage.Encryption. Bureau and identity snapshots are PII, so
// production archives are expected to set one.
type Encryptor interface {
	Encrypt(plaintext []byte) (string, error)
}

// S3Writer uploads batches of audit records to S3 as JSON Lines
// objects, optionally encrypted at rest.
type S3Writer struct {
	client    *s3.Client
	bucket    string
	prefix    string
	podName   string
	encryptor Encryptor
	logger    *zap.Logger
}

// NewS3Writer creates a writer using the ambient AWS credential chain.
// encryptor may be nil for plaintext archives.
func NewS3Writer(ctx context.Context, bucket, region, prefix, podName string, encryptor Encryptor, logger *zap.Logger) (*S3Writer, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewS3WriterWithClient(s3.NewFromConfig(cfg), bucket, prefix, podName, encryptor, logger), nil
}

// NewS3WriterWithClient creates a writer over a pre-built client. The
// integration tests use it to point at Minio.
func NewS3WriterWithClient(client *s3.Client, bucket, prefix, podName string, encryptor Encryptor, logger *zap.Logger) *S3Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &S3Writer{
		client:    client,
		bucket:    bucket,
		prefix:    prefix,
		podName:   podName,
		encryptor: encryptor,
		logger:    logger.Named("s3-archiver"),
	}
}

// WriteBatch uploads one batch and returns the object key. Key layout:
// prefix/yyyy/mm/dd/pod-timestamp-uuid.jsonl (.jsonl.enc when
// encrypted), so day-level prefixes stay cheap to list.
func (w *S3Writer) WriteBatch(ctx context.Context, records []*models.CreditValidationAudit) (string, error) {
	if len(records) == 0 {
		return "", nil
	}

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	for _, record := range records {
		if err := encoder.Encode(record); err != nil {
			w.logger.Error("failed to encode audit record", zap.Error(err))
			continue
		}
	}

	body := buf.Bytes()
	contentType := "application/x-ndjson"
	extension := "jsonl"

	if w.encryptor != nil {
		encrypted, err := w.encryptor.Encrypt(body)
		if err != nil {
			return "", fmt.Errorf("failed to encrypt archive payload: %w", err)
		}
		body = []byte(encrypted)
		contentType = "text/plain"
		extension = "jsonl.enc"
	}

	now := time.Now().UTC()
	key := fmt.Sprintf("%s%04d/%02d/%02d/%s-%s-%s.%s",
		w.prefix,
		now.Year(),
		now.Month(),
		now.Day(),
		w.podName,
		now.Format("20060102-150405"),
		uuid.NewString(),
		extension,
	)

	_, err := w.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload archive batch: %w", err)
	}

	w.logger.Info("wrote archive batch",
		zap.String("key", key), zap.Int("count", len(records)), zap.Int("bytes", len(body)))
	return key, nil
}

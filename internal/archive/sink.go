package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"reply_engine/internal/models"
	"reply_engine/internal/utils"
)

// Sink receives persisted execution log batches for long-term retention.
// The database row remains the source of truth; the archive is for offline
// analysis.
type Sink interface {
	WriteBatch(ctx context.Context, entries []*models.ExecutionLog) (string, error)
}

// S3Sink writes execution log batches to S3 as JSON Lines files.
type S3Sink struct {
	client  *s3.Client
	bucket  string
	prefix  string
	podName string
	logger  *utils.Logger
}

// NewS3Sink creates an S3 archive sink using ambient AWS credentials.
func NewS3Sink(ctx context.Context, bucket, region, prefix, podName string) (*S3Sink, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &S3Sink{
		client:  s3.NewFromConfig(cfg),
		bucket:  bucket,
		prefix:  prefix,
		podName: podName,
		logger:  utils.NewLogger("s3-archive"),
	}, nil
}

// WriteBatch uploads a batch as one JSONL object and returns its key.
// Key format: execution-logs/2026/08/30/engine-0-20260830-143022-123456789.jsonl
func (s *S3Sink) WriteBatch(ctx context.Context, entries []*models.ExecutionLog) (string, error) {
	if len(entries) == 0 {
		return "", nil
	}

	now := time.Now()
	key := fmt.Sprintf("%s%04d/%02d/%02d/%s-%s-%d.jsonl",
		s.prefix,
		now.Year(),
		now.Month(),
		now.Day(),
		s.podName,
		now.Format("20060102-150405"),
		now.Nanosecond(),
	)

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	for _, entry := range entries {
		if err := encoder.Encode(entry); err != nil {
			s.logger.Error("Failed to encode execution log", "error", err)
			continue
		}
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	s.logger.Info("Archived batch to S3", "key", key, "count", len(entries), "bytes", buf.Len())
	return key, nil
}

// NoopSink discards batches. Used when archiving is disabled.
type NoopSink struct{}

// NewNoopSink creates a sink that drops everything.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

// WriteBatch discards the batch.
func (s *NoopSink) WriteBatch(ctx context.Context, entries []*models.ExecutionLog) (string, error) {
	return "", nil
}

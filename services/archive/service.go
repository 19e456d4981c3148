package archive

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/opentracing/opentracing-go"

	"github.com/dmarcwatch/dmarcwatch/config"
	"github.com/dmarcwatch/dmarcwatch/interfaces"
	"github.com/dmarcwatch/dmarcwatch/internal/logger"
	"github.com/dmarcwatch/dmarcwatch/internal/tracing"
	"github.com/dmarcwatch/dmarcwatch/services/archive/aws_client"
)

// reportArchive keeps the raw XML of every ingested report in an R2 bucket so
// the original payload stays available after the mailbox copy is deleted.
type reportArchive struct {
	client aws_client.S3Client
	bucket string
	log    logger.Logger
}

func NewR2Archive(cfg *config.R2StorageConfig, log logger.Logger) interfaces.ArchiveService {
	return &reportArchive{
		client: aws_client.NewR2Client(cfg.AccountID, cfg.AccessKeyID, cfg.AccessKeySecret),
		bucket: cfg.ReportBucket,
		log:    log,
	}
}

func (s *reportArchive) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "reportArchive.Upload")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("key", key, "size", len(data))

	err := s.client.Upload(ctx, s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to archive %s: %w", key, err)
	}

	return nil
}

func (s *reportArchive) Download(ctx context.Context, key string) ([]byte, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "reportArchive.Download")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("key", key)

	data, err := s.client.Download(ctx, s.bucket, key)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to fetch archived payload %s: %w", key, err)
	}

	return data, nil
}

// ArchiveKey derives the bucket key for a report from its natural identity.
func ArchiveKey(orgName, externalID string) string {
	return fmt.Sprintf("reports/%s/%s.xml", sanitizeSegment(orgName), sanitizeSegment(externalID))
}

func sanitizeSegment(segment string) string {
	segment = strings.ToLower(strings.TrimSpace(segment))
	var b strings.Builder
	for _, r := range segment {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}

package interfaces

import "context"

// ArchiveService stores the raw payload of every ingested report so the
// original document survives mailbox deletion. Failures are logged by the
// caller and never fail the pipeline.
type ArchiveService interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	Download(ctx context.Context, key string) ([]byte, error)
}

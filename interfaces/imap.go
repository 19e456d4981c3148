package interfaces

import (
	"context"
)

// IMAPCollector opens one mailbox session per pipeline run. The session owns
// the connection and must be closed on every exit path.
type IMAPCollector interface {
	OpenSession(ctx context.Context) (CollectorSession, error)
}

type CollectorSession interface {
	// FetchUnseen lists unread report messages and extracts their payloads.
	FetchUnseen(ctx context.Context) ([]ReportBatch, error)
	// Delete flags a processed message deleted and expunges it. Only called
	// after the corresponding report is durably stored.
	Delete(ctx context.Context, uid uint32) error
	Close() error
}

// ReportBatch is one mailbox message's extracted, decompressed payloads.
// Transient; never persisted on its own.
type ReportBatch struct {
	UID     uint32
	Subject string
	From    string

	Payloads []ReportPayload
}

type ReportPayload struct {
	Filename string
	Data     []byte
}

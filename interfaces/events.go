package interfaces

import (
	"context"

	"github.com/dmarcwatch/dmarcwatch/dto"
)

// EventPublisher pushes pipeline outcomes onto the message bus. Publishing is
// best effort from the pipeline's perspective: failures are logged, never
// fatal to a run.
type EventPublisher interface {
	PublishReportProcessed(ctx context.Context, event dto.ReportProcessed) error
	PublishAlertDispatched(ctx context.Context, event dto.AlertDispatched) error
	Close() error
}

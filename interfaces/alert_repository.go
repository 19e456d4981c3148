package interfaces

import (
	"context"
	"time"

	"github.com/dmarcwatch/dmarcwatch/internal/enum"
	"github.com/dmarcwatch/dmarcwatch/internal/models"
)

type AlertRepository interface {
	Create(ctx context.Context, alert *models.Alert) error
	MarkDispatched(ctx context.Context, id string, sentAt time.Time, recipients []string) error
	// LastDispatchedAt returns the newest sent_at for the (type, domain) pair,
	// nil when nothing was ever dispatched. This anchors the sliding throttle
	// window.
	LastDispatchedAt(ctx context.Context, alertType enum.AlertType, policyDomain string) (*time.Time, error)
	CountDispatchedSince(ctx context.Context, alertType enum.AlertType, policyDomain string, since time.Time) (int64, error)
	CountDispatched(ctx context.Context) (int64, error)
	List(ctx context.Context, severity enum.AlertSeverity, limit, offset int) ([]models.Alert, int64, error)
	ListByReport(ctx context.Context, reportID string) ([]models.Alert, error)
}

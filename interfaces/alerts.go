package interfaces

import (
	"context"

	"github.com/dmarcwatch/dmarcwatch/dto"
	"github.com/dmarcwatch/dmarcwatch/internal/models"
)

// AlertEvaluator turns a processed report into zero or more alerts eligible
// for dispatch. Throttled candidates are persisted and logged but not
// returned.
type AlertEvaluator interface {
	Evaluate(ctx context.Context, report *models.Report, records []models.Record, verdict *dto.Verdict) ([]*models.Alert, error)
}

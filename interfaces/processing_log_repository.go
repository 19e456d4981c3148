package interfaces

import (
	"context"

	"github.com/dmarcwatch/dmarcwatch/internal/enum"
	"github.com/dmarcwatch/dmarcwatch/internal/models"
)

type ProcessingLogRepository interface {
	Create(ctx context.Context, entry *models.ProcessingLog) error
	LastByJobType(ctx context.Context, jobType enum.JobType) (*models.ProcessingLog, error)
	List(ctx context.Context, limit int) ([]models.ProcessingLog, error)
}

package interfaces

import (
	"context"

	"github.com/dmarcwatch/dmarcwatch/internal/enum"
	"github.com/dmarcwatch/dmarcwatch/internal/models"
)

type ReportRepository interface {
	// SaveWithRecords persists the report and its records in one transaction;
	// either everything commits or nothing does.
	SaveWithRecords(ctx context.Context, report *models.Report, records []models.Record) error
	Update(ctx context.Context, report *models.Report) error
	UpdateStatus(ctx context.Context, id string, status enum.ReportStatus, detail string) error
	GetByID(ctx context.Context, id string) (*models.Report, error)
	GetByOrgAndExternalID(ctx context.Context, orgName, externalID string) (*models.Report, error)
	List(ctx context.Context, limit, offset int) ([]models.Report, int64, error)
	GetRecords(ctx context.Context, reportID string) ([]models.Record, error)
	AggregateStats(ctx context.Context) (*models.ReportStats, error)
}

package repository

import (
	"context"
	"fmt"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/dmarcwatch/dmarcwatch/interfaces"
	"github.com/dmarcwatch/dmarcwatch/internal/enum"
	"github.com/dmarcwatch/dmarcwatch/internal/models"
	"github.com/dmarcwatch/dmarcwatch/internal/tracing"
	"github.com/dmarcwatch/dmarcwatch/internal/utils"
)

type reportRepository struct {
	db *gorm.DB
}

func NewReportRepository(db *gorm.DB) interfaces.ReportRepository {
	return &reportRepository{db: db}
}

// SaveWithRecords persists a report together with its records in a single
// transaction. Mailbox messages are only deleted after this returns nil.
func (r *reportRepository) SaveWithRecords(ctx context.Context, report *models.Report, records []models.Record) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "reportRepository.SaveWithRecords")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.LogKV("orgName", report.OrgName, "externalId", report.ExternalID, "records", len(records))

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(report).Error; err != nil {
			return err
		}
		for i := range records {
			records[i].ReportID = report.ID
			records[i].RowOrder = i
		}
		if len(records) > 0 {
			if err := tx.Create(&records).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to save report: %w", err)
	}

	tracing.TagEntity(span, report.ID)
	return nil
}

func (r *reportRepository) Update(ctx context.Context, report *models.Report) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "reportRepository.Update")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, report.ID)

	report.UpdatedAt = utils.Now()
	if err := r.db.WithContext(ctx).Save(report).Error; err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to update report: %w", err)
	}

	return nil
}

func (r *reportRepository) UpdateStatus(ctx context.Context, id string, status enum.ReportStatus, detail string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "reportRepository.UpdateStatus")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)
	span.LogKV("status", status.String())

	updates := map[string]interface{}{
		"status":     status,
		"updated_at": utils.Now(),
	}
	if detail != "" {
		updates["status_detail"] = detail
	}
	if status == enum.ReportStatusAlerted || status == enum.ReportStatusSkipped || status == enum.ReportStatusAnalyzed {
		updates["processed_at"] = utils.Now()
	}

	result := r.db.WithContext(ctx).
		Model(&models.Report{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return fmt.Errorf("failed to update report status: %w", result.Error)
	}

	return nil
}

func (r *reportRepository) GetByID(ctx context.Context, id string) (*models.Report, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "reportRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	var report models.Report
	result := r.db.WithContext(ctx).Where("id = ?", id).First(&report)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		tracing.TraceErr(span, result.Error)
		return nil, fmt.Errorf("failed to get report: %w", result.Error)
	}

	return &report, nil
}

// GetByOrgAndExternalID answers the duplicate-delivery check; nil means the
// report was never ingested.
func (r *reportRepository) GetByOrgAndExternalID(ctx context.Context, orgName, externalID string) (*models.Report, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "reportRepository.GetByOrgAndExternalID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.LogKV("orgName", orgName, "externalId", externalID)

	var report models.Report
	result := r.db.WithContext(ctx).
		Where("org_name = ? AND external_id = ?", orgName, externalID).
		First(&report)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		tracing.TraceErr(span, result.Error)
		return nil, fmt.Errorf("failed to get report by org and external id: %w", result.Error)
	}

	return &report, nil
}

func (r *reportRepository) List(ctx context.Context, limit, offset int) ([]models.Report, int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "reportRepository.List")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Report{}).Count(&total).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, 0, fmt.Errorf("failed to count reports: %w", err)
	}

	var reports []models.Report
	err := r.db.WithContext(ctx).
		Order("date_begin DESC").
		Limit(limit).
		Offset(offset).
		Find(&reports).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, 0, fmt.Errorf("failed to list reports: %w", err)
	}

	return reports, total, nil
}

func (r *reportRepository) GetRecords(ctx context.Context, reportID string) ([]models.Record, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "reportRepository.GetRecords")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, reportID)

	var records []models.Record
	err := r.db.WithContext(ctx).
		Where("report_id = ?", reportID).
		Order("row_order ASC").
		Find(&records).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to get records: %w", err)
	}

	return records, nil
}

func (r *reportRepository) AggregateStats(ctx context.Context) (*models.ReportStats, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "reportRepository.AggregateStats")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var stats models.ReportStats
	err := r.db.WithContext(ctx).
		Model(&models.Report{}).
		Select("COUNT(*) AS total_reports, COALESCE(SUM(total_messages), 0) AS total_messages, COALESCE(SUM(spf_pass), 0) AS spf_pass, COALESCE(SUM(dkim_pass), 0) AS dkim_pass, COALESCE(SUM(dmarc_pass), 0) AS dmarc_pass").
		Scan(&stats).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to aggregate report stats: %w", err)
	}

	return &stats, nil
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/dmarcwatch/dmarcwatch/interfaces"
	"github.com/dmarcwatch/dmarcwatch/internal/enum"
	"github.com/dmarcwatch/dmarcwatch/internal/models"
	"github.com/dmarcwatch/dmarcwatch/internal/tracing"
	"github.com/dmarcwatch/dmarcwatch/internal/utils"
)

type alertRepository struct {
	db *gorm.DB
}

func NewAlertRepository(db *gorm.DB) interfaces.AlertRepository {
	return &alertRepository{db: db}
}

func (r *alertRepository) Create(ctx context.Context, alert *models.Alert) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "alertRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.LogKV("type", alert.Type.String(), "policyDomain", alert.PolicyDomain)

	if err := r.db.WithContext(ctx).Create(alert).Error; err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to create alert: %w", err)
	}

	tracing.TagEntity(span, alert.ID)
	return nil
}

func (r *alertRepository) MarkDispatched(ctx context.Context, id string, sentAt time.Time, recipients []string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "alertRepository.MarkDispatched")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	result := r.db.WithContext(ctx).
		Model(&models.Alert{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"email_sent": true,
			"sent_at":    sentAt,
			"recipients": pq.StringArray(recipients),
			"updated_at": utils.Now(),
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return fmt.Errorf("failed to mark alert dispatched: %w", result.Error)
	}

	return nil
}

// LastDispatchedAt anchors the sliding throttle window on the newest
// dispatched alert of the same type and domain.
func (r *alertRepository) LastDispatchedAt(ctx context.Context, alertType enum.AlertType, policyDomain string) (*time.Time, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "alertRepository.LastDispatchedAt")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.LogKV("type", alertType.String(), "policyDomain", policyDomain)

	var alert models.Alert
	result := r.db.WithContext(ctx).
		Where("type = ? AND policy_domain = ? AND email_sent = ?", alertType, policyDomain, true).
		Order("sent_at DESC").
		First(&alert)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		tracing.TraceErr(span, result.Error)
		return nil, fmt.Errorf("failed to get last dispatched alert: %w", result.Error)
	}

	return alert.SentAt, nil
}

func (r *alertRepository) CountDispatchedSince(ctx context.Context, alertType enum.AlertType, policyDomain string, since time.Time) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "alertRepository.CountDispatchedSince")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.LogKV("type", alertType.String(), "policyDomain", policyDomain, "since", since.String())

	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Alert{}).
		Where("type = ? AND policy_domain = ? AND email_sent = ? AND sent_at > ?", alertType, policyDomain, true, since).
		Count(&count).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, fmt.Errorf("failed to count dispatched alerts: %w", err)
	}

	return count, nil
}

func (r *alertRepository) CountDispatched(ctx context.Context) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "alertRepository.CountDispatched")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Alert{}).
		Where("email_sent = ?", true).
		Count(&count).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, fmt.Errorf("failed to count dispatched alerts: %w", err)
	}

	return count, nil
}

func (r *alertRepository) List(ctx context.Context, severity enum.AlertSeverity, limit, offset int) ([]models.Alert, int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "alertRepository.List")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	query := r.db.WithContext(ctx).Model(&models.Alert{})
	if severity != "" {
		query = query.Where("severity = ?", severity)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, 0, fmt.Errorf("failed to count alerts: %w", err)
	}

	var alerts []models.Alert
	err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&alerts).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, 0, fmt.Errorf("failed to list alerts: %w", err)
	}

	return alerts, total, nil
}

func (r *alertRepository) ListByReport(ctx context.Context, reportID string) ([]models.Alert, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "alertRepository.ListByReport")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, reportID)

	var alerts []models.Alert
	err := r.db.WithContext(ctx).
		Where("report_id = ?", reportID).
		Order("created_at ASC").
		Find(&alerts).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to list alerts for report: %w", err)
	}

	return alerts, nil
}

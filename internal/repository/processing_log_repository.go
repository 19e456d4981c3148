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
)

type processingLogRepository struct {
	db *gorm.DB
}

func NewProcessingLogRepository(db *gorm.DB) interfaces.ProcessingLogRepository {
	return &processingLogRepository{db: db}
}

func (r *processingLogRepository) Create(ctx context.Context, entry *models.ProcessingLog) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "processingLogRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to create processing log entry: %w", err)
	}

	return nil
}

func (r *processingLogRepository) LastByJobType(ctx context.Context, jobType enum.JobType) (*models.ProcessingLog, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "processingLogRepository.LastByJobType")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.LogKV("jobType", jobType.String())

	var entry models.ProcessingLog
	result := r.db.WithContext(ctx).
		Where("job_type = ?", jobType).
		Order("created_at DESC").
		First(&entry)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		tracing.TraceErr(span, result.Error)
		return nil, fmt.Errorf("failed to get last processing log entry: %w", result.Error)
	}

	return &entry, nil
}

func (r *processingLogRepository) List(ctx context.Context, limit int) ([]models.ProcessingLog, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "processingLogRepository.List")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var entries []models.ProcessingLog
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to list processing log entries: %w", err)
	}

	return entries, nil
}

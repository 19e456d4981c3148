package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/dmarcwatch/dmarcwatch/internal/enum"
	"github.com/dmarcwatch/dmarcwatch/internal/utils"
)

// ProcessingLog is one append-only audit row per pipeline run or per
// sub-stage failure.
type ProcessingLog struct {
	ID    string `gorm:"column:id;type:varchar(50);primaryKey"`
	RunID string `gorm:"column:run_id;type:varchar(50);index"`

	JobType enum.JobType   `gorm:"column:job_type;type:varchar(50);index;not null"`
	Status  enum.JobStatus `gorm:"column:status;type:varchar(20);index;not null"`

	Message string  `gorm:"column:message;type:text"`
	Details JSONMap `gorm:"column:details;type:jsonb"`

	DurationMs int64 `gorm:"column:duration_ms"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
}

func (ProcessingLog) TableName() string {
	return "dmarc_processing_logs"
}

func (p *ProcessingLog) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = utils.GenerateNanoIDWithPrefix("plog", 12)
	}
	p.CreatedAt = utils.Now()
	return nil
}

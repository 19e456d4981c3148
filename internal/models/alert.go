package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/dmarcwatch/dmarcwatch/internal/enum"
	"github.com/dmarcwatch/dmarcwatch/internal/utils"
)

// Alert is one raised notification. Immutable once dispatched; SentAt stays
// nil when delivery failed or the candidate was throttled.
type Alert struct {
	ID       string `gorm:"column:id;type:varchar(50);primaryKey"`
	ReportID string `gorm:"column:report_id;type:varchar(50);index;not null"`

	Type     enum.AlertType     `gorm:"column:type;type:varchar(50);index;not null"`
	Severity enum.AlertSeverity `gorm:"column:severity;type:varchar(20);index"`

	// Throttle key together with Type
	PolicyDomain string `gorm:"column:policy_domain;type:varchar(255);index;not null"`

	Title   string  `gorm:"column:title;type:varchar(500)"`
	Message string  `gorm:"column:message;type:text"`
	Details JSONMap `gorm:"column:details;type:jsonb"`

	// Snapshot of where the alert actually went
	Recipients pq.StringArray `gorm:"column:recipients;type:text[]"`

	Throttled bool       `gorm:"column:throttled;default:false"`
	EmailSent bool       `gorm:"column:email_sent;default:false"`
	SentAt    *time.Time `gorm:"column:sent_at;type:timestamp;index"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp"`
}

func (Alert) TableName() string {
	return "dmarc_alerts"
}

func (a *Alert) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = utils.GenerateNanoIDWithPrefix("alrt", 16)
	}
	a.CreatedAt = utils.Now()
	return nil
}

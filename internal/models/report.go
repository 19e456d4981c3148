package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/dmarcwatch/dmarcwatch/internal/enum"
	"github.com/dmarcwatch/dmarcwatch/internal/utils"
)

// Report is one ingested DMARC aggregate report. (OrgName, ExternalID) is
// unique: re-delivered reports are detected there and skipped.
type Report struct {
	ID            string `gorm:"column:id;type:varchar(50);primaryKey"`
	OrgName       string `gorm:"column:org_name;type:varchar(255);not null;uniqueIndex:idx_dmarc_reports_org_external,priority:1"`
	ExternalID    string `gorm:"column:external_id;type:varchar(255);not null;uniqueIndex:idx_dmarc_reports_org_external,priority:2"`
	ReporterEmail string `gorm:"column:reporter_email;type:varchar(255)"`

	// Reporting window, UTC
	DateBegin time.Time `gorm:"column:date_begin;type:timestamp;index"`
	DateEnd   time.Time `gorm:"column:date_end;type:timestamp"`

	// Published policy
	PolicyDomain    string `gorm:"column:policy_domain;type:varchar(255);index;not null"`
	Adkim           string `gorm:"column:adkim;type:varchar(10)"`
	Aspf            string `gorm:"column:aspf;type:varchar(10)"`
	Policy          string `gorm:"column:policy;type:varchar(20)"`
	SubdomainPolicy string `gorm:"column:subdomain_policy;type:varchar(20)"`
	Percent         int    `gorm:"column:percent;default:100"`

	// Aggregate counters
	TotalMessages int `gorm:"column:total_messages;type:integer"`
	SPFPass       int `gorm:"column:spf_pass;type:integer"`
	DKIMPass      int `gorm:"column:dkim_pass;type:integer"`
	DMARCPass     int `gorm:"column:dmarc_pass;type:integer"`

	// Provenance
	SourceProvider string `gorm:"column:source_provider;type:varchar(255)"`
	ArchiveKey     string `gorm:"column:archive_key;type:varchar(1000)"`

	// Analysis outcome, nullable until the analysis stage ran
	Verdict JSONMap `gorm:"column:verdict;type:jsonb"`

	Status       enum.ReportStatus `gorm:"column:status;type:varchar(20);index;not null"`
	StatusDetail string            `gorm:"column:status_detail;type:text"`

	ReceivedAt  time.Time  `gorm:"column:received_at;type:timestamp"`
	ProcessedAt *time.Time `gorm:"column:processed_at;type:timestamp"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp"`

	Records []Record `gorm:"foreignKey:ReportID;constraint:OnDelete:CASCADE"`
}

func (Report) TableName() string {
	return "dmarc_reports"
}

func (r *Report) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = utils.GenerateNanoIDWithPrefix("rpt", 16)
	}
	r.CreatedAt = utils.Now()
	return nil
}

// Record is one authentication-result row within a Report, in document order.
type Record struct {
	ID       string `gorm:"column:id;type:varchar(50);primaryKey"`
	ReportID string `gorm:"column:report_id;type:varchar(50);index;not null"`
	RowOrder int    `gorm:"column:row_order;not null"`

	SourceIP string `gorm:"column:source_ip;type:varchar(45);index;not null"`
	Count    int    `gorm:"column:count;not null"`

	Disposition enum.Disposition `gorm:"column:disposition;type:varchar(20)"`
	SPFResult   enum.AuthResult  `gorm:"column:spf_result;type:varchar(20)"`
	DKIMResult  enum.AuthResult  `gorm:"column:dkim_result;type:varchar(20)"`

	HeaderFrom   string `gorm:"column:header_from;type:varchar(255)"`
	EnvelopeFrom string `gorm:"column:envelope_from;type:varchar(255)"`

	// Raw auth_results detail
	SPFDomain        string `gorm:"column:spf_domain;type:varchar(255)"`
	SPFScope         string `gorm:"column:spf_scope;type:varchar(20)"`
	SPFResultDetail  string `gorm:"column:spf_result_detail;type:varchar(20)"`
	DKIMDomain       string `gorm:"column:dkim_domain;type:varchar(255)"`
	DKIMSelector     string `gorm:"column:dkim_selector;type:varchar(255)"`
	DKIMResultDetail string `gorm:"column:dkim_result_detail;type:varchar(20)"`

	// Set when a value outside the schema vocabulary was coerced to unknown
	Flagged bool `gorm:"column:flagged;default:false"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
}

func (Record) TableName() string {
	return "dmarc_records"
}

func (r *Record) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = utils.GenerateNanoIDWithPrefix("rec", 16)
	}
	r.CreatedAt = utils.Now()
	return nil
}

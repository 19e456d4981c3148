package dto

import "github.com/dmarcwatch/dmarcwatch/internal/enum"

// ReportProcessed is published after a report finished the pipeline,
// whatever its terminal status.
type ReportProcessed struct {
	ReportID      string            `json:"reportId"`
	OrgName       string            `json:"orgName"`
	ExternalID    string            `json:"externalId"`
	PolicyDomain  string            `json:"policyDomain"`
	Status        enum.ReportStatus `json:"status"`
	TotalMessages int               `json:"totalMessages"`
	RecordCount   int               `json:"recordCount"`
	AlertCount    int               `json:"alertCount"`
}

// AlertDispatched is published after the notifier delivered an alert email.
type AlertDispatched struct {
	AlertID      string             `json:"alertId"`
	ReportID     string             `json:"reportId"`
	Type         enum.AlertType     `json:"type"`
	Severity     enum.AlertSeverity `json:"severity"`
	PolicyDomain string             `json:"policyDomain"`
	Recipients   []string           `json:"recipients"`
}

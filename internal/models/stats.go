package models

// ReportStats aggregates persisted report counters for the stats endpoint.
// Not a table; scanned from an aggregate select.
type ReportStats struct {
	TotalReports  int64 `gorm:"column:total_reports" json:"totalReports"`
	TotalMessages int64 `gorm:"column:total_messages" json:"totalMessages"`
	SPFPass       int64 `gorm:"column:spf_pass" json:"spfPass"`
	DKIMPass      int64 `gorm:"column:dkim_pass" json:"dkimPass"`
	DMARCPass     int64 `gorm:"column:dmarc_pass" json:"dmarcPass"`
}

func (s *ReportStats) SPFPassRate() float64 {
	return s.rate(s.SPFPass)
}

func (s *ReportStats) DKIMPassRate() float64 {
	return s.rate(s.DKIMPass)
}

func (s *ReportStats) DMARCPassRate() float64 {
	return s.rate(s.DMARCPass)
}

func (s *ReportStats) rate(pass int64) float64 {
	if s.TotalMessages == 0 {
		return 0
	}
	return float64(pass) / float64(s.TotalMessages) * 100
}

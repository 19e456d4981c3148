package enum

type ReportStatus string

const (
	ReportStatusReceived ReportStatus = "received"
	ReportStatusParsed   ReportStatus = "parsed"
	ReportStatusAnalyzed ReportStatus = "analyzed"
	ReportStatusAlerted  ReportStatus = "alerted"
	ReportStatusSkipped  ReportStatus = "skipped"
	ReportStatusFailed   ReportStatus = "failed"
)

func (t ReportStatus) String() string {
	return string(t)
}

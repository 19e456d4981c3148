package enum

type JobType string

const (
	JobProcessReports JobType = "process_reports"
	JobIngestReport   JobType = "ingest_report"
)

func (t JobType) String() string {
	return string(t)
}

type JobStatus string

const (
	JobStatusSuccess JobStatus = "success"
	JobStatusPartial JobStatus = "partial"
	JobStatusFailed  JobStatus = "failed"
	JobStatusSkipped JobStatus = "skipped"
)

func (t JobStatus) String() string {
	return string(t)
}

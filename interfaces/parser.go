package interfaces

import (
	"context"

	"github.com/dmarcwatch/dmarcwatch/internal/models"
)

// ReportParser decodes one raw aggregate-report payload. Individual defective
// records never fail the parse; they surface in Skipped.
type ReportParser interface {
	Parse(ctx context.Context, payload []byte) (*ParsedReport, error)
}

type ParsedReport struct {
	Report  *models.Report
	Records []models.Record
	Skipped []SkippedRecord
}

// SkippedRecord explains why one record block was left out of the result.
type SkippedRecord struct {
	Index  int
	Reason string
}

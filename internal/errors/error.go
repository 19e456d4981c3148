package errors

import "github.com/pkg/errors"

var (
	// mailbox errors
	ErrConnectionFailed     = errors.New("mailbox connection failed")
	ErrAuthenticationFailed = errors.New("mailbox authentication rejected")

	// report errors
	ErrMalformedReport = errors.New("malformed aggregate report")
	ErrDuplicateReport = errors.New("report already ingested")
	ErrReportNotFound  = errors.New("report not found")

	// downstream errors
	ErrAnalysisUnavailable = errors.New("analysis service unavailable")
	ErrDeliveryFailed      = errors.New("alert delivery failed")
)

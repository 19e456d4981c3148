package interfaces

import (
	"context"

	"github.com/dmarcwatch/dmarcwatch/internal/models"
)

// ReportPipeline runs the collect, parse, analyze, alert chain.
type ReportPipeline interface {
	// Process executes one full mailbox run under the configured run
	// deadline. The returned error covers run-level setup failures only;
	// per-batch failures are absorbed into the result counters.
	Process(ctx context.Context) (*RunResult, error)

	// Ingest pushes one already-extracted payload through the parse stage and
	// everything downstream, bypassing the mailbox. Serves direct ingestion
	// over HTTP.
	Ingest(ctx context.Context, payload ReportPayload, sourceProvider string) (*models.Report, error)
}

// RunResult summarizes one pipeline run; persisted as the run's processing
// log entry.
type RunResult struct {
	RunID     string `json:"runId"`
	Messages  int    `json:"messages"`
	Processed int    `json:"processed"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
	Alerts    int    `json:"alerts"`
}

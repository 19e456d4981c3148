package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"

	"github.com/dmarcwatch/dmarcwatch/config"
	"github.com/dmarcwatch/dmarcwatch/dto"
	"github.com/dmarcwatch/dmarcwatch/interfaces"
	"github.com/dmarcwatch/dmarcwatch/internal/enum"
	er "github.com/dmarcwatch/dmarcwatch/internal/errors"
	"github.com/dmarcwatch/dmarcwatch/internal/logger"
	"github.com/dmarcwatch/dmarcwatch/internal/models"
	"github.com/dmarcwatch/dmarcwatch/internal/repository"
	"github.com/dmarcwatch/dmarcwatch/internal/tracing"
	"github.com/dmarcwatch/dmarcwatch/internal/utils"
	"github.com/dmarcwatch/dmarcwatch/services/analysis"
	"github.com/dmarcwatch/dmarcwatch/services/archive"
)

const rawReportContentType = "application/xml"

// Processor drives one report batch at a time through parse, persist,
// analyze, alert and notify. Batches are processed strictly sequentially: the
// mailbox session and the throttle bookkeeping are shared state, and alert
// dispatch ordering against the throttle window needs a single writer.
type Processor struct {
	cfg       *config.PipelineConfig
	log       logger.Logger
	collector interfaces.IMAPCollector
	parser    interfaces.ReportParser
	analysis  interfaces.AnalysisService
	evaluator interfaces.AlertEvaluator
	notifier  interfaces.NotifierService
	archive   interfaces.ArchiveService
	events    interfaces.EventPublisher
	repos     *repository.Repositories
}

func NewProcessor(
	cfg *config.PipelineConfig,
	log logger.Logger,
	collector interfaces.IMAPCollector,
	parser interfaces.ReportParser,
	analysisService interfaces.AnalysisService,
	evaluator interfaces.AlertEvaluator,
	notifier interfaces.NotifierService,
	archiveService interfaces.ArchiveService,
	events interfaces.EventPublisher,
	repos *repository.Repositories,
) interfaces.ReportPipeline {
	return &Processor{
		cfg:       cfg,
		log:       log,
		collector: collector,
		parser:    parser,
		analysis:  analysisService,
		evaluator: evaluator,
		notifier:  notifier,
		archive:   archiveService,
		events:    events,
		repos:     repos,
	}
}

// Process executes one run. Only mailbox setup failures surface as errors;
// everything past that point degrades per batch and lands in the counters.
func (p *Processor) Process(ctx context.Context) (*interfaces.RunResult, error) {
	runID := uuid.New().String()
	ctx = utils.SetRunIDInContext(ctx, runID)

	span, ctx := opentracing.StartSpanFromContext(ctx, "Processor.Process")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagRun(span, runID)

	started := utils.Now()
	result := &interfaces.RunResult{RunID: runID}
	p.log.Infof("starting report processing run %s", runID)

	// Stages run under the run deadline; the outer context stays alive for
	// the final bookkeeping even when the deadline fires mid-run.
	runCtx, cancel := context.WithTimeout(ctx, time.Duration(p.cfg.RunDeadlineSeconds)*time.Second)
	defer cancel()

	session, err := p.collector.OpenSession(runCtx)
	if err != nil {
		tracing.TraceErr(span, err)
		if errors.Is(err, er.ErrAuthenticationFailed) {
			p.log.Errorf("run %s aborted, mailbox credentials rejected: %v", runID, err)
		} else {
			p.log.Errorf("run %s aborted, mailbox unreachable: %v", runID, err)
		}
		p.recordRun(ctx, result, enum.JobStatusFailed, err.Error(), started)
		return result, err
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			p.log.Warnf("failed to close mailbox session: %v", closeErr)
		}
	}()

	batches, err := session.FetchUnseen(runCtx)
	if err != nil {
		tracing.TraceErr(span, err)
		p.log.Errorf("run %s aborted, fetch failed: %v", runID, err)
		p.recordRun(ctx, result, enum.JobStatusFailed, err.Error(), started)
		return result, err
	}

	result.Messages = len(batches)
	if len(batches) == 0 {
		p.log.Debugf("run %s found no unseen report messages", runID)
		p.recordRun(ctx, result, enum.JobStatusSuccess, "no unseen messages", started)
		return result, nil
	}

	deadlineHit := false
	for _, batch := range batches {
		if runCtx.Err() != nil {
			deadlineHit = true
			p.log.Warnf("run %s hit its deadline, abandoning remaining messages", runID)
			break
		}
		p.processBatch(runCtx, session, batch, result)
	}

	status := enum.JobStatusSuccess
	message := "run completed"
	switch {
	case deadlineHit:
		status = enum.JobStatusFailed
		message = "run deadline exceeded"
	case result.Failed > 0:
		status = enum.JobStatusPartial
		message = "run completed with failures"
	}

	span.LogFields(
		log.Int("messages", result.Messages),
		log.Int("processed", result.Processed),
		log.Int("skipped", result.Skipped),
		log.Int("failed", result.Failed),
		log.Int("alerts", result.Alerts),
	)
	p.recordRun(ctx, result, status, message, started)
	p.log.Infof("run %s finished: %d processed, %d skipped, %d failed, %d alerts",
		runID, result.Processed, result.Skipped, result.Failed, result.Alerts)
	return result, nil
}

// processBatch handles one mailbox message. The message is deleted only when
// every payload in it reached a terminal outcome; a malformed or unpersisted
// payload keeps the whole message on the server.
func (p *Processor) processBatch(ctx context.Context, session interfaces.CollectorSession, batch interfaces.ReportBatch, result *interfaces.RunResult) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Processor.processBatch")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("message.uid", batch.UID)

	retain := false
	func() {
		defer func() {
			if r := recover(); r != nil {
				tracing.TraceErr(span, errors.Errorf("panic: %v", r))
				p.log.Errorf("panic while processing message %d: %v", batch.UID, r)
				p.recordStageFailure(ctx, "message processing panicked", models.JSONMap{
					"uid":   batch.UID,
					"panic": errors.Errorf("%v", r).Error(),
				})
				result.Failed++
				retain = true
			}
		}()

		for _, payload := range batch.Payloads {
			if p.processPayload(ctx, batch, payload, result) {
				retain = true
			}
		}
	}()

	if retain {
		p.log.Warnf("retaining message %d for the next run", batch.UID)
		return
	}

	if err := session.Delete(ctx, batch.UID); err != nil {
		tracing.TraceErr(span, err)
		p.log.Warnf("failed to delete processed message %d: %v", batch.UID, err)
	}
}

// processPayload reports whether the owning message must be retained.
func (p *Processor) processPayload(ctx context.Context, batch interfaces.ReportBatch, payload interfaces.ReportPayload, result *interfaces.RunResult) bool {
	sourceProvider := utils.FirstNonEmpty(
		utils.ProviderFromReportFilename(payload.Filename),
		utils.ExtractDomainFromEmail(batch.From),
	)

	_, err := p.ingestReport(ctx, payload, sourceProvider, result)
	switch {
	case err == nil:
		result.Processed++
		return false
	case errors.Is(err, er.ErrDuplicateReport):
		// Already ingested on a previous run; the message itself is done.
		p.log.Infof("payload %s from message %d already ingested, skipping", payload.Filename, batch.UID)
		result.Skipped++
		return false
	case errors.Is(err, er.ErrMalformedReport):
		p.log.Warnf("payload %s from message %d is malformed: %v", payload.Filename, batch.UID, err)
		p.recordStageFailure(ctx, "malformed report payload", models.JSONMap{
			"uid":      batch.UID,
			"filename": payload.Filename,
			"error":    err.Error(),
		})
		result.Failed++
		return true
	default:
		p.log.Errorf("failed to ingest payload %s from message %d: %v", payload.Filename, batch.UID, err)
		p.recordStageFailure(ctx, "report ingestion failed", models.JSONMap{
			"uid":      batch.UID,
			"filename": payload.Filename,
			"error":    err.Error(),
		})
		result.Failed++
		return true
	}
}

// Ingest runs one payload through the pipeline outside a mailbox run.
func (p *Processor) Ingest(ctx context.Context, payload interfaces.ReportPayload, sourceProvider string) (*models.Report, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Processor.Ingest")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("filename", payload.Filename)

	started := utils.Now()
	report, err := p.ingestReport(ctx, payload, sourceProvider, &interfaces.RunResult{})

	entry := &models.ProcessingLog{
		RunID:      utils.GetRunIDFromContext(ctx),
		JobType:    enum.JobIngestReport,
		Status:     enum.JobStatusSuccess,
		Message:    "report ingested",
		DurationMs: time.Since(started).Milliseconds(),
		Details:    models.JSONMap{"filename": payload.Filename},
	}
	if err != nil {
		tracing.TraceErr(span, err)
		entry.Status = enum.JobStatusFailed
		entry.Message = err.Error()
		if errors.Is(err, er.ErrDuplicateReport) {
			entry.Status = enum.JobStatusSkipped
		}
	} else {
		entry.Details["reportId"] = report.ID
	}
	if logErr := p.repos.ProcessingLogRepository.Create(ctx, entry); logErr != nil {
		p.log.Errorf("failed to record ingestion outcome: %v", logErr)
	}

	return report, err
}

// ingestReport is the shared payload path: parse, dedup, archive, persist,
// analyze, evaluate, notify, publish. Failures past the persist stage are
// stage-local: they are logged and recorded but never undo the stored report.
func (p *Processor) ingestReport(ctx context.Context, payload interfaces.ReportPayload, sourceProvider string, result *interfaces.RunResult) (*models.Report, error) {
	parsed, err := p.parser.Parse(ctx, payload.Data)
	if err != nil {
		return nil, err
	}

	report := parsed.Report
	report.SourceProvider = sourceProvider

	existing, err := p.repos.ReportRepository.GetByOrgAndExternalID(ctx, report.OrgName, report.ExternalID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errors.Wrapf(er.ErrDuplicateReport, "org %s report %s", report.OrgName, report.ExternalID)
	}

	p.archiveRawPayload(ctx, report, payload.Data)

	if err := p.repos.ReportRepository.SaveWithRecords(ctx, report, parsed.Records); err != nil {
		return nil, err
	}
	p.log.Infof("stored report %s from %s covering %s with %d records",
		report.ExternalID, report.OrgName, report.PolicyDomain, len(parsed.Records))

	verdict := p.analysis.Analyze(ctx, analysis.BuildSummary(report, parsed.Records))

	report.Verdict = models.JSONMapOf(verdict)
	report.Status = enum.ReportStatusAnalyzed
	report.StatusDetail = ""
	if !verdict.IsAvailable() {
		report.StatusDetail = "analysis unavailable, record-only alerting applied"
	}
	report.ProcessedAt = utils.NowPtr()
	if err := p.repos.ReportRepository.Update(ctx, report); err != nil {
		p.log.Errorf("failed to store verdict for report %s: %v", report.ID, err)
		p.recordStageFailure(ctx, "verdict persistence failed", models.JSONMap{
			"reportId": report.ID,
			"error":    err.Error(),
		})
	}

	dispatched := p.evaluateAndNotify(ctx, report, parsed.Records, verdict, result)
	if dispatched > 0 {
		if err := p.repos.ReportRepository.UpdateStatus(ctx, report.ID, enum.ReportStatusAlerted, ""); err != nil {
			p.log.Errorf("failed to update report %s status: %v", report.ID, err)
		}
		report.Status = enum.ReportStatusAlerted
	}

	p.publishReportProcessed(ctx, report, len(parsed.Records), dispatched)
	return report, nil
}

func (p *Processor) archiveRawPayload(ctx context.Context, report *models.Report, data []byte) {
	if p.archive == nil {
		return
	}

	key := archive.ArchiveKey(report.OrgName, report.ExternalID)
	if err := p.archive.Upload(ctx, key, data, rawReportContentType); err != nil {
		p.log.Warnf("failed to archive report %s: %v", report.ExternalID, err)
		return
	}
	report.ArchiveKey = key
}

// evaluateAndNotify returns how many alerts were actually delivered.
func (p *Processor) evaluateAndNotify(ctx context.Context, report *models.Report, records []models.Record, verdict *dto.Verdict, result *interfaces.RunResult) int {
	alerts, err := p.evaluator.Evaluate(ctx, report, records, verdict)
	if err != nil {
		p.log.Errorf("alert evaluation failed for report %s: %v", report.ID, err)
		p.recordStageFailure(ctx, "alert evaluation failed", models.JSONMap{
			"reportId": report.ID,
			"error":    err.Error(),
		})
		return 0
	}

	dispatched := 0
	for _, alert := range alerts {
		if err := p.notifier.SendAlert(ctx, report, alert); err != nil {
			// At-most-once: the alert stays undispatched, never re-queued.
			p.log.Errorf("alert %s not delivered: %v", alert.ID, err)
			p.recordStageFailure(ctx, "alert delivery failed", models.JSONMap{
				"alertId": alert.ID,
				"error":   err.Error(),
			})
			continue
		}
		dispatched++
		result.Alerts++
		p.publishAlertDispatched(ctx, alert)
	}
	return dispatched
}

func (p *Processor) publishReportProcessed(ctx context.Context, report *models.Report, recordCount, alertCount int) {
	if p.events == nil {
		return
	}

	err := p.events.PublishReportProcessed(ctx, dto.ReportProcessed{
		ReportID:      report.ID,
		OrgName:       report.OrgName,
		ExternalID:    report.ExternalID,
		PolicyDomain:  report.PolicyDomain,
		Status:        report.Status,
		TotalMessages: report.TotalMessages,
		RecordCount:   recordCount,
		AlertCount:    alertCount,
	})
	if err != nil {
		p.log.Warnf("failed to publish report processed event for %s: %v", report.ID, err)
	}
}

func (p *Processor) publishAlertDispatched(ctx context.Context, alert *models.Alert) {
	if p.events == nil {
		return
	}

	err := p.events.PublishAlertDispatched(ctx, dto.AlertDispatched{
		AlertID:      alert.ID,
		ReportID:     alert.ReportID,
		Type:         alert.Type,
		Severity:     alert.Severity,
		PolicyDomain: alert.PolicyDomain,
		Recipients:   alert.Recipients,
	})
	if err != nil {
		p.log.Warnf("failed to publish alert dispatched event for %s: %v", alert.ID, err)
	}
}

func (p *Processor) recordRun(ctx context.Context, result *interfaces.RunResult, status enum.JobStatus, message string, started time.Time) {
	entry := &models.ProcessingLog{
		RunID:   result.RunID,
		JobType: enum.JobProcessReports,
		Status:  status,
		Message: message,
		Details: models.JSONMap{
			"messages":  result.Messages,
			"processed": result.Processed,
			"skipped":   result.Skipped,
			"failed":    result.Failed,
			"alerts":    result.Alerts,
		},
		DurationMs: time.Since(started).Milliseconds(),
	}
	if err := p.repos.ProcessingLogRepository.Create(ctx, entry); err != nil {
		p.log.Errorf("failed to record run outcome: %v", err)
	}
}

func (p *Processor) recordStageFailure(ctx context.Context, message string, details models.JSONMap) {
	entry := &models.ProcessingLog{
		RunID:   utils.GetRunIDFromContext(ctx),
		JobType: enum.JobProcessReports,
		Status:  enum.JobStatusFailed,
		Message: message,
		Details: details,
	}
	if err := p.repos.ProcessingLogRepository.Create(ctx, entry); err != nil {
		p.log.Errorf("failed to record stage failure: %v", err)
	}
}

package alerts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/customeros/mailwatcher/blscan"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/log"

	"github.com/dmarcwatch/dmarcwatch/config"
	"github.com/dmarcwatch/dmarcwatch/dto"
	"github.com/dmarcwatch/dmarcwatch/interfaces"
	"github.com/dmarcwatch/dmarcwatch/internal/enum"
	"github.com/dmarcwatch/dmarcwatch/internal/logger"
	"github.com/dmarcwatch/dmarcwatch/internal/models"
	"github.com/dmarcwatch/dmarcwatch/internal/tracing"
	"github.com/dmarcwatch/dmarcwatch/internal/utils"
)

const (
	maxEnrichedSources = 3

	// Verdict text comes from an external service; alert rows and email
	// subjects must stay bounded regardless of what it returns.
	maxAlertMessageLength = 500
)

type Evaluator struct {
	cfg       *config.AlertConfig
	log       logger.Logger
	alertRepo interfaces.AlertRepository
}

func NewEvaluator(cfg *config.AlertConfig, log logger.Logger, alertRepo interfaces.AlertRepository) interfaces.AlertEvaluator {
	return &Evaluator{
		cfg:       cfg,
		log:       log,
		alertRepo: alertRepo,
	}
}

// Evaluate checks every alert criterion independently, persists each candidate
// and returns the ones the throttle window lets through. Throttled candidates
// are stored with Throttled set so the history stays complete.
func (e *Evaluator) Evaluate(ctx context.Context, report *models.Report, records []models.Record, verdict *dto.Verdict) ([]*models.Alert, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Evaluator.Evaluate")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, report.ID)
	span.SetTag("policy.domain", report.PolicyDomain)

	candidates := e.collectCandidates(ctx, report, records, verdict)
	span.LogFields(log.Int("candidates.count", len(candidates)))
	if len(candidates) == 0 {
		return nil, nil
	}

	var eligible []*models.Alert
	for _, candidate := range candidates {
		throttled, err := e.isThrottled(ctx, candidate.Type, candidate.PolicyDomain)
		if err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
		candidate.Throttled = throttled

		if err := e.alertRepo.Create(ctx, candidate); err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}

		if throttled {
			e.log.Infof("alert %s for %s throttled, dispatched within the last %d minutes",
				candidate.Type, candidate.PolicyDomain, e.cfg.ThrottleWindowMinutes)
			continue
		}

		e.log.Infof("alert %s raised for %s with severity %s", candidate.Type, candidate.PolicyDomain, candidate.Severity)
		eligible = append(eligible, candidate)
	}

	span.LogFields(log.Int("alerts.eligible", len(eligible)))
	return eligible, nil
}

func (e *Evaluator) collectCandidates(ctx context.Context, report *models.Report, records []models.Record, verdict *dto.Verdict) []*models.Alert {
	var candidates []*models.Alert

	if alert := e.checkDispositions(report, records); alert != nil {
		candidates = append(candidates, alert)
	}
	if alert := e.checkAuthFailures(report, records, enum.AlertTypeSPFFailure); alert != nil {
		candidates = append(candidates, alert)
	}
	if alert := e.checkAuthFailures(report, records, enum.AlertTypeDKIMFailure); alert != nil {
		candidates = append(candidates, alert)
	}

	if verdict.IsAvailable() {
		if alert := e.checkUnauthorizedSources(ctx, report, verdict); alert != nil {
			candidates = append(candidates, alert)
		}
		if alert := e.checkAnomalies(report, verdict); alert != nil {
			candidates = append(candidates, alert)
		}
	}

	for _, candidate := range candidates {
		e.applyVerdictSeverity(candidate, verdict)
	}
	return candidates
}

// checkDispositions fires when any record was quarantined or rejected by the
// receiver. A rejection anywhere lifts the default severity to high.
func (e *Evaluator) checkDispositions(report *models.Report, records []models.Record) *models.Alert {
	var affected, rejected int
	var sources []string
	for _, record := range records {
		switch record.Disposition {
		case enum.DispositionQuarantine:
			affected += record.Count
			sources = append(sources, record.SourceIP)
		case enum.DispositionReject:
			affected += record.Count
			rejected += record.Count
			sources = append(sources, record.SourceIP)
		}
	}
	if affected == 0 {
		return nil
	}

	severity := enum.AlertSeverityMedium
	if rejected > 0 {
		severity = enum.AlertSeverityHigh
	}

	return &models.Alert{
		ReportID:     report.ID,
		Type:         enum.AlertTypeDMARCFailure,
		Severity:     severity,
		PolicyDomain: report.PolicyDomain,
		Title:        fmt.Sprintf("DMARC enforcement on %s", report.PolicyDomain),
		Message: fmt.Sprintf("%d message(s) were quarantined or rejected by receiver policy, %d of them rejected outright.",
			affected, rejected),
		Details: models.JSONMap{
			"affectedMessages": affected,
			"rejectedMessages": rejected,
			"sourceIps":        utils.UniqueStrings(sources),
		},
	}
}

// checkAuthFailures covers the SPF and DKIM criteria, which share the same
// shape: failed message counts summed across records must exceed the
// configured threshold.
func (e *Evaluator) checkAuthFailures(report *models.Report, records []models.Record, alertType enum.AlertType) *models.Alert {
	mechanism := "SPF"
	if alertType == enum.AlertTypeDKIMFailure {
		mechanism = "DKIM"
	}

	var failed int
	var sources []string
	for _, record := range records {
		result := record.SPFResult
		if alertType == enum.AlertTypeDKIMFailure {
			result = record.DKIMResult
		}
		if result == enum.AuthResultFail {
			failed += record.Count
			sources = append(sources, record.SourceIP)
		}
	}
	if failed <= e.cfg.FailureCountThreshold {
		return nil
	}

	return &models.Alert{
		ReportID:     report.ID,
		Type:         alertType,
		Severity:     enum.AlertSeverityMedium,
		PolicyDomain: report.PolicyDomain,
		Title:        fmt.Sprintf("%s failures on %s", mechanism, report.PolicyDomain),
		Message: fmt.Sprintf("%d message(s) failed %s authentication, above the threshold of %d.",
			failed, mechanism, e.cfg.FailureCountThreshold),
		Details: models.JSONMap{
			"failedMessages": failed,
			"threshold":      e.cfg.FailureCountThreshold,
			"sourceIps":      utils.UniqueStrings(sources),
		},
	}
}

func (e *Evaluator) checkUnauthorizedSources(ctx context.Context, report *models.Report, verdict *dto.Verdict) *models.Alert {
	if len(verdict.UnauthorizedSources) == 0 {
		return nil
	}

	shown := verdict.UnauthorizedSources
	if len(shown) > maxEnrichedSources {
		shown = shown[:maxEnrichedSources]
	}

	providers := make(map[string]string)
	for _, source := range shown {
		if provider := utils.LookupSendingProvider(ctx, source); provider != "" {
			providers[source] = provider
		}
	}

	blacklists := blscan.ScanBlacklists(report.PolicyDomain, "domain")

	return &models.Alert{
		ReportID:     report.ID,
		Type:         enum.AlertTypeUnauthorizedSource,
		Severity:     enum.AlertSeverityHigh,
		PolicyDomain: report.PolicyDomain,
		Title:        fmt.Sprintf("Unauthorized senders for %s", report.PolicyDomain),
		Message:      utils.Truncate(fmt.Sprintf("Unauthorized sending sources detected: %s", strings.Join(shown, ", ")), maxAlertMessageLength),
		Details: models.JSONMap{
			"unauthorizedSources": verdict.UnauthorizedSources,
			"sendingProviders":    providers,
			"domainBlacklists": models.JSONMap{
				"major":     blacklists.MajorLists,
				"minor":     blacklists.MinorLists,
				"spamTraps": blacklists.SpamTrapLists,
			},
		},
	}
}

func (e *Evaluator) checkAnomalies(report *models.Report, verdict *dto.Verdict) *models.Alert {
	if len(verdict.Anomalies) == 0 {
		return nil
	}

	return &models.Alert{
		ReportID:     report.ID,
		Type:         enum.AlertTypeAnomaly,
		Severity:     enum.AlertSeverityMedium,
		PolicyDomain: report.PolicyDomain,
		Title:        fmt.Sprintf("Suspicious pattern on %s", report.PolicyDomain),
		Message:      utils.Truncate(fmt.Sprintf("Suspicious patterns detected: %s", verdict.Anomalies[0]), maxAlertMessageLength),
		Details: models.JSONMap{
			"anomalies": verdict.Anomalies,
		},
	}
}

// applyVerdictSeverity lets an available verdict override the record-derived
// default. Unrecognized severities keep the default.
func (e *Evaluator) applyVerdictSeverity(candidate *models.Alert, verdict *dto.Verdict) {
	if !verdict.IsAvailable() {
		return
	}
	if severity := enum.GetAlertSeverity(verdict.Severity); severity != "" {
		candidate.Severity = severity
	}
}

// isThrottled derives the sliding window from persisted dispatch timestamps,
// so restarts and parallel workers always agree on the window state.
func (e *Evaluator) isThrottled(ctx context.Context, alertType enum.AlertType, policyDomain string) (bool, error) {
	lastSent, err := e.alertRepo.LastDispatchedAt(ctx, alertType, policyDomain)
	if err != nil {
		return false, err
	}
	if lastSent == nil {
		return false, nil
	}

	window := time.Duration(e.cfg.ThrottleWindowMinutes) * time.Minute
	return utils.Now().Sub(*lastSent) < window, nil
}

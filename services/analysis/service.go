package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/log"

	"github.com/dmarcwatch/dmarcwatch/config"
	"github.com/dmarcwatch/dmarcwatch/dto"
	"github.com/dmarcwatch/dmarcwatch/interfaces"
	"github.com/dmarcwatch/dmarcwatch/internal/enum"
	"github.com/dmarcwatch/dmarcwatch/internal/logger"
	"github.com/dmarcwatch/dmarcwatch/internal/models"
	"github.com/dmarcwatch/dmarcwatch/internal/tracing"
)

const maxSummaryRecords = 10

type analysisService struct {
	cfg    *config.AnalysisConfig
	log    logger.Logger
	client *http.Client
	retry  retrypolicy.RetryPolicy[*http.Response]
}

func NewAnalysisService(cfg *config.AnalysisConfig, log logger.Logger) interfaces.AnalysisService {
	return &analysisService{
		cfg: cfg,
		log: log,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		retry: newRetryPolicy(cfg),
	}
}

// newRetryPolicy retries transport errors, rate limits and server errors with
// jittered exponential backoff. Anything else is final on the first attempt.
func newRetryPolicy(cfg *config.AnalysisConfig) retrypolicy.RetryPolicy[*http.Response] {
	baseDelay := time.Duration(cfg.RetryBaseDelaySeconds) * time.Second
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	maxDelay := time.Duration(cfg.RetryMaxDelaySeconds) * time.Second
	if maxDelay < baseDelay {
		maxDelay = baseDelay
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	return retrypolicy.NewBuilder[*http.Response]().
		WithBackoff(baseDelay, maxDelay).
		WithMaxRetries(maxRetries).
		WithJitterFactor(0.1).
		HandleIf(func(resp *http.Response, err error) bool {
			if err != nil {
				return true
			}
			if resp == nil {
				return true
			}
			return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		}).
		Build()
}

// Analyze never fails: when the analysis service stays unreachable past the
// retry ceiling the unavailable verdict comes back and the pipeline keeps
// going on record-derived criteria alone.
func (s *analysisService) Analyze(ctx context.Context, summary dto.ReportSummary) *dto.Verdict {
	span, ctx := opentracing.StartSpanFromContext(ctx, "analysisService.Analyze")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.LogObjectAsJson(span, "request", summary)

	payload, err := json.Marshal(summary)
	if err != nil {
		tracing.TraceErr(span, err)
		s.log.Errorf("failed to marshal analysis request for report %s: %v", summary.ExternalID, err)
		return dto.UnavailableVerdict()
	}

	// A fresh request per attempt keeps the body readable across retries.
	resp, err := failsafe.With(s.retry).WithContext(ctx).Get(func() (*http.Response, error) {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Url+"/v1/dmarc/analyze", bytes.NewReader(payload))
		if reqErr != nil {
			return nil, reqErr
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-API-Key", s.cfg.ApiKey)
		return s.client.Do(req)
	})
	if err != nil {
		tracing.TraceErr(span, err)
		s.log.Warnf("analysis unavailable for report %s after retries: %v", summary.ExternalID, err)
		return dto.UnavailableVerdict()
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		tracing.TraceErr(span, err)
		s.log.Warnf("unable to read analysis response for report %s: %v", summary.ExternalID, err)
		return dto.UnavailableVerdict()
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.log.Warnf("analysis request for report %s failed with status %d", summary.ExternalID, resp.StatusCode)
		span.LogFields(log.Int("response.status", resp.StatusCode))
		return dto.UnavailableVerdict()
	}

	verdict := decodeVerdict(body)
	tracing.LogObjectAsJson(span, "response", verdict)
	return verdict
}

// decodeVerdict tolerates responses that wrap the verdict JSON in surrounding
// markup. When no usable JSON object is found the raw text becomes the
// summary of a medium-severity verdict rather than a decode failure.
func decodeVerdict(body []byte) *dto.Verdict {
	text := strings.TrimSpace(string(body))

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		var verdict dto.Verdict
		if err := json.Unmarshal([]byte(text[start:end+1]), &verdict); err == nil {
			verdict.Unavailable = false
			return &verdict
		}
	}

	return &dto.Verdict{
		Summary:  text,
		Severity: enum.AlertSeverityMedium.String(),
	}
}

// BuildSummary condenses a report into the bounded payload the analysis
// service accepts: aggregate counts plus at most the top ten records by
// message count, descending. Ties keep document order so the summary stays
// deterministic.
func BuildSummary(report *models.Report, records []models.Record) dto.ReportSummary {
	summary := dto.ReportSummary{
		OrgName:         report.OrgName,
		ExternalID:      report.ExternalID,
		PolicyDomain:    report.PolicyDomain,
		DateBegin:       report.DateBegin.Format(time.RFC3339),
		DateEnd:         report.DateEnd.Format(time.RFC3339),
		Policy:          report.Policy,
		SubdomainPolicy: report.SubdomainPolicy,
		Adkim:           report.Adkim,
		Aspf:            report.Aspf,
		Percent:         report.Percent,
		TotalMessages:   report.TotalMessages,
	}

	for _, record := range records {
		if record.SPFResult == enum.AuthResultFail {
			summary.SPFFailures += record.Count
		}
		if record.DKIMResult == enum.AuthResultFail {
			summary.DKIMFailures += record.Count
		}
		switch record.Disposition {
		case enum.DispositionQuarantine:
			summary.Quarantined += record.Count
		case enum.DispositionReject:
			summary.Rejected += record.Count
		}
	}

	top := make([]models.Record, len(records))
	copy(top, records)
	sort.SliceStable(top, func(i, j int) bool {
		return top[i].Count > top[j].Count
	})
	if len(top) > maxSummaryRecords {
		top = top[:maxSummaryRecords]
	}

	summary.TopRecords = make([]dto.RecordSummary, 0, len(top))
	for _, record := range top {
		summary.TopRecords = append(summary.TopRecords, dto.RecordSummary{
			SourceIP:    record.SourceIP,
			Count:       record.Count,
			Disposition: record.Disposition.String(),
			SPF:         record.SPFResult.String(),
			DKIM:        record.DKIMResult.String(),
			HeaderFrom:  record.HeaderFrom,
		})
	}

	return summary
}

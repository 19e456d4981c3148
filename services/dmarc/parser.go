package dmarc

import (
	"context"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"

	"github.com/dmarcwatch/dmarcwatch/interfaces"
	"github.com/dmarcwatch/dmarcwatch/internal/enum"
	er "github.com/dmarcwatch/dmarcwatch/internal/errors"
	"github.com/dmarcwatch/dmarcwatch/internal/logger"
	"github.com/dmarcwatch/dmarcwatch/internal/models"
	"github.com/dmarcwatch/dmarcwatch/internal/tracing"
	"github.com/dmarcwatch/dmarcwatch/internal/utils"
)

const defaultPolicyPercent = 100

type Parser struct {
	log logger.Logger
}

func NewParser(log logger.Logger) *Parser {
	return &Parser{log: log}
}

// Parse decodes one aggregate-report XML payload. Record extraction is total:
// a defective record block lands in Skipped with a reason and never aborts its
// siblings. Document-level defects fail with ErrMalformedReport.
func (p *Parser) Parse(ctx context.Context, payload []byte) (*interfaces.ParsedReport, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "Parser.Parse")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogFields(log.Int("payload.size", len(payload)))

	var doc feedback
	if err := xml.Unmarshal(payload, &doc); err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrapf(er.ErrMalformedReport, "xml decode failed: %v", err)
	}

	if err := validateDocument(&doc); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	report := buildReport(&doc)

	records := make([]models.Record, 0, len(doc.Records))
	var skipped []interfaces.SkippedRecord
	for i, raw := range doc.Records {
		record, reason := extractRecord(raw)
		if record == nil {
			p.log.Warnf("skipping record %d of report %s: %s", i, report.ExternalID, reason)
			skipped = append(skipped, interfaces.SkippedRecord{Index: i, Reason: reason})
			continue
		}
		records = append(records, *record)
	}

	if len(doc.Records) > 0 && len(records) == 0 {
		err := errors.Wrap(er.ErrMalformedReport, "no parseable records in report")
		tracing.TraceErr(span, err)
		return nil, err
	}

	tallyCounters(report, records)

	span.LogFields(log.Int("records.count", len(records)), log.Int("records.skipped", len(skipped)))
	return &interfaces.ParsedReport{
		Report:  report,
		Records: records,
		Skipped: skipped,
	}, nil
}

func validateDocument(doc *feedback) error {
	if strings.TrimSpace(doc.Metadata.OrgName) == "" {
		return errors.Wrap(er.ErrMalformedReport, "report_metadata missing org_name")
	}
	if strings.TrimSpace(doc.Metadata.ReportID) == "" {
		return errors.Wrap(er.ErrMalformedReport, "report_metadata missing report_id")
	}
	if doc.Metadata.Date.Begin < 0 || doc.Metadata.Date.End < 0 {
		return errors.Wrap(er.ErrMalformedReport, "date_range holds a negative timestamp")
	}
	if doc.Metadata.Date.End < doc.Metadata.Date.Begin {
		return errors.Wrap(er.ErrMalformedReport, "date_range ends before it begins")
	}
	if doc.Policy == nil {
		return errors.Wrap(er.ErrMalformedReport, "missing policy_published block")
	}
	if strings.TrimSpace(doc.Policy.Domain) == "" {
		return errors.Wrap(er.ErrMalformedReport, "policy_published missing domain")
	}
	return nil
}

func buildReport(doc *feedback) *models.Report {
	percent := defaultPolicyPercent
	if doc.Policy.Pct != nil {
		percent = *doc.Policy.Pct
	}

	return &models.Report{
		OrgName:         strings.TrimSpace(doc.Metadata.OrgName),
		ExternalID:      strings.TrimSpace(doc.Metadata.ReportID),
		ReporterEmail:   strings.TrimSpace(doc.Metadata.Email),
		DateBegin:       time.Unix(doc.Metadata.Date.Begin, 0).UTC(),
		DateEnd:         time.Unix(doc.Metadata.Date.End, 0).UTC(),
		PolicyDomain:    utils.NormalizeDomain(doc.Policy.Domain),
		Adkim:           doc.Policy.ADKIM,
		Aspf:            doc.Policy.ASPF,
		Policy:          doc.Policy.P,
		SubdomainPolicy: doc.Policy.SP,
		Percent:         percent,
		Status:          enum.ReportStatusReceived,
		ReceivedAt:      utils.Now(),
	}
}

// extractRecord maps one record block onto a models.Record. A nil record means
// the block was unusable; the reason says why.
func extractRecord(raw reportRecord) (*models.Record, string) {
	sourceIP := strings.TrimSpace(raw.Row.SourceIP)
	if sourceIP == "" {
		return nil, "missing source_ip"
	}

	countText := strings.TrimSpace(raw.Row.Count)
	if countText == "" {
		return nil, "missing count"
	}
	count, err := strconv.Atoi(countText)
	if err != nil {
		return nil, fmt.Sprintf("count %q is not an integer", countText)
	}
	if count < 1 {
		return nil, fmt.Sprintf("count %d is below 1", count)
	}

	record := &models.Record{
		SourceIP:     sourceIP,
		Count:        count,
		Disposition:  enum.GetDisposition(raw.Row.Policy.Disposition),
		SPFResult:    enum.GetAuthResult(raw.Row.Policy.SPF),
		DKIMResult:   enum.GetAuthResult(raw.Row.Policy.DKIM),
		HeaderFrom:   strings.TrimSpace(raw.Identifiers.HeaderFrom),
		EnvelopeFrom: strings.TrimSpace(raw.Identifiers.EnvelopeFrom),
	}

	// Out-of-vocabulary values coerce to unknown and flag the row instead of
	// failing it. Absent values stay unflagged.
	if record.Disposition == enum.DispositionUnknown && strings.TrimSpace(raw.Row.Policy.Disposition) != "" {
		record.Flagged = true
	}
	if record.SPFResult == enum.AuthResultUnknown && strings.TrimSpace(raw.Row.Policy.SPF) != "" {
		record.Flagged = true
	}
	if record.DKIMResult == enum.AuthResultUnknown && strings.TrimSpace(raw.Row.Policy.DKIM) != "" {
		record.Flagged = true
	}

	if len(raw.AuthResults.SPF) > 0 {
		detail := raw.AuthResults.SPF[0]
		record.SPFDomain = strings.TrimSpace(detail.Domain)
		record.SPFScope = strings.TrimSpace(detail.Scope)
		record.SPFResultDetail = strings.ToLower(strings.TrimSpace(detail.Result))
	}
	if len(raw.AuthResults.DKIM) > 0 {
		detail := raw.AuthResults.DKIM[0]
		record.DKIMDomain = strings.TrimSpace(detail.Domain)
		record.DKIMSelector = strings.TrimSpace(detail.Selector)
		record.DKIMResultDetail = strings.ToLower(strings.TrimSpace(detail.Result))
	}

	return record, ""
}

func tallyCounters(report *models.Report, records []models.Record) {
	for _, record := range records {
		report.TotalMessages += record.Count
		spfPass := record.SPFResult == enum.AuthResultPass
		dkimPass := record.DKIMResult == enum.AuthResultPass
		if spfPass {
			report.SPFPass += record.Count
		}
		if dkimPass {
			report.DKIMPass += record.Count
		}
		if spfPass || dkimPass {
			report.DMARCPass += record.Count
		}
	}
}

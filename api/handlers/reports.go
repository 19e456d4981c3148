package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/dmarcwatch/dmarcwatch/interfaces"
	er "github.com/dmarcwatch/dmarcwatch/internal/errors"
	"github.com/dmarcwatch/dmarcwatch/internal/tracing"
	"github.com/dmarcwatch/dmarcwatch/internal/utils"
	"github.com/dmarcwatch/dmarcwatch/services/mime"
)

// Compressed report archives stay small; the decompressed ceiling is enforced
// separately by the extractor.
const maxIngestBodyBytes = 25 << 20

// IngestReport accepts a raw report payload (xml, gz or zip) and routes it
// through the same chain a mailbox-collected report takes.
func IngestReport(extractor *mime.Extractor, pipeline interfaces.ReportPipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxIngestBodyBytes+1))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
			return
		}
		if len(body) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "empty request body"})
			return
		}
		if len(body) > maxIngestBodyBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			return
		}

		filename := c.Query("filename")
		if filename == "" {
			filename = "report.xml"
		}

		payloads, err := extractor.ExtractFromAttachment(ctx, filename, c.ContentType(), body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if len(payloads) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no report payload recognized"})
			return
		}

		var ingested, duplicates int
		results := make([]gin.H, 0, len(payloads))
		for _, payload := range payloads {
			sourceProvider := utils.FirstNonEmpty(utils.ProviderFromReportFilename(payload.Filename), c.Query("provider"))

			report, err := pipeline.Ingest(ctx, payload, sourceProvider)
			switch {
			case err == nil:
				ingested++
				results = append(results, gin.H{"filename": payload.Filename, "status": "ingested", "reportId": report.ID})
			case errors.Is(err, er.ErrDuplicateReport):
				duplicates++
				results = append(results, gin.H{"filename": payload.Filename, "status": "duplicate"})
			case errors.Is(err, er.ErrMalformedReport):
				results = append(results, gin.H{"filename": payload.Filename, "status": "malformed", "error": err.Error()})
			default:
				results = append(results, gin.H{"filename": payload.Filename, "status": "failed", "error": err.Error()})
			}
		}

		status := http.StatusCreated
		if ingested == 0 {
			status = http.StatusBadRequest
			if duplicates == len(payloads) {
				status = http.StatusConflict
			}
		}
		c.JSON(status, gin.H{"results": results})
	}
}

// ListReports returns stored reports, newest first.
func ListReports(reportRepository interfaces.ReportRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		limit, offset := parsePagination(c)

		reports, total, err := reportRepository.List(ctx, limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"reports": reports,
			"total":   total,
			"limit":   limit,
			"offset":  offset,
		})
	}
}

// GetReport returns one report with its records and alerts. With ?raw=true
// the archived original payload is included when archival is configured.
func GetReport(reportRepository interfaces.ReportRepository, alertRepository interfaces.AlertRepository, archive interfaces.ArchiveService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		id := c.Param("id")

		report, err := reportRepository.GetByID(ctx, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if report == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
			return
		}

		records, err := reportRepository.GetRecords(ctx, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		alerts, err := alertRepository.ListByReport(ctx, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		response := gin.H{
			"report":  report,
			"records": records,
			"alerts":  alerts,
		}

		if c.Query("raw") == "true" && archive != nil && report.ArchiveKey != "" {
			raw, err := archive.Download(ctx, report.ArchiveKey)
			if err != nil {
				tracing.TraceErr(opentracing.SpanFromContext(ctx), err)
				response["rawError"] = "archived payload unavailable"
			} else {
				response["raw"] = string(raw)
			}
		}

		c.JSON(http.StatusOK, response)
	}
}

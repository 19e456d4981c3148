package mime

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/jhillyerd/enmime"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/log"

	"github.com/dmarcwatch/dmarcwatch/interfaces"
	"github.com/dmarcwatch/dmarcwatch/internal/logger"
	"github.com/dmarcwatch/dmarcwatch/internal/tracing"
)

// DefaultMaxDecompressedSize caps how far a compressed attachment may inflate.
// Reports are small; anything past this is treated as hostile.
const DefaultMaxDecompressedSize = 20 << 20

type Extractor struct {
	log                 logger.Logger
	maxDecompressedSize int64
}

func NewExtractor(log logger.Logger, maxDecompressedSize int64) *Extractor {
	if maxDecompressedSize <= 0 {
		maxDecompressedSize = DefaultMaxDecompressedSize
	}
	return &Extractor{
		log:                 log,
		maxDecompressedSize: maxDecompressedSize,
	}
}

// ExtractPayloads parses a raw RFC 5322 message and returns the decompressed
// XML payloads of every report attachment it carries. Attachments that fail to
// decompress are logged and skipped so one bad part cannot sink its siblings.
func (e *Extractor) ExtractPayloads(ctx context.Context, raw []byte) ([]interfaces.ReportPayload, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "Extractor.ExtractPayloads")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogFields(log.Int("message.size", len(raw)))

	envelope, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to parse mime message: %w", err)
	}

	var payloads []interfaces.ReportPayload

	parts := append([]*enmime.Part{}, envelope.Attachments...)
	parts = append(parts, envelope.Inlines...)
	for _, part := range parts {
		if !isReportCandidate(part.FileName, part.ContentType) {
			continue
		}
		extracted, err := e.decompress(part.FileName, part.ContentType, part.Content)
		if err != nil {
			tracing.TraceErr(span, err)
			e.log.Warnf("skipping attachment %s: %v", part.FileName, err)
			continue
		}
		payloads = append(payloads, extracted...)
	}

	// Some providers ship the compressed report as the message body itself.
	if len(payloads) == 0 {
		contentType := envelope.GetHeader("Content-Type")
		if strings.Contains(contentType, "gzip") || strings.Contains(contentType, "zip") {
			extracted, err := e.decompress("report", contentType, raw)
			if err == nil {
				payloads = append(payloads, extracted...)
			}
		}
	}

	span.LogFields(log.Int("payloads.count", len(payloads)))
	return payloads, nil
}

// ExtractFromAttachment decompresses a single already-extracted attachment,
// used for direct webhook-style ingestion where no MIME envelope exists.
func (e *Extractor) ExtractFromAttachment(ctx context.Context, filename, contentType string, content []byte) ([]interfaces.ReportPayload, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "Extractor.ExtractFromAttachment")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	payloads, err := e.decompress(filename, contentType, content)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return payloads, nil
}

func isReportCandidate(filename, contentType string) bool {
	name := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(name, ".xml"),
		strings.HasSuffix(name, ".xml.gz"),
		strings.HasSuffix(name, ".gz"),
		strings.HasSuffix(name, ".zip"):
		return true
	}
	switch contentType {
	case "application/gzip", "application/x-gzip", "application/zip", "application/x-zip-compressed", "application/xml", "text/xml":
		return true
	}
	return false
}

func (e *Extractor) decompress(filename, contentType string, content []byte) ([]interfaces.ReportPayload, error) {
	name := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(name, ".gz"), strings.Contains(contentType, "gzip"):
		return e.handleGzipPayload(filename, content)
	case strings.HasSuffix(name, ".zip"), strings.Contains(contentType, "zip"):
		return e.handleZipPayload(filename, content)
	default:
		if int64(len(content)) > e.maxDecompressedSize {
			return nil, fmt.Errorf("attachment %s exceeds size limit of %d bytes", filename, e.maxDecompressedSize)
		}
		return []interfaces.ReportPayload{{Filename: filename, Data: content}}, nil
	}
}

func (e *Extractor) handleZipPayload(filename string, content []byte) ([]interfaces.ReportPayload, error) {
	zipReader, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to create zip reader for %s: %w", filename, err)
	}

	var payloads []interfaces.ReportPayload
	for _, file := range zipReader.File {
		if file.FileInfo().IsDir() {
			continue
		}
		data, err := e.readZipEntry(file)
		if err != nil {
			return nil, err
		}
		payloads = append(payloads, interfaces.ReportPayload{Filename: file.Name, Data: data})
	}

	if len(payloads) == 0 {
		return nil, fmt.Errorf("zip archive %s contains no files", filename)
	}
	return payloads, nil
}

func (e *Extractor) readZipEntry(file *zip.File) ([]byte, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open zip entry %s: %w", file.Name, err)
	}
	defer rc.Close()

	data, err := e.readLimited(rc)
	if err != nil {
		return nil, fmt.Errorf("zip entry %s: %w", file.Name, err)
	}
	return data, nil
}

func (e *Extractor) handleGzipPayload(filename string, content []byte) ([]interfaces.ReportPayload, error) {
	gzReader, err := gzip.NewReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader for %s: %w", filename, err)
	}
	defer gzReader.Close()

	data, err := e.readLimited(gzReader)
	if err != nil {
		return nil, fmt.Errorf("gzip payload %s: %w", filename, err)
	}

	return []interfaces.ReportPayload{{Filename: strings.TrimSuffix(filename, ".gz"), Data: data}}, nil
}

// readLimited copies at most maxDecompressedSize bytes and fails as soon as
// the stream runs past the ceiling, before the archive is fully inflated.
func (e *Extractor) readLimited(r io.Reader) ([]byte, error) {
	limited := io.LimitReader(r, e.maxDecompressedSize+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}
	if int64(len(data)) > e.maxDecompressedSize {
		return nil, fmt.Errorf("decompressed payload exceeds size limit of %d bytes", e.maxDecompressedSize)
	}
	return data, nil
}

package mime

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"testing"

	"github.com/jhillyerd/enmime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmarcwatch/dmarcwatch/internal/logger"
)

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

func gzipBytes(t *testing.T, data []byte) []byte {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write(data)
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func zipBytes(t *testing.T, entries map[string][]byte) []byte {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func buildMessage(t *testing.T, builder enmime.MailBuilder) []byte {
	root, err := builder.Build()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, root.Encode(&buf))
	return buf.Bytes()
}

func reportMessageBuilder() enmime.MailBuilder {
	return enmime.Builder().
		From("Google", "noreply-dmarc-support@google.com").
		To("DMARC", "dmarc-reports@example.com").
		Subject("Report Domain: example.com Submitter: google.com").
		Text([]byte("aggregate report attached"))
}

func TestExtractPayloads_GzipAttachment(t *testing.T) {
	// Arrange
	extractor := NewExtractor(getLogger(), 0)
	xml := []byte(`<?xml version="1.0"?><feedback><report_metadata/></feedback>`)
	raw := buildMessage(t, reportMessageBuilder().
		AddAttachment(gzipBytes(t, xml), "application/gzip", "google.com!example.com!1700000000!1700086400.xml.gz"))

	// Act
	payloads, err := extractor.ExtractPayloads(context.Background(), raw)

	// Assert
	require.NoError(t, err)
	require.Len(t, payloads, 1)
	assert.Equal(t, "google.com!example.com!1700000000!1700086400.xml", payloads[0].Filename)
	assert.Equal(t, xml, payloads[0].Data)
}

func TestExtractPayloads_ZipWithMultipleReports(t *testing.T) {
	// Arrange
	extractor := NewExtractor(getLogger(), 0)
	first := []byte(`<feedback><report_metadata><org_name>google.com</org_name></report_metadata></feedback>`)
	second := []byte(`<feedback><report_metadata><org_name>outlook.com</org_name></report_metadata></feedback>`)
	archive := zipBytes(t, map[string][]byte{
		"google.com!example.com!1!2.xml":  first,
		"outlook.com!example.com!1!2.xml": second,
	})
	raw := buildMessage(t, reportMessageBuilder().
		AddAttachment(archive, "application/zip", "reports.zip"))

	// Act
	payloads, err := extractor.ExtractPayloads(context.Background(), raw)

	// Assert
	require.NoError(t, err)
	require.Len(t, payloads, 2)
	byName := map[string][]byte{}
	for _, p := range payloads {
		byName[p.Filename] = p.Data
	}
	assert.Equal(t, first, byName["google.com!example.com!1!2.xml"])
	assert.Equal(t, second, byName["outlook.com!example.com!1!2.xml"])
}

func TestExtractPayloads_SkipsNonReportParts(t *testing.T) {
	// Arrange
	extractor := NewExtractor(getLogger(), 0)
	xml := []byte(`<feedback/>`)
	raw := buildMessage(t, reportMessageBuilder().
		AddAttachment([]byte{0x89, 0x50, 0x4e, 0x47}, "image/png", "logo.png").
		AddAttachment(gzipBytes(t, xml), "application/gzip", "report.xml.gz"))

	// Act
	payloads, err := extractor.ExtractPayloads(context.Background(), raw)

	// Assert
	require.NoError(t, err)
	require.Len(t, payloads, 1)
	assert.Equal(t, "report.xml", payloads[0].Filename)
}

func TestExtractPayloads_CorruptArchiveIsSkipped(t *testing.T) {
	// Arrange: a .gz attachment that is not gzip data must not sink the message
	extractor := NewExtractor(getLogger(), 0)
	raw := buildMessage(t, reportMessageBuilder().
		AddAttachment([]byte("definitely not gzip"), "application/gzip", "report.xml.gz"))

	// Act
	payloads, err := extractor.ExtractPayloads(context.Background(), raw)

	// Assert
	require.NoError(t, err)
	assert.Empty(t, payloads)
}

func TestExtractFromAttachment_PlainXMLPassthrough(t *testing.T) {
	// Arrange
	extractor := NewExtractor(getLogger(), 0)
	xml := []byte(`<feedback/>`)

	// Act
	payloads, err := extractor.ExtractFromAttachment(context.Background(), "report.xml", "application/xml", xml)

	// Assert
	require.NoError(t, err)
	require.Len(t, payloads, 1)
	assert.Equal(t, "report.xml", payloads[0].Filename)
	assert.Equal(t, xml, payloads[0].Data)
}

func TestExtractFromAttachment_GzipCeilingEnforced(t *testing.T) {
	// Arrange: 64 KiB of zeros compresses to a few hundred bytes, the ceiling
	// must trip on the decompressed size
	extractor := NewExtractor(getLogger(), 1024)
	inflated := make([]byte, 64*1024)

	// Act
	payloads, err := extractor.ExtractFromAttachment(context.Background(), "bomb.xml.gz", "application/gzip", gzipBytes(t, inflated))

	// Assert
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds size limit")
	assert.Nil(t, payloads)
}

func TestExtractFromAttachment_ZipEntryCeilingEnforced(t *testing.T) {
	// Arrange
	extractor := NewExtractor(getLogger(), 1024)
	archive := zipBytes(t, map[string][]byte{
		"report.xml": make([]byte, 8*1024),
	})

	// Act
	payloads, err := extractor.ExtractFromAttachment(context.Background(), "reports.zip", "application/zip", archive)

	// Assert
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds size limit")
	assert.Nil(t, payloads)
}

func TestNewExtractor_DefaultCeiling(t *testing.T) {
	// Act
	extractor := NewExtractor(getLogger(), 0)

	// Assert
	assert.Equal(t, int64(DefaultMaxDecompressedSize), extractor.maxDecompressedSize)
}

package dmarc

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmarcwatch/dmarcwatch/internal/enum"
	er "github.com/dmarcwatch/dmarcwatch/internal/errors"
	"github.com/dmarcwatch/dmarcwatch/internal/logger"
)

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

const sampleReport = `<?xml version="1.0" encoding="UTF-8"?>
<feedback>
  <report_metadata>
    <org_name>google.com</org_name>
    <email>noreply-dmarc-support@google.com</email>
    <report_id>12345678901234567890</report_id>
    <date_range>
      <begin>1706227200</begin>
      <end>1706313599</end>
    </date_range>
  </report_metadata>
  <policy_published>
    <domain>example.com</domain>
    <adkim>r</adkim>
    <aspf>r</aspf>
    <p>quarantine</p>
    <sp>none</sp>
    <pct>50</pct>
  </policy_published>
  <record>
    <row>
      <source_ip>209.85.220.41</source_ip>
      <count>2</count>
      <policy_evaluated>
        <disposition>none</disposition>
        <dkim>pass</dkim>
        <spf>pass</spf>
      </policy_evaluated>
    </row>
    <identifiers>
      <header_from>example.com</header_from>
    </identifiers>
    <auth_results>
      <dkim>
        <domain>example.com</domain>
        <selector>default</selector>
        <result>pass</result>
      </dkim>
      <spf>
        <domain>example.com</domain>
        <scope>mfrom</scope>
        <result>pass</result>
      </spf>
    </auth_results>
  </record>
  <record>
    <row>
      <source_ip>192.0.2.15</source_ip>
      <count>7</count>
      <policy_evaluated>
        <disposition>reject</disposition>
        <dkim>fail</dkim>
        <spf>fail</spf>
      </policy_evaluated>
    </row>
    <identifiers>
      <header_from>example.com</header_from>
      <envelope_from>bounce.example.com</envelope_from>
    </identifiers>
    <auth_results>
      <spf>
        <domain>bounce.example.com</domain>
        <scope>mfrom</scope>
        <result>fail</result>
      </spf>
    </auth_results>
  </record>
</feedback>`

func TestParser_Parse_ValidReport(t *testing.T) {
	// Arrange
	parser := NewParser(getLogger())

	// Act
	result, err := parser.Parse(context.Background(), []byte(sampleReport))

	// Assert
	require.NoError(t, err)
	require.NotNil(t, result)

	report := result.Report
	assert.Equal(t, "google.com", report.OrgName)
	assert.Equal(t, "12345678901234567890", report.ExternalID)
	assert.Equal(t, "noreply-dmarc-support@google.com", report.ReporterEmail)
	assert.Equal(t, "example.com", report.PolicyDomain)
	assert.Equal(t, "quarantine", report.Policy)
	assert.Equal(t, "none", report.SubdomainPolicy)
	assert.Equal(t, 50, report.Percent)
	assert.Equal(t, int64(1706227200), report.DateBegin.Unix())
	assert.Equal(t, int64(1706313599), report.DateEnd.Unix())
	assert.Equal(t, enum.ReportStatusReceived, report.Status)

	require.Len(t, result.Records, 2)
	assert.Empty(t, result.Skipped)

	first := result.Records[0]
	assert.Equal(t, "209.85.220.41", first.SourceIP)
	assert.Equal(t, 2, first.Count)
	assert.Equal(t, enum.DispositionNone, first.Disposition)
	assert.Equal(t, enum.AuthResultPass, first.SPFResult)
	assert.Equal(t, enum.AuthResultPass, first.DKIMResult)
	assert.Equal(t, "example.com", first.HeaderFrom)
	assert.Equal(t, "default", first.DKIMSelector)
	assert.Equal(t, "mfrom", first.SPFScope)
	assert.False(t, first.Flagged)

	second := result.Records[1]
	assert.Equal(t, "192.0.2.15", second.SourceIP)
	assert.Equal(t, 7, second.Count)
	assert.Equal(t, enum.DispositionReject, second.Disposition)
	assert.Equal(t, enum.AuthResultFail, second.SPFResult)
	assert.Equal(t, "bounce.example.com", second.EnvelopeFrom)

	// Counters sum message counts, not record rows
	assert.Equal(t, 9, report.TotalMessages)
	assert.Equal(t, 2, report.SPFPass)
	assert.Equal(t, 2, report.DKIMPass)
	assert.Equal(t, 2, report.DMARCPass)
}

func TestParser_Parse_DeterministicOrdering(t *testing.T) {
	// Arrange
	parser := NewParser(getLogger())

	// Act
	first, err1 := parser.Parse(context.Background(), []byte(sampleReport))
	second, err2 := parser.Parse(context.Background(), []byte(sampleReport))

	// Assert
	require.NoError(t, err1)
	require.NoError(t, err2)
	require.Len(t, second.Records, len(first.Records))
	for i := range first.Records {
		assert.Equal(t, first.Records[i].SourceIP, second.Records[i].SourceIP)
		assert.Equal(t, first.Records[i].Count, second.Records[i].Count)
	}
}

func TestParser_Parse_RecordMissingSourceIPIsSkipped(t *testing.T) {
	// Arrange
	xml := `<feedback>
  <report_metadata>
    <org_name>google.com</org_name>
    <report_id>rid-1</report_id>
    <date_range><begin>1706227200</begin><end>1706313599</end></date_range>
  </report_metadata>
  <policy_published><domain>example.com</domain><p>none</p></policy_published>
  <record><row><source_ip>192.0.2.1</source_ip><count>1</count></row></record>
  <record><row><count>4</count></row></record>
  <record><row><source_ip>192.0.2.2</source_ip><count>1</count></row></record>
  <record><row><source_ip>192.0.2.3</source_ip><count>1</count></row></record>
  <record><row><source_ip>192.0.2.4</source_ip><count>1</count></row></record>
</feedback>`
	parser := NewParser(getLogger())

	// Act
	result, err := parser.Parse(context.Background(), []byte(xml))

	// Assert
	require.NoError(t, err)
	assert.Len(t, result.Records, 4)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, 1, result.Skipped[0].Index)
	assert.Contains(t, result.Skipped[0].Reason, "source_ip")
}

func TestParser_Parse_BadCountIsSkipped(t *testing.T) {
	// Arrange
	xml := `<feedback>
  <report_metadata>
    <org_name>google.com</org_name>
    <report_id>rid-2</report_id>
    <date_range><begin>1706227200</begin><end>1706313599</end></date_range>
  </report_metadata>
  <policy_published><domain>example.com</domain></policy_published>
  <record><row><source_ip>192.0.2.1</source_ip><count>many</count></row></record>
  <record><row><source_ip>192.0.2.2</source_ip><count>0</count></row></record>
  <record><row><source_ip>192.0.2.3</source_ip><count>3</count></row></record>
</feedback>`
	parser := NewParser(getLogger())

	// Act
	result, err := parser.Parse(context.Background(), []byte(xml))

	// Assert
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, "192.0.2.3", result.Records[0].SourceIP)
	assert.Len(t, result.Skipped, 2)
}

func TestParser_Parse_UnknownValuesAreCoercedAndFlagged(t *testing.T) {
	// Arrange
	xml := `<feedback>
  <report_metadata>
    <org_name>google.com</org_name>
    <report_id>rid-3</report_id>
    <date_range><begin>1706227200</begin><end>1706313599</end></date_range>
  </report_metadata>
  <policy_published><domain>example.com</domain></policy_published>
  <record>
    <row>
      <source_ip>192.0.2.1</source_ip>
      <count>1</count>
      <policy_evaluated>
        <disposition>blocked</disposition>
        <dkim>pass</dkim>
        <spf>maybe</spf>
      </policy_evaluated>
    </row>
  </record>
</feedback>`
	parser := NewParser(getLogger())

	// Act
	result, err := parser.Parse(context.Background(), []byte(xml))

	// Assert
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	record := result.Records[0]
	assert.Equal(t, enum.DispositionUnknown, record.Disposition)
	assert.Equal(t, enum.AuthResultUnknown, record.SPFResult)
	assert.Equal(t, enum.AuthResultPass, record.DKIMResult)
	assert.True(t, record.Flagged)
}

func TestParser_Parse_ZeroRecordBlocksIsValid(t *testing.T) {
	// Arrange
	xml := `<feedback>
  <report_metadata>
    <org_name>google.com</org_name>
    <report_id>rid-4</report_id>
    <date_range><begin>1706227200</begin><end>1706313599</end></date_range>
  </report_metadata>
  <policy_published><domain>example.com</domain></policy_published>
</feedback>`
	parser := NewParser(getLogger())

	// Act
	result, err := parser.Parse(context.Background(), []byte(xml))

	// Assert
	require.NoError(t, err)
	assert.Empty(t, result.Records)
	assert.Equal(t, 0, result.Report.TotalMessages)
}

func TestParser_Parse_PercentDefaultsWhenAbsent(t *testing.T) {
	// Arrange
	xml := `<feedback>
  <report_metadata>
    <org_name>google.com</org_name>
    <report_id>rid-5</report_id>
    <date_range><begin>1706227200</begin><end>1706313599</end></date_range>
  </report_metadata>
  <policy_published><domain>example.com</domain><p>reject</p></policy_published>
</feedback>`
	parser := NewParser(getLogger())

	// Act
	result, err := parser.Parse(context.Background(), []byte(xml))

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 100, result.Report.Percent)
}

func TestParser_Parse_MalformedDocuments(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{
			name:    "not xml at all",
			payload: `{"org_name": "google.com"}`,
		},
		{
			name:    "wrong root element",
			payload: `<invalid>xml</invalid>`,
		},
		{
			name: "missing report_id",
			payload: `<feedback>
  <report_metadata>
    <org_name>google.com</org_name>
    <date_range><begin>1706227200</begin><end>1706313599</end></date_range>
  </report_metadata>
  <policy_published><domain>example.com</domain></policy_published>
</feedback>`,
		},
		{
			name: "missing policy_published",
			payload: `<feedback>
  <report_metadata>
    <org_name>google.com</org_name>
    <report_id>rid-6</report_id>
    <date_range><begin>1706227200</begin><end>1706313599</end></date_range>
  </report_metadata>
</feedback>`,
		},
		{
			name: "date range inverted",
			payload: `<feedback>
  <report_metadata>
    <org_name>google.com</org_name>
    <report_id>rid-7</report_id>
    <date_range><begin>1706313599</begin><end>1706227200</end></date_range>
  </report_metadata>
  <policy_published><domain>example.com</domain></policy_published>
</feedback>`,
		},
		{
			name: "negative date bound",
			payload: `<feedback>
  <report_metadata>
    <org_name>google.com</org_name>
    <report_id>rid-8</report_id>
    <date_range><begin>-5</begin><end>1706227200</end></date_range>
  </report_metadata>
  <policy_published><domain>example.com</domain></policy_published>
</feedback>`,
		},
		{
			name: "record blocks present but none parseable",
			payload: `<feedback>
  <report_metadata>
    <org_name>google.com</org_name>
    <report_id>rid-9</report_id>
    <date_range><begin>1706227200</begin><end>1706313599</end></date_range>
  </report_metadata>
  <policy_published><domain>example.com</domain></policy_published>
  <record><row><count>1</count></row></record>
  <record><row><source_ip>192.0.2.1</source_ip></row></record>
</feedback>`,
		},
	}

	parser := NewParser(getLogger())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := parser.Parse(context.Background(), []byte(tt.payload))

			require.Error(t, err)
			assert.True(t, errors.Is(err, er.ErrMalformedReport))
			assert.Nil(t, result)
		})
	}
}

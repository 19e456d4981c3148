package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderFromReportFilename(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		expected string
	}{
		{
			name:     "standard google report",
			filename: "google.com!example.com!1700000000!1700086400.xml",
			expected: "google.com",
		},
		{
			name:     "microsoft enterprise receiver is folded to outlook",
			filename: "enterprise.protection.outlook.com!example.com!1!2.xml.gz",
			expected: "outlook.com",
		},
		{
			name:     "aol reports come from the yahoo infrastructure",
			filename: "aol.com!example.com!1!2.zip",
			expected: "yahoo.com",
		},
		{
			name:     "no receiver segment",
			filename: "report.xml",
			expected: "",
		},
		{
			name:     "empty filename",
			filename: "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ProviderFromReportFilename(tt.filename))
		})
	}
}

func TestMatchSendingProvider(t *testing.T) {
	tests := []struct {
		hostname string
		expected string
	}{
		{"mail-wr1-f41.google.com", "Google"},
		{"mail-eopbgr60055.outbound.protection.outlook.com", "Microsoft"},
		{"a8-63.smtp-out.amazonses.com", "Amazon SES"},
		{"o1.email.sendgrid.net", "SendGrid"},
		{"unknown.example.net", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.hostname, func(t *testing.T) {
			assert.Equal(t, tt.expected, MatchSendingProvider(tt.hostname))
		})
	}
}

func TestExtractDomainFromEmail(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		expected string
	}{
		{"plain address", "noreply-dmarc-support@google.com", "google.com"},
		{"display name with angle brackets", "Google DMARC <noreply-dmarc-support@google.com>", "google.com"},
		{"uppercase domain folded", "reports@EXAMPLE.COM", "example.com"},
		{"surrounding whitespace", "  reports@example.com  ", "example.com"},
		{"missing at sign", "not-an-email", ""},
		{"empty input", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractDomainFromEmail(tt.email))
		})
	}
}

func TestUniqueEmails(t *testing.T) {
	// Act
	unique := UniqueEmails([]string{
		"security@example.com",
		"ops@example.com",
		"security@example.com",
	})

	// Assert: order preserved, duplicate dropped
	assert.Equal(t, []string{"security@example.com", "ops@example.com"}, unique)
}

func TestGenerateNanoIDWithPrefix(t *testing.T) {
	// Act
	id := GenerateNanoIDWithPrefix("rpt", 12)
	other := GenerateNanoIDWithPrefix("rpt", 12)

	// Assert
	assert.True(t, strings.HasPrefix(id, "rpt_"))
	assert.Len(t, id, len("rpt_")+12)
	assert.NotEqual(t, id, other)
}

func TestGenerateMessageID(t *testing.T) {
	// Act
	id := GenerateMessageID("example.com", "alrt_1")
	other := GenerateMessageID("example.com", "alrt_1")

	// Assert
	require.True(t, strings.HasPrefix(id, "<"))
	require.True(t, strings.HasSuffix(id, "@example.com>"))
	assert.NotEqual(t, id, other)
}

func TestNowIsUTC(t *testing.T) {
	// Act
	now := Now()

	// Assert
	assert.Equal(t, "UTC", now.Location().String())
	require.NotNil(t, NowPtr())
}

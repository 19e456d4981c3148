package notifier

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmarcwatch/dmarcwatch/config"
	"github.com/dmarcwatch/dmarcwatch/internal/enum"
	"github.com/dmarcwatch/dmarcwatch/internal/logger"
	"github.com/dmarcwatch/dmarcwatch/internal/models"
)

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

func sampleReport() *models.Report {
	return &models.Report{
		ID:           "rpt_abc",
		OrgName:      "google.com",
		ExternalID:   "8293021",
		PolicyDomain: "example.com",
		DateBegin:    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		DateEnd:      time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
	}
}

func sampleAlert() *models.Alert {
	return &models.Alert{
		ID:           "alrt_xyz",
		ReportID:     "rpt_abc",
		Type:         enum.AlertTypeSPFFailure,
		Severity:     enum.AlertSeverityMedium,
		PolicyDomain: "example.com",
		Title:        "SPF failures on example.com",
		Message:      "12 message(s) failed SPF authentication, above the threshold of 5.",
	}
}

func TestFormatAlertText(t *testing.T) {
	// Arrange
	report := sampleReport()
	report.Verdict = models.JSONMap{
		"recommendations": []interface{}{"add include:_spf.example.net to the SPF record"},
	}

	// Act
	text := formatAlertText(report, sampleAlert())

	// Assert
	assert.Contains(t, text, "DMARC ALERT - MEDIUM")
	assert.Contains(t, text, "SPF failures on example.com")
	assert.Contains(t, text, "12 message(s) failed SPF authentication")
	assert.Contains(t, text, "add include:_spf.example.net")
	assert.Contains(t, text, "Reporter: google.com")
	assert.Contains(t, text, "Report ID: 8293021")
}

func TestFormatAlertText_NoVerdictOmitsRecommendations(t *testing.T) {
	// Act
	text := formatAlertText(sampleReport(), sampleAlert())

	// Assert
	assert.NotContains(t, text, "Recommendations:")
}

func TestFormatAlertHTML(t *testing.T) {
	// Arrange
	alert := sampleAlert()
	alert.Severity = enum.AlertSeverityCritical

	// Act
	html := formatAlertHTML(sampleReport(), alert)

	// Assert
	assert.Contains(t, html, "#dc3545")
	assert.Contains(t, html, "CRITICAL")
	assert.Contains(t, html, "SPF failures on example.com")
	assert.Contains(t, html, "Domain: example.com")
}

func TestVerdictStrings_HandlesJsonbRoundTrip(t *testing.T) {
	// Arrange
	report := sampleReport()
	report.Verdict = models.JSONMap{
		"recommendations": []interface{}{"first", "second", 42},
		"severity":        "high",
	}

	// Act
	recs := verdictStrings(report, "recommendations")
	missing := verdictStrings(report, "anomalies")

	// Assert
	assert.Equal(t, []string{"first", "second"}, recs)
	assert.Nil(t, missing)
}

func TestValidRecipients_FiltersInvalidAddresses(t *testing.T) {
	// Arrange
	notifier := &SMTPNotifier{
		cfg: &config.SMTPConfig{FromAddress: "alerts@example.com"},
		alertCfg: &config.AlertConfig{
			Recipients: []string{"security@example.com", "not-an-email", " ops@example.com "},
		},
		log: getLogger(),
	}

	// Act
	recipients, err := notifier.validRecipients()

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []string{"security@example.com", "ops@example.com"}, recipients)
}

func TestValidRecipients_AllInvalidFails(t *testing.T) {
	// Arrange
	notifier := &SMTPNotifier{
		cfg: &config.SMTPConfig{FromAddress: "alerts@example.com"},
		alertCfg: &config.AlertConfig{
			Recipients: []string{"nope", ""},
		},
		log: getLogger(),
	}

	// Act
	recipients, err := notifier.validRecipients()

	// Assert
	require.Error(t, err)
	assert.Nil(t, recipients)
}

func TestPrepareMessage_MultipartAlternative(t *testing.T) {
	// Arrange
	notifier := &SMTPNotifier{
		cfg: &config.SMTPConfig{
			FromAddress: "alerts@example.com",
			FromName:    "DMARC Watch",
		},
		alertCfg: &config.AlertConfig{
			Recipients: []string{"security@example.com"},
		},
		log: getLogger(),
	}

	// Act
	buffer, err := notifier.prepareMessage(context.Background(), sampleReport(), sampleAlert(), []string{"security@example.com"})

	// Assert
	require.NoError(t, err)
	message := buffer.String()
	assert.Contains(t, message, "Subject: [MEDIUM] SPF failures on example.com")
	assert.Contains(t, message, "From: DMARC Watch <alerts@example.com>")
	assert.Contains(t, message, "To: security@example.com")
	assert.Contains(t, message, "multipart/alternative")
	assert.Contains(t, message, "text/plain; charset=UTF-8")
	assert.Contains(t, message, "text/html; charset=UTF-8")
}

package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmarcwatch/dmarcwatch/config"
	"github.com/dmarcwatch/dmarcwatch/dto"
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

type stubAlertRepository struct {
	created      []*models.Alert
	lastDispatch map[string]*time.Time
}

func (s *stubAlertRepository) Create(ctx context.Context, alert *models.Alert) error {
	s.created = append(s.created, alert)
	return nil
}

func (s *stubAlertRepository) MarkDispatched(ctx context.Context, id string, sentAt time.Time, recipients []string) error {
	return nil
}

func (s *stubAlertRepository) LastDispatchedAt(ctx context.Context, alertType enum.AlertType, policyDomain string) (*time.Time, error) {
	return s.lastDispatch[alertType.String()+"|"+policyDomain], nil
}

func (s *stubAlertRepository) CountDispatchedSince(ctx context.Context, alertType enum.AlertType, policyDomain string, since time.Time) (int64, error) {
	return 0, nil
}

func (s *stubAlertRepository) CountDispatched(ctx context.Context) (int64, error) {
	return 0, nil
}

func (s *stubAlertRepository) List(ctx context.Context, severity enum.AlertSeverity, limit, offset int) ([]models.Alert, int64, error) {
	return nil, 0, nil
}

func (s *stubAlertRepository) ListByReport(ctx context.Context, reportID string) ([]models.Alert, error) {
	return nil, nil
}

func testAlertConfig() *config.AlertConfig {
	return &config.AlertConfig{
		Recipients:            []string{"security@example.com"},
		ThrottleWindowMinutes: 60,
		FailureCountThreshold: 5,
	}
}

func testReport() *models.Report {
	return &models.Report{
		ID:           "rpt_test1",
		OrgName:      "google.com",
		ExternalID:   "12345",
		PolicyDomain: "example.com",
	}
}

func TestEvaluator_Evaluate_RejectDispositionFiresOnce(t *testing.T) {
	// Arrange
	repo := &stubAlertRepository{}
	evaluator := NewEvaluator(testAlertConfig(), getLogger(), repo)
	records := []models.Record{
		{SourceIP: "209.85.220.41", Count: 10, Disposition: enum.DispositionNone, SPFResult: enum.AuthResultPass, DKIMResult: enum.AuthResultPass},
		{SourceIP: "198.51.100.7", Count: 1, Disposition: enum.DispositionReject, SPFResult: enum.AuthResultFail, DKIMResult: enum.AuthResultPass},
		{SourceIP: "203.0.113.9", Count: 3, Disposition: enum.DispositionNone, SPFResult: enum.AuthResultPass, DKIMResult: enum.AuthResultPass},
	}

	// Act
	alerts, err := evaluator.Evaluate(context.Background(), testReport(), records, dto.UnavailableVerdict())

	// Assert
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, enum.AlertTypeDMARCFailure, alerts[0].Type)
	assert.Equal(t, enum.AlertSeverityHigh, alerts[0].Severity)
	assert.Equal(t, "example.com", alerts[0].PolicyDomain)
	assert.False(t, alerts[0].Throttled)
}

func TestEvaluator_Evaluate_QuarantineOnlyIsMediumSeverity(t *testing.T) {
	// Arrange
	repo := &stubAlertRepository{}
	evaluator := NewEvaluator(testAlertConfig(), getLogger(), repo)
	records := []models.Record{
		{SourceIP: "198.51.100.7", Count: 2, Disposition: enum.DispositionQuarantine, SPFResult: enum.AuthResultPass, DKIMResult: enum.AuthResultPass},
	}

	// Act
	alerts, err := evaluator.Evaluate(context.Background(), testReport(), records, dto.UnavailableVerdict())

	// Assert
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, enum.AlertTypeDMARCFailure, alerts[0].Type)
	assert.Equal(t, enum.AlertSeverityMedium, alerts[0].Severity)
}

func TestEvaluator_Evaluate_AuthFailuresSummedAcrossRecords(t *testing.T) {
	// Arrange
	repo := &stubAlertRepository{}
	evaluator := NewEvaluator(testAlertConfig(), getLogger(), repo)
	records := []models.Record{
		{SourceIP: "198.51.100.7", Count: 3, Disposition: enum.DispositionNone, SPFResult: enum.AuthResultFail, DKIMResult: enum.AuthResultFail},
		{SourceIP: "198.51.100.8", Count: 3, Disposition: enum.DispositionNone, SPFResult: enum.AuthResultFail, DKIMResult: enum.AuthResultPass},
	}

	// Act
	alerts, err := evaluator.Evaluate(context.Background(), testReport(), records, dto.UnavailableVerdict())

	// Assert
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, enum.AlertTypeSPFFailure, alerts[0].Type)
	assert.Equal(t, enum.AlertSeverityMedium, alerts[0].Severity)
	assert.Equal(t, 6, alerts[0].Details["failedMessages"])
}

func TestEvaluator_Evaluate_FailuresAtThresholdDoNotFire(t *testing.T) {
	// Arrange
	repo := &stubAlertRepository{}
	evaluator := NewEvaluator(testAlertConfig(), getLogger(), repo)
	records := []models.Record{
		{SourceIP: "198.51.100.7", Count: 5, Disposition: enum.DispositionNone, SPFResult: enum.AuthResultFail, DKIMResult: enum.AuthResultFail},
	}

	// Act
	alerts, err := evaluator.Evaluate(context.Background(), testReport(), records, dto.UnavailableVerdict())

	// Assert
	require.NoError(t, err)
	assert.Empty(t, alerts)
	assert.Empty(t, repo.created)
}

func TestEvaluator_Evaluate_UnavailableVerdictSkipsVerdictCriteria(t *testing.T) {
	// Arrange
	repo := &stubAlertRepository{}
	evaluator := NewEvaluator(testAlertConfig(), getLogger(), repo)
	records := []models.Record{
		{SourceIP: "198.51.100.7", Count: 9, Disposition: enum.DispositionNone, SPFResult: enum.AuthResultPass, DKIMResult: enum.AuthResultFail},
	}
	verdict := dto.UnavailableVerdict()
	verdict.Anomalies = []string{"should be ignored while unavailable"}

	// Act
	alerts, err := evaluator.Evaluate(context.Background(), testReport(), records, verdict)

	// Assert
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, enum.AlertTypeDKIMFailure, alerts[0].Type)
}

func TestEvaluator_Evaluate_AnomalyFiresFromVerdict(t *testing.T) {
	// Arrange
	repo := &stubAlertRepository{}
	evaluator := NewEvaluator(testAlertConfig(), getLogger(), repo)
	verdict := &dto.Verdict{
		Anomalies: []string{"sudden volume spike from new ASN", "night-time sending"},
	}

	// Act
	alerts, err := evaluator.Evaluate(context.Background(), testReport(), nil, verdict)

	// Assert
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, enum.AlertTypeAnomaly, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "sudden volume spike from new ASN")
}

func TestEvaluator_Evaluate_VerdictSeverityOverridesDefaults(t *testing.T) {
	// Arrange
	repo := &stubAlertRepository{}
	evaluator := NewEvaluator(testAlertConfig(), getLogger(), repo)
	records := []models.Record{
		{SourceIP: "198.51.100.7", Count: 4, Disposition: enum.DispositionQuarantine, SPFResult: enum.AuthResultPass, DKIMResult: enum.AuthResultPass},
	}
	verdict := &dto.Verdict{Severity: "critical"}

	// Act
	alerts, err := evaluator.Evaluate(context.Background(), testReport(), records, verdict)

	// Assert
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, enum.AlertSeverityCritical, alerts[0].Severity)
}

func TestEvaluator_Evaluate_UnrecognizedVerdictSeverityKeepsDefault(t *testing.T) {
	// Arrange
	repo := &stubAlertRepository{}
	evaluator := NewEvaluator(testAlertConfig(), getLogger(), repo)
	records := []models.Record{
		{SourceIP: "198.51.100.7", Count: 1, Disposition: enum.DispositionReject, SPFResult: enum.AuthResultPass, DKIMResult: enum.AuthResultPass},
	}
	verdict := &dto.Verdict{Severity: "catastrophic"}

	// Act
	alerts, err := evaluator.Evaluate(context.Background(), testReport(), records, verdict)

	// Assert
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, enum.AlertSeverityHigh, alerts[0].Severity)
}

func TestEvaluator_Evaluate_RecentDispatchThrottles(t *testing.T) {
	// Arrange
	tenMinutesAgo := time.Now().UTC().Add(-10 * time.Minute)
	repo := &stubAlertRepository{
		lastDispatch: map[string]*time.Time{
			"spf-failure|example.com": &tenMinutesAgo,
		},
	}
	evaluator := NewEvaluator(testAlertConfig(), getLogger(), repo)
	records := []models.Record{
		{SourceIP: "198.51.100.7", Count: 8, Disposition: enum.DispositionNone, SPFResult: enum.AuthResultFail, DKIMResult: enum.AuthResultPass},
	}

	// Act
	alerts, err := evaluator.Evaluate(context.Background(), testReport(), records, dto.UnavailableVerdict())

	// Assert
	require.NoError(t, err)
	assert.Empty(t, alerts)
	require.Len(t, repo.created, 1)
	assert.True(t, repo.created[0].Throttled)
	assert.Equal(t, enum.AlertTypeSPFFailure, repo.created[0].Type)
}

func TestEvaluator_Evaluate_ExpiredWindowDispatchesAgain(t *testing.T) {
	// Arrange
	overAnHourAgo := time.Now().UTC().Add(-70 * time.Minute)
	repo := &stubAlertRepository{
		lastDispatch: map[string]*time.Time{
			"spf-failure|example.com": &overAnHourAgo,
		},
	}
	evaluator := NewEvaluator(testAlertConfig(), getLogger(), repo)
	records := []models.Record{
		{SourceIP: "198.51.100.7", Count: 8, Disposition: enum.DispositionNone, SPFResult: enum.AuthResultFail, DKIMResult: enum.AuthResultPass},
	}

	// Act
	alerts, err := evaluator.Evaluate(context.Background(), testReport(), records, dto.UnavailableVerdict())

	// Assert
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.False(t, alerts[0].Throttled)
}

func TestEvaluator_Evaluate_ThrottleIsPerTypeAndDomain(t *testing.T) {
	// Arrange
	tenMinutesAgo := time.Now().UTC().Add(-10 * time.Minute)
	repo := &stubAlertRepository{
		lastDispatch: map[string]*time.Time{
			"spf-failure|example.com": &tenMinutesAgo,
		},
	}
	evaluator := NewEvaluator(testAlertConfig(), getLogger(), repo)
	records := []models.Record{
		{SourceIP: "198.51.100.7", Count: 8, Disposition: enum.DispositionNone, SPFResult: enum.AuthResultFail, DKIMResult: enum.AuthResultFail},
	}

	// Act
	alerts, err := evaluator.Evaluate(context.Background(), testReport(), records, dto.UnavailableVerdict())

	// Assert: spf throttled, dkim for the same domain untouched
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, enum.AlertTypeDKIMFailure, alerts[0].Type)
	require.Len(t, repo.created, 2)
}

func TestEvaluator_Evaluate_NoCriteriaNoAlerts(t *testing.T) {
	// Arrange
	repo := &stubAlertRepository{}
	evaluator := NewEvaluator(testAlertConfig(), getLogger(), repo)
	records := []models.Record{
		{SourceIP: "209.85.220.41", Count: 100, Disposition: enum.DispositionNone, SPFResult: enum.AuthResultPass, DKIMResult: enum.AuthResultPass},
	}

	// Act
	alerts, err := evaluator.Evaluate(context.Background(), testReport(), records, dto.UnavailableVerdict())

	// Assert
	require.NoError(t, err)
	assert.Empty(t, alerts)
	assert.Empty(t, repo.created)
}

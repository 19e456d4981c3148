package analysis

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

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

func testConfig(url string) *config.AnalysisConfig {
	return &config.AnalysisConfig{
		Url:            url,
		ApiKey:         "test-key",
		TimeoutSeconds: 5,
		MaxRetries:     3,
	}
}

func testSummary() dto.ReportSummary {
	return dto.ReportSummary{
		OrgName:      "google.com",
		ExternalID:   "rid-100",
		PolicyDomain: "example.com",
	}
}

func TestAnalysisService_Analyze_DecodesVerdict(t *testing.T) {
	// Arrange
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/dmarc/analyze", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"severity":"high","summary":"spoofing detected","failures":["spf misaligned"],"unauthorized_sources":["203.0.113.9"],"anomalies":[]}`))
	}))
	defer server.Close()
	service := NewAnalysisService(testConfig(server.URL), getLogger())

	// Act
	verdict := service.Analyze(context.Background(), testSummary())

	// Assert
	require.NotNil(t, verdict)
	assert.True(t, verdict.IsAvailable())
	assert.Equal(t, "high", verdict.Severity)
	assert.Equal(t, "spoofing detected", verdict.Summary)
	assert.Equal(t, []string{"spf misaligned"}, verdict.Failures)
	assert.Equal(t, []string{"203.0.113.9"}, verdict.UnauthorizedSources)
}

func TestAnalysisService_Analyze_StripsSurroundingMarkup(t *testing.T) {
	// Arrange
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Here is the analysis:\n```json\n{\"severity\":\"low\",\"summary\":\"all clear\"}\n```\n"))
	}))
	defer server.Close()
	service := NewAnalysisService(testConfig(server.URL), getLogger())

	// Act
	verdict := service.Analyze(context.Background(), testSummary())

	// Assert
	require.NotNil(t, verdict)
	assert.True(t, verdict.IsAvailable())
	assert.Equal(t, "low", verdict.Severity)
	assert.Equal(t, "all clear", verdict.Summary)
}

func TestAnalysisService_Analyze_WrapsNonJSONResponse(t *testing.T) {
	// Arrange
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Everything looks normal for this reporting window."))
	}))
	defer server.Close()
	service := NewAnalysisService(testConfig(server.URL), getLogger())

	// Act
	verdict := service.Analyze(context.Background(), testSummary())

	// Assert
	require.NotNil(t, verdict)
	assert.True(t, verdict.IsAvailable())
	assert.Equal(t, "Everything looks normal for this reporting window.", verdict.Summary)
	assert.Equal(t, enum.AlertSeverityMedium.String(), verdict.Severity)
	assert.Empty(t, verdict.Failures)
}

func TestAnalysisService_Analyze_RateLimitExhaustionReturnsUnavailable(t *testing.T) {
	// Arrange
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()
	service := NewAnalysisService(testConfig(server.URL), getLogger())

	// Act
	verdict := service.Analyze(context.Background(), testSummary())

	// Assert
	require.NotNil(t, verdict)
	assert.False(t, verdict.IsAvailable())
	assert.Empty(t, verdict.Severity)
	assert.Empty(t, verdict.UnauthorizedSources)
	assert.Equal(t, int32(4), atomic.LoadInt32(&attempts))
}

func TestAnalysisService_Analyze_ServerErrorsAreRetriedUntilSuccess(t *testing.T) {
	// Arrange
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"severity":"medium","summary":"recovered"}`))
	}))
	defer server.Close()
	service := NewAnalysisService(testConfig(server.URL), getLogger())

	// Act
	verdict := service.Analyze(context.Background(), testSummary())

	// Assert
	require.NotNil(t, verdict)
	assert.True(t, verdict.IsAvailable())
	assert.Equal(t, "recovered", verdict.Summary)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestAnalysisService_Analyze_ClientErrorIsNotRetried(t *testing.T) {
	// Arrange
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()
	service := NewAnalysisService(testConfig(server.URL), getLogger())

	// Act
	verdict := service.Analyze(context.Background(), testSummary())

	// Assert
	require.NotNil(t, verdict)
	assert.False(t, verdict.IsAvailable())
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestBuildSummary_TopRecordsBoundedAndSorted(t *testing.T) {
	// Arrange
	report := &models.Report{
		OrgName:      "google.com",
		ExternalID:   "rid-200",
		PolicyDomain: "example.com",
		Percent:      100,
	}
	records := make([]models.Record, 0, 12)
	for i := 0; i < 12; i++ {
		records = append(records, models.Record{
			SourceIP:    "192.0.2.1",
			Count:       i + 1,
			Disposition: enum.DispositionNone,
			SPFResult:   enum.AuthResultPass,
			DKIMResult:  enum.AuthResultPass,
		})
	}

	// Act
	summary := BuildSummary(report, records)

	// Assert
	require.Len(t, summary.TopRecords, 10)
	assert.Equal(t, 12, summary.TopRecords[0].Count)
	assert.Equal(t, 3, summary.TopRecords[9].Count)
	for i := 1; i < len(summary.TopRecords); i++ {
		assert.GreaterOrEqual(t, summary.TopRecords[i-1].Count, summary.TopRecords[i].Count)
	}
}

func TestBuildSummary_AggregatesFailureCounts(t *testing.T) {
	// Arrange
	report := &models.Report{OrgName: "google.com", ExternalID: "rid-201", PolicyDomain: "example.com", TotalMessages: 30}
	records := []models.Record{
		{SourceIP: "192.0.2.1", Count: 10, SPFResult: enum.AuthResultFail, DKIMResult: enum.AuthResultPass, Disposition: enum.DispositionNone},
		{SourceIP: "192.0.2.2", Count: 5, SPFResult: enum.AuthResultFail, DKIMResult: enum.AuthResultFail, Disposition: enum.DispositionQuarantine},
		{SourceIP: "192.0.2.3", Count: 15, SPFResult: enum.AuthResultPass, DKIMResult: enum.AuthResultPass, Disposition: enum.DispositionReject},
	}

	// Act
	summary := BuildSummary(report, records)

	// Assert
	assert.Equal(t, 30, summary.TotalMessages)
	assert.Equal(t, 15, summary.SPFFailures)
	assert.Equal(t, 5, summary.DKIMFailures)
	assert.Equal(t, 5, summary.Quarantined)
	assert.Equal(t, 15, summary.Rejected)
}

package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/dmarcwatch/dmarcwatch/api/handlers"
	"github.com/dmarcwatch/dmarcwatch/api/middleware"
	"github.com/dmarcwatch/dmarcwatch/internal/repository"
	"github.com/dmarcwatch/dmarcwatch/internal/tracing"
	"github.com/dmarcwatch/dmarcwatch/services"
)

// RegisterRoutes sets up all API endpoints
func RegisterRoutes(ctx context.Context, r *gin.Engine, s *services.Services, repos *repository.Repositories, apikey string) {
	if s == nil {
		panic("Services cannot be nil")
	}
	if repos == nil {
		panic("Repositories cannot be nil")
	}

	// Add recovery middlewares
	r.Use(gin.Recovery())                                         // Gin's built-in recovery
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer())) // Our custom Jaeger recovery

	// Health check and status endpoints (no custom context needed)
	r.GET("/health", handlers.HealthCheck)
	r.GET("/status", handlers.Status(repos.ProcessingLogRepository))

	apiKeyMiddleware := middleware.APIKeyMiddleware(middleware.APIKeyConfig{
		HeaderName:  "X-DMARCWATCH-API-KEY",
		ValidAPIKey: apikey,
	})

	// API group with version and custom context
	api := r.Group("/v1")
	api.Use(apiKeyMiddleware)
	api.Use(middleware.CustomContextMiddleware("dmarcwatch")) // Add custom context for all /v1/* endpoints
	api.Use(middleware.TracingMiddleware())                   // Add tracing for all /v1/* endpoints
	{
		// Manual pipeline trigger, same path the cron takes
		api.POST("/process", handlers.TriggerProcess(s.ReportPipeline))

		// Report endpoints
		reports := api.Group("/reports")
		{
			reports.POST("/ingest", handlers.IngestReport(s.Extractor, s.ReportPipeline))
			reports.GET("", handlers.ListReports(repos.ReportRepository))
			reports.GET("/:id", handlers.GetReport(repos.ReportRepository, repos.AlertRepository, s.ArchiveService))
		}

		// Alert endpoints
		alerts := api.Group("/alerts")
		{
			alerts.GET("", handlers.ListAlerts(repos.AlertRepository))
		}

		api.GET("/stats", handlers.Stats(repos.ReportRepository, repos.AlertRepository))
	}
}

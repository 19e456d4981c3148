package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dmarcwatch/dmarcwatch/interfaces"
	"github.com/dmarcwatch/dmarcwatch/internal/enum"
)

// HealthCheck provides a simple health check endpoint
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Status reports the outcome of the most recent processing run together with
// a short run history.
func Status(processingLogRepository interfaces.ProcessingLogRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		lastRun, err := processingLogRepository.LastByJobType(ctx, enum.JobProcessReports)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		recentRuns, err := processingLogRepository.List(ctx, 10)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":     "ok",
			"lastRun":    lastRun,
			"recentRuns": recentRuns,
		})
	}
}

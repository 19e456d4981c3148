package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dmarcwatch/dmarcwatch/interfaces"
)

// Stats aggregates persisted report counters and alert dispatch totals.
func Stats(reportRepository interfaces.ReportRepository, alertRepository interfaces.AlertRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		stats, err := reportRepository.AggregateStats(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		dispatched, err := alertRepository.CountDispatched(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"reports": stats,
			"passRates": gin.H{
				"spf":   stats.SPFPassRate(),
				"dkim":  stats.DKIMPassRate(),
				"dmarc": stats.DMARCPassRate(),
			},
			"alertsDispatched": dispatched,
		})
	}
}

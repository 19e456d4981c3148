package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dmarcwatch/dmarcwatch/interfaces"
)

// TriggerProcess runs one pipeline pass on demand, outside the cron schedule.
func TriggerProcess(pipeline interfaces.ReportPipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := pipeline.Process(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "result": result})
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

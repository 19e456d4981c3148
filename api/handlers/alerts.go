package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dmarcwatch/dmarcwatch/interfaces"
	"github.com/dmarcwatch/dmarcwatch/internal/enum"
	"github.com/dmarcwatch/dmarcwatch/internal/utils"
)

// ListAlerts returns stored alerts, newest first, optionally filtered by
// severity. When both type and domain are given the response also carries the
// 24h dispatch count for that pair, which is what the throttle window keys on.
func ListAlerts(alertRepository interfaces.AlertRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		limit, offset := parsePagination(c)

		severity := enum.GetAlertSeverity(c.Query("severity"))
		if c.Query("severity") != "" && severity == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown severity"})
			return
		}

		alerts, total, err := alertRepository.List(ctx, severity, limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		response := gin.H{
			"alerts": alerts,
			"total":  total,
			"limit":  limit,
			"offset": offset,
		}

		alertType := enum.GetAlertType(c.Query("type"))
		domain := c.Query("domain")
		if alertType != "" && domain != "" {
			since := utils.Now().Add(-24 * time.Hour)
			count, err := alertRepository.CountDispatchedSince(ctx, alertType, domain, since)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			response["dispatchedLast24h"] = count
		}

		c.JSON(http.StatusOK, response)
	}
}

package notifier

import (
	"fmt"
	"strings"

	"github.com/dmarcwatch/dmarcwatch/internal/enum"
	"github.com/dmarcwatch/dmarcwatch/internal/models"
)

func severityColor(severity enum.AlertSeverity) string {
	switch severity {
	case enum.AlertSeverityLow:
		return "#28a745"
	case enum.AlertSeverityMedium:
		return "#ffc107"
	case enum.AlertSeverityHigh:
		return "#fd7e14"
	case enum.AlertSeverityCritical:
		return "#dc3545"
	default:
		return "#6c757d"
	}
}

func formatAlertText(report *models.Report, alert *models.Alert) string {
	var b strings.Builder

	fmt.Fprintf(&b, "DMARC ALERT - %s\n\n", strings.ToUpper(alert.Severity.String()))
	fmt.Fprintf(&b, "%s\n\n", alert.Title)
	fmt.Fprintf(&b, "%s\n", alert.Message)

	if recommendations := verdictStrings(report, "recommendations"); len(recommendations) > 0 {
		b.WriteString("\nRecommendations:\n")
		for _, rec := range recommendations {
			fmt.Fprintf(&b, "- %s\n", rec)
		}
	}

	b.WriteString("\n---\n")
	fmt.Fprintf(&b, "Domain: %s\n", report.PolicyDomain)
	fmt.Fprintf(&b, "Reporter: %s\n", report.OrgName)
	fmt.Fprintf(&b, "Report ID: %s\n", report.ExternalID)
	fmt.Fprintf(&b, "Window: %s to %s\n",
		report.DateBegin.Format("2006-01-02 15:04"), report.DateEnd.Format("2006-01-02 15:04"))

	return b.String()
}

func formatAlertHTML(report *models.Report, alert *models.Alert) string {
	color := severityColor(alert.Severity)

	var recommendations strings.Builder
	if recs := verdictStrings(report, "recommendations"); len(recs) > 0 {
		recommendations.WriteString("<h3>Recommendations:</h3><ul>")
		for _, rec := range recs {
			fmt.Fprintf(&recommendations, "<li>%s</li>", rec)
		}
		recommendations.WriteString("</ul>")
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
<style>
  body { font-family: Arial, sans-serif; line-height: 1.6; }
  .header { background-color: %s; color: white; padding: 20px; }
  .content { padding: 20px; }
  .severity { display: inline-block; padding: 5px 10px; background-color: %s; color: white; border-radius: 3px; }
</style>
</head>
<body>
  <div class="header">
    <h2>%s</h2>
    <span class="severity">%s</span>
  </div>
  <div class="content">
    <p>%s</p>
    %s
    <hr>
    <p><small>
      Domain: %s<br>
      Reporter: %s<br>
      Report ID: %s
    </small></p>
  </div>
</body>
</html>`,
		color, color,
		alert.Title,
		strings.ToUpper(alert.Severity.String()),
		alert.Message,
		recommendations.String(),
		report.PolicyDomain,
		report.OrgName,
		report.ExternalID,
	)
}

// verdictStrings pulls a string list out of the persisted verdict payload,
// which round-tripped through jsonb and so carries []interface{} values.
func verdictStrings(report *models.Report, key string) []string {
	if report.Verdict == nil {
		return nil
	}
	raw, ok := report.Verdict[key]
	if !ok {
		return nil
	}

	switch values := raw.(type) {
	case []string:
		return values
	case []interface{}:
		var out []string
		for _, v := range values {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

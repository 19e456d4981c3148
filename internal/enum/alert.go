package enum

type AlertType string

const (
	AlertTypeDMARCFailure       AlertType = "dmarc-failure"
	AlertTypeSPFFailure         AlertType = "spf-failure"
	AlertTypeDKIMFailure        AlertType = "dkim-failure"
	AlertTypeUnauthorizedSource AlertType = "unauthorized-source"
	AlertTypeAnomaly            AlertType = "anomaly"
)

func (t AlertType) String() string {
	return string(t)
}

// GetAlertType parses a wire value into a known alert type, empty when
// unrecognized.
func GetAlertType(s string) AlertType {
	switch v := AlertType(s); v {
	case AlertTypeDMARCFailure, AlertTypeSPFFailure, AlertTypeDKIMFailure, AlertTypeUnauthorizedSource, AlertTypeAnomaly:
		return v
	default:
		return ""
	}
}

type AlertSeverity string

const (
	AlertSeverityLow      AlertSeverity = "low"
	AlertSeverityMedium   AlertSeverity = "medium"
	AlertSeverityHigh     AlertSeverity = "high"
	AlertSeverityCritical AlertSeverity = "critical"
)

func (t AlertSeverity) String() string {
	return string(t)
}

// GetAlertSeverity normalizes severities coming back from the analysis
// service; unrecognized values map to the empty severity so callers can apply
// their own fallback.
func GetAlertSeverity(s string) AlertSeverity {
	switch v := AlertSeverity(s); v {
	case AlertSeverityLow, AlertSeverityMedium, AlertSeverityHigh, AlertSeverityCritical:
		return v
	default:
		return ""
	}
}

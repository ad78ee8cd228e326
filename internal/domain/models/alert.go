package models

import "time"

// AlertType classifies what condition produced an alert.
type AlertType string

const (
	AlertSpreadBreach  AlertType = "spread_breach"
	AlertRateStale     AlertType = "rate_stale"
	AlertSourceFailure AlertType = "source_failure"
)

// AlertSeverity grades an alert.
type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

// RateAlert records a threshold breach, source failure, or stale rate.
// Alerts are mutated only by acknowledgement and never deleted here;
// retention is an external concern.
type RateAlert struct {
	ID           string        `json:"id"`
	Pair         string        `json:"pair"`
	Type         AlertType     `json:"type"`
	Severity     AlertSeverity `json:"severity"`
	Message      string        `json:"message"`
	Timestamp    time.Time     `json:"timestamp"`
	Acknowledged bool          `json:"acknowledged"`
}

package core

import "time"

// Severity grades an alert for the driver-facing surface.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is a user-facing notification record, distinct from the lower-level
// event envelope that carries it across the bus.
type Alert struct {
	Kind      string
	Severity  Severity
	Message   string
	Source    string
	Timestamp time.Time
}

// NewAlert stamps an alert with the current time.
func NewAlert(kind string, severity Severity, message, source string) Alert {
	return Alert{
		Kind:      kind,
		Severity:  severity,
		Message:   message,
		Source:    source,
		Timestamp: time.Now(),
	}
}

// PublishAlert wraps an alert in an event envelope and publishes it.
func PublishAlert(pub Publisher, alert Alert) {
	pub.Publish(NewEvent(EventAlert, alert.Source, alert))
}

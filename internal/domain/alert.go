package domain

import "context"

// Severity ranks alerts.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return "info"
	}
}

// ParseSeverity maps a config string to a Severity, defaulting to info.
func ParseSeverity(s string) Severity {
	switch s {
	case "warning", "warn":
		return SeverityWarning
	case "critical":
		return SeverityCritical
	default:
		return SeverityInfo
	}
}

// Alerter delivers operator alerts. Notify must not block trading; delivery
// failures are logged by the implementation and never returned.
type Alerter interface {
	Notify(ctx context.Context, message string, severity Severity)
}

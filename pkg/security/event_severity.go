package security

import "go.uber.org/zap/zapcore"

// Severity represents the severity level of an audit event
// This is derived from EventType, NOT caller-provided
type Severity string

const (
	SeverityINFO     Severity = "INFO"
	SeverityMEDIUM   Severity = "MEDIUM"
	SeverityWARN     Severity = "WARN"
	SeverityHIGH     Severity = "HIGH"
	SeverityCRITICAL Severity = "CRITICAL"
)

// EventSeverityMap defines the hard-coded severity for each event type
var EventSeverityMap = map[EventType]Severity{
	// INFO - Normal operations
	EventScanSubmitted: SeverityINFO,
	EventScanCompleted: SeverityINFO,

	// MEDIUM - Notable but not urgent
	EventScanFailed:       SeverityMEDIUM,
	EventDetectorDegraded: SeverityMEDIUM,

	// WARN - Potential abuse, monitor
	EventUploadRejected:     SeverityWARN,
	EventRateLimitTriggered: SeverityWARN,

	// HIGH - Hostile content handled
	EventSampleQuarantined: SeverityHIGH,

	// CRITICAL - Immediate attention required
	EventMalwareDetected: SeverityCRITICAL,
}

// GetSeverity returns the severity for an event type
// If the event type is not mapped, defaults to MEDIUM
func GetSeverity(eventType EventType) Severity {
	if severity, ok := EventSeverityMap[eventType]; ok {
		return severity
	}
	return SeverityMEDIUM
}

// IsHighOrAbove returns true if the event is HIGH or CRITICAL severity
func IsHighOrAbove(eventType EventType) bool {
	severity := GetSeverity(eventType)
	return severity == SeverityHIGH || severity == SeverityCRITICAL
}

func levelForSeverity(s Severity) zapcore.Level {
	switch s {
	case SeverityINFO:
		return zapcore.InfoLevel
	case SeverityHIGH, SeverityCRITICAL:
		return zapcore.ErrorLevel
	default:
		return zapcore.WarnLevel
	}
}

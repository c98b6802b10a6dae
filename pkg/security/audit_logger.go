package security

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EventType represents the type of audit event
type EventType string

const (
	EventScanSubmitted      EventType = "scan_submitted"
	EventScanCompleted      EventType = "scan_completed"
	EventScanFailed         EventType = "scan_failed"
	EventMalwareDetected    EventType = "malware_detected"
	EventDetectorDegraded   EventType = "detector_degraded"
	EventUploadRejected     EventType = "upload_rejected"
	EventRateLimitTriggered EventType = "rate_limit_triggered"
	EventSampleQuarantined  EventType = "sample_quarantined"
)

// AuditEvent is one entry of the scan audit trail
type AuditEvent struct {
	Timestamp   time.Time              `json:"timestamp"`
	Service     string                 `json:"service"`
	Environment string                 `json:"env"`
	Level       string                 `json:"level"`
	Severity    Severity               `json:"severity"`
	Event       EventType              `json:"event"`
	ScanID      string                 `json:"scan_id,omitempty"`
	SHA256      string                 `json:"sha256,omitempty"`
	IP          string                 `json:"ip,omitempty"`
	RequestID   string                 `json:"request_id,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
}

// AuditLogger writes audit events through zap. A nil *AuditLogger discards events.
type AuditLogger struct {
	zapLogger   *zap.Logger
	serviceName string
	environment string
	// Optional: DB persistence function
	persistFunc func(ctx context.Context, event AuditEvent) error
}

// NewAuditLogger builds a production zap logger writing JSON to stdout
func NewAuditLogger(serviceName, environment string) *AuditLogger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.LevelKey = "level"
	config.EncoderConfig.MessageKey = "message"
	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}

	logger, err := config.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return NewAuditLoggerWithZap(logger, serviceName, environment)
}

// NewAuditLoggerWithZap wraps an existing zap logger
func NewAuditLoggerWithZap(logger *zap.Logger, serviceName, environment string) *AuditLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditLogger{
		zapLogger:   logger,
		serviceName: serviceName,
		environment: environment,
	}
}

// SetPersistFunc sets the function to persist events to database
func (al *AuditLogger) SetPersistFunc(f func(ctx context.Context, event AuditEvent) error) {
	if al == nil {
		return
	}
	al.persistFunc = f
}

// Log logs an audit event
func (al *AuditLogger) Log(ctx context.Context, event AuditEvent) {
	if al == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	event.Service = al.serviceName
	event.Environment = al.environment
	event.Severity = GetSeverity(event.Event)

	level := levelForSeverity(event.Severity)
	event.Level = level.String()

	fields := []zap.Field{
		zap.String("service", event.Service),
		zap.String("env", event.Environment),
		zap.String("event", string(event.Event)),
		zap.String("severity", string(event.Severity)),
	}
	if event.ScanID != "" {
		fields = append(fields, zap.String("scan_id", event.ScanID))
	}
	if event.SHA256 != "" {
		fields = append(fields, zap.String("sha256", event.SHA256))
	}
	if event.IP != "" {
		fields = append(fields, zap.String("ip", event.IP))
	}
	if event.RequestID != "" {
		fields = append(fields, zap.String("request_id", event.RequestID))
	}
	if len(event.Details) > 0 {
		detailsJSON, _ := json.Marshal(event.Details)
		fields = append(fields, zap.String("details", string(detailsJSON)))
	}

	al.zapLogger.Log(level, string(event.Event), fields...)

	if al.persistFunc != nil {
		go func(e AuditEvent) {
			// Request context may already be cancelled
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := al.persistFunc(ctx, e); err != nil {
				al.zapLogger.Error("Failed to persist audit event", zap.Error(err))
			}
		}(event)
	}
}

// LogScanSubmitted records an accepted upload
func (al *AuditLogger) LogScanSubmitted(ctx context.Context, scanID, fileName string, sizeBytes uint64, ip, requestID string) {
	al.Log(ctx, AuditEvent{
		Event:     EventScanSubmitted,
		ScanID:    scanID,
		IP:        ip,
		RequestID: requestID,
		Details:   map[string]interface{}{"file_name": fileName, "size_bytes": sizeBytes},
	})
}

// LogScanCompleted records a finished scan
func (al *AuditLogger) LogScanCompleted(ctx context.Context, scanID, sha256, threatLevel string, findings int, degraded []string) {
	details := map[string]interface{}{"threat_level": threatLevel, "findings": findings}
	if len(degraded) > 0 {
		details["degraded_stages"] = strings.Join(degraded, ",")
	}
	al.Log(ctx, AuditEvent{
		Event:   EventScanCompleted,
		ScanID:  scanID,
		SHA256:  sha256,
		Details: details,
	})
}

// LogScanFailed records a scan that did not complete
func (al *AuditLogger) LogScanFailed(ctx context.Context, scanID, stage, reason string) {
	al.Log(ctx, AuditEvent{
		Event:   EventScanFailed,
		ScanID:  scanID,
		Details: map[string]interface{}{"stage": stage, "reason": reason},
	})
}

// LogMalwareDetected records antivirus signature hits
func (al *AuditLogger) LogMalwareDetected(ctx context.Context, scanID, sha256, engine string, signatures []string) {
	al.Log(ctx, AuditEvent{
		Event:   EventMalwareDetected,
		ScanID:  scanID,
		SHA256:  sha256,
		Details: map[string]interface{}{"engine": engine, "signatures": signatures},
	})
}

// LogDetectorDegraded records a detector stage that contributed nothing
func (al *AuditLogger) LogDetectorDegraded(ctx context.Context, scanID, stage, reason string) {
	al.Log(ctx, AuditEvent{
		Event:   EventDetectorDegraded,
		ScanID:  scanID,
		Details: map[string]interface{}{"stage": stage, "reason": reason},
	})
}

// LogUploadRejected records an upload refused before scanning
func (al *AuditLogger) LogUploadRejected(ctx context.Context, ip, requestID, reason string) {
	al.Log(ctx, AuditEvent{
		Event:     EventUploadRejected,
		IP:        ip,
		RequestID: requestID,
		Details:   map[string]interface{}{"reason": reason},
	})
}

// LogRateLimitTriggered logs when upload rate limiting is triggered
func (al *AuditLogger) LogRateLimitTriggered(ctx context.Context, ip, requestID, endpoint string) {
	al.Log(ctx, AuditEvent{
		Event:     EventRateLimitTriggered,
		IP:        ip,
		RequestID: requestID,
		Details:   map[string]interface{}{"endpoint": endpoint},
	})
}

// LogSampleQuarantined records a sample copied to the quarantine bucket
func (al *AuditLogger) LogSampleQuarantined(ctx context.Context, scanID, sha256, location string) {
	al.Log(ctx, AuditEvent{
		Event:   EventSampleQuarantined,
		ScanID:  scanID,
		SHA256:  sha256,
		Details: map[string]interface{}{"location": location},
	})
}

// Sync flushes any buffered log entries
func (al *AuditLogger) Sync() error {
	if al == nil {
		return nil
	}
	return al.zapLogger.Sync()
}

// Environment derives the deployment name from GIN_MODE
func Environment() string {
	if os.Getenv("GIN_MODE") == "release" {
		return "production"
	}
	return "development"
}

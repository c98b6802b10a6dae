package security

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditSchema creates the audit table when it does not exist.
const AuditSchema = `
CREATE TABLE IF NOT EXISTS scan_audit_events (
	id          BIGSERIAL PRIMARY KEY,
	event_type  TEXT        NOT NULL,
	severity    TEXT        NOT NULL,
	service     TEXT        NOT NULL,
	environment TEXT        NOT NULL,
	level       TEXT        NOT NULL,
	scan_id     TEXT,
	sha256      TEXT,
	ip_address  TEXT,
	request_id  TEXT,
	details     JSONB,
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_scan_audit_events_scan_id ON scan_audit_events (scan_id);
`

// AuditEventRepository handles persistence of audit events to database
type AuditEventRepository struct {
	db *pgxpool.Pool
}

// NewAuditEventRepository creates a new repository for audit events
func NewAuditEventRepository(db *pgxpool.Pool) *AuditEventRepository {
	return &AuditEventRepository{db: db}
}

// EnsureSchema applies AuditSchema
func (r *AuditEventRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, AuditSchema); err != nil {
		return fmt.Errorf("failed to create audit schema: %w", err)
	}
	return nil
}

// PersistEvent inserts an audit event into the database
func (r *AuditEventRepository) PersistEvent(ctx context.Context, event AuditEvent) error {
	query := `
		INSERT INTO scan_audit_events (
			event_type, severity, service, environment, level,
			scan_id, sha256, ip_address, request_id, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	var detailsJSON []byte
	if len(event.Details) > 0 {
		detailsJSON, _ = json.Marshal(event.Details)
	} else {
		detailsJSON = []byte("null")
	}

	_, err := r.db.Exec(ctx, query,
		string(event.Event),
		string(event.Severity),
		event.Service,
		event.Environment,
		event.Level,
		nullable(event.ScanID),
		nullable(event.SHA256),
		nullable(event.IP),
		nullable(event.RequestID),
		detailsJSON,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to persist audit event: %w", err)
	}
	return nil
}

// CreatePersistFunc creates a persist function for the AuditLogger
func (r *AuditEventRepository) CreatePersistFunc() func(context.Context, AuditEvent) error {
	return r.PersistEvent
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

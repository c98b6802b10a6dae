package postgres

import (
	"context"
	"errors"
	"fmt"

	"file-scan-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

// ScanSchema creates the scan_records table when it does not exist.
const ScanSchema = `
CREATE TABLE IF NOT EXISTS scan_records (
	scan_id         UUID PRIMARY KEY,
	file_name       TEXT        NOT NULL,
	file_type       TEXT        NOT NULL DEFAULT '',
	sha256          TEXT        NOT NULL DEFAULT '',
	threat_level    TEXT        NOT NULL,
	detection_count INTEGER     NOT NULL DEFAULT 0,
	detection_types TEXT[]      NOT NULL DEFAULT '{}',
	completed       BOOLEAN     NOT NULL DEFAULT FALSE,
	scan_date       TIMESTAMPTZ NOT NULL,
	payload         JSONB       NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_scan_records_scan_date ON scan_records (scan_date DESC) WHERE completed;
CREATE INDEX IF NOT EXISTS idx_scan_records_sha256 ON scan_records (sha256);
`

type scanRepo struct {
	db *pgxpool.Pool
}

func NewScanRepository(db *pgxpool.Pool) domain.ScanRepository {
	return &scanRepo{db: db}
}

// EnsureScanSchema applies ScanSchema.
func EnsureScanSchema(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, ScanSchema); err != nil {
		return fmt.Errorf("create scan schema: %w", err)
	}
	return nil
}

func (r *scanRepo) Save(ctx context.Context, record *domain.ScanRecord) error {
	payload, err := domain.EncodeScanRecord(record)
	if err != nil {
		return err
	}

	query := `INSERT INTO scan_records (scan_id, file_name, file_type, sha256, threat_level, detection_count, detection_types, completed, scan_date, payload)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
              ON CONFLICT (scan_id) DO NOTHING`
	tag, err := r.db.Exec(ctx, query,
		record.ScanID, record.FileInfo.Name, record.FileInfo.DeclaredMimeType, record.FileHashes.SHA256,
		string(record.ThreatLevel), len(record.Findings), pq.Array(record.DetectionTypes()),
		record.Completed, record.ScanDate, payload,
	)
	if err != nil {
		return fmt.Errorf("insert scan record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyExists
	}
	return nil
}

func (r *scanRepo) GetByID(ctx context.Context, scanID string) (*domain.ScanRecord, error) {
	if _, err := uuid.Parse(scanID); err != nil {
		return nil, domain.ErrNotFound
	}

	var payload []byte
	err := r.db.QueryRow(ctx, `SELECT payload FROM scan_records WHERE scan_id = $1`, scanID).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("select scan record: %w", err)
	}
	return domain.DecodeScanRecord(payload)
}

func (r *scanRepo) List(ctx context.Context, limit int) ([]domain.ScanHistoryItem, error) {
	query := `SELECT scan_id::text, file_name, file_type, scan_date, threat_level, detection_count
              FROM scan_records WHERE completed ORDER BY scan_date DESC, scan_id LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list scan records: %w", err)
	}
	defer rows.Close()

	items := []domain.ScanHistoryItem{}
	for rows.Next() {
		var item domain.ScanHistoryItem
		var level string
		if err := rows.Scan(&item.ID, &item.FileName, &item.FileType, &item.ScanDate, &level, &item.DetectionCount); err != nil {
			return nil, err
		}
		item.ThreatLevel = domain.ThreatLevel(level)
		items = append(items, item)
	}
	return items, rows.Err()
}

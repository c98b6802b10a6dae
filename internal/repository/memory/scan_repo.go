// Package memory provides in-process repositories for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"file-scan-backend/internal/domain"
)

type storedRecord struct {
	seq     int
	payload []byte
	item    domain.ScanHistoryItem
	done    bool
}

// ScanRepository keeps encoded records, so every load decodes a fresh copy.
type ScanRepository struct {
	mu      sync.RWMutex
	seq     int
	records map[string]storedRecord
}

func NewScanRepository() *ScanRepository {
	return &ScanRepository{records: make(map[string]storedRecord)}
}

var _ domain.ScanRepository = (*ScanRepository)(nil)

func (r *ScanRepository) Save(ctx context.Context, record *domain.ScanRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := domain.EncodeScanRecord(record)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[record.ScanID]; ok {
		return domain.ErrAlreadyExists
	}
	r.seq++
	r.records[record.ScanID] = storedRecord{
		seq:     r.seq,
		payload: payload,
		item:    record.HistoryItem(),
		done:    record.Completed,
	}
	return nil
}

func (r *ScanRepository) GetByID(ctx context.Context, scanID string) (*domain.ScanRecord, error) {
	r.mu.RLock()
	stored, ok := r.records[scanID]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	return domain.DecodeScanRecord(stored.payload)
}

// Raw returns the stored bytes for scanID.
func (r *ScanRepository) Raw(scanID string) ([]byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stored, ok := r.records[scanID]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), stored.payload...), true
}

func (r *ScanRepository) List(ctx context.Context, limit int) ([]domain.ScanHistoryItem, error) {
	r.mu.RLock()
	rows := make([]storedRecord, 0, len(r.records))
	for _, s := range r.records {
		if s.done {
			rows = append(rows, s)
		}
	}
	r.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].item.ScanDate.Equal(rows[j].item.ScanDate) {
			return rows[i].item.ScanDate.After(rows[j].item.ScanDate)
		}
		return rows[i].seq > rows[j].seq
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	items := make([]domain.ScanHistoryItem, len(rows))
	for i, s := range rows {
		items[i] = s.item
	}
	return items, nil
}

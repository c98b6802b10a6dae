package memory

import (
	"context"
	"sync"

	"file-scan-backend/internal/domain"
)

// StatusRepository tracks scan progress in a map.
type StatusRepository struct {
	mu       sync.RWMutex
	statuses map[string]domain.ScanStatus
}

func NewStatusRepository() *StatusRepository {
	return &StatusRepository{statuses: make(map[string]domain.ScanStatus)}
}

var _ domain.ScanStatusRepository = (*StatusRepository)(nil)

func (r *StatusRepository) Set(ctx context.Context, status *domain.ScanStatus) error {
	r.mu.Lock()
	r.statuses[status.ScanID] = *status
	r.mu.Unlock()
	return nil
}

func (r *StatusRepository) Get(ctx context.Context, scanID string) (*domain.ScanStatus, error) {
	r.mu.RLock()
	status, ok := r.statuses[scanID]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &status, nil
}

// Package redis stores scan progress in Redis so any API replica can answer status polls.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"file-scan-backend/internal/domain"

	goredis "github.com/redis/go-redis/v9"
)

// DefaultStatusTTL bounds how long finished statuses stay pollable.
const DefaultStatusTTL = 24 * time.Hour

type statusRepo struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewStatusRepository(client *goredis.Client, ttl time.Duration) domain.ScanStatusRepository {
	if ttl <= 0 {
		ttl = DefaultStatusTTL
	}
	return &statusRepo{client: client, ttl: ttl}
}

func statusKey(scanID string) string {
	return "scan:status:" + scanID
}

func (r *statusRepo) Set(ctx context.Context, status *domain.ScanStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("encode scan status: %w", err)
	}
	if err := r.client.Set(ctx, statusKey(status.ScanID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set scan status: %w", err)
	}
	return nil
}

func (r *statusRepo) Get(ctx context.Context, scanID string) (*domain.ScanStatus, error) {
	data, err := r.client.Get(ctx, statusKey(scanID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis get scan status: %w", err)
	}
	var status domain.ScanStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("decode scan status: %w", err)
	}
	return &status, nil
}

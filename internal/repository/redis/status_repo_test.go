package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"file-scan-backend/internal/domain"
	redispkg "file-scan-backend/pkg/redis"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusKey(t *testing.T) {
	assert.Equal(t, "scan:status:abc", statusKey("abc"))
}

// Runs only against a real server: TEST_REDIS_URL=redis://localhost:6379 go test ./...
func TestStatusRepository_Integration(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	client, err := redispkg.NewClient(ctx, redispkg.Config{URL: url})
	require.NoError(t, err)
	defer client.Close()

	repo := NewStatusRepository(client, time.Minute)
	id := uuid.NewString()

	_, err = repo.Get(ctx, id)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.Set(ctx, &domain.ScanStatus{ScanID: id, Status: domain.ScanStateProcessing, Progress: 30, Stage: domain.StageAVScanning, UpdatedAt: now}))

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 30, got.Progress)
	assert.Equal(t, domain.StageAVScanning, got.Stage)
	assert.True(t, got.UpdatedAt.Equal(now))

	ttl, err := client.TTL(ctx, statusKey(id)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

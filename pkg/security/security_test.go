package security

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestValidateUpload(t *testing.T) {
	res, err := ValidateUpload(`C:\Users\me\Report.PDF`, 10, 100)
	require.NoError(t, err)
	assert.Equal(t, "Report.PDF", res.FileName)
	assert.Equal(t, ".pdf", res.Extension)

	res, err = ValidateUpload("empty.js", 0, 100)
	require.NoError(t, err)
	assert.Equal(t, "empty.js", res.FileName)

	_, err = ValidateUpload("a.txt", 101, 100)
	assert.ErrorIs(t, err, ErrFileTooLarge)

	_, err = ValidateUpload("../", 1, 100)
	assert.ErrorIs(t, err, ErrInvalidFileName)

	// no extension and no limit is fine
	res, err = ValidateUpload("Makefile", 1<<40, 0)
	require.NoError(t, err)
	assert.Empty(t, res.Extension)
}

func TestSanitizeFileName(t *testing.T) {
	assert.Equal(t, "evil.js", SanitizeFileName("../../etc/evil.js"))
	assert.Equal(t, "ab.txt", SanitizeFileName("a\x00b\n.txt"))

	long := strings.Repeat("x", 400) + ".js"
	got := SanitizeFileName(long)
	assert.Len(t, got, maxFileNameLength)
	assert.True(t, strings.HasSuffix(got, ".js"))
}

func TestDetectMIME(t *testing.T) {
	dir := t.TempDir()
	pdf := filepath.Join(dir, "doc.bin")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF-1.4\n%âãÏÓ\n1 0 obj\n"), 0o600))

	mime, err := DetectMIME(pdf)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", mime)

	empty := filepath.Join(dir, "empty.js")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))
	_, err = DetectMIME(empty)
	require.NoError(t, err)

	_, err = DetectMIME(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestIsExecutableMIME(t *testing.T) {
	assert.True(t, IsExecutableMIME("application/vnd.microsoft.portable-executable"))
	assert.True(t, IsExecutableMIME("application/x-elf; charset=binary"))
	assert.False(t, IsExecutableMIME("text/plain; charset=utf-8"))
}

func TestUploadLimiter_FailsOpenWithoutRedis(t *testing.T) {
	limiter := NewUploadLimiter(nil, 0)
	assert.False(t, limiter.Enabled())

	for i := 0; i < 50; i++ {
		decision, err := limiter.AllowUpload(context.Background(), "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
		assert.Equal(t, 10, decision.Remaining)
		assert.Zero(t, decision.RetryAfter)
	}
}

// Runs only against a real server: TEST_REDIS_URL=redis://localhost:6379 go test ./...
func TestUploadLimiter_Integration(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opts, err := goredis.ParseURL(url)
	require.NoError(t, err)
	client := goredis.NewClient(opts)
	defer client.Close()

	ctx := context.Background()
	ip := "test-" + uuid.NewString()
	defer client.Del(ctx, "ratelimit:scan_upload:ip:"+ip)
	limiter := NewUploadLimiter(client, 2)

	decision, err := limiter.AllowUpload(ctx, ip)
	require.NoError(t, err)
	assert.Equal(t, UploadDecision{Allowed: true, Remaining: 1}, decision)

	decision, err = limiter.AllowUpload(ctx, ip)
	require.NoError(t, err)
	assert.Equal(t, UploadDecision{Allowed: true, Remaining: 0}, decision)

	decision, err = limiter.AllowUpload(ctx, ip)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, 60, decision.RetryAfter)
}

func TestAuditLogger_SeverityAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	al := NewAuditLoggerWithZap(zap.New(core), "file-scan-backend", "test")

	al.LogMalwareDetected(context.Background(), "scan-1", "abc", "clamav", []string{"Eicar"})
	al.LogScanCompleted(context.Background(), "scan-1", "abc", "high", 2, []string{"reputation"})

	entries := logs.All()
	require.Len(t, entries, 2)

	assert.Equal(t, "malware_detected", entries[0].Message)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, "CRITICAL", fields["severity"])
	assert.Equal(t, "scan-1", fields["scan_id"])
	assert.Contains(t, fields["details"], "Eicar")

	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Contains(t, entries[1].ContextMap()["details"], "degraded_stages")
}

func TestAuditLogger_Persist(t *testing.T) {
	al := NewAuditLoggerWithZap(zap.NewNop(), "svc", "test")
	got := make(chan AuditEvent, 1)
	al.SetPersistFunc(func(ctx context.Context, e AuditEvent) error {
		got <- e
		return errors.New("db down")
	})

	al.LogUploadRejected(context.Background(), "1.2.3.4", "req-1", "too large")
	e := <-got
	assert.Equal(t, EventUploadRejected, e.Event)
	assert.Equal(t, SeverityWARN, e.Severity)
	assert.Equal(t, "svc", e.Service)
	assert.False(t, e.Timestamp.IsZero())
}

func TestAuditLogger_NilIsSafe(t *testing.T) {
	var al *AuditLogger
	assert.NotPanics(t, func() {
		al.LogScanFailed(context.Background(), "id", "hashing", "boom")
		al.SetPersistFunc(nil)
		_ = al.Sync()
	})
}

func TestGetSeverity(t *testing.T) {
	assert.Equal(t, SeverityMEDIUM, GetSeverity("unknown_event"))
	assert.True(t, IsHighOrAbove(EventSampleQuarantined))
	assert.False(t, IsHighOrAbove(EventScanSubmitted))
}

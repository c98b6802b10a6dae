package s3

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"file-scan-backend/internal/domain"
	"file-scan-backend/pkg/storage"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObjects struct {
	key  string
	meta map[string]string
	body []byte
}

func (r *recordingObjects) HeadObject(ctx context.Context, in *awss3.HeadObjectInput, _ ...func(*awss3.Options)) (*awss3.HeadObjectOutput, error) {
	return nil, &types.NotFound{}
}

func (r *recordingObjects) PutObject(ctx context.Context, in *awss3.PutObjectInput, _ ...func(*awss3.Options)) (*awss3.PutObjectOutput, error) {
	r.key = aws.ToString(in.Key)
	r.meta = in.Metadata
	r.body, _ = io.ReadAll(in.Body)
	return &awss3.PutObjectOutput{}, nil
}

func TestQuarantineRepository_Archive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "upload")
	require.NoError(t, os.WriteFile(path, []byte("bad"), 0o600))

	objects := &recordingObjects{}
	repo := NewQuarantineRepository(storage.NewQuarantine(objects, "bucket"))

	record := domain.NewScanRecord("scan-1", domain.FileInfo{Name: "résumé.exe"}, time.Now())
	record.FileHashes = domain.FileHashes{MD5: "m", SHA1: "s", SHA256: "a665a45920422f9d417e4867efdc4fb8a04a1f3fff1fa07e998e86f7f7a27ae3"}
	record.ThreatLevel = domain.ThreatHigh

	loc, err := repo.Archive(context.Background(), path, record)
	require.NoError(t, err)
	assert.Equal(t, "s3://bucket/quarantine/"+record.FileHashes.SHA256, loc)
	assert.Equal(t, "quarantine/"+record.FileHashes.SHA256, objects.key)
	assert.Equal(t, "r_sum_.exe", objects.meta["file-name"])
	assert.Equal(t, "high", objects.meta["threat-level"])
	assert.Equal(t, []byte("bad"), objects.body)
}

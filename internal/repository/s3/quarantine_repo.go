// Package s3 archives dangerous samples in an S3-compatible bucket.
package s3

import (
	"context"
	"fmt"

	"file-scan-backend/internal/domain"
	"file-scan-backend/pkg/storage"
)

type quarantineRepo struct {
	store *storage.Quarantine
}

func NewQuarantineRepository(store *storage.Quarantine) domain.SampleArchive {
	return &quarantineRepo{store: store}
}

func (r *quarantineRepo) Archive(ctx context.Context, filePath string, record *domain.ScanRecord) (string, error) {
	metadata := map[string]string{
		"scan-id":      record.ScanID,
		"threat-level": string(record.ThreatLevel),
		"md5":          record.FileHashes.MD5,
		"sha1":         record.FileHashes.SHA1,
		"file-name":    asciiOnly(record.FileInfo.Name),
	}
	location, err := r.store.Store(ctx, filePath, record.FileHashes.SHA256, metadata)
	if err != nil {
		return "", fmt.Errorf("archive scan %s: %w", record.ScanID, err)
	}
	return location, nil
}

// S3 user metadata must be US-ASCII.
func asciiOnly(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r < 0x20 || r > 0x7e {
			r = '_'
		}
		out = append(out, r)
	}
	return string(out)
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ObjectAPI is the subset of *s3.Client used by Quarantine.
type ObjectAPI interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Quarantine stores samples keyed by content hash so each sample is kept once.
type Quarantine struct {
	client ObjectAPI
	bucket string
	prefix string
}

func NewQuarantine(client ObjectAPI, bucket string) *Quarantine {
	return &Quarantine{client: client, bucket: bucket, prefix: "quarantine"}
}

// Key returns the object key for a sha256 digest.
func (q *Quarantine) Key(sha256 string) string {
	return path.Join(q.prefix, strings.ToLower(sha256))
}

// Store uploads the file at filePath unless an object with the same digest exists.
// It returns the s3:// location of the sample.
func (q *Quarantine) Store(ctx context.Context, filePath, sha256 string, metadata map[string]string) (string, error) {
	if sha256 == "" {
		return "", errors.New("quarantine: missing sha256")
	}
	key := q.Key(sha256)
	location := fmt.Sprintf("s3://%s/%s", q.bucket, key)

	exists, err := q.exists(ctx, key)
	if err != nil {
		return "", err
	}
	if exists {
		return location, nil
	}

	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("quarantine: open sample: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("quarantine: stat sample: %w", err)
	}

	_, err = q.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(q.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String("application/octet-stream"),
		Metadata:      metadata,
	})
	if err != nil {
		return "", fmt.Errorf("quarantine: upload %s: %w", key, err)
	}
	return location, nil
}

func (q *Quarantine) exists(ctx context.Context, key string) (bool, error) {
	_, err := q.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(q.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return false, nil
	}
	return false, fmt.Errorf("quarantine: head %s: %w", key, err)
}

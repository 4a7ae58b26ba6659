package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/collabdoc/collabdoc/backend/sync-server/internal/config"
)

// MinIOStorage archives document checkpoints to an S3 compatible bucket.
// Every successful save becomes one immutable object, giving a history the
// document store itself does not keep.
type MinIOStorage struct {
	client *minio.Client
	bucket string
}

// NewMinIOStorage creates a new MinIO storage client and ensures the bucket exists.
func NewMinIOStorage(cfg config.MinIOConfig) (*MinIOStorage, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio config missing")
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio new: %w", err)
	}
	s := &MinIOStorage{client: mc, bucket: cfg.Bucket}
	// ensure bucket exists (idempotent)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mc.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		exist, xerr := mc.BucketExists(ctx, s.bucket)
		if xerr != nil || !exist {
			return nil, fmt.Errorf("minio bucket ensure: %w", err)
		}
	}
	return s, nil
}

// SnapshotKey returns the object key for a checkpoint of id taken at at.
// Keys sort chronologically within a document prefix.
func SnapshotKey(id string, at time.Time) string {
	return "documents/" + url.PathEscape(id) + "/" + at.UTC().Format("20060102T150405.000000000Z") + ".json"
}

// ArchiveSnapshot uploads content as a new object under SnapshotKey.
func (s *MinIOStorage) ArchiveSnapshot(ctx context.Context, id string, content json.RawMessage, at time.Time) error {
	key := SnapshotKey(id, at)
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(content), int64(len(content)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("archive %s: %w", key, err)
	}
	return nil
}

// ListSnapshots returns the archived object keys of a document, oldest first.
func (s *MinIOStorage) ListSnapshots(ctx context.Context, id string) ([]string, error) {
	prefix := "documents/" + url.PathEscape(id) + "/"
	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		if strings.HasSuffix(obj.Key, ".json") {
			keys = append(keys, obj.Key)
		}
	}
	return keys, nil
}

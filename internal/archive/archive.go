// Package archive keeps a copy of encoded variants in S3-compatible storage.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"imgworker/internal/config"
	"imgworker/internal/logging"
	"imgworker/internal/queue"
	"imgworker/internal/stage"
)

// Saver stores one object and returns its path within the bucket.
type Saver interface {
	Save(ctx context.Context, subdir, filename string, src io.Reader) (string, error)
}

// Storage is a MinIO-backed Saver.
type Storage struct {
	client     *minio.Client
	bucketName string
}

// NewStorage connects to the configured endpoint and creates the bucket when
// it does not exist yet.
func NewStorage(ctx context.Context, cfg config.Storage) (*Storage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &Storage{client: client, bucketName: cfg.Bucket}, nil
}

// Save uploads src under subdir/filename.
func (s *Storage) Save(ctx context.Context, subdir, filename string, src io.Reader) (string, error) {
	objectName := path.Join(subdir, filename)
	_, err := s.client.PutObject(ctx, s.bucketName, objectName, src, -1, minio.PutObjectOptions{
		ContentType: contentType(filename),
	})
	if err != nil {
		return "", fmt.Errorf("save %s: %w", objectName, err)
	}
	return objectName, nil
}

// HealthCheck reports whether the archive bucket is reachable.
func (s *Storage) HealthCheck(ctx context.Context) stage.Health {
	ok, err := s.client.BucketExists(ctx, s.bucketName)
	switch {
	case err != nil:
		return stage.Unhealthy("archive", err.Error())
	case !ok:
		return stage.Unhealthy("archive", fmt.Sprintf("bucket %s missing", s.bucketName))
	default:
		return stage.Healthy("archive")
	}
}

func contentType(filename string) string {
	switch strings.ToLower(path.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

// Variants saves every variant of a payload as <payload id>/<url index>.<format>.
// Individual failures are logged and skipped; the stored object names are
// returned.
func Variants(ctx context.Context, saver Saver, payload queue.Payload, logger *slog.Logger) []string {
	if saver == nil {
		return nil
	}
	logger = logging.NewComponentLogger(logger, "archive")
	var stored []string
	for index, url := range payload.URLs {
		for _, variant := range payload.Datas[url] {
			name := fmt.Sprintf("%d.%s", index, variant.Format)
			object, err := saver.Save(ctx, payload.ID, name, bytes.NewReader(variant.Image))
			if err != nil {
				logging.WarnWithContext(logging.WithContext(ctx, logger), "variant archive failed", "archive_failed",
					logging.String("object", path.Join(payload.ID, name)),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check [storage] endpoint and credentials"),
					logging.String(logging.FieldImpact, "upload continues without an archived copy"),
				)
				continue
			}
			stored = append(stored, object)
		}
	}
	return stored
}

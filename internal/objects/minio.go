package objects

import (
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"video-pipeline/internal/config"
)

// MinioStore stores objects in an S3-compatible bucket.
type MinioStore struct {
	cli        *minio.Client
	bucket     string
	endpoint   string
	useSSL     bool
	publicBase string
}

var _ Store = (*MinioStore)(nil)

func NewMinioStore(ctx context.Context, cfg config.ObjectsConfig) (*MinioStore, error) {
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("objects: minio client: %w", err)
	}
	m := &MinioStore{
		cli:        cli,
		bucket:     cfg.Bucket,
		endpoint:   cfg.Endpoint,
		useSSL:     cfg.UseSSL,
		publicBase: cfg.PublicBase,
	}
	if err := m.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("objects: ensure bucket %s: %w", cfg.Bucket, err)
	}
	return m, nil
}

func (m *MinioStore) ensureBucket(ctx context.Context) error {
	exists, err := m.cli.BucketExists(ctx, m.bucket)
	if err != nil {
		return err
	}
	if !exists {
		return m.cli.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{})
	}
	return nil
}

func (m *MinioStore) Put(ctx context.Context, key, src string) (string, error) {
	clean, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	_, err = m.cli.FPutObject(ctx, m.bucket, clean, src, minio.PutObjectOptions{ContentType: contentType(src)})
	if err != nil {
		return "", fmt.Errorf("objects: put %s: %w", clean, err)
	}
	return clean, nil
}

func (m *MinioStore) Fetch(ctx context.Context, key, dst string) error {
	if err := m.cli.FGetObject(ctx, m.bucket, key, dst, minio.GetObjectOptions{}); err != nil {
		return fmt.Errorf("objects: fetch %s: %w", key, err)
	}
	return nil
}

func (m *MinioStore) Delete(ctx context.Context, key string) error {
	return m.cli.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{})
}

func (m *MinioStore) DeletePrefix(ctx context.Context, prefix string) error {
	objectsCh := m.cli.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true})
	for err := range m.cli.RemoveObjects(ctx, m.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		if err.Err != nil {
			return fmt.Errorf("objects: remove %s: %w", err.ObjectName, err.Err)
		}
	}
	return nil
}

func (m *MinioStore) URL(key string) string {
	if m.publicBase != "" {
		return strings.TrimRight(m.publicBase, "/") + "/" + key
	}
	scheme := "http://"
	if m.useSSL {
		scheme = "https://"
	}
	return scheme + m.endpoint + "/" + m.bucket + "/" + key
}

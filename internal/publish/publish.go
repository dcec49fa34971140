// Package publish uploads export datasets to S3-compatible object storage.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"climbs/api/internal/aggregate"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Enabled reports whether an endpoint and bucket are configured.
func (c Config) Enabled() bool {
	return c.Endpoint != "" && c.Bucket != ""
}

type objectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type Publisher struct {
	objects objectStore
	bucket  string
}

// Location identifies an uploaded dataset.
type Location struct {
	Bucket string `json:"bucket"`
	Object string `json:"object"`
	Size   int64  `json:"size"`
	ETag   string `json:"etag,omitempty"`
}

func New(cfg Config) (*Publisher, error) {
	if !cfg.Enabled() {
		return nil, errors.New("object storage endpoint and bucket are required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &Publisher{objects: client, bucket: cfg.Bucket}, nil
}

// Publish writes dataset as indented JSON under its dated file name,
// creating the bucket on first use. Re-publishing on the same day replaces
// that day's object.
func (p *Publisher) Publish(ctx context.Context, dataset aggregate.Dataset) (Location, error) {
	exists, err := p.objects.BucketExists(ctx, p.bucket)
	if err != nil {
		return Location{}, fmt.Errorf("check bucket %s: %w", p.bucket, err)
	}
	if !exists {
		if err := p.objects.MakeBucket(ctx, p.bucket, minio.MakeBucketOptions{}); err != nil {
			return Location{}, fmt.Errorf("create bucket %s: %w", p.bucket, err)
		}
	}

	payload, err := json.MarshalIndent(dataset, "", "  ")
	if err != nil {
		return Location{}, fmt.Errorf("marshal dataset: %w", err)
	}

	object := dataset.FileName()
	info, err := p.objects.PutObject(ctx, p.bucket, object, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType:        "application/json",
		ContentDisposition: fmt.Sprintf("attachment; filename=%q", object),
	})
	if err != nil {
		return Location{}, fmt.Errorf("upload %s: %w", object, err)
	}
	return Location{Bucket: p.bucket, Object: object, Size: int64(len(payload)), ETag: info.ETag}, nil
}

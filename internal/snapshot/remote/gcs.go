package remote

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

var _ Bucket = (*GCS)(nil)

// GCS is a Google Cloud Storage bucket. Credentials come from the environment
// (Application Default Credentials).
type GCS struct {
	client *storage.Client
	bucket *storage.BucketHandle
}

// NewGCS connects to bucket.
func NewGCS(ctx context.Context, bucket string) (*GCS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating GCS client: %w", err)
	}
	return &GCS{client: client, bucket: client.Bucket(bucket)}, nil
}

// NewReader opens key for reading.
func (g *GCS) NewReader(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := g.bucket.Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return r, nil
}

// NewWriter uploads to key. The upload is committed by Close.
func (g *GCS) NewWriter(ctx context.Context, key string) (io.WriteCloser, error) {
	w := g.bucket.Object(key).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	return w, nil
}

// Close releases the client.
func (g *GCS) Close() error {
	return g.client.Close()
}

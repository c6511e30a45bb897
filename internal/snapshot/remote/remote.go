// Package remote reads and writes snapshot objects in cloud buckets.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("remote: object not found")

// Bucket is a flat object namespace.
type Bucket interface {
	NewReader(ctx context.Context, key string) (io.ReadCloser, error)

	// NewWriter returns a writer for key. The object is visible only after
	// Close returns nil.
	NewWriter(ctx context.Context, key string) (io.WriteCloser, error)

	Close() error
}

// Location is a parsed bucket URL such as gs://bucket/path/to/object.
type Location struct {
	Scheme string
	Bucket string
	Key    string
}

func (l Location) String() string {
	return l.Scheme + "://" + l.Bucket + "/" + l.Key
}

// Parse splits a gs:// or s3:// URL into bucket and key.
func Parse(raw string) (Location, error) {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok || (scheme != "gs" && scheme != "s3") {
		return Location{}, fmt.Errorf("remote: %q: want gs:// or s3://", raw)
	}
	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return Location{}, fmt.Errorf("remote: %q: missing bucket name", raw)
	}
	key = strings.TrimPrefix(key, "/")
	if key == "" || strings.HasSuffix(key, "/") {
		return Location{}, fmt.Errorf("remote: %q: missing object name", raw)
	}
	return Location{Scheme: scheme, Bucket: bucket, Key: key}, nil
}

// IsRemote reports whether raw names a bucket object.
func IsRemote(raw string) bool {
	return strings.HasPrefix(raw, "gs://") || strings.HasPrefix(raw, "s3://")
}

// Open connects to the bucket named by loc.
func Open(ctx context.Context, loc Location) (Bucket, error) {
	switch loc.Scheme {
	case "gs":
		return NewGCS(ctx, loc.Bucket)
	case "s3":
		return NewS3(ctx, loc.Bucket)
	default:
		return nil, fmt.Errorf("remote: unsupported scheme %q", loc.Scheme)
	}
}

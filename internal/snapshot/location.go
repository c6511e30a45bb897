package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/discochess/annotator/internal/snapshot/remote"
)

// OpenFunc connects to a bucket. Tests replace it.
type OpenFunc func(ctx context.Context, loc remote.Location) (remote.Bucket, error)

// Locator opens snapshot locations: local paths, gs:// and s3:// objects, and
// http(s):// URLs for reading.
type Locator struct {
	OpenBucket OpenFunc
	Downloader *Downloader
}

// NewLocator returns a Locator backed by real cloud clients.
func NewLocator() *Locator {
	return &Locator{OpenBucket: remote.Open, Downloader: NewDownloader()}
}

// Open opens loc for reading.
func (l *Locator) Open(ctx context.Context, loc string) (io.ReadCloser, error) {
	switch {
	case strings.HasPrefix(loc, "http://"), strings.HasPrefix(loc, "https://"):
		body, _, err := l.Downloader.Open(ctx, loc)
		return body, err
	case remote.IsRemote(loc):
		parsed, b, err := l.bucket(ctx, loc)
		if err != nil {
			return nil, err
		}
		r, err := b.NewReader(ctx, parsed.Key)
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		return &bucketReader{ReadCloser: r, bucket: b}, nil
	default:
		f, err := os.Open(loc)
		if err != nil {
			return nil, fmt.Errorf("opening snapshot: %w", err)
		}
		return f, nil
	}
}

// Create opens loc for writing. Bucket objects are committed by Close.
func (l *Locator) Create(ctx context.Context, loc string) (io.WriteCloser, error) {
	switch {
	case strings.HasPrefix(loc, "http://"), strings.HasPrefix(loc, "https://"):
		return nil, fmt.Errorf("snapshot: cannot write to %s", loc)
	case remote.IsRemote(loc):
		parsed, b, err := l.bucket(ctx, loc)
		if err != nil {
			return nil, err
		}
		w, err := b.NewWriter(ctx, parsed.Key)
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		return &bucketWriter{WriteCloser: w, bucket: b}, nil
	default:
		if dir := filepath.Dir(loc); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating snapshot directory: %w", err)
			}
		}
		f, err := os.Create(loc)
		if err != nil {
			return nil, fmt.Errorf("creating snapshot: %w", err)
		}
		return f, nil
	}
}

func (l *Locator) bucket(ctx context.Context, loc string) (remote.Location, remote.Bucket, error) {
	parsed, err := remote.Parse(loc)
	if err != nil {
		return remote.Location{}, nil, err
	}
	b, err := l.OpenBucket(ctx, parsed)
	if err != nil {
		return remote.Location{}, nil, err
	}
	return parsed, b, nil
}

// bucketReader closes the bucket client with the object.
type bucketReader struct {
	io.ReadCloser
	bucket remote.Bucket
}

func (r *bucketReader) Close() error {
	return errors.Join(r.ReadCloser.Close(), r.bucket.Close())
}

type bucketWriter struct {
	io.WriteCloser
	bucket remote.Bucket
}

func (w *bucketWriter) Close() error {
	return errors.Join(w.WriteCloser.Close(), w.bucket.Close())
}

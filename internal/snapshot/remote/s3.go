package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

var _ Bucket = (*S3)(nil)

// s3API is the part of *s3.Client used here.
type s3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 is an AWS S3 (or S3-compatible) bucket.
type S3 struct {
	client s3API
	bucket string
}

// S3Option configures NewS3.
type S3Option func(*s3Settings)

type s3Settings struct {
	region   string
	endpoint string
}

// WithRegion overrides the region from the environment.
func WithRegion(region string) S3Option {
	return func(s *s3Settings) { s.region = region }
}

// WithEndpoint targets an S3-compatible service such as MinIO, using path-style
// addressing.
func WithEndpoint(endpoint string) S3Option {
	return func(s *s3Settings) { s.endpoint = endpoint }
}

// NewS3 connects to bucket with credentials from the default AWS chain.
func NewS3(ctx context.Context, bucket string, opts ...S3Option) (*S3, error) {
	var settings s3Settings
	for _, opt := range opts {
		opt(&settings)
	}

	var loadOpts []func(*config.LoadOptions) error
	if settings.region != "" {
		loadOpts = append(loadOpts, config.WithRegion(settings.region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if settings.endpoint != "" {
			o.BaseEndpoint = aws.String(settings.endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3{client: client, bucket: bucket}, nil
}

// NewReader opens key for reading.
func (s *S3) NewReader(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return out.Body, nil
}

// NewWriter buffers the object in memory and uploads it on Close.
func (s *S3) NewWriter(ctx context.Context, key string) (io.WriteCloser, error) {
	return &s3Writer{ctx: ctx, s: s, key: key}, nil
}

// Close is a no-op; the S3 client holds no resources.
func (s *S3) Close() error {
	return nil
}

type s3Writer struct {
	ctx    context.Context
	s      *S3
	key    string
	buf    bytes.Buffer
	closed bool
}

func (w *s3Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, errors.New("remote: write after close")
	}
	return w.buf.Write(p)
}

func (w *s3Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	_, err := w.s.client.PutObject(w.ctx, &s3.PutObjectInput{
		Bucket:        aws.String(w.s.bucket),
		Key:           aws.String(w.key),
		Body:          bytes.NewReader(w.buf.Bytes()),
		ContentLength: aws.Int64(int64(w.buf.Len())),
	})
	if err != nil {
		return fmt.Errorf("uploading %s: %w", w.key, err)
	}
	return nil
}

package remote

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

func TestParse(t *testing.T) {
	tests := []struct {
		raw     string
		want    Location
		wantErr bool
	}{
		{raw: "gs://evals/snapshots/2024.jsonl.zst", want: Location{"gs", "evals", "snapshots/2024.jsonl.zst"}},
		{raw: "s3://evals/x.jsonl", want: Location{"s3", "evals", "x.jsonl"}},
		{raw: "s3://evals//x.jsonl", want: Location{"s3", "evals", "x.jsonl"}},
		{raw: "gs://", wantErr: true},
		{raw: "gs://bucket", wantErr: true},
		{raw: "gs://bucket/dir/", wantErr: true},
		{raw: "ftp://bucket/x", wantErr: true},
		{raw: "/tmp/x.jsonl", wantErr: true},
	}
	for _, tt := range tests {
		got, err := Parse(tt.raw)
		if (err != nil) != tt.wantErr {
			t.Errorf("Parse(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("Parse(%q) = %+v, want %+v", tt.raw, got, tt.want)
		}
	}
}

func TestLocation_String(t *testing.T) {
	loc := Location{Scheme: "gs", Bucket: "b", Key: "k/v.zst"}
	if got := loc.String(); got != "gs://b/k/v.zst" {
		t.Errorf("String() = %q", got)
	}
	if !IsRemote(loc.String()) || IsRemote("snap.jsonl") {
		t.Error("IsRemote mismatch")
	}
}

// fakeS3 keeps objects in memory.
type fakeS3 struct {
	objects map[string][]byte
	puts    int
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if aws.ToInt64(in.ContentLength) != int64(len(data)) {
		return nil, errors.New("content length mismatch")
	}
	f.objects[aws.ToString(in.Key)] = data
	f.puts++
	return &s3.PutObjectOutput{}, nil
}

func TestS3_WriteThenRead(t *testing.T) {
	fake := &fakeS3{objects: make(map[string][]byte)}
	b := &S3{client: fake, bucket: "evals"}
	ctx := context.Background()

	w, err := b.NewWriter(ctx, "snap.jsonl")
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}
	_, _ = io.WriteString(w, "line one\n")
	_, _ = io.WriteString(w, "line two\n")
	if fake.puts != 0 {
		t.Fatal("object uploaded before Close")
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if fake.puts != 1 {
		t.Errorf("puts = %d, want 1", fake.puts)
	}
	if _, err := w.Write([]byte("late")); err == nil {
		t.Error("Write after Close should fail")
	}

	r, err := b.NewReader(ctx, "snap.jsonl")
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}
	defer r.Close()
	got, _ := io.ReadAll(r)
	if string(got) != "line one\nline two\n" {
		t.Errorf("read %q", got)
	}
}

func TestS3_NotFound(t *testing.T) {
	b := &S3{client: &fakeS3{objects: map[string][]byte{}}, bucket: "evals"}
	if _, err := b.NewReader(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("NewReader() error = %v, want ErrNotFound", err)
	}
}

func TestGCS_Integration(t *testing.T) {
	bucket := os.Getenv("ANNOTATOR_TEST_GCS_BUCKET")
	if bucket == "" {
		t.Skip("ANNOTATOR_TEST_GCS_BUCKET not set")
	}
	ctx := context.Background()
	g, err := NewGCS(ctx, bucket)
	if err != nil {
		t.Fatalf("NewGCS() error = %v", err)
	}
	defer g.Close()

	key := "annotator-test/" + uuid.NewString()
	w, _ := g.NewWriter(ctx, key)
	_, _ = io.WriteString(w, "payload")
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	r, err := g.NewReader(ctx, key)
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}
	defer r.Close()
	got, _ := io.ReadAll(r)
	if string(got) != "payload" {
		t.Errorf("read %q", got)
	}
	if _, err := g.NewReader(ctx, key+"-missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("NewReader(missing) error = %v, want ErrNotFound", err)
	}
}

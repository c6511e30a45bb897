package codec_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/discochess/annotator/internal/codec"
	"github.com/discochess/annotator/internal/codec/gzipcodec"
	"github.com/discochess/annotator/internal/codec/noopcodec"
	"github.com/discochess/annotator/internal/codec/zstdcodec"
)

func all() codec.Set {
	return codec.Set{zstdcodec.New(), gzipcodec.New(), noopcodec.New()}
}

func roundTrip(t *testing.T, c codec.Codec, original []byte) []byte {
	t.Helper()

	var compressed bytes.Buffer
	w, err := c.Writer(&compressed)
	if err != nil {
		t.Fatalf("Writer() error = %v", err)
	}
	if _, err := w.Write(original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	r, err := c.Reader(&compressed)
	if err != nil {
		t.Fatalf("Reader() error = %v", err)
	}
	defer r.Close()
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	return got
}

func TestCodecs_RoundTrip(t *testing.T) {
	inputs := map[string][]byte{
		"empty": {},
		"line":  []byte(`{"fingerprint":"8/8/8/4k3/8/8/4K3/4R3 w - -","nodes":5000,"w":700,"d":200,"l":100}` + "\n"),
		"large": bytes.Repeat([]byte("rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq -\n"), 5000),
	}

	for _, c := range all() {
		for name, in := range inputs {
			t.Run(c.Name()+"/"+name, func(t *testing.T) {
				if got := roundTrip(t, c, in); !bytes.Equal(got, in) {
					t.Errorf("round trip changed %d bytes into %d", len(in), len(got))
				}
			})
		}
	}
}

func TestCodecs_Compress(t *testing.T) {
	original := bytes.Repeat([]byte("ABCDEFGHIJ"), 10000)
	for _, c := range []codec.Codec{zstdcodec.New(), zstdcodec.NewWithLevel(19), gzipcodec.New()} {
		var buf bytes.Buffer
		w, err := c.Writer(&buf)
		if err != nil {
			t.Fatalf("%s: Writer() error = %v", c.Name(), err)
		}
		_, _ = w.Write(original)
		if err := w.Close(); err != nil {
			t.Fatalf("%s: Close() error = %v", c.Name(), err)
		}
		if buf.Len() >= len(original) {
			t.Errorf("%s: %d bytes from %d, want compression", c.Name(), buf.Len(), len(original))
		}
	}
}

func TestGzip_InvalidData(t *testing.T) {
	if _, err := gzipcodec.New().Reader(bytes.NewReader([]byte("not gzip data"))); err == nil {
		t.Error("Reader() expected error for invalid gzip data")
	}
}

func TestSet(t *testing.T) {
	s := all()

	tests := []struct {
		path string
		want string
	}{
		{"snapshot.jsonl.zst", "zstd"},
		{"gs://bucket/evals.jsonl.gz", "gzip"},
		{"evals.jsonl", "none"},
	}
	for _, tt := range tests {
		c, err := s.ForPath(tt.path)
		if err != nil {
			t.Fatalf("ForPath(%q) error = %v", tt.path, err)
		}
		if c.Name() != tt.want {
			t.Errorf("ForPath(%q) = %s, want %s", tt.path, c.Name(), tt.want)
		}
	}

	if c, err := s.ByName("ZSTD"); err != nil || c.Name() != "zstd" {
		t.Errorf("ByName(ZSTD) = %v, %v", c, err)
	}
	if _, err := s.ByName("brotli"); err == nil {
		t.Error("ByName(brotli) expected error")
	}
	if _, err := (codec.Set{gzipcodec.New()}).ForPath("x.jsonl"); err == nil {
		t.Error("ForPath without a plain codec expected error")
	}
}

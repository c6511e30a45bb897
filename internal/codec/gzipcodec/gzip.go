// Package gzipcodec compresses snapshots with gzip.
package gzipcodec

import (
	"compress/gzip"
	"io"

	"github.com/discochess/annotator/internal/codec"
)

var _ codec.Codec = (*Codec)(nil)

// Codec is a gzip codec.
type Codec struct{}

// New returns a gzip codec.
func New() *Codec {
	return &Codec{}
}

// Name returns "gzip".
func (c *Codec) Name() string { return "gzip" }

// Extension returns "gz".
func (c *Codec) Extension() string { return "gz" }

// Reader decompresses r.
func (c *Codec) Reader(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}

// Writer compresses into w.
func (c *Codec) Writer(w io.Writer) (io.WriteCloser, error) {
	return gzip.NewWriter(w), nil
}

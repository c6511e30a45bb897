// Package noopcodec passes snapshots through uncompressed.
package noopcodec

import (
	"io"

	"github.com/discochess/annotator/internal/codec"
)

var _ codec.Codec = (*Codec)(nil)

// Codec does not compress.
type Codec struct{}

// New returns a pass-through codec.
func New() *Codec {
	return &Codec{}
}

// Name returns "none".
func (c *Codec) Name() string { return "none" }

// Extension returns "".
func (c *Codec) Extension() string { return "" }

// Reader returns r. Close does not close the underlying reader.
func (c *Codec) Reader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(r), nil
}

// Writer returns w. Close does not close the underlying writer.
func (c *Codec) Writer(w io.Writer) (io.WriteCloser, error) {
	return nopWriteCloser{w}, nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

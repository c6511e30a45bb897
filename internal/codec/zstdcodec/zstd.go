// Package zstdcodec compresses snapshots with zstd.
package zstdcodec

import (
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/discochess/annotator/internal/codec"
)

var _ codec.Codec = (*Codec)(nil)

// Codec is a zstd codec.
type Codec struct {
	level zstd.EncoderLevel
}

// New returns a codec using the default encoder level.
func New() *Codec {
	return &Codec{level: zstd.SpeedDefault}
}

// NewWithLevel returns a codec for a zstd compression level (1-22), mapped to
// the closest encoder speed.
func NewWithLevel(level int) *Codec {
	return &Codec{level: zstd.EncoderLevelFromZstd(level)}
}

// Name returns "zstd".
func (c *Codec) Name() string { return "zstd" }

// Extension returns "zst".
func (c *Codec) Extension() string { return "zst" }

// Reader decompresses r.
func (c *Codec) Reader(r io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return dec.IOReadCloser(), nil
}

// Writer compresses into w. Close flushes the final frame.
func (c *Codec) Writer(w io.Writer) (io.WriteCloser, error) {
	return zstd.NewWriter(w, zstd.WithEncoderLevel(c.level))
}

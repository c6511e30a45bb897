// Package codec compresses snapshot streams.
package codec

import (
	"fmt"
	"io"
	"strings"
)

// Codec wraps readers and writers with a compression format.
type Codec interface {
	// Name identifies the codec in manifests and flags ("zstd", "gzip", "none").
	Name() string

	// Extension is the file suffix without the dot; empty for no compression.
	Extension() string

	Reader(r io.Reader) (io.ReadCloser, error)
	Writer(w io.Writer) (io.WriteCloser, error)
}

// Set resolves codecs by name or file extension.
type Set []Codec

// ByName returns the codec called name.
func (s Set) ByName(name string) (Codec, error) {
	for _, c := range s {
		if strings.EqualFold(c.Name(), name) {
			return c, nil
		}
	}
	return nil, fmt.Errorf("codec: unknown codec %q", name)
}

// ForPath picks the codec whose extension ends path, falling back to the codec
// with no extension.
func (s Set) ForPath(path string) (Codec, error) {
	var plain Codec
	for _, c := range s {
		ext := c.Extension()
		if ext == "" {
			plain = c
			continue
		}
		if strings.HasSuffix(path, "."+ext) {
			return c, nil
		}
	}
	if plain == nil {
		return nil, fmt.Errorf("codec: no codec for %q", path)
	}
	return plain, nil
}

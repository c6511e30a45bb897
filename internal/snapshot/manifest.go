package snapshot

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// FormatVersion is the snapshot line format written by Export.
const FormatVersion = 1

// Manifest describes one exported snapshot. It is written next to the snapshot
// as <snapshot>.manifest.json.
type Manifest struct {
	Version     int       `json:"version"`
	Records     int64     `json:"records"`
	WithWDL     int64     `json:"with_wdl"`
	WithScore   int64     `json:"with_score"`
	Skipped     int64     `json:"skipped_malformed"`
	Compression string    `json:"compression"`
	CreatedAt   time.Time `json:"created_at"`
	Source      string    `json:"source,omitempty"`
}

// ManifestPath returns the manifest location for a snapshot location.
func ManifestPath(snapshot string) string {
	return snapshot + ".manifest.json"
}

// WriteManifest encodes m as indented JSON.
func WriteManifest(w io.Writer, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}

// ReadManifest decodes a manifest and rejects unknown format versions.
func ReadManifest(r io.Reader) (*Manifest, error) {
	var m Manifest
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	if m.Version != FormatVersion {
		return nil, fmt.Errorf("snapshot: unsupported format version %d", m.Version)
	}
	return &m, nil
}

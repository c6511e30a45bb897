package snapshot

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"
)

// Progress reports a running export or import.
type Progress struct {
	Phase     string // "export", "import", "done" or "error"
	Records   int64
	Skipped   int64
	Bytes     int64
	StartTime time.Time
	Err       error
}

// ProgressFunc is called periodically with progress updates.
type ProgressFunc func(Progress)

// progressEvery is how many records pass between progress callbacks.
const progressEvery = 10000

// countingWriter counts bytes written through it.
type countingWriter struct {
	w io.Writer
	n *atomic.Int64
}

func (cw countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n.Add(int64(n))
	return n, err
}

// countingReader counts bytes read through it.
type countingReader struct {
	r io.Reader
	n *atomic.Int64
}

func (cr countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.n.Add(int64(n))
	return n, err
}

// FormatBytes formats bytes as a human-readable string.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// FormatDuration formats a duration as a human-readable string.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

// Printer returns a ProgressFunc that writes one-line updates to w.
func Printer(w io.Writer) ProgressFunc {
	return func(p Progress) {
		switch p.Phase {
		case "export", "import":
			fmt.Fprintf(w, "\r[%s] %d records, %d skipped, %s", p.Phase, p.Records, p.Skipped, FormatBytes(p.Bytes))
		case "done":
			fmt.Fprintf(w, "\n[done] %d records, %d skipped, %s in %s\n",
				p.Records, p.Skipped, FormatBytes(p.Bytes), FormatDuration(time.Since(p.StartTime)))
		case "error":
			fmt.Fprintf(w, "\n[error] %v\n", p.Err)
		}
	}
}

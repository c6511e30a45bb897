// Package snapshot exports the evaluation cache to a compressed JSON-lines
// stream and imports such streams back through the cache merge rules.
//
// Each line holds one position:
//
//	{"fp":"<fingerprint>","nodes":5000,"depth":20,"eval":"[700,200,100];85","pv":"e2e4 e7e5"}
//
// nodes and depth are the budgets of the halves present in eval and are
// omitted together with the half they describe.
package snapshot

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/discochess/annotator"
	"github.com/discochess/annotator/internal/codec"
)

// ErrMalformedLine is returned in strict mode for a line that cannot be imported.
var ErrMalformedLine = errors.New("snapshot: malformed line")

// maxLine bounds one snapshot line; long principal lines stay well below it.
const maxLine = 1 << 20

type line struct {
	Fingerprint string `json:"fp"`
	Nodes       int64  `json:"nodes,omitempty"`
	Depth       int    `json:"depth,omitempty"`
	Eval        string `json:"eval"`
	PV          string `json:"pv,omitempty"`
}

// Options tunes Export and Import.
type Options struct {
	Progress ProgressFunc
	Logger   *zap.Logger

	// Strict makes Import stop at the first malformed line instead of
	// skipping it.
	Strict bool
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

func (o Options) report(p Progress) {
	if o.Progress != nil {
		o.Progress(p)
	}
}

// Export writes every well-formed cached record to w, compressed with c.
// Malformed records are skipped and counted in the manifest.
func Export(ctx context.Context, cache *annotator.Cache, w io.Writer, c codec.Codec, opts Options) (*Manifest, error) {
	logger := opts.logger()
	m := &Manifest{
		Version:     FormatVersion,
		Compression: c.Name(),
		CreatedAt:   time.Now().UTC(),
	}
	var written atomic.Int64
	start := time.Now()

	cw, err := c.Writer(countingWriter{w: w, n: &written})
	if err != nil {
		return nil, fmt.Errorf("creating %s writer: %w", c.Name(), err)
	}
	bw := bufio.NewWriter(cw)
	enc := json.NewEncoder(bw)

	err = cache.Scan(ctx, func(e annotator.CacheEntry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.Err != nil {
			m.Skipped++
			logger.Warn("skipping malformed record", zap.String("fingerprint", e.Fingerprint), zap.Error(e.Err))
			return nil
		}
		if e.Record.IsEmpty() {
			return nil
		}
		if err := enc.Encode(toLine(e.Fingerprint, e.Record)); err != nil {
			return fmt.Errorf("writing %q: %w", e.Fingerprint, err)
		}
		m.Records++
		if e.Record.HasWDL() {
			m.WithWDL++
		}
		if e.Record.HasScore() {
			m.WithScore++
		}
		if m.Records%progressEvery == 0 {
			opts.report(Progress{Phase: "export", Records: m.Records, Skipped: m.Skipped, Bytes: written.Load(), StartTime: start})
		}
		return nil
	})
	if err == nil {
		err = bw.Flush()
	}
	if cerr := cw.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		opts.report(Progress{Phase: "error", Err: err})
		return nil, fmt.Errorf("exporting snapshot: %w", err)
	}

	opts.report(Progress{Phase: "done", Records: m.Records, Skipped: m.Skipped, Bytes: written.Load(), StartTime: start})
	logger.Info("snapshot exported",
		zap.Int64("records", m.Records),
		zap.Int64("skipped", m.Skipped),
		zap.Int64("bytes", written.Load()),
	)
	return m, nil
}

// ImportResult summarizes an import.
type ImportResult struct {
	Records int64 // lines merged into the cache
	Skipped int64 // malformed lines ignored
	Bytes   int64 // compressed bytes read
}

// Import reads a snapshot from r and merges every line into cache with
// MergeUpdate, so existing halves are kept or upgraded according to the cache
// policy.
func Import(ctx context.Context, cache *annotator.Cache, r io.Reader, c codec.Codec, opts Options) (*ImportResult, error) {
	logger := opts.logger()
	var read atomic.Int64
	start := time.Now()

	cr, err := c.Reader(countingReader{r: r, n: &read})
	if err != nil {
		return nil, fmt.Errorf("creating %s reader: %w", c.Name(), err)
	}
	defer cr.Close()

	res := &ImportResult{}
	sc := bufio.NewScanner(cr)
	sc.Buffer(make([]byte, 64*1024), maxLine)
	for n := 1; sc.Scan(); n++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if len(sc.Bytes()) == 0 {
			continue
		}

		fp, rec, err := parseLine(sc.Bytes())
		if err != nil {
			if opts.Strict {
				return res, fmt.Errorf("line %d: %w", n, err)
			}
			res.Skipped++
			logger.Warn("skipping malformed snapshot line", zap.Int("line", n), zap.Error(err))
			continue
		}
		if _, err := cache.MergeUpdate(ctx, fp, rec); err != nil {
			return res, fmt.Errorf("line %d: merging %q: %w", n, fp, err)
		}
		res.Records++
		if res.Records%progressEvery == 0 {
			opts.report(Progress{Phase: "import", Records: res.Records, Skipped: res.Skipped, Bytes: read.Load(), StartTime: start})
		}
	}
	res.Bytes = read.Load()
	if err := sc.Err(); err != nil {
		opts.report(Progress{Phase: "error", Err: err})
		return res, fmt.Errorf("reading snapshot: %w", err)
	}

	opts.report(Progress{Phase: "done", Records: res.Records, Skipped: res.Skipped, Bytes: res.Bytes, StartTime: start})
	logger.Info("snapshot imported",
		zap.Int64("records", res.Records),
		zap.Int64("skipped", res.Skipped),
	)
	return res, nil
}

func toLine(fp string, rec annotator.Record) line {
	l := line{Fingerprint: fp, Eval: rec.Annotation().String(), PV: rec.PrincipalLine}
	if rec.HasWDL() {
		l.Nodes = rec.Nodes
	}
	if rec.HasScore() {
		l.Depth = rec.Depth
	}
	return l
}

// parseLine decodes and checks one line. Budgets must match the halves present
// in eval and the fingerprint must already be canonical.
func parseLine(data []byte) (string, annotator.Record, error) {
	var l line
	if err := json.Unmarshal(data, &l); err != nil {
		return "", annotator.Record{}, fmt.Errorf("%w: %v", ErrMalformedLine, err)
	}
	fp, err := annotator.Fingerprint(l.Fingerprint)
	if err != nil || fp != l.Fingerprint {
		return "", annotator.Record{}, fmt.Errorf("%w: fingerprint %q", ErrMalformedLine, l.Fingerprint)
	}
	a, err := annotator.ParseAnnotation(l.Eval)
	if err != nil {
		return "", annotator.Record{}, fmt.Errorf("%w: %w", ErrMalformedLine, err)
	}
	if (a.WDL != nil) != (l.Nodes > 0) || (a.Score != nil) != (l.Depth > 0) {
		return "", annotator.Record{}, fmt.Errorf("%w: budgets do not match eval %q", ErrMalformedLine, l.Eval)
	}
	if a.IsEmpty() {
		return "", annotator.Record{}, fmt.Errorf("%w: empty eval", ErrMalformedLine)
	}

	rec := annotator.Record{PrincipalLine: l.PV}
	if a.WDL != nil {
		rec.Nodes, rec.WDL = l.Nodes, *a.WDL
	}
	if a.Score != nil {
		rec.Depth, rec.Score = l.Depth, *a.Score
	}
	if err := rec.Validate(); err != nil {
		return "", annotator.Record{}, fmt.Errorf("%w: %w", ErrMalformedLine, err)
	}
	return fp, rec, nil
}

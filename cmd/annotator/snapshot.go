package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/discochess/annotator/internal/codec"
	"github.com/discochess/annotator/internal/codec/gzipcodec"
	"github.com/discochess/annotator/internal/codec/noopcodec"
	"github.com/discochess/annotator/internal/codec/zstdcodec"
	"github.com/discochess/annotator/internal/snapshot"
)

var codecs = codec.Set{zstdcodec.New(), gzipcodec.New(), noopcodec.New()}

var exportCmd = &cobra.Command{
	Use:   "export [DESTINATION]",
	Short: "Export the evaluation cache to a snapshot",
	Long: `Write every well-formed cached record as one JSON line, compressed, to a
local path, gs://bucket/key or s3://bucket/key. A manifest describing the
snapshot is written next to it as <destination>.manifest.json.

Examples:
  annotator export ./cache.jsonl.zst
  annotator export gs://my-bucket/annotator/cache.jsonl.zst
  annotator export s3://my-bucket/cache.jsonl.gz --compression gzip`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

var importCmd = &cobra.Command{
	Use:   "import [SOURCE]",
	Short: "Merge a snapshot into the evaluation cache",
	Long: `Read a snapshot from a local path, gs://, s3:// or http(s):// location and
merge every line into the cache. Halves already cached are kept, or
replaced by higher-budget ones when --upgrade is set.

The compression is taken from --compression, then from the manifest when
one is found next to the snapshot, then from the file extension.

Examples:
  annotator import ./cache.jsonl.zst
  annotator import https://example.com/cache.jsonl.zst --strict`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

var (
	compression string
	zstdLevel   int
	strict      bool
	noProgress  bool
)

func init() {
	exportCmd.Flags().StringVar(&compression, "compression", "", "zstd, gzip or none (default from the extension)")
	exportCmd.Flags().IntVar(&zstdLevel, "zstd-level", 0, "zstd compression level 1-22 (0 uses the default)")
	exportCmd.Flags().BoolVar(&noProgress, "quiet", false, "suppress progress output")
	rootCmd.AddCommand(exportCmd)

	importCmd.Flags().StringVar(&compression, "compression", "", "zstd, gzip or none (default from the manifest or extension)")
	importCmd.Flags().BoolVar(&strict, "strict", false, "fail on the first malformed line")
	importCmd.Flags().BoolVar(&noProgress, "quiet", false, "suppress progress output")
	rootCmd.AddCommand(importCmd)
}

func exportCodec(dest string) (codec.Codec, error) {
	if compression == "" {
		return codecs.ForPath(dest)
	}
	c, err := codecs.ByName(compression)
	if err != nil {
		return nil, err
	}
	if c.Name() == "zstd" && zstdLevel > 0 {
		return zstdcodec.NewWithLevel(zstdLevel), nil
	}
	return c, nil
}

func snapshotOptions(cmd *cobra.Command, logger *zap.Logger) snapshot.Options {
	opts := snapshot.Options{Logger: logger, Strict: strict}
	if !noProgress {
		opts.Progress = snapshot.Printer(cmd.ErrOrStderr())
	}
	return opts
}

func runExport(cmd *cobra.Command, args []string) error {
	dest := args[0]
	c, err := exportCodec(dest)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := setup(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	locator := snapshot.NewLocator()
	w, err := locator.Create(ctx, dest)
	if err != nil {
		return err
	}
	m, err := snapshot.Export(ctx, rt.annotator.Cache(), w, c, snapshotOptions(cmd, rt.logger))
	if cerr := w.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("closing %s: %w", dest, cerr)
	}
	if err != nil {
		return err
	}

	m.Source = rt.cfg.Store.Backend
	mw, err := locator.Create(ctx, snapshot.ManifestPath(dest))
	if err != nil {
		return err
	}
	err = snapshot.WriteManifest(mw, m)
	if cerr := mw.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d records to %s (%s, %d malformed skipped)\n",
		m.Records, dest, m.Compression, m.Skipped)
	return nil
}

// importCodec resolves the codec for src, reading the manifest when the
// compression was not given.
func importCodec(ctx context.Context, locator *snapshot.Locator, src string, logger *zap.Logger) (codec.Codec, error) {
	if compression != "" {
		return codecs.ByName(compression)
	}
	r, err := locator.Open(ctx, snapshot.ManifestPath(src))
	if err == nil {
		m, merr := snapshot.ReadManifest(r)
		r.Close()
		if merr != nil {
			return nil, merr
		}
		logger.Debug("using manifest",
			zap.String("compression", m.Compression),
			zap.Int64("records", m.Records),
			zap.Time("created_at", m.CreatedAt),
		)
		return codecs.ByName(m.Compression)
	}
	logger.Debug("no manifest, using the file extension", zap.Error(err))
	return codecs.ForPath(src)
}

func runImport(cmd *cobra.Command, args []string) error {
	src := args[0]

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := setup(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	locator := snapshot.NewLocator()
	c, err := importCodec(ctx, locator, src, rt.logger)
	if err != nil {
		return err
	}

	r, err := locator.Open(ctx, src)
	if err != nil {
		return err
	}
	defer r.Close()

	start := time.Now()
	res, err := snapshot.Import(ctx, rt.annotator.Cache(), r, c, snapshotOptions(cmd, rt.logger))
	if res != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d records from %s in %s (%d malformed skipped, %s read)\n",
			res.Records, src, snapshot.FormatDuration(time.Since(start)), res.Skipped, snapshot.FormatBytes(res.Bytes))
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("import interrupted: %w", err)
	}
	return err
}

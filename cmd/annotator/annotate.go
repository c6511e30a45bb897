package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/discochess/annotator"
)

var annotateCmd = &cobra.Command{
	Use:   "annotate [PGN files...]",
	Short: "Annotate every position of one or more games",
	Long: `Annotate every position of the games in the given PGN files, or stdin
when no file (or "-") is given.

Each position is looked up in the cache first. Missing halves, or halves
searched below the requested budget, are computed by the engines and merged
back into the cache.

If an engine fails, the affected game is written up to the last annotated
move and marked incomplete, and the command exits with an error.

Examples:
  annotator annotate games.pgn --scalar-engine stockfish --depth 18
  annotator annotate games.pgn --wdl-engine lc0 --nodes 800 --format jsonl -o out.jsonl`,
	RunE: runAnnotate,
}

var (
	outputPath   string
	outputFormat string
)

func init() {
	annotateCmd.Flags().StringVarP(&outputPath, "output", "o", "-", "output file (- for stdout)")
	annotateCmd.Flags().StringVar(&outputFormat, "format", "pgn", "output format: pgn, jsonl")
	addEngineFlags(annotateCmd.Flags())
	rootCmd.AddCommand(annotateCmd)
}

func runAnnotate(cmd *cobra.Command, args []string) error {
	if outputFormat != "pgn" && outputFormat != "jsonl" {
		return fmt.Errorf("unknown format %q", outputFormat)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sources, err := readSources(args, cmd.InOrStdin())
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return fmt.Errorf("no games found")
	}

	rt, err := setup(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	if len(rt.pools) == 0 {
		rt.logger.Warn("no engine configured, annotations come from the cache only")
	}

	start := time.Now()
	games, annotateErr := rt.annotator.AnnotateGames(ctx, sources, rt.cfg.Search.Workers)

	out, err := createOutput(outputPath, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	w := bufio.NewWriter(out)
	for _, g := range games {
		if g == nil {
			continue
		}
		if outputFormat == "jsonl" {
			err = g.WriteJSON(w)
		} else {
			err = g.WritePGN(w)
		}
		if err != nil {
			break
		}
	}
	if ferr := w.Flush(); err == nil {
		err = ferr
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("writing output: %w", err)
	}

	var moves, incomplete int
	for _, g := range games {
		if g == nil {
			continue
		}
		moves += len(g.Moves)
		if g.Incomplete {
			incomplete++
		}
	}
	rt.logger.Info("annotation finished",
		zap.Int("games", len(games)),
		zap.Int("incomplete", incomplete),
		zap.Int("moves", moves),
		zap.Duration("elapsed", time.Since(start)),
	)
	return annotateErr
}

// readSources parses every game from the named PGN files, or stdin.
func readSources(paths []string, stdin io.Reader) ([]annotator.MoveSource, error) {
	if len(paths) == 0 {
		paths = []string{"-"}
	}
	var sources []annotator.MoveSource
	for _, path := range paths {
		r, err := openInput(path, stdin)
		if err != nil {
			return nil, err
		}
		games, err := annotator.ReadPGN(r)
		r.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		for _, g := range games {
			sources = append(sources, g)
		}
	}
	return sources, nil
}

// openInput opens path for reading; "-" reads stdin.
func openInput(path string, stdin io.Reader) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return f, nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// createOutput opens path for writing; "-" writes to stdout without closing it.
func createOutput(path string, stdout io.Writer) (io.WriteCloser, error) {
	if path == "-" || path == "" {
		return nopWriteCloser{stdout}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}
	return f, nil
}

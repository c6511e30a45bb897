package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/discochess/annotator"
)

var lookupCmd = &cobra.Command{
	Use:   "lookup [FEN]",
	Short: "Look up the cached evaluation for a chess position",
	Long: `Look up the cached evaluation for a position given in FEN notation.

Move counters are ignored: positions that differ only in the halfmove clock
or fullmove number share one cache entry.

Examples:
  # Starting position
  annotator lookup "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

  # After 1.e4, as JSON
  annotator lookup --json "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1"`,
	Args: cobra.ExactArgs(1),
	RunE: runLookup,
}

var (
	outputJSON bool
	showTiming bool
)

func init() {
	lookupCmd.Flags().BoolVar(&outputJSON, "json", false, "output result as JSON")
	lookupCmd.Flags().BoolVar(&showTiming, "timing", false, "show lookup timing")
	rootCmd.AddCommand(lookupCmd)
}

type lookupResult struct {
	Fingerprint   string               `json:"fingerprint"`
	Found         bool                 `json:"found"`
	Annotation    annotator.Annotation `json:"annotation"`
	Nodes         int64                `json:"nodes,omitempty"`
	Depth         int                  `json:"depth,omitempty"`
	PrincipalLine string               `json:"pv,omitempty"`
	ElapsedMicros int64                `json:"elapsed_us,omitempty"`
}

func runLookup(cmd *cobra.Command, args []string) error {
	fp, err := annotator.Fingerprint(args[0])
	if err != nil {
		return err
	}

	ctx := context.Background()
	rt, err := setup(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	start := time.Now()
	rec, found, err := rt.annotator.Cache().Get(ctx, fp)
	if err != nil {
		return fmt.Errorf("lookup failed: %w", err)
	}
	elapsed := time.Since(start)

	res := lookupResult{Fingerprint: fp, Found: found}
	if found {
		res.Annotation = rec.Annotation()
		res.Nodes = rec.Nodes
		res.Depth = rec.Depth
		res.PrincipalLine = rec.PrincipalLine
	}
	if showTiming {
		res.ElapsedMicros = elapsed.Microseconds()
	}

	out := cmd.OutOrStdout()
	if outputJSON {
		return json.NewEncoder(out).Encode(res)
	}
	printLookupText(out, res, elapsed)
	return nil
}

func printLookupText(w io.Writer, res lookupResult, elapsed time.Duration) {
	fmt.Fprintf(w, "Position:   %s\n", res.Fingerprint)
	if !res.Found {
		fmt.Fprintln(w, "Not cached.")
	} else {
		fmt.Fprintf(w, "Annotation: %s\n", res.Annotation)
		if res.Nodes > 0 {
			fmt.Fprintf(w, "Nodes:      %d\n", res.Nodes)
		}
		if res.Depth > 0 {
			fmt.Fprintf(w, "Depth:      %d\n", res.Depth)
		}
		if res.PrincipalLine != "" {
			fmt.Fprintf(w, "PV:         %s\n", res.PrincipalLine)
		}
	}
	if showTiming {
		fmt.Fprintf(w, "Time:       %s\n", elapsed)
	}
}

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/discochess/annotator"
	"github.com/discochess/annotator/analysis"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show statistics about the evaluation cache",
	Long: `Scan the evaluation cache and display:
- Number of records, split by which halves are present
- Number of malformed records
- Distribution of the depth and node budgets`,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

type cacheStats struct {
	Records   int
	WithWDL   int
	WithScore int
	Both      int
	Malformed int
	Depths    []float64
	Nodes     []float64
}

func collectStats(ctx context.Context, cache *annotator.Cache) (*cacheStats, error) {
	var s cacheStats
	err := cache.Scan(ctx, func(e annotator.CacheEntry) error {
		if e.Err != nil {
			s.Malformed++
			return nil
		}
		s.Records++
		rec := e.Record
		if rec.HasWDL() {
			s.WithWDL++
			s.Nodes = append(s.Nodes, float64(rec.Nodes))
		}
		if rec.HasScore() {
			s.WithScore++
			s.Depths = append(s.Depths, float64(rec.Depth))
		}
		if rec.HasWDL() && rec.HasScore() {
			s.Both++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning cache: %w", err)
	}
	return &s, nil
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	rt, err := setup(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	s, err := collectStats(ctx, rt.annotator.Cache())
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Store:          %s\n", rt.cfg.Store.Backend)
	fmt.Fprintf(w, "Records:        %d\n", s.Records)
	fmt.Fprintf(w, "  with WDL:     %d\n", s.WithWDL)
	fmt.Fprintf(w, "  with score:   %d\n", s.WithScore)
	fmt.Fprintf(w, "  with both:    %d\n", s.Both)
	fmt.Fprintf(w, "Malformed:      %d\n", s.Malformed)
	if len(s.Depths) > 0 {
		d := analysis.Summarize(s.Depths)
		fmt.Fprintf(w, "Depth:          min %.0f, median %.0f, max %.0f\n", d.Min, d.Median, d.Max)
	}
	if len(s.Nodes) > 0 {
		n := analysis.Summarize(s.Nodes)
		fmt.Fprintf(w, "Nodes:          min %.0f, median %.0f, max %.0f\n", n.Min, n.Median, n.Max)
	}
	return nil
}

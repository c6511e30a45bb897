package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/discochess/annotator"
	"github.com/discochess/annotator/internal/report"
)

var reportCmd = &cobra.Command{
	Use:   "report [JSONL files...]",
	Short: "Summarize annotated games as a Markdown report",
	Long: `Read games written by "annotator annotate --format jsonl" and write a
Markdown report with per-side accuracy, average sharpness, a side
comparison and an accuracy distribution.

The report needs no store or engine. A malformed annotation is an error.

Examples:
  annotator annotate games.pgn --format jsonl -o games.jsonl
  annotator report games.jsonl -o report.md`,
	RunE: runReport,
}

var (
	reportTitle  string
	reportOutput string
)

func init() {
	reportCmd.Flags().StringVar(&reportTitle, "title", "Game Annotation Report", "report title")
	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "-", "output file (- for stdout)")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		args = []string{"-"}
	}

	var games []*annotator.AnnotatedGame
	for _, path := range args {
		r, err := openInput(path, cmd.InOrStdin())
		if err != nil {
			return err
		}
		gs, err := annotator.ReadAnnotatedGames(r)
		r.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		games = append(games, gs...)
	}
	if len(games) == 0 {
		return fmt.Errorf("no games found")
	}

	out, err := createOutput(reportOutput, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	err = report.Write(out, reportTitle, games, time.Now())
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return err
}

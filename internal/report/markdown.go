// Package report renders accuracy and sharpness reports for annotated games.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/discochess/annotator"
	"github.com/discochess/annotator/analysis"
)

// Markdown writes report sections in Markdown. The first write error is kept
// and returned by Err; later writes are skipped.
type Markdown struct {
	w   io.Writer
	err error
}

// NewMarkdown creates a report writer.
func NewMarkdown(w io.Writer) *Markdown {
	return &Markdown{w: w}
}

// Err returns the first write error.
func (r *Markdown) Err() error {
	return r.err
}

func (r *Markdown) printf(format string, args ...any) {
	if r.err != nil {
		return
	}
	_, r.err = fmt.Fprintf(r.w, format, args...)
}

// WriteHeader writes the title and generation time.
func (r *Markdown) WriteHeader(title string, generated time.Time) {
	r.printf("# %s\n\n", title)
	r.printf("Generated: %s\n\n", generated.UTC().Format(time.RFC3339))
}

// WriteMethodology describes the input.
func (r *Markdown) WriteMethodology(games []*analysis.GameMetrics, incomplete int) {
	moves := 0
	for _, g := range games {
		moves += len(g.Moves)
	}
	r.printf("## Methodology\n\n")
	r.printf("- **Games analyzed:** %d\n", len(games))
	r.printf("- **Incomplete games:** %d\n", incomplete)
	r.printf("- **Moves analyzed:** %d\n", moves)
	r.printf("- **Accuracy:** win-probability drop per move, clamped to [0, 100]\n")
	r.printf("- **Sharpness:** decisiveness of the win/draw/loss distribution after each move\n\n")
}

// WriteGameTable writes one row per game.
func (r *Markdown) WriteGameTable(games []*analysis.GameMetrics) {
	r.printf("## Games\n\n")
	r.printf("| Game | White | Black | Result | White accuracy | Black accuracy | Avg sharpness |\n")
	r.printf("|------|-------|-------|--------|----------------|----------------|---------------|\n")
	for i, g := range games {
		r.printf("| %d | %s | %s | %s | %s | %s | %s |\n",
			i+1,
			cell(g.Headers["White"]),
			cell(g.Headers["Black"]),
			cell(g.Headers["Result"]),
			mean(g.WhiteAccuracy, "%.1f"),
			mean(g.BlackAccuracy, "%.1f"),
			mean(g.Sharpness, "%.2f"),
		)
	}
	r.printf("\n")
}

// WriteSideComparison compares White's and Black's move accuracy.
func (r *Markdown) WriteSideComparison(white, black []float64) {
	ws := analysis.Summarize(white)
	bs := analysis.Summarize(black)

	r.printf("## White vs Black\n\n")
	r.printf("| Metric | White | Black |\n")
	r.printf("|--------|-------|-------|\n")
	r.printf("| Moves | %d | %d |\n", ws.N, bs.N)
	r.printf("| Mean | %.2f | %.2f |\n", ws.Mean, bs.Mean)
	r.printf("| Median | %.2f | %.2f |\n", ws.Median, bs.Median)
	r.printf("| Std Dev | %.2f | %.2f |\n", ws.StdDev, bs.StdDev)
	r.printf("| P25 | %.2f | %.2f |\n", ws.P25, bs.P25)
	r.printf("| P75 | %.2f | %.2f |\n\n", ws.P75, bs.P75)

	mw := analysis.MannWhitneyU(white, black)
	es := analysis.ComputeEffectSize(white, black)
	r.printf("- **Mann-Whitney U:** %.2f (z=%.2f, p=%.4f)\n", mw.U, mw.Z, mw.PValue)
	r.printf("- **Effect size (Cohen's d):** %.2f (%s)\n\n", es.CohensD, es.Interpretation)
	if mw.Significant {
		r.printf("The difference in accuracy is statistically significant (p < 0.05).\n\n")
	} else {
		r.printf("No statistically significant difference in accuracy (p >= 0.05).\n\n")
	}
}

// WriteDistributionChart writes a text histogram of values in [0,100].
func (r *Markdown) WriteDistributionChart(name string, data []float64) {
	r.printf("### %s Distribution\n\n", name)
	r.printf("```\n")

	hist := histogram(data, 10)
	maxCount := 0
	for _, count := range hist {
		maxCount = max(maxCount, count)
	}

	const width = 40
	for i, count := range hist {
		bar := 0
		if maxCount > 0 {
			bar = count * width / maxCount
		}
		r.printf("%3d-%3d │ %s %d\n", i*10, (i+1)*10, strings.Repeat("█", bar), count)
	}
	r.printf("```\n\n")
}

// WriteFooter writes the report footer.
func (r *Markdown) WriteFooter() {
	r.printf("---\n\n*Report generated by annotator*\n")
}

// Write analyzes games and renders the full report.
func Write(w io.Writer, title string, games []*annotator.AnnotatedGame, generated time.Time) error {
	metrics := make([]*analysis.GameMetrics, 0, len(games))
	incomplete := 0
	var white, black []float64
	for _, g := range games {
		m, err := analysis.AnalyzeGame(g)
		if err != nil {
			return err
		}
		if g.Incomplete {
			incomplete++
		}
		for _, mm := range m.Moves {
			if !mm.Scored {
				continue
			}
			if mm.Mover == analysis.White {
				white = append(white, mm.Accuracy)
			} else {
				black = append(black, mm.Accuracy)
			}
		}
		metrics = append(metrics, m)
	}

	r := NewMarkdown(w)
	r.WriteHeader(title, generated)
	r.WriteMethodology(metrics, incomplete)
	r.WriteGameTable(metrics)
	r.WriteSideComparison(white, black)
	r.WriteDistributionChart("Accuracy", append(append([]float64(nil), white...), black...))
	r.WriteFooter()
	return r.Err()
}

// histogram buckets values in [0,100]; 100 lands in the last bucket.
func histogram(data []float64, buckets int) []int {
	hist := make([]int, buckets)
	size := 100 / float64(buckets)
	for _, v := range data {
		b := int(v / size)
		b = max(0, min(buckets-1, b))
		hist[b]++
	}
	return hist
}

func mean(s analysis.Summary, format string) string {
	if s.N == 0 {
		return "-"
	}
	return fmt.Sprintf(format, s.Mean)
}

func cell(s string) string {
	if s == "" {
		return "?"
	}
	return strings.ReplaceAll(s, "|", "\\|")
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/discochess/annotator"
	"github.com/discochess/annotator/internal/fen"
)

var (
	_ annotator.ScalarEvaluator        = (*Scalar)(nil)
	_ annotator.ProbabilisticEvaluator = (*Probabilistic)(nil)
)

// ShowWDL is the UCI option that makes engines report win/draw/loss.
const ShowWDL = "UCI_ShowWDL"

// Scalar evaluates positions with depth-limited searches.
type Scalar struct {
	s Searcher
}

// NewScalar wraps s.
func NewScalar(s Searcher) *Scalar {
	return &Scalar{s: s}
}

// EvaluateScalar returns the score from White's point of view, or nil for a
// terminal position.
func (e *Scalar) EvaluateScalar(ctx context.Context, position string, depth int) (*annotator.ScalarEvaluation, error) {
	white, terminal, err := prepare(position)
	if err != nil || terminal {
		return nil, err
	}

	res, err := e.s.Go(ctx, position, Limit{Depth: depth})
	if err != nil {
		return nil, wrap(err)
	}

	var score annotator.Score
	switch {
	case res.Mate != nil:
		if *res.Mate == 0 {
			return nil, nil
		}
		score.Mate = *res.Mate
	case res.ScoreCP != nil:
		score.Centipawns = float64(*res.ScoreCP)
	default:
		return nil, fmt.Errorf("%w: no score reported for %q", annotator.ErrEngineUnavailable, position)
	}
	if !white {
		score.Mate = -score.Mate
		score.Centipawns = -score.Centipawns
	}
	if score.Centipawns == 0 {
		score.Centipawns = 0 // normalize -0
	}

	return &annotator.ScalarEvaluation{
		Score:         score,
		PrincipalLine: strings.Join(res.PV, " "),
		DepthReached:  res.Depth,
		NodesReached:  res.Nodes,
	}, nil
}

// Probabilistic evaluates positions with node-limited searches. The engine must
// be configured with ShowWDL set to true.
type Probabilistic struct {
	s Searcher
}

// NewProbabilistic wraps s.
func NewProbabilistic(s Searcher) *Probabilistic {
	return &Probabilistic{s: s}
}

// EvaluateProbabilistic returns the distribution from White's point of view,
// scaled to sum to annotator.WDLTotal, or nil for a terminal position.
func (e *Probabilistic) EvaluateProbabilistic(ctx context.Context, position string, nodes int64) (*annotator.ProbabilisticEvaluation, error) {
	white, terminal, err := prepare(position)
	if err != nil || terminal {
		return nil, err
	}

	res, err := e.s.Go(ctx, position, Limit{Nodes: nodes})
	if err != nil {
		return nil, wrap(err)
	}
	if res.WDL == nil {
		return nil, fmt.Errorf("%w: no wdl reported for %q (is %s enabled?)", annotator.ErrEngineUnavailable, position, ShowWDL)
	}

	wdl, err := rescale(*res.WDL)
	if err != nil {
		return nil, err
	}
	if !white {
		wdl.Win, wdl.Loss = wdl.Loss, wdl.Win
	}

	return &annotator.ProbabilisticEvaluation{
		WDL:          wdl,
		DepthReached: res.Depth,
		NodesReached: res.Nodes,
	}, nil
}

// prepare reports the side to move and whether the position is terminal.
func prepare(position string) (white, terminal bool, err error) {
	side, err := fen.SideToMove(position)
	if err != nil {
		return false, false, fmt.Errorf("position %q: %w", position, err)
	}
	terminal, err = annotator.IsTerminal(position)
	if err != nil {
		return false, false, err
	}
	return side == "w", terminal, nil
}

// wrap tags engine failures with the annotator sentinel. Context errors pass
// through unchanged.
func wrap(err error) error {
	if errors.Is(err, ErrUnavailable) {
		return fmt.Errorf("%w: %w", annotator.ErrEngineUnavailable, err)
	}
	return err
}

// rescale converts raw counts to per mille, rounding win and loss and giving the
// remainder to draw.
func rescale(raw [3]int) (annotator.WDL, error) {
	total := raw[0] + raw[1] + raw[2]
	if raw[0] < 0 || raw[1] < 0 || raw[2] < 0 || total <= 0 {
		return annotator.WDL{}, fmt.Errorf("%w: invalid wdl %v", annotator.ErrEngineUnavailable, raw)
	}
	if total == annotator.WDLTotal {
		return annotator.WDL{Win: raw[0], Draw: raw[1], Loss: raw[2]}, nil
	}
	scale := float64(annotator.WDLTotal) / float64(total)
	w := int(math.Round(float64(raw[0]) * scale))
	l := int(math.Round(float64(raw[2]) * scale))
	if w+l > annotator.WDLTotal {
		l = annotator.WDLTotal - w
	}
	return annotator.WDL{Win: w, Draw: annotator.WDLTotal - w - l, Loss: l}, nil
}

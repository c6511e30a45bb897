package annotator

import (
	"context"
	"errors"
	"fmt"

	"github.com/notnil/chess"

	"github.com/discochess/annotator/internal/fen"
)

var (
	// ErrTerminalPosition marks a position with no continuation to evaluate:
	// checkmate, stalemate or insufficient material. It is informational.
	ErrTerminalPosition = errors.New("annotator: terminal position")

	// ErrEngineUnavailable indicates the engine process failed to start, exited
	// or stopped responding. It is fatal for the game being annotated.
	ErrEngineUnavailable = errors.New("annotator: engine unavailable")
)

// ScalarEvaluation is the result of a scalar search.
type ScalarEvaluation struct {
	Score         Score
	PrincipalLine string
	DepthReached  int
	NodesReached  int64
}

// ProbabilisticEvaluation is the result of a WDL search.
type ProbabilisticEvaluation struct {
	WDL          WDL
	DepthReached int
	NodesReached int64
}

// ScalarEvaluator searches a position to a fixed depth. It returns nil, nil for
// terminal positions and an error wrapping ErrEngineUnavailable when the engine
// cannot answer.
type ScalarEvaluator interface {
	EvaluateScalar(ctx context.Context, fen string, depth int) (*ScalarEvaluation, error)
}

// ProbabilisticEvaluator searches a position with a fixed node budget, with the
// same terminal and failure contract as ScalarEvaluator.
type ProbabilisticEvaluator interface {
	EvaluateProbabilistic(ctx context.Context, fen string, nodes int64) (*ProbabilisticEvaluation, error)
}

// IsTerminal reports whether a FEN position has no continuation worth
// evaluating.
func IsTerminal(position string) (bool, error) {
	opt, err := chess.FEN(position)
	if err != nil {
		return false, fmt.Errorf("parsing %q: %w", position, err)
	}
	return isTerminal(chess.NewGame(opt).Position()), nil
}

func isTerminal(pos *chess.Position) bool {
	if pos.Status() != chess.NoMethod {
		return true
	}
	m, err := fen.ParseMaterial(pos.String())
	return err == nil && m.InsufficientMaterial()
}

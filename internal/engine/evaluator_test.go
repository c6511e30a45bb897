package engine

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/discochess/annotator"
)

const (
	whiteToMove = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
	blackToMove = "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1"
	checkmated  = "rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3"
	bareKings   = "8/8/8/4k3/8/8/4K3/8 w - - 0 1"
)

// fakeSearcher returns a canned result and records the limits it was given.
type fakeSearcher struct {
	res    Result
	err    error
	limits []Limit
}

func (f *fakeSearcher) Go(_ context.Context, _ string, limit Limit) (Result, error) {
	f.limits = append(f.limits, limit)
	return f.res, f.err
}

func TestScalar_EvaluateScalar(t *testing.T) {
	tests := []struct {
		name     string
		fen      string
		res      Result
		want     *annotator.Score
		wantLine string
	}{
		{
			name:     "white to move",
			fen:      whiteToMove,
			res:      Result{Depth: 18, ScoreCP: intPtr(31), PV: []string{"e2e4", "e7e5"}},
			want:     &annotator.Score{Centipawns: 31},
			wantLine: "e2e4 e7e5",
		},
		{
			name: "black to move is flipped",
			fen:  blackToMove,
			res:  Result{Depth: 18, ScoreCP: intPtr(31)},
			want: &annotator.Score{Centipawns: -31},
		},
		{
			name: "mate for black to move is flipped",
			fen:  blackToMove,
			res:  Result{Depth: 18, Mate: intPtr(3)},
			want: &annotator.Score{Mate: -3},
		},
		{
			name: "mate wins over cp",
			fen:  whiteToMove,
			res:  Result{Depth: 18, Mate: intPtr(-2), ScoreCP: intPtr(-900)},
			want: &annotator.Score{Mate: -2},
		},
		{
			name: "mate zero is absent",
			fen:  whiteToMove,
			res:  Result{Depth: 18, Mate: intPtr(0)},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &fakeSearcher{res: tt.res}
			got, err := NewScalar(s).EvaluateScalar(context.Background(), tt.fen, 18)
			if err != nil {
				t.Fatalf("EvaluateScalar() error = %v", err)
			}
			if len(s.limits) != 1 || s.limits[0] != (Limit{Depth: 18}) {
				t.Errorf("limits = %+v, want one depth 18 search", s.limits)
			}
			if tt.want == nil {
				if got != nil {
					t.Errorf("EvaluateScalar() = %+v, want nil", got)
				}
				return
			}
			if got == nil {
				t.Fatal("EvaluateScalar() = nil")
			}
			if got.Score != *tt.want {
				t.Errorf("Score = %+v, want %+v", got.Score, *tt.want)
			}
			if got.PrincipalLine != tt.wantLine {
				t.Errorf("PrincipalLine = %q, want %q", got.PrincipalLine, tt.wantLine)
			}
			if got.DepthReached != 18 {
				t.Errorf("DepthReached = %d, want 18", got.DepthReached)
			}
		})
	}
}

func TestScalar_ZeroIsNotNegative(t *testing.T) {
	s := &fakeSearcher{res: Result{ScoreCP: intPtr(0)}}
	got, err := NewScalar(s).EvaluateScalar(context.Background(), blackToMove, 10)
	if err != nil {
		t.Fatalf("EvaluateScalar() error = %v", err)
	}
	if math.Signbit(got.Score.Centipawns) {
		t.Error("score should be +0")
	}
	if got.Score.String() != "0" {
		t.Errorf("Score.String() = %q, want %q", got.Score.String(), "0")
	}
}

func TestScalar_NoScore(t *testing.T) {
	s := &fakeSearcher{res: Result{BestMove: "e2e4"}}
	_, err := NewScalar(s).EvaluateScalar(context.Background(), whiteToMove, 10)
	if !errors.Is(err, annotator.ErrEngineUnavailable) {
		t.Errorf("EvaluateScalar() error = %v, want ErrEngineUnavailable", err)
	}
}

func TestEvaluators_TerminalPositions(t *testing.T) {
	for _, position := range []string{checkmated, bareKings} {
		s := &fakeSearcher{res: Result{ScoreCP: intPtr(1), WDL: &[3]int{1, 998, 1}}}

		scalar, err := NewScalar(s).EvaluateScalar(context.Background(), position, 10)
		if err != nil || scalar != nil {
			t.Errorf("EvaluateScalar(%q) = %+v, %v, want nil, nil", position, scalar, err)
		}
		prob, err := NewProbabilistic(s).EvaluateProbabilistic(context.Background(), position, 100)
		if err != nil || prob != nil {
			t.Errorf("EvaluateProbabilistic(%q) = %+v, %v, want nil, nil", position, prob, err)
		}
		if len(s.limits) != 0 {
			t.Errorf("terminal position %q searched %d times", position, len(s.limits))
		}
	}
}

func TestEvaluators_Errors(t *testing.T) {
	t.Run("unavailable is wrapped", func(t *testing.T) {
		s := &fakeSearcher{err: ErrUnavailable}
		_, err := NewScalar(s).EvaluateScalar(context.Background(), whiteToMove, 10)
		if !errors.Is(err, annotator.ErrEngineUnavailable) || !errors.Is(err, ErrUnavailable) {
			t.Errorf("error = %v, want both sentinels", err)
		}
		_, err = NewProbabilistic(s).EvaluateProbabilistic(context.Background(), whiteToMove, 100)
		if !errors.Is(err, annotator.ErrEngineUnavailable) {
			t.Errorf("error = %v, want ErrEngineUnavailable", err)
		}
	})

	t.Run("context error passes through", func(t *testing.T) {
		s := &fakeSearcher{err: context.Canceled}
		_, err := NewScalar(s).EvaluateScalar(context.Background(), whiteToMove, 10)
		if !errors.Is(err, context.Canceled) || errors.Is(err, annotator.ErrEngineUnavailable) {
			t.Errorf("error = %v, want bare context.Canceled", err)
		}
	})

	t.Run("invalid position", func(t *testing.T) {
		s := &fakeSearcher{}
		if _, err := NewScalar(s).EvaluateScalar(context.Background(), "not a fen", 10); err == nil {
			t.Error("expected error")
		}
		if len(s.limits) != 0 {
			t.Error("invalid position should not be searched")
		}
	})
}

func TestProbabilistic_EvaluateProbabilistic(t *testing.T) {
	tests := []struct {
		name string
		fen  string
		raw  [3]int
		want annotator.WDL
	}{
		{"white to move", whiteToMove, [3]int{150, 800, 50}, annotator.WDL{Win: 150, Draw: 800, Loss: 50}},
		{"black to move is flipped", blackToMove, [3]int{150, 800, 50}, annotator.WDL{Win: 50, Draw: 800, Loss: 150}},
		{"rescaled", whiteToMove, [3]int{2, 0, 1}, annotator.WDL{Win: 667, Draw: 0, Loss: 333}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := tt.raw
			s := &fakeSearcher{res: Result{Depth: 9, Nodes: 5002, WDL: &raw}}
			got, err := NewProbabilistic(s).EvaluateProbabilistic(context.Background(), tt.fen, 5000)
			if err != nil {
				t.Fatalf("EvaluateProbabilistic() error = %v", err)
			}
			if got.WDL != tt.want {
				t.Errorf("WDL = %v, want %v", got.WDL, tt.want)
			}
			if got.NodesReached != 5002 {
				t.Errorf("NodesReached = %d, want 5002", got.NodesReached)
			}
			if len(s.limits) != 1 || s.limits[0] != (Limit{Nodes: 5000}) {
				t.Errorf("limits = %+v, want one 5000 node search", s.limits)
			}
		})
	}
}

func TestProbabilistic_MissingWDL(t *testing.T) {
	s := &fakeSearcher{res: Result{ScoreCP: intPtr(20)}}
	_, err := NewProbabilistic(s).EvaluateProbabilistic(context.Background(), whiteToMove, 100)
	if !errors.Is(err, annotator.ErrEngineUnavailable) {
		t.Errorf("error = %v, want ErrEngineUnavailable", err)
	}
}

func TestRescale(t *testing.T) {
	tests := []struct {
		raw     [3]int
		want    annotator.WDL
		wantErr bool
	}{
		{raw: [3]int{700, 200, 100}, want: annotator.WDL{Win: 700, Draw: 200, Loss: 100}},
		{raw: [3]int{1, 1, 1}, want: annotator.WDL{Win: 333, Draw: 334, Loss: 333}},
		{raw: [3]int{999, 0, 2}, want: annotator.WDL{Win: 998, Draw: 0, Loss: 2}},
		{raw: [3]int{0, 5, 0}, want: annotator.WDL{Win: 0, Draw: 1000, Loss: 0}},
		{raw: [3]int{0, 0, 0}, wantErr: true},
		{raw: [3]int{-1, 500, 501}, wantErr: true},
	}

	for _, tt := range tests {
		got, err := rescale(tt.raw)
		if (err != nil) != tt.wantErr {
			t.Errorf("rescale(%v) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			continue
		}
		if tt.wantErr {
			if !errors.Is(err, annotator.ErrEngineUnavailable) {
				t.Errorf("rescale(%v) error = %v, want ErrEngineUnavailable", tt.raw, err)
			}
			continue
		}
		if got != tt.want {
			t.Errorf("rescale(%v) = %v, want %v", tt.raw, got, tt.want)
		}
		if got.Win+got.Draw+got.Loss != annotator.WDLTotal {
			t.Errorf("rescale(%v) sums to %d", tt.raw, got.Win+got.Draw+got.Loss)
		}
	}
}

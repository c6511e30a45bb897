package analysis

import (
	"math"
	"testing"

	"github.com/discochess/annotator"
)

func TestWinProbability(t *testing.T) {
	if got := WinProbability(0); got != 50 {
		t.Errorf("WinProbability(0) = %f, want 50", got)
	}
	if got := WinProbability(1000); got < 97.5 || got > 97.6 {
		t.Errorf("WinProbability(1000) = %f, want ~97.55", got)
	}
	if WinProbability(5000) != WinProbability(1000) {
		t.Error("scores above the cap should saturate")
	}
	if got := WinProbability(-300) + WinProbability(300); math.Abs(got-100) > 1e-9 {
		t.Errorf("WinProbability is not symmetric: sum = %f", got)
	}

	prev := WinProbability(-2000)
	for cp := -1999.0; cp <= 2000; cp += 7 {
		cur := WinProbability(cp)
		if cur < prev {
			t.Fatalf("WinProbability(%v) = %f < previous %f", cp, cur, prev)
		}
		if cur < 0 || cur > 100 {
			t.Fatalf("WinProbability(%v) = %f out of range", cp, cur)
		}
		prev = cur
	}
}

func TestWinProbabilityFromScore(t *testing.T) {
	tests := []struct {
		score annotator.Score
		want  float64
	}{
		{annotator.Score{Centipawns: 0}, 50},
		{annotator.Score{Mate: 3}, WinProbability(MaxCentipawns)},
		{annotator.Score{Mate: -1, Centipawns: 50}, WinProbability(-MaxCentipawns)},
		{annotator.Score{Centipawns: 85}, WinProbability(85)},
	}
	for _, tt := range tests {
		if got := WinProbabilityFromScore(tt.score); got != tt.want {
			t.Errorf("WinProbabilityFromScore(%v) = %f, want %f", tt.score, got, tt.want)
		}
	}
}

func TestMoveAccuracy(t *testing.T) {
	tests := []struct {
		name          string
		before, after float64
		min, max      float64
	}{
		{"no change", 50, 50, 99.99, 100},
		{"improvement is clamped", 40, 60, 100, 100},
		{"twenty point drop", 60, 40, 39.5, 40.5},
		{"total collapse is clamped", 100, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MoveAccuracy(tt.before, tt.after)
			if got < tt.min || got > tt.max {
				t.Errorf("MoveAccuracy(%v, %v) = %f, want in [%v, %v]", tt.before, tt.after, got, tt.min, tt.max)
			}
		})
	}

	for before := 0.0; before <= 100; before += 5 {
		for after := 0.0; after <= 100; after += 5 {
			if got := MoveAccuracy(before, after); got < 0 || got > 100 {
				t.Fatalf("MoveAccuracy(%v, %v) = %f out of [0,100]", before, after, got)
			}
		}
	}
}

func TestSharpness(t *testing.T) {
	tests := []struct {
		name string
		wdl  annotator.WDL
		want float64
	}{
		{"white won", annotator.WDL{Win: 1000}, 0},
		{"black won", annotator.WDL{Loss: 1000}, 0},
		{"dead draw", annotator.WDL{Draw: 1000}, 0},
		{"negligible loss", annotator.WDL{Win: 400, Draw: 598, Loss: 2}, 0},
		{"no draw", annotator.WDL{Win: 500, Loss: 500}, MaxSharpness},
		{"balanced", annotator.WDL{Win: 300, Draw: 400, Loss: 300}, 1.3929},
		{"sharp", annotator.WDL{Win: 400, Draw: 200, Loss: 400}, 6.0826},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sharpness(tt.wdl)
			if math.Abs(got-tt.want) > 1e-3 {
				t.Errorf("Sharpness(%v) = %f, want %f", tt.wdl, got, tt.want)
			}
			if math.IsNaN(got) || got < 0 {
				t.Errorf("Sharpness(%v) = %f, want non-negative", tt.wdl, got)
			}
		})
	}
}

func TestSharpness_GrowsAsDrawShrinks(t *testing.T) {
	prev := 0.0
	for draw := 900; draw >= 100; draw -= 100 {
		side := (annotator.WDLTotal - draw) / 2
		got := Sharpness(annotator.WDL{Win: side, Draw: draw, Loss: side})
		if got <= prev {
			t.Fatalf("Sharpness with draw %d = %f, want > %f", draw, got, prev)
		}
		prev = got
	}
}

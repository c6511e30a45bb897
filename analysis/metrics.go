// Package analysis turns annotated games into per-move and per-game metrics:
// win probability, move accuracy and sharpness, plus the summary statistics
// the report command prints.
package analysis

import (
	"math"

	"github.com/discochess/annotator"
)

const (
	// winProbabilitySlope is the logistic coefficient fitted to game outcomes.
	winProbabilitySlope = 0.00368208

	// MaxCentipawns bounds the scores fed to WinProbability. Mates map to it.
	MaxCentipawns = 1000

	// MaxSharpness caps Sharpness for positions with (almost) no draw chance.
	MaxSharpness = 1000

	// negligible is the per mille at or below which a result is ignored by
	// Sharpness.
	negligible = 2
)

// WinProbability maps a centipawn score to White's winning chances in [0,100].
// WinProbability(0) is 50.
func WinProbability(cp float64) float64 {
	cp = math.Max(-MaxCentipawns, math.Min(MaxCentipawns, cp))
	return 50 + 50*(2/(1+math.Exp(-winProbabilitySlope*cp))-1)
}

// WinProbabilityFromScore is WinProbability with forced mates treated as the
// largest possible advantage.
func WinProbabilityFromScore(s annotator.Score) float64 {
	switch {
	case s.Mate > 0:
		return WinProbability(MaxCentipawns)
	case s.Mate < 0:
		return WinProbability(-MaxCentipawns)
	}
	return WinProbability(s.Centipawns)
}

// MoveAccuracy scores a move from the mover's win probability before and after
// it. The result is clamped to [0,100]; moves that improve the mover's chances
// score 100.
func MoveAccuracy(before, after float64) float64 {
	acc := 103.1668*math.Exp(-0.04354*(before-after)) - 3.1669
	return math.Max(0, math.Min(100, acc))
}

// Sharpness measures how decisive a position is: it grows as win and loss both
// rise at the expense of draw. Positions where either side's result is
// negligible have sharpness 0.
func Sharpness(wdl annotator.WDL) float64 {
	if wdl.Win <= negligible || wdl.Loss <= negligible {
		return 0
	}
	w := clampProbability(float64(wdl.Win) / annotator.WDLTotal)
	l := clampProbability(float64(wdl.Loss) / annotator.WDLTotal)

	denom := math.Log(1/w-1) + math.Log(1/l-1)
	if denom <= 0 {
		return MaxSharpness
	}
	return math.Min(MaxSharpness, math.Pow(2/denom, 2))
}

func clampProbability(p float64) float64 {
	return math.Max(0.0001, math.Min(0.9999, p))
}

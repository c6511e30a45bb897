package analysis

import (
	"fmt"
	"strings"

	"github.com/discochess/annotator"
	"github.com/discochess/annotator/internal/fen"
)

// Color is the side that played a move.
type Color int

const (
	White Color = iota
	Black
)

func (c Color) String() string {
	if c == Black {
		return "black"
	}
	return "white"
}

// MoveMetrics describes one move from the mover's point of view.
type MoveMetrics struct {
	Ply   int
	SAN   string
	Mover Color

	// Scored is false when either side of the move lacks a scalar evaluation;
	// the probability and accuracy fields are then zero.
	Scored    bool
	WinBefore float64
	WinAfter  float64
	Accuracy  float64
	Sharpness float64
	HasWDL    bool
	WDLAfter  annotator.WDL
}

// GameMetrics aggregates the moves of one annotated game.
type GameMetrics struct {
	RunID   string
	Headers map[string]string
	Moves   []MoveMetrics

	WhiteAccuracy Summary
	BlackAccuracy Summary
	Sharpness     Summary
}

// Accuracy returns the per-side accuracy summary.
func (g *GameMetrics) Accuracy(c Color) Summary {
	if c == Black {
		return g.BlackAccuracy
	}
	return g.WhiteAccuracy
}

// AnalyzeGame computes move and game metrics. Incomplete games are analyzed up
// to the last annotated move.
func AnalyzeGame(g *annotator.AnnotatedGame) (*GameMetrics, error) {
	side, err := fen.SideToMove(g.InitialFEN)
	if err != nil {
		return nil, fmt.Errorf("game %s: initial position: %w", g.RunID, err)
	}
	mover := White
	if side == "b" {
		mover = Black
	}

	out := &GameMetrics{
		RunID:   g.RunID,
		Headers: g.Headers,
		Moves:   make([]MoveMetrics, 0, len(g.Moves)),
	}

	var white, black, sharp []float64
	before, haveBefore := whiteChances(g.Initial)
	for _, m := range g.Moves {
		mm := MoveMetrics{Ply: m.Ply, SAN: m.SAN, Mover: mover}

		after, haveAfter := whiteChances(m.Annotation)
		if m.Terminal {
			after, haveAfter = terminalChances(m.SAN, mover), true
		}
		if haveBefore && haveAfter {
			mm.Scored = true
			mm.WinBefore, mm.WinAfter = before, after
			if mover == Black {
				mm.WinBefore, mm.WinAfter = 100-before, 100-after
			}
			mm.Accuracy = MoveAccuracy(mm.WinBefore, mm.WinAfter)
			if mover == White {
				white = append(white, mm.Accuracy)
			} else {
				black = append(black, mm.Accuracy)
			}
		}
		if m.Annotation.WDL != nil {
			mm.HasWDL = true
			mm.WDLAfter = *m.Annotation.WDL
			mm.Sharpness = Sharpness(mm.WDLAfter)
			sharp = append(sharp, mm.Sharpness)
		}

		out.Moves = append(out.Moves, mm)
		before, haveBefore = after, haveAfter
		mover = 1 - mover
	}

	out.WhiteAccuracy = Summarize(white)
	out.BlackAccuracy = Summarize(black)
	out.Sharpness = Summarize(sharp)
	return out, nil
}

func whiteChances(a annotator.Annotation) (float64, bool) {
	if a.Score == nil {
		return 0, false
	}
	return WinProbabilityFromScore(*a.Score), true
}

// terminalChances scores a position with no evaluation: mate is won for the
// side that delivered it and anything else is drawn.
func terminalChances(san string, mover Color) float64 {
	if !strings.HasSuffix(san, "#") {
		return 50
	}
	if mover == White {
		return WinProbability(MaxCentipawns)
	}
	return WinProbability(-MaxCentipawns)
}

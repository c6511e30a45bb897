package annotator

import (
	"fmt"
	"math"
	"strconv"
)

// WDLTotal is the fixed sum of a win/draw/loss distribution, in per mille.
const WDLTotal = 1000

// WDL is a win/draw/loss distribution from White's point of view, in per mille.
type WDL struct {
	Win  int `json:"w"`
	Draw int `json:"d"`
	Loss int `json:"l"`
}

// Valid reports whether all components are non-negative and sum to WDLTotal.
func (w WDL) Valid() bool {
	return w.Win >= 0 && w.Draw >= 0 && w.Loss >= 0 && w.Win+w.Draw+w.Loss == WDLTotal
}

// String returns the "[W,D,L]" form.
func (w WDL) String() string {
	return "[" + strconv.Itoa(w.Win) + "," + strconv.Itoa(w.Draw) + "," + strconv.Itoa(w.Loss) + "]"
}

// Score is a scalar evaluation from White's point of view.
type Score struct {
	// Centipawns is the advantage in hundredths of a pawn. Zero when Mate is set.
	Centipawns float64 `json:"cp"`

	// Mate is the distance to a forced mate in moves. Positive values mean White
	// mates, negative values mean Black mates, zero means no forced mate.
	Mate int `json:"mate,omitempty"`
}

// IsMate reports whether the score is a forced mate.
func (s Score) IsMate() bool {
	return s.Mate != 0
}

// String returns the centipawn value in shortest decimal form, or "#N" for mates.
func (s Score) String() string {
	if s.IsMate() {
		return "#" + strconv.Itoa(s.Mate)
	}
	return strconv.FormatFloat(s.Centipawns, 'f', -1, 64)
}

// Record is the cached evaluation of one position. Each half is independently
// present or absent; its budget is the quality marker.
type Record struct {
	// Nodes is the node budget that produced WDL. Zero means the probabilistic
	// half is absent.
	Nodes int64
	WDL   WDL

	// Depth is the depth budget that produced Score. Zero means the scalar half
	// is absent.
	Depth int
	Score Score

	// PrincipalLine is the best line in UCI notation, if known.
	PrincipalLine string
}

// HasWDL reports whether the probabilistic half is present.
func (r Record) HasWDL() bool { return r.Nodes > 0 }

// HasScore reports whether the scalar half is present.
func (r Record) HasScore() bool { return r.Depth > 0 }

// IsEmpty reports whether neither half is present.
func (r Record) IsEmpty() bool { return !r.HasWDL() && !r.HasScore() }

// Validate checks that present halves hold legal values.
func (r Record) Validate() error {
	if r.Nodes < 0 || r.Depth < 0 {
		return fmt.Errorf("annotator: negative budget (nodes %d, depth %d)", r.Nodes, r.Depth)
	}
	if r.HasWDL() && !r.WDL.Valid() {
		return fmt.Errorf("annotator: invalid wdl %s", r.WDL)
	}
	if r.HasScore() && (math.IsNaN(r.Score.Centipawns) || math.IsInf(r.Score.Centipawns, 0)) {
		return fmt.Errorf("annotator: invalid score %v", r.Score.Centipawns)
	}
	if r.HasScore() && r.Score.IsMate() && r.Score.Centipawns != 0 {
		return fmt.Errorf("annotator: mate score #%d carries centipawns %v", r.Score.Mate, r.Score.Centipawns)
	}
	return nil
}

// Annotation projects the present halves into an Annotation.
func (r Record) Annotation() Annotation {
	var a Annotation
	if r.HasWDL() {
		w := r.WDL
		a.WDL = &w
	}
	if r.HasScore() {
		s := r.Score
		a.Score = &s
	}
	return a
}

package annotator

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrMalformedAnnotation indicates an annotation string that does not follow the
// "[W,D,L];S" format.
var ErrMalformedAnnotation = errors.New("annotator: malformed annotation")

// Annotation is the textual evaluation attached to a move. Nil halves are absent.
//
// The encoded form is "[W,D,L];S", "[W,D,L]", "S" or the empty string, where S is
// a decimal centipawn score or "#N" for a mate in N.
type Annotation struct {
	WDL   *WDL
	Score *Score
}

// IsEmpty reports whether both halves are absent.
func (a Annotation) IsEmpty() bool {
	return a.WDL == nil && a.Score == nil
}

// String encodes the annotation.
func (a Annotation) String() string {
	var b strings.Builder
	if a.WDL != nil {
		b.WriteString(a.WDL.String())
	}
	if a.Score != nil {
		if a.WDL != nil {
			b.WriteByte(';')
		}
		b.WriteString(a.Score.String())
	}
	return b.String()
}

// Equal reports whether two annotations hold the same values.
func (a Annotation) Equal(b Annotation) bool {
	if (a.WDL == nil) != (b.WDL == nil) || (a.Score == nil) != (b.Score == nil) {
		return false
	}
	if a.WDL != nil && *a.WDL != *b.WDL {
		return false
	}
	return a.Score == nil || *a.Score == *b.Score
}

// MarshalText implements encoding.TextMarshaler.
func (a Annotation) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler with ParseAnnotation.
func (a *Annotation) UnmarshalText(text []byte) error {
	parsed, err := ParseAnnotation(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAnnotation decodes an annotation string. It accepts exactly the forms
// String produces; anything else is an error wrapping ErrMalformedAnnotation.
func ParseAnnotation(s string) (Annotation, error) {
	var a Annotation
	if s == "" {
		return a, nil
	}

	rest := s
	if strings.HasPrefix(rest, "[") {
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return Annotation{}, malformed(s, "unterminated wdl")
		}
		w, err := parseWDL(rest[1:end])
		if err != nil {
			return Annotation{}, malformed(s, err.Error())
		}
		a.WDL = &w
		rest = rest[end+1:]
		if rest == "" {
			return a, nil
		}
		if rest[0] != ';' || len(rest) == 1 {
			return Annotation{}, malformed(s, "expected ;score after wdl")
		}
		rest = rest[1:]
	}

	sc, err := parseScore(rest)
	if err != nil {
		return Annotation{}, malformed(s, err.Error())
	}
	a.Score = &sc
	return a, nil
}

func malformed(s, reason string) error {
	return fmt.Errorf("%w: %q: %s", ErrMalformedAnnotation, s, reason)
}

func parseWDL(s string) (WDL, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return WDL{}, errors.New("wdl needs three components")
	}
	var v [3]int
	for i, p := range parts {
		if !isDigits(p) {
			return WDL{}, fmt.Errorf("wdl component %q is not a non-negative integer", p)
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return WDL{}, err
		}
		v[i] = n
	}
	w := WDL{Win: v[0], Draw: v[1], Loss: v[2]}
	if !w.Valid() {
		return WDL{}, fmt.Errorf("wdl does not sum to %d", WDLTotal)
	}
	return w, nil
}

func parseScore(s string) (Score, error) {
	if strings.HasPrefix(s, "#") {
		body := strings.TrimPrefix(s[1:], "-")
		if !isDigits(body) {
			return Score{}, fmt.Errorf("mate distance %q is not an integer", s[1:])
		}
		n, err := strconv.Atoi(s[1:])
		if err != nil {
			return Score{}, err
		}
		if n == 0 {
			return Score{}, errors.New("mate distance is zero")
		}
		return Score{Mate: n}, nil
	}

	whole, frac, hasFrac := strings.Cut(strings.TrimPrefix(s, "-"), ".")
	if !isDigits(whole) || (hasFrac && !isDigits(frac)) {
		return Score{}, fmt.Errorf("score %q is not a decimal number", s)
	}
	cp, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(cp, 0) {
		return Score{}, fmt.Errorf("score %q out of range", s)
	}
	return Score{Centipawns: cp}, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

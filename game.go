package annotator

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/notnil/chess"
)

// Ply is one move of a game together with the position it reaches.
type Ply struct {
	Number   int // 1-based half-move index
	SAN      string
	UCI      string
	Position *chess.Position
}

// MoveSource yields the moves of one game in order. Next returns io.EOF after
// the last move.
type MoveSource interface {
	Headers() map[string]string
	Start() *chess.Position
	Next() (Ply, error)
}

// GameSource is a MoveSource over a parsed game.
type GameSource struct {
	headers   map[string]string
	moves     []*chess.Move
	positions []*chess.Position
	next      int
}

var _ MoveSource = (*GameSource)(nil)

// NewGameSource walks g from its starting position.
func NewGameSource(g *chess.Game) *GameSource {
	headers := make(map[string]string)
	for _, tp := range g.TagPairs() {
		headers[tp.Key] = tp.Value
	}
	return &GameSource{
		headers:   headers,
		moves:     g.Moves(),
		positions: g.Positions(),
	}
}

// Headers returns the PGN tag pairs.
func (s *GameSource) Headers() map[string]string { return s.headers }

// Start returns the position before the first move.
func (s *GameSource) Start() *chess.Position { return s.positions[0] }

// Next returns the next ply.
func (s *GameSource) Next() (Ply, error) {
	if s.next >= len(s.moves) {
		return Ply{}, io.EOF
	}
	i := s.next
	s.next++
	m, before := s.moves[i], s.positions[i]
	return Ply{
		Number:   i + 1,
		SAN:      chess.AlgebraicNotation{}.Encode(before, m),
		UCI:      chess.UCINotation{}.Encode(before, m),
		Position: s.positions[i+1],
	}, nil
}

// ReadPGN parses every game in r.
func ReadPGN(r io.Reader) ([]*GameSource, error) {
	var sources []*GameSource
	scanner := chess.NewScanner(r)
	for scanner.Scan() {
		sources = append(sources, NewGameSource(scanner.Next()))
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return sources, fmt.Errorf("reading PGN game %d: %w", len(sources)+1, err)
	}
	return sources, nil
}

// ParsePGN parses a single game.
func ParsePGN(pgn string) (*GameSource, error) {
	opt, err := chess.PGN(strings.NewReader(pgn))
	if err != nil {
		return nil, fmt.Errorf("parsing PGN: %w", err)
	}
	return NewGameSource(chess.NewGame(opt)), nil
}

// AnnotatedMove is one emitted ply.
type AnnotatedMove struct {
	Ply        int        `json:"ply"`
	SAN        string     `json:"san"`
	UCI        string     `json:"uci"`
	FEN        string     `json:"fen"`
	Annotation Annotation `json:"annotation"`
	Terminal   bool       `json:"terminal,omitempty"`
}

// AnnotatedGame is the output of one pipeline run. When Incomplete is set the
// moves stop at the first ply that could not be annotated and Error says why.
type AnnotatedGame struct {
	RunID      string            `json:"run_id"`
	Headers    map[string]string `json:"headers,omitempty"`
	InitialFEN string            `json:"initial_fen"`
	Initial    Annotation        `json:"initial"`
	Moves      []AnnotatedMove   `json:"moves"`
	Incomplete bool              `json:"incomplete,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// WriteJSON writes the game as one JSON line.
func (g *AnnotatedGame) WriteJSON(w io.Writer) error {
	data, err := json.Marshal(g)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// ReadAnnotatedGames decodes JSON lines written by WriteJSON. Malformed
// annotations fail with ErrMalformedAnnotation.
func ReadAnnotatedGames(r io.Reader) ([]*AnnotatedGame, error) {
	var games []*AnnotatedGame
	dec := json.NewDecoder(r)
	for {
		var g AnnotatedGame
		err := dec.Decode(&g)
		if err == io.EOF {
			return games, nil
		}
		if err != nil {
			return games, fmt.Errorf("decoding game %d: %w", len(games)+1, err)
		}
		games = append(games, &g)
	}
}

// WritePGN writes the game in PGN with each annotation as a move comment. An
// incomplete game gets an Annotator tag and a "*" result.
func (g *AnnotatedGame) WritePGN(w io.Writer) error {
	var b strings.Builder

	keys := make([]string, 0, len(g.Headers))
	for k := range g.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	result := g.Headers["Result"]
	if g.Incomplete || result == "" {
		result = "*"
	}
	for _, k := range keys {
		v := g.Headers[k]
		if k == "Result" {
			v = result
		}
		fmt.Fprintf(&b, "[%s %q]\n", k, v)
	}
	if g.Incomplete {
		fmt.Fprintf(&b, "[Annotator %q]\n", "incomplete: "+g.Error)
	}
	b.WriteByte('\n')

	if !g.Initial.IsEmpty() {
		fmt.Fprintf(&b, "{%s} ", g.Initial)
	}
	needNumber := true
	for _, m := range g.Moves {
		switch {
		case m.Ply%2 == 1:
			fmt.Fprintf(&b, "%d. ", (m.Ply+1)/2)
		case needNumber:
			fmt.Fprintf(&b, "%d... ", m.Ply/2)
		}
		b.WriteString(m.SAN)
		b.WriteByte(' ')
		needNumber = !m.Annotation.IsEmpty()
		if needNumber {
			fmt.Fprintf(&b, "{%s} ", m.Annotation)
		}
	}
	b.WriteString(result)
	b.WriteString("\n\n")

	_, err := io.WriteString(w, b.String())
	return err
}

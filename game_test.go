package annotator

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestReadPGN(t *testing.T) {
	sources, err := ReadPGN(strings.NewReader(foolsMate + "\n" + italian))
	if err != nil {
		t.Fatalf("ReadPGN() error = %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("ReadPGN() = %d games, want 2", len(sources))
	}
	if got := sources[0].Headers()["White"]; got != "Fool" {
		t.Errorf("White = %q, want Fool", got)
	}
}

func TestGameSource_Next(t *testing.T) {
	src := mustParsePGN(t, foolsMate)

	want := []struct{ san, uci string }{
		{"f3", "f2f3"},
		{"e5", "e7e5"},
		{"g4", "g2g4"},
		{"Qh4#", "d8h4"},
	}
	for i, w := range want {
		ply, err := src.Next()
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if ply.Number != i+1 || ply.SAN != w.san || ply.UCI != w.uci {
			t.Errorf("ply %d = %d %s %s, want %s %s", i+1, ply.Number, ply.SAN, ply.UCI, w.san, w.uci)
		}
	}
	if _, err := src.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next() after last move error = %v, want io.EOF", err)
	}
}

func TestAnnotatedGame_JSONRoundTrip(t *testing.T) {
	a, _ := newTestAnnotator(t, &fakeEngine{})
	game, err := a.AnnotateGame(context.Background(), mustParsePGN(t, foolsMate))
	if err != nil {
		t.Fatalf("AnnotateGame() error = %v", err)
	}

	var buf bytes.Buffer
	if err := game.WriteJSON(&buf); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	if err := game.WriteJSON(&buf); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}

	games, err := ReadAnnotatedGames(&buf)
	if err != nil {
		t.Fatalf("ReadAnnotatedGames() error = %v", err)
	}
	if len(games) != 2 {
		t.Fatalf("games = %d, want 2", len(games))
	}
	got := games[0]
	if got.RunID != game.RunID || len(got.Moves) != len(game.Moves) {
		t.Fatalf("decoded game = %+v", got)
	}
	for i := range got.Moves {
		if !got.Moves[i].Annotation.Equal(game.Moves[i].Annotation) {
			t.Errorf("move %d annotation = %q, want %q", i+1, got.Moves[i].Annotation, game.Moves[i].Annotation)
		}
	}
	if !got.Moves[3].Terminal {
		t.Error("terminal flag lost")
	}
}

func TestReadAnnotatedGames_Malformed(t *testing.T) {
	in := `{"run_id":"x","initial":"","moves":[{"ply":1,"san":"e4","uci":"e2e4","annotation":"[1,2,3];5"}]}`
	_, err := ReadAnnotatedGames(strings.NewReader(in))
	if !errors.Is(err, ErrMalformedAnnotation) {
		t.Errorf("ReadAnnotatedGames() error = %v, want ErrMalformedAnnotation", err)
	}
}

func TestAnnotatedGame_WritePGN(t *testing.T) {
	game := &AnnotatedGame{
		Headers: map[string]string{"White": "A", "Black": "B", "Result": "1-0"},
		Initial: Annotation{Score: cpPtr(20)},
		Moves: []AnnotatedMove{
			{Ply: 1, SAN: "e4", Annotation: Annotation{WDL: wdlPtr(700, 200, 100), Score: cpPtr(85)}},
			{Ply: 2, SAN: "e5"},
			{Ply: 3, SAN: "Nf3", Annotation: Annotation{Score: matePtr(4)}},
			{Ply: 4, SAN: "Nc6", Annotation: Annotation{Score: cpPtr(-3)}},
		},
	}

	var buf bytes.Buffer
	if err := game.WritePGN(&buf); err != nil {
		t.Fatalf("WritePGN() error = %v", err)
	}
	want := `[Black "B"]
[Result "1-0"]
[White "A"]

{20} 1. e4 {[700,200,100];85} 1... e5 2. Nf3 {#4} 2... Nc6 {-3} 1-0

`
	if got := buf.String(); got != want {
		t.Errorf("WritePGN() =\n%s\nwant\n%s", got, want)
	}
}

func TestAnnotatedGame_WritePGNIncomplete(t *testing.T) {
	game := &AnnotatedGame{
		Headers:    map[string]string{"Result": "1-0"},
		Moves:      []AnnotatedMove{{Ply: 1, SAN: "d4"}},
		Incomplete: true,
		Error:      "engine unavailable",
	}

	var buf bytes.Buffer
	if err := game.WritePGN(&buf); err != nil {
		t.Fatalf("WritePGN() error = %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `[Result "*"]`) || !strings.Contains(out, `[Annotator "incomplete: engine unavailable"]`) {
		t.Errorf("WritePGN() = %q, want incomplete markers", out)
	}
	if !strings.HasSuffix(out, "1. d4 *\n\n") {
		t.Errorf("WritePGN() movetext = %q", out)
	}
}

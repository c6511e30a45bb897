package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/discochess/annotator"
	"github.com/discochess/annotator/internal/store/memstore"
)

const start = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

type fakeScalar struct {
	err error
}

func (f *fakeScalar) EvaluateScalar(_ context.Context, _ string, depth int) (*annotator.ScalarEvaluation, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &annotator.ScalarEvaluation{Score: annotator.Score{Centipawns: 25}, DepthReached: depth}, nil
}

func newTestAnnotator(t *testing.T, scalar annotator.ScalarEvaluator) *annotator.Annotator {
	t.Helper()
	a, err := annotator.New(
		annotator.WithStore(memstore.New()),
		annotator.WithScalarEvaluator(scalar),
		annotator.WithDepth(10),
	)
	if err != nil {
		t.Fatalf("annotator.New() error = %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealth(t *testing.T) {
	h := New(newTestAnnotator(t, &fakeScalar{}).Cache())
	rec := get(t, h, "/healthz")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestLookup(t *testing.T) {
	a := newTestAnnotator(t, &fakeScalar{})
	cache := a.Cache()
	fp, err := annotator.Fingerprint(start)
	if err != nil {
		t.Fatal(err)
	}
	stored := annotator.Record{Depth: 18, Score: annotator.Score{Centipawns: 31}, PrincipalLine: "e2e4 e7e5"}
	if err := cache.Put(context.Background(), fp, stored); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	h := New(cache)

	t.Run("hit", func(t *testing.T) {
		rec := get(t, h, "/v1/lookup?fen="+url.QueryEscape(start))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
		}
		var resp LookupResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decoding: %v", err)
		}
		if !resp.Found || resp.Fingerprint != fp {
			t.Errorf("resp = %+v, want found %q", resp, fp)
		}
		if got := resp.Annotation.String(); got != "31" {
			t.Errorf("Annotation = %q, want 31", got)
		}
		if resp.Depth != 18 || resp.PrincipalLine != "e2e4 e7e5" {
			t.Errorf("Depth, PV = %d, %q", resp.Depth, resp.PrincipalLine)
		}
	})

	t.Run("move counters ignored", func(t *testing.T) {
		other := strings.TrimSuffix(start, "0 1") + "7 30"
		rec := get(t, h, "/v1/lookup?fen="+url.QueryEscape(other))
		var resp LookupResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decoding: %v", err)
		}
		if !resp.Found {
			t.Error("Found = false, want true")
		}
	})

	t.Run("miss", func(t *testing.T) {
		miss := "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1"
		rec := get(t, h, "/v1/lookup?fen="+url.QueryEscape(miss))
		var resp LookupResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decoding: %v", err)
		}
		if resp.Found || !resp.Annotation.IsEmpty() {
			t.Errorf("resp = %+v, want a miss", resp)
		}
	})

	for _, target := range []string{"/v1/lookup", "/v1/lookup?fen=not+a+fen"} {
		t.Run("bad request "+target, func(t *testing.T) {
			if rec := get(t, h, target); rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestAnnotate(t *testing.T) {
	pgn := `[White "A"]
[Black "B"]

1. e4 e5 2. Nf3 *`

	t.Run("complete", func(t *testing.T) {
		a := newTestAnnotator(t, &fakeScalar{})
		h := New(a.Cache(), WithAnnotator(a))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/annotate", strings.NewReader(pgn)))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
		}
		var game annotator.AnnotatedGame
		if err := json.NewDecoder(rec.Body).Decode(&game); err != nil {
			t.Fatalf("decoding: %v", err)
		}
		if len(game.Moves) != 3 || game.Incomplete {
			t.Errorf("moves = %d, incomplete = %v; want 3, false", len(game.Moves), game.Incomplete)
		}
		if game.Headers["White"] != "A" {
			t.Errorf("Headers = %v", game.Headers)
		}
	})

	t.Run("engine failure", func(t *testing.T) {
		broken := &fakeScalar{err: fmt.Errorf("%w: exited", annotator.ErrEngineUnavailable)}
		a := newTestAnnotator(t, broken)
		h := New(a.Cache(), WithAnnotator(a))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/annotate", strings.NewReader(pgn)))
		if rec.Code != http.StatusBadGateway {
			t.Fatalf("status = %d, want 502", rec.Code)
		}
		var game annotator.AnnotatedGame
		if err := json.NewDecoder(rec.Body).Decode(&game); err != nil {
			t.Fatalf("decoding: %v", err)
		}
		if !game.Incomplete || game.Error == "" {
			t.Errorf("game = %+v, want incomplete with an error", game)
		}
	})

	t.Run("disabled without annotator", func(t *testing.T) {
		a := newTestAnnotator(t, &fakeScalar{})
		h := New(a.Cache())
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/annotate", strings.NewReader(pgn)))
		if rec.Code == http.StatusOK {
			t.Errorf("status = %d, want an error status", rec.Code)
		}
	})
}

func TestMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "annotator_test_total", Help: "test"})
	registry.MustRegister(counter)
	counter.Add(3)

	h := New(newTestAnnotator(t, &fakeScalar{}).Cache(), WithMetrics(registry))
	rec := get(t, h, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "annotator_test_total 3") {
		t.Errorf("body missing counter:\n%s", rec.Body)
	}

	if rec := get(t, New(newTestAnnotator(t, &fakeScalar{}).Cache()), "/metrics"); rec.Code != http.StatusNotFound {
		t.Errorf("status without metrics = %d, want 404", rec.Code)
	}
}

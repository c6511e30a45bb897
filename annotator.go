// Package annotator annotates chess games with engine evaluations, caching every
// evaluated position so that positions shared between games are searched once.
//
// Each position gets two independent evaluations: a win/draw/loss distribution
// from a probabilistic engine and a centipawn score from a scalar engine. Both
// are stored per position fingerprint and emitted as a move comment of the form
// "[W,D,L];S".
//
// Example usage:
//
//	dataDir, err := annotator.WithDataDir("/var/lib/annotator")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	a, err := annotator.New(
//	    dataDir,
//	    annotator.WithScalarEvaluator(scalar),
//	    annotator.WithProbabilisticEvaluator(wdl),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer a.Close()
//
//	game, err := a.AnnotateGame(ctx, src)
package annotator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/notnil/chess"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/discochess/annotator/internal/stats"
	"github.com/discochess/annotator/internal/store"
)

// Sentinel errors for well-defined error conditions.
var (
	// ErrClosed indicates the annotator has been closed.
	ErrClosed = errors.New("annotator: closed")

	// ErrNoStore indicates no store was provided.
	ErrNoStore = errors.New("annotator: no store provided")

	// ErrMalformedRecord marks a stored record that could not be decoded or
	// violates the record invariants. Reads treat such records as absent.
	ErrMalformedRecord = store.ErrMalformedRecord
)

// Annotator runs the annotation pipeline over games. It shares one cache and
// one pair of evaluators between all games and is safe for concurrent use.
type Annotator struct {
	cache         *Cache
	scalar        ScalarEvaluator
	probabilistic ProbabilisticEvaluator
	depth         int
	nodes         int64
	stats         stats.Collector
	logger        *zap.Logger
	closed        atomic.Bool
}

// New creates a new Annotator with the given options. WithStore or WithDataDir
// is required.
func New(opts ...Option) (*Annotator, error) {
	cfg := defaultOptions()
	for _, opt := range opts {
		opt.apply(&cfg)
	}

	if cfg.depth <= 0 || cfg.nodes <= 0 {
		return nil, fmt.Errorf("annotator: budgets must be positive (depth %d, nodes %d)", cfg.depth, cfg.nodes)
	}
	cache, err := newCache(cfg)
	if err != nil {
		return nil, err
	}

	a := &Annotator{
		cache:         cache,
		scalar:        cfg.scalar,
		probabilistic: cfg.probabilistic,
		depth:         cfg.depth,
		nodes:         cfg.nodes,
		stats:         cfg.stats,
		logger:        cfg.logger,
	}

	a.logger.Debug("annotator initialized",
		zap.Int("depth", a.depth),
		zap.Int64("nodes", a.nodes),
		zap.Stringer("policy", cache.policy),
		zap.Int("lockStripes", len(cache.stripes)),
		zap.Bool("scalar", a.scalar != nil),
		zap.Bool("probabilistic", a.probabilistic != nil),
	)

	return a, nil
}

// Cache returns the evaluation cache.
func (a *Annotator) Cache() *Cache {
	return a.cache
}

// AnnotateGame annotates the starting position and every move of src, in order.
//
// If an evaluation fails, or ctx is cancelled between moves, the returned game
// holds the moves annotated so far, is marked Incomplete, and the error is
// returned alongside it. Nothing is cached for the ply that failed.
func (a *Annotator) AnnotateGame(ctx context.Context, src MoveSource) (*AnnotatedGame, error) {
	if a.closed.Load() {
		return nil, ErrClosed
	}

	game := &AnnotatedGame{
		RunID:   uuid.NewString(),
		Headers: src.Headers(),
	}
	logger := a.logger.With(zap.String("run_id", game.RunID))
	logger.Debug("annotating game",
		zap.String("white", game.Headers["White"]),
		zap.String("black", game.Headers["Black"]),
	)

	fail := func(err error) (*AnnotatedGame, error) {
		game.Incomplete = true
		game.Error = err.Error()
		a.stats.IncCounter(stats.MetricGamesFailed, 1)
		logger.Warn("game incomplete", zap.Int("plies", len(game.Moves)), zap.Error(err))
		return game, err
	}

	start := src.Start()
	game.InitialFEN = start.String()
	ann, _, err := a.annotatePosition(ctx, start)
	if err != nil {
		return fail(fmt.Errorf("annotating initial position: %w", err))
	}
	game.Initial = ann

	for {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		ply, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fail(fmt.Errorf("reading ply %d: %w", len(game.Moves)+1, err))
		}

		ann, terminal, err := a.annotatePosition(ctx, ply.Position)
		if err != nil {
			return fail(fmt.Errorf("annotating ply %d (%s): %w", ply.Number, ply.SAN, err))
		}
		game.Moves = append(game.Moves, AnnotatedMove{
			Ply:        ply.Number,
			SAN:        ply.SAN,
			UCI:        ply.UCI,
			FEN:        ply.Position.String(),
			Annotation: ann,
			Terminal:   terminal,
		})
		a.stats.IncCounter(stats.MetricMovesAnnotated, 1)
	}

	a.stats.IncCounter(stats.MetricGamesAnnotated, 1)
	logger.Debug("game annotated", zap.Int("plies", len(game.Moves)))
	return game, nil
}

// AnnotateGames annotates independent games with up to workers games in flight.
// Results are in input order; a failed game is returned incomplete and its
// error is joined into the returned error.
func (a *Annotator) AnnotateGames(ctx context.Context, sources []MoveSource, workers int) ([]*AnnotatedGame, error) {
	if a.closed.Load() {
		return nil, ErrClosed
	}
	if workers < 1 {
		workers = 1
	}

	games := make([]*AnnotatedGame, len(sources))
	errs := make([]error, len(sources))

	var g errgroup.Group
	g.SetLimit(workers)
	for i, src := range sources {
		g.Go(func() error {
			game, err := a.AnnotateGame(ctx, src)
			games[i] = game
			if err != nil {
				errs[i] = fmt.Errorf("game %d: %w", i+1, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return games, errors.Join(errs...)
}

// annotatePosition is the per-position state machine: look up the cache, search
// whichever halves the merge policy would still accept, merge the fresh halves
// back, and emit what the cache then holds. Terminal positions are never
// searched and emit nothing.
func (a *Annotator) annotatePosition(ctx context.Context, pos *chess.Position) (Annotation, bool, error) {
	if isTerminal(pos) {
		a.stats.IncCounter(stats.MetricTerminalPlies, 1)
		return Annotation{}, true, nil
	}

	position := pos.String()
	fp, err := Fingerprint(position)
	if err != nil {
		return Annotation{}, false, err
	}

	cached, _, err := a.cache.Get(ctx, fp)
	if err != nil {
		a.logger.Warn("cache read failed, treating as miss", zap.String("fingerprint", fp), zap.Error(err))
		cached = Record{}
	}

	needWDL := a.probabilistic != nil && a.cache.wants(cached.Nodes, a.nodes)
	needScore := a.scalar != nil && a.cache.wants(int64(cached.Depth), int64(a.depth))
	if !needWDL && !needScore {
		return cached.Annotation(), false, nil
	}

	var fresh Record
	g, gctx := errgroup.WithContext(ctx)
	if needWDL {
		g.Go(func() error {
			ev, err := a.evaluateProbabilistic(gctx, position)
			if err != nil || ev == nil {
				return err
			}
			fresh.Nodes, fresh.WDL = a.nodes, ev.WDL
			return nil
		})
	}
	if needScore {
		g.Go(func() error {
			ev, err := a.evaluateScalar(gctx, position)
			if err != nil || ev == nil {
				return err
			}
			fresh.Depth, fresh.Score, fresh.PrincipalLine = a.depth, ev.Score, ev.PrincipalLine
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Annotation{}, false, err
	}

	if fresh.IsEmpty() {
		return cached.Annotation(), false, nil
	}
	stored, err := a.cache.MergeUpdate(ctx, fp, fresh)
	if err != nil {
		return Annotation{}, false, err
	}
	return stored.Annotation(), false, nil
}

func (a *Annotator) evaluateScalar(ctx context.Context, position string) (*ScalarEvaluation, error) {
	start := time.Now()
	a.stats.IncCounter(stats.MetricEngineCalls, 1)
	ev, err := a.scalar.EvaluateScalar(ctx, position, a.depth)
	a.stats.ObserveHistogram(stats.MetricEngineLatency, time.Since(start).Seconds())
	if err != nil {
		a.stats.IncCounter(stats.MetricEngineFailures, 1)
		return nil, fmt.Errorf("scalar evaluation: %w", err)
	}
	return ev, nil
}

func (a *Annotator) evaluateProbabilistic(ctx context.Context, position string) (*ProbabilisticEvaluation, error) {
	start := time.Now()
	a.stats.IncCounter(stats.MetricEngineCalls, 1)
	ev, err := a.probabilistic.EvaluateProbabilistic(ctx, position, a.nodes)
	a.stats.ObserveHistogram(stats.MetricEngineLatency, time.Since(start).Seconds())
	if err != nil {
		a.stats.IncCounter(stats.MetricEngineFailures, 1)
		return nil, fmt.Errorf("probabilistic evaluation: %w", err)
	}
	if ev != nil && !ev.WDL.Valid() {
		a.stats.IncCounter(stats.MetricEngineFailures, 1)
		return nil, fmt.Errorf("probabilistic evaluation: %w: invalid wdl %s", ErrEngineUnavailable, ev.WDL)
	}
	return ev, nil
}

// Close releases the cache store. Evaluators are owned by the caller.
// After Close, the annotator should not be used.
func (a *Annotator) Close() error {
	if !a.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}

	if err := a.cache.store.Close(); err != nil {
		return fmt.Errorf("closing store: %w", err)
	}
	return nil
}

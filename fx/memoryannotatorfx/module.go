// Package memoryannotatorfx provides an fx module for an annotator with an
// in-memory evaluation cache. Useful for testing.
package memoryannotatorfx

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/discochess/annotator"
	"github.com/discochess/annotator/internal/stats"
	"github.com/discochess/annotator/internal/stats/logger"
	"github.com/discochess/annotator/internal/store/memstore"
)

// Module provides an in-memory annotator for testing.
// Requires a *zap.Logger to be provided. Evaluators are optional.
var Module = fx.Module("memoryannotator",
	fx.Provide(
		newStatsCollector,
		newMemStore,
		newAnnotator,
	),
)

func newStatsCollector(log *zap.Logger) stats.Collector {
	return logger.New(log.Named("annotator.stats"))
}

func newMemStore() *memstore.Store {
	return memstore.New()
}

// Params holds dependencies for creating the annotator.
type Params struct {
	fx.In

	Logger        *zap.Logger
	Collector     stats.Collector
	Store         *memstore.Store
	Lifecycle     fx.Lifecycle
	Scalar        annotator.ScalarEvaluator        `optional:"true"`
	Probabilistic annotator.ProbabilisticEvaluator `optional:"true"`
}

// Result holds the provided annotator and store.
type Result struct {
	fx.Out

	Annotator *annotator.Annotator
	Cache     *annotator.Cache
}

func newAnnotator(p Params) (Result, error) {
	opts := []annotator.Option{
		annotator.WithStore(p.Store),
		annotator.WithStats(p.Collector),
		annotator.WithLogger(p.Logger.Named("annotator")),
	}
	if p.Scalar != nil {
		opts = append(opts, annotator.WithScalarEvaluator(p.Scalar))
	}
	if p.Probabilistic != nil {
		opts = append(opts, annotator.WithProbabilisticEvaluator(p.Probabilistic))
	}

	a, err := annotator.New(opts...)
	if err != nil {
		return Result{}, err
	}

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return a.Close()
		},
	})

	return Result{Annotator: a, Cache: a.Cache()}, nil
}

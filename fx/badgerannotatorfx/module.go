// Package badgerannotatorfx provides an fx module for an annotator backed by a
// BadgerDB evaluation cache.
package badgerannotatorfx

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/discochess/annotator"
	"github.com/discochess/annotator/internal/stats"
	"github.com/discochess/annotator/internal/stats/logger"
	"github.com/discochess/annotator/internal/store/badgerstore"
	"github.com/discochess/annotator/internal/store/cachedstore"
	"github.com/discochess/annotator/internal/store/cachedstore/cachestrategy/lru"
	"github.com/discochess/annotator/internal/store/cachedstore/memory"
)

// Config holds configuration for the badger-backed annotator.
type Config struct {
	// DataDir is the BadgerDB directory. It is created if missing.
	DataDir string

	// RowCacheSize is the number of rows kept in memory in front of BadgerDB.
	// Default is 100000.
	RowCacheSize int

	// Depth and Nodes are the search budgets. Zero uses the annotator defaults.
	Depth int
	Nodes int64

	// Upgrade lets higher-budget results replace cached ones.
	Upgrade bool
}

// Module provides an annotator over BadgerDB.
// Requires a *zap.Logger and a Config. Evaluators are optional.
var Module = fx.Module("badgerannotator",
	fx.Provide(
		newStatsCollector,
		newAnnotator,
	),
)

func newStatsCollector(log *zap.Logger) stats.Collector {
	return logger.New(log.Named("annotator.stats"))
}

// Params holds dependencies for creating the annotator.
type Params struct {
	fx.In

	Config        Config
	Logger        *zap.Logger
	Collector     stats.Collector
	Lifecycle     fx.Lifecycle
	Scalar        annotator.ScalarEvaluator        `optional:"true"`
	Probabilistic annotator.ProbabilisticEvaluator `optional:"true"`
}

// Result holds the provided annotator and its cache.
type Result struct {
	fx.Out

	Annotator *annotator.Annotator
	Cache     *annotator.Cache
}

func newAnnotator(p Params) (Result, error) {
	rowCacheSize := p.Config.RowCacheSize
	if rowCacheSize <= 0 {
		rowCacheSize = 100000
	}

	baseStore, err := badgerstore.Open(p.Config.DataDir, badgerstore.WithLogger(p.Logger.Named("badger")))
	if err != nil {
		return Result{}, err
	}

	lruStrategy, err := lru.New(rowCacheSize)
	if err != nil {
		_ = baseStore.Close()
		return Result{}, err
	}

	st := cachedstore.New(baseStore, memory.New(lruStrategy, p.Collector))

	opts := []annotator.Option{
		annotator.WithStore(st),
		annotator.WithUpgrade(p.Config.Upgrade),
		annotator.WithStats(p.Collector),
		annotator.WithLogger(p.Logger.Named("annotator")),
	}
	if p.Config.Depth > 0 {
		opts = append(opts, annotator.WithDepth(p.Config.Depth))
	}
	if p.Config.Nodes > 0 {
		opts = append(opts, annotator.WithNodes(p.Config.Nodes))
	}
	if p.Scalar != nil {
		opts = append(opts, annotator.WithScalarEvaluator(p.Scalar))
	}
	if p.Probabilistic != nil {
		opts = append(opts, annotator.WithProbabilisticEvaluator(p.Probabilistic))
	}

	a, err := annotator.New(opts...)
	if err != nil {
		_ = st.Close()
		return Result{}, err
	}

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return a.Close()
		},
	})

	return Result{Annotator: a, Cache: a.Cache()}, nil
}

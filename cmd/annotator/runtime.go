package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/discochess/annotator"
	"github.com/discochess/annotator/internal/config"
	"github.com/discochess/annotator/internal/engine"
	"github.com/discochess/annotator/internal/stats"
)

// runtime holds everything a command builds from the configuration.
type runtime struct {
	cfg       *config.Config
	logger    *zap.Logger
	collector stats.Collector
	annotator *annotator.Annotator
	pools     []*engine.Pool
}

// setup loads the configuration and opens the cache. Engines are started only
// when withEngines is set and an engine path is configured.
func setup(ctx context.Context, cmd *cobra.Command, withEngines bool) (*runtime, error) {
	cfg, err := config.Load(config.LoadOptions{
		File:     configFile,
		EnvFiles: []string{envFile},
		Flags:    cmd.Flags(),
	})
	if err != nil {
		return nil, err
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	rt := &runtime{
		cfg:       cfg,
		logger:    logger,
		collector: cfg.NewCollector(logger, nil),
	}

	opts := []annotator.Option{
		annotator.WithDepth(cfg.Search.Depth),
		annotator.WithNodes(cfg.Search.Nodes),
		annotator.WithUpgrade(cfg.Search.Upgrade),
		annotator.WithStats(rt.collector),
		annotator.WithLogger(logger),
	}

	if withEngines {
		if ecfg, ok := cfg.ScalarEngine(logger); ok {
			pool, err := engine.NewPool(ctx, ecfg, cfg.Scalar.Instances)
			if err != nil {
				_ = rt.Close()
				return nil, fmt.Errorf("starting scalar engine: %w", err)
			}
			rt.pools = append(rt.pools, pool)
			opts = append(opts, annotator.WithScalarEvaluator(engine.NewScalar(pool)))
		}
		if ecfg, ok := cfg.WDLEngine(logger); ok {
			pool, err := engine.NewPool(ctx, ecfg, cfg.WDL.Instances)
			if err != nil {
				_ = rt.Close()
				return nil, fmt.Errorf("starting wdl engine: %w", err)
			}
			rt.pools = append(rt.pools, pool)
			opts = append(opts, annotator.WithProbabilisticEvaluator(engine.NewProbabilistic(pool)))
		}
	}

	st, err := cfg.OpenStore(ctx, logger, rt.collector)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	a, err := annotator.New(append(opts, annotator.WithStore(st))...)
	if err != nil {
		_ = st.Close()
		_ = rt.Close()
		return nil, fmt.Errorf("creating annotator: %w", err)
	}
	rt.annotator = a
	return rt, nil
}

// Close stops the engines and closes the cache.
func (rt *runtime) Close() error {
	var errs []error
	for _, p := range rt.pools {
		if err := p.Close(); err != nil && !errors.Is(err, engine.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if rt.annotator != nil {
		if err := rt.annotator.Close(); err != nil && !errors.Is(err, annotator.ErrClosed) {
			errs = append(errs, err)
		}
	}
	_ = rt.logger.Sync()
	return errors.Join(errs...)
}

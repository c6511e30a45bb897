package config

import (
	"context"
	"fmt"
	"sort"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/discochess/annotator/internal/engine"
	"github.com/discochess/annotator/internal/stats"
	"github.com/discochess/annotator/internal/stats/logger"
	"github.com/discochess/annotator/internal/stats/prometheus"
	"github.com/discochess/annotator/internal/store"
	"github.com/discochess/annotator/internal/store/badgerstore"
	"github.com/discochess/annotator/internal/store/cachedstore"
	"github.com/discochess/annotator/internal/store/cachedstore/cachestrategy/lru"
	"github.com/discochess/annotator/internal/store/cachedstore/memory"
	"github.com/discochess/annotator/internal/store/memstore"
	"github.com/discochess/annotator/internal/store/mongostore"
	"github.com/discochess/annotator/internal/store/pgstore"
	"github.com/discochess/annotator/internal/store/redisstore"
)

// NewLogger builds the process logger: development output when verbose,
// production JSON otherwise.
func (c *Config) NewLogger() (*zap.Logger, error) {
	if c.Verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// NewCollector builds the configured stats sink. registry is used by the
// prometheus sink and may be nil for the default registerer.
func (c *Config) NewCollector(log *zap.Logger, registry promclient.Registerer) stats.Collector {
	switch c.Metrics {
	case MetricsLog:
		return logger.New(log)
	case MetricsPrometheus:
		return prometheus.New(registry)
	default:
		return stats.NewNoop()
	}
}

// OpenStore opens the configured backend, wrapped in an LRU row cache when
// RowCacheEnabled reports true.
func (c *Config) OpenStore(ctx context.Context, log *zap.Logger, collector stats.Collector) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch c.Store.Backend {
	case BackendBadger:
		st, err = badgerstore.Open(c.DataDir, badgerstore.WithLogger(log))
	case BackendMemory:
		st = memstore.New()
	case BackendRedis:
		r := c.Store.Redis
		st, err = redisstore.New(ctx, redisstore.Config{
			Addr:     r.Addr,
			Password: r.Password,
			DB:       r.DB,
			Prefix:   r.Prefix,
		})
	case BackendPostgres:
		p := c.Store.Postgres
		st, err = pgstore.Open(ctx, pgstore.Config{
			DSN:         p.DSN,
			Table:       p.Table,
			CreateTable: p.CreateTable,
		})
	case BackendMongo:
		m := c.Store.Mongo
		st, err = mongostore.Open(ctx, mongostore.Config{
			URI:        m.URI,
			Database:   m.Database,
			Collection: m.Collection,
		})
	default:
		return nil, fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", c.Store.Backend, err)
	}

	if !c.RowCacheEnabled() {
		return st, nil
	}
	strategy, err := lru.New(c.RowCache)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("creating row cache: %w", err)
	}
	return cachedstore.New(st, memory.New(strategy, collector)), nil
}

// RowCacheEnabled reports whether reads go through the in-process row cache.
// Only the embedded badger backend qualifies: badger locks its directory to
// one process, while redis, postgres and mongo may be written by other
// processes that the cache would never see.
func (c *Config) RowCacheEnabled() bool {
	return c.RowCache > 0 && c.Store.Backend == BackendBadger
}

// ScalarEngine returns the engine configuration for scores, or false when no
// scalar engine is configured.
func (c *Config) ScalarEngine(log *zap.Logger) (engine.Config, bool) {
	return engineConfig(c.Scalar, log.Named("scalar"))
}

// WDLEngine returns the engine configuration for win/draw/loss, with WDL
// reporting switched on, or false when no such engine is configured.
func (c *Config) WDLEngine(log *zap.Logger) (engine.Config, bool) {
	cfg, ok := engineConfig(c.WDL, log.Named("wdl"))
	if !ok {
		return cfg, false
	}
	return cfg.WithSetting(engine.ShowWDL, "true"), true
}

func engineConfig(e EngineConfig, log *zap.Logger) (engine.Config, bool) {
	if e.Path == "" {
		return engine.Config{}, false
	}
	cfg := engine.Config{
		Path:          e.Path,
		Args:          e.Args,
		SearchTimeout: e.Timeout,
		Logger:        log,
	}
	// viper lowercases map keys; sorted order keeps the handshake stable.
	names := make([]string, 0, len(e.Options))
	for name := range e.Options {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		cfg = cfg.WithSetting(name, e.Options[name])
	}
	return cfg, true
}

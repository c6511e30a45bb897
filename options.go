package annotator

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/discochess/annotator/internal/shard"
	"github.com/discochess/annotator/internal/shard/fnvshard"
	"github.com/discochess/annotator/internal/stats"
	"github.com/discochess/annotator/internal/store"
	"github.com/discochess/annotator/internal/store/badgerstore"
)

// Default search budgets. A cached half below these is recomputed.
const (
	DefaultDepth = 20
	DefaultNodes = 5000
)

// Option configures an Annotator or a Cache.
type Option interface {
	apply(*options)
}

// options holds the configuration.
type options struct {
	store         store.Store
	scalar        ScalarEvaluator
	probabilistic ProbabilisticEvaluator
	depth         int
	nodes         int64
	policy        MergePolicy
	shardStrategy shard.Strategy
	lockStripes   int
	stats         stats.Collector
	logger        *zap.Logger
}

// defaultOptions returns the default configuration.
func defaultOptions() options {
	return options{
		depth:         DefaultDepth,
		nodes:         DefaultNodes,
		policy:        KeepFirst,
		shardStrategy: fnvshard.New(),
		lockStripes:   256,
		stats:         stats.NewNoop(),
		logger:        zap.NewNop(),
	}
}

// optionFunc wraps a function to implement Option.
type optionFunc func(*options)

var _ Option = optionFunc(nil)

func (f optionFunc) apply(o *options) { f(o) }

// WithStore sets the storage backend for the evaluation cache.
func WithStore(s store.Store) Option {
	return optionFunc(func(o *options) {
		o.store = s
	})
}

// WithScalarEvaluator sets the engine producing centipawn scores. Without one,
// scores come only from the cache.
func WithScalarEvaluator(e ScalarEvaluator) Option {
	return optionFunc(func(o *options) {
		o.scalar = e
	})
}

// WithProbabilisticEvaluator sets the engine producing WDL distributions.
// Without one, distributions come only from the cache.
func WithProbabilisticEvaluator(e ProbabilisticEvaluator) Option {
	return optionFunc(func(o *options) {
		o.probabilistic = e
	})
}

// WithDepth sets the depth budget for scalar evaluations. It is also the quality
// floor: a cached score searched to a lower depth is recomputed.
// Default is DefaultDepth.
func WithDepth(depth int) Option {
	return optionFunc(func(o *options) {
		o.depth = depth
	})
}

// WithNodes sets the node budget for probabilistic evaluations and the matching
// quality floor. Default is DefaultNodes.
func WithNodes(nodes int64) Option {
	return optionFunc(func(o *options) {
		o.nodes = nodes
	})
}

// WithUpgrade switches the merge policy to KeepBest, letting a higher-budget
// result replace a cached one. Cached statistics change when this is enabled.
func WithUpgrade(upgrade bool) Option {
	return optionFunc(func(o *options) {
		if upgrade {
			o.policy = KeepBest
		} else {
			o.policy = KeepFirst
		}
	})
}

// WithShardStrategy sets how fingerprints map to lock stripes.
// If not set, FNV-1a hashing is used.
func WithShardStrategy(s shard.Strategy) Option {
	return optionFunc(func(o *options) {
		o.shardStrategy = s
	})
}

// WithLockStripes sets the number of cache lock stripes. Default is 256.
func WithLockStripes(n int) Option {
	return optionFunc(func(o *options) {
		o.lockStripes = n
	})
}

// WithStats sets the stats collector.
// If not set, a no-op collector is used.
func WithStats(c stats.Collector) Option {
	return optionFunc(func(o *options) {
		o.stats = c
	})
}

// WithLogger sets the logger.
// If not set, a no-op logger is used.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(o *options) {
		o.logger = l
	})
}

// WithDataDir opens, or creates, the default BadgerDB cache in dir.
// The returned option owns the database; closing the Annotator closes it.
func WithDataDir(dir string) (Option, error) {
	st, err := badgerstore.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}
	return WithStore(st), nil
}

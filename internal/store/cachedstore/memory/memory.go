// Package memory implements an in-memory cache backend.
package memory

import (
	"sync/atomic"

	"github.com/discochess/annotator/internal/stats"
	"github.com/discochess/annotator/internal/store"
	"github.com/discochess/annotator/internal/store/cachedstore"
	"github.com/discochess/annotator/internal/store/cachedstore/cachestrategy"
)

var _ cachedstore.Backend = (*Backend)(nil)

// Backend is a thread-safe in-memory cache backend.
type Backend struct {
	strategy  cachestrategy.Strategy
	collector stats.Collector

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a new memory backend with the given eviction strategy.
// The collector is optional; if nil, a no-op collector is used.
func New(strategy cachestrategy.Strategy, collector stats.Collector) *Backend {
	if collector == nil {
		collector = stats.NewNoop()
	}
	return &Backend{
		strategy:  strategy,
		collector: collector,
	}
}

// Get retrieves a row from the cache.
func (b *Backend) Get(key string) (store.Row, bool) {
	row, ok := b.strategy.Get(key)
	if ok {
		b.hits.Add(1)
		b.collector.IncCounter(stats.MetricRowCacheHits, 1)
		return row, true
	}
	b.misses.Add(1)
	b.collector.IncCounter(stats.MetricRowCacheMisses, 1)
	return store.Row{}, false
}

// Set stores a row in the cache.
func (b *Backend) Set(key string, row store.Row) {
	b.strategy.Add(key, row)
	b.collector.SetGauge(stats.MetricRowCacheSize, int64(b.strategy.Len()))
}

// Stats returns current cache statistics.
func (b *Backend) Stats() cachedstore.Stats {
	return cachedstore.Stats{
		Hits:   b.hits.Load(),
		Misses: b.misses.Load(),
		Size:   b.strategy.Len(),
	}
}

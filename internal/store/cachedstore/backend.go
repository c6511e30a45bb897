// Package cachedstore provides a read-through, write-through caching wrapper
// for Store implementations.
package cachedstore

import "github.com/discochess/annotator/internal/store"

// Backend defines the interface for cache storage backends.
// Implementations handle storage and eviction strategy.
type Backend interface {
	// Get retrieves a cached row. Returns false if not found.
	Get(key string) (store.Row, bool)

	// Set stores a row in the cache.
	Set(key string, row store.Row)

	// Stats returns cache statistics.
	Stats() Stats
}

// Stats contains cache statistics.
type Stats struct {
	Hits   int64
	Misses int64
	Size   int // Current number of entries
}

// HitRate returns the cache hit rate as a percentage.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// Package cachestrategy defines cache eviction strategy interfaces.
package cachestrategy

import "github.com/discochess/annotator/internal/store"

// Strategy defines the interface for cache eviction strategies. Implementations
// must be safe for concurrent use.
type Strategy interface {
	Get(key string) (store.Row, bool)
	Add(key string, row store.Row) (evicted bool)
	Len() int
}

// Package lru implements an LRU cache eviction strategy.
package lru

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/discochess/annotator/internal/store"
	"github.com/discochess/annotator/internal/store/cachedstore/cachestrategy"
)

var _ cachestrategy.Strategy = (*Strategy)(nil)

// Strategy implements LRU eviction keyed by fingerprint.
type Strategy struct {
	cache *lru.Cache[string, store.Row]
}

// New creates a new LRU strategy holding at most capacity rows.
func New(capacity int) (*Strategy, error) {
	c, err := lru.New[string, store.Row](capacity)
	if err != nil {
		return nil, err
	}
	return &Strategy{cache: c}, nil
}

// Get retrieves a row and marks it recently used.
func (s *Strategy) Get(key string) (store.Row, bool) {
	return s.cache.Get(key)
}

// Add inserts or replaces a row, evicting the least recently used one if full.
func (s *Strategy) Add(key string, row store.Row) bool {
	return s.cache.Add(key, row)
}

// Len returns the number of cached rows.
func (s *Strategy) Len() int {
	return s.cache.Len()
}

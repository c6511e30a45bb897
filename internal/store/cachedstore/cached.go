package cachedstore

import (
	"context"

	"github.com/discochess/annotator/internal/store"
)

var (
	_ store.Store  = (*Store)(nil)
	_ store.Merger = (*Store)(nil)
)

// Store wraps another Store with an in-process row cache. Writes go to the
// underlying store first and are cached only once they succeed, so the cache
// never holds a row the underlying store lacks. Absent and malformed rows are
// never cached.
//
// The cache is only coherent when this process is the sole writer.
type Store struct {
	underlying store.Store
	backend    Backend
}

// New creates a new cached store wrapping the given store.
func New(underlying store.Store, backend Backend) *Store {
	return &Store{
		underlying: underlying,
		backend:    backend,
	}
}

// Get reads a row, checking the cache first.
func (s *Store) Get(ctx context.Context, key string) (store.Row, error) {
	if row, ok := s.backend.Get(key); ok {
		return row, nil
	}

	row, err := s.underlying.Get(ctx, key)
	if err != nil {
		return store.Row{}, err
	}

	s.backend.Set(key, row)
	return row, nil
}

// Put writes through to the underlying store.
func (s *Store) Put(ctx context.Context, key string, row store.Row) error {
	if err := s.underlying.Put(ctx, key, row); err != nil {
		return err
	}
	s.backend.Set(key, row)
	return nil
}

// Merge runs against the underlying store and caches the row it ends with.
func (s *Store) Merge(ctx context.Context, key string, fn store.MergeFunc) error {
	var (
		final store.Row
		known bool
	)
	err := store.Merge(ctx, s.underlying, key, func(current store.Row, err error) (store.Row, bool) {
		next, write := fn(current, err)
		switch {
		case write:
			final, known = next, true
		case err == nil:
			final, known = current, true
		default:
			known = false
		}
		return next, write
	})
	if err != nil {
		return err
	}
	if known {
		s.backend.Set(key, final)
	}
	return nil
}

// Scan bypasses the cache.
func (s *Store) Scan(ctx context.Context, fn func(store.Entry) error) error {
	return s.underlying.Scan(ctx, fn)
}

// Close closes the underlying store.
func (s *Store) Close() error {
	return s.underlying.Close()
}

// Stats returns cache statistics.
func (s *Store) Stats() Stats {
	return s.backend.Stats()
}

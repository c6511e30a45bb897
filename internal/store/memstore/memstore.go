// Package memstore provides an in-memory store implementation for testing and
// for throwaway runs.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/discochess/annotator/internal/store"
)

var (
	_ store.Store  = (*Store)(nil)
	_ store.Merger = (*Store)(nil)
)

// Store is an in-memory store.
type Store struct {
	mu   sync.RWMutex
	rows map[string]store.Row
	// raw holds undecodable rows injected by tests.
	raw map[string]error
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		rows: make(map[string]store.Row),
		raw:  make(map[string]error),
	}
}

// SetMalformed makes subsequent reads of key fail with store.ErrMalformedRecord
// until the key is written again.
func (s *Store) SetMalformed(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, key)
	s.raw[key] = store.ErrMalformedRecord
}

// Get reads a row from memory.
func (s *Store) Get(ctx context.Context, key string) (store.Row, error) {
	if err := ctx.Err(); err != nil {
		return store.Row{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(key)
}

func (s *Store) get(key string) (store.Row, error) {
	if err, ok := s.raw[key]; ok {
		return store.Row{}, err
	}
	row, ok := s.rows[key]
	if !ok {
		return store.Row{}, store.ErrNotFound
	}
	return row, nil
}

// Put writes a row to memory.
func (s *Store) Put(ctx context.Context, key string, row store.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := row.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.raw, key)
	s.rows[key] = row
	return nil
}

// Merge applies fn under the store's write lock.
func (s *Store) Merge(ctx context.Context, key string, fn store.MergeFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.get(key)
	next, write := fn(current, err)
	if !write {
		return nil
	}
	if err := next.Validate(); err != nil {
		return err
	}
	delete(s.raw, key)
	s.rows[key] = next
	return nil
}

// Scan visits rows in key order.
func (s *Store) Scan(ctx context.Context, fn func(store.Entry) error) error {
	s.mu.RLock()
	entries := make([]store.Entry, 0, len(s.rows)+len(s.raw))
	for k, r := range s.rows {
		entries = append(entries, store.Entry{Key: k, Row: r})
	}
	for k, err := range s.raw {
		entries = append(entries, store.Entry{Key: k, Err: err})
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of stored rows, malformed ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows) + len(s.raw)
}

// Close is a no-op for the memory store.
func (s *Store) Close() error {
	return nil
}

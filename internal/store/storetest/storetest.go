// Package storetest holds checks shared by the store backend tests.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/discochess/annotator/internal/store"
)

// SetWDL merges a probabilistic half into whatever is stored.
func SetWDL(nodes int64, w, d, l int) store.MergeFunc {
	return func(current store.Row, err error) (store.Row, bool) {
		if err != nil {
			current = store.EmptyRow()
		}
		current.Nodes, current.W, current.D, current.L = nodes, w, d, l
		return current, true
	}
}

// SetScore merges a scalar half into whatever is stored.
func SetScore(depth int, score float64) store.MergeFunc {
	return func(current store.Row, err error) (store.Row, bool) {
		if err != nil {
			current = store.EmptyRow()
		}
		current.Depth, current.Score, current.Mate = depth, score, 0
		return current, true
	}
}

// ConcurrentHalves merges the two halves of the same keys from separate
// goroutines and fails if any key ends up missing a half.
func ConcurrentHalves(t *testing.T, s store.Store) {
	t.Helper()
	if _, ok := s.(store.Merger); !ok {
		t.Fatalf("%T does not implement store.Merger", s)
	}

	ctx := context.Background()
	const keys = 50

	var wg sync.WaitGroup
	errs := make(chan error, 2*keys)
	for i := 0; i < keys; i++ {
		key := fmt.Sprintf("k%02d", i)
		wg.Add(2)
		go func() {
			defer wg.Done()
			errs <- store.Merge(ctx, s, key, SetWDL(5000, 500, 300, 200))
		}()
		go func() {
			defer wg.Done()
			errs <- store.Merge(ctx, s, key, SetScore(20, 85))
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Merge() error = %v", err)
		}
	}

	for i := 0; i < keys; i++ {
		key := fmt.Sprintf("k%02d", i)
		row, err := s.Get(ctx, key)
		if err != nil {
			t.Fatalf("Get(%q) error = %v", key, err)
		}
		if row.Nodes != 5000 || row.W != 500 {
			t.Errorf("Get(%q) lost the wdl half: %+v", key, row)
		}
		if row.Depth != 20 || row.Score != 85 {
			t.Errorf("Get(%q) lost the score half: %+v", key, row)
		}
	}
}

// SkipWrite checks that a MergeFunc returning write false leaves the row alone.
func SkipWrite(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()

	want := store.Row{Nodes: store.Unset, Depth: 12, Score: -40}
	if err := s.Put(ctx, "keep", want); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	var seen store.Row
	err := store.Merge(ctx, s, "keep", func(current store.Row, err error) (store.Row, bool) {
		seen = current
		return store.Row{}, false
	})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if seen != want {
		t.Errorf("Merge() saw %+v, want %+v", seen, want)
	}
	if got, err := s.Get(ctx, "keep"); err != nil || got != want {
		t.Errorf("Get() = %+v, %v, want %+v", got, err, want)
	}
}

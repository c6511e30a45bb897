package cachedstore

import (
	"context"
	"errors"
	"testing"

	"github.com/discochess/annotator/internal/store"
	"github.com/discochess/annotator/internal/store/memstore"
	"github.com/discochess/annotator/internal/store/storetest"
)

// fakeBackend is a simple in-memory backend for testing.
type fakeBackend struct {
	data   map[string]store.Row
	hits   int64
	misses int64
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{data: make(map[string]store.Row)}
}

func (b *fakeBackend) Get(key string) (store.Row, bool) {
	if row, ok := b.data[key]; ok {
		b.hits++
		return row, true
	}
	b.misses++
	return store.Row{}, false
}

func (b *fakeBackend) Set(key string, row store.Row) {
	b.data[key] = row
}

func (b *fakeBackend) Stats() Stats {
	return Stats{Hits: b.hits, Misses: b.misses, Size: len(b.data)}
}

// failingStore rejects every write.
type failingStore struct {
	*memstore.Store
}

func (failingStore) Put(context.Context, string, store.Row) error {
	return errors.New("disk full")
}

var (
	rowA = store.Row{Nodes: 5000, W: 700, D: 200, L: 100, Depth: store.Unset}
	rowB = store.Row{Nodes: store.Unset, Depth: 20, Score: 85}
)

func TestStore_CacheHit(t *testing.T) {
	backend := newFakeBackend()
	backend.Set("k", rowA)

	s := New(memstore.New(), backend)

	got, err := s.Get(context.Background(), "k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != rowA {
		t.Errorf("Get() = %+v, want %+v", got, rowA)
	}
	if stats := s.Stats(); stats.Hits != 1 {
		t.Errorf("Stats().Hits = %d, want 1", stats.Hits)
	}
}

func TestStore_CacheMiss(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	underlying := memstore.New()
	_ = underlying.Put(ctx, "k", rowB)

	s := New(underlying, backend)

	got, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != rowB {
		t.Errorf("Get() = %+v, want %+v", got, rowB)
	}
	if _, ok := backend.data["k"]; !ok {
		t.Error("row should be cached after miss")
	}
	if stats := s.Stats(); stats.Misses != 1 {
		t.Errorf("Stats().Misses = %d, want 1", stats.Misses)
	}
}

func TestStore_NotFoundAndMalformedNotCached(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	underlying := memstore.New()
	underlying.SetMalformed("bad")

	s := New(underlying, backend)

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
	if _, err := s.Get(ctx, "bad"); !errors.Is(err, store.ErrMalformedRecord) {
		t.Errorf("Get() error = %v, want ErrMalformedRecord", err)
	}
	if len(backend.data) != 0 {
		t.Errorf("cached %d rows, want 0", len(backend.data))
	}
}

func TestStore_PutWritesThrough(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	underlying := memstore.New()
	s := New(underlying, backend)

	_ = s.Put(ctx, "k", rowA)
	if got, _ := underlying.Get(ctx, "k"); got != rowA {
		t.Errorf("underlying Get() = %+v, want %+v", got, rowA)
	}
	if got := backend.data["k"]; got != rowA {
		t.Errorf("cached row = %+v, want %+v", got, rowA)
	}

	_ = s.Put(ctx, "k", rowB)
	if got, _ := s.Get(ctx, "k"); got != rowB {
		t.Errorf("Get() after overwrite = %+v, want %+v", got, rowB)
	}
}

func TestStore_FailedPutNotCached(t *testing.T) {
	backend := newFakeBackend()
	s := New(failingStore{memstore.New()}, backend)

	if err := s.Put(context.Background(), "k", rowA); err == nil {
		t.Fatal("Put() should fail")
	}
	if _, ok := backend.data["k"]; ok {
		t.Error("failed write should not be cached")
	}
}

func TestStats_HitRate(t *testing.T) {
	tests := []struct {
		name     string
		hits     int64
		misses   int64
		expected float64
	}{
		{"no requests", 0, 0, 0},
		{"all hits", 10, 0, 100},
		{"all misses", 0, 10, 0},
		{"50% hit rate", 5, 5, 50},
		{"75% hit rate", 3, 1, 75},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Stats{Hits: tt.hits, Misses: tt.misses}
			if got := s.HitRate(); got != tt.expected {
				t.Errorf("HitRate() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestStore_MergeCachesResult(t *testing.T) {
	ctx := context.Background()
	underlying := memstore.New()
	backend := newFakeBackend()
	s := New(underlying, backend)

	if err := s.Merge(ctx, "k", storetest.SetWDL(rowA.Nodes, rowA.W, rowA.D, rowA.L)); err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if err := s.Merge(ctx, "k", storetest.SetScore(rowB.Depth, rowB.Score)); err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	want := store.Row{Nodes: rowA.Nodes, W: rowA.W, D: rowA.D, L: rowA.L, Depth: rowB.Depth, Score: rowB.Score}
	if got, err := underlying.Get(ctx, "k"); err != nil || got != want {
		t.Errorf("underlying Get() = %+v, %v, want %+v", got, err, want)
	}
	if got := backend.data["k"]; got != want {
		t.Errorf("cached row = %+v, want %+v", got, want)
	}
}

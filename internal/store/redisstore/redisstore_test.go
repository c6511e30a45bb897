package redisstore

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/discochess/annotator/internal/store"
	"github.com/discochess/annotator/internal/store/storetest"
)

// newTestStore connects to the Redis named by ANNOTATOR_TEST_REDIS_ADDR under a
// random prefix, or skips.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	addr := os.Getenv("ANNOTATOR_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("ANNOTATOR_TEST_REDIS_ADDR not set")
	}
	s, err := New(context.Background(), Config{Addr: addr, Prefix: "test:" + uuid.NewString() + ":"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		ctx := context.Background()
		keys, _ := s.client.Keys(ctx, s.prefix+"*").Result()
		if len(keys) > 0 {
			s.client.Del(ctx, keys...)
		}
		_ = s.Close()
	})
	return s
}

func TestStore_GetPut(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.Get(ctx, "k"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
	want := store.Row{Nodes: 5000, W: 700, D: 200, L: 100, Depth: store.Unset}
	if err := s.Put(ctx, "k", want); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if got, err := s.Get(ctx, "k"); err != nil || got != want {
		t.Errorf("Get() = %+v, %v, want %+v", got, err, want)
	}
}

func TestStore_MalformedAndScan(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_ = s.Put(ctx, "good", store.Row{Nodes: store.Unset, Depth: 8, Score: -12})
	s.client.Set(ctx, s.prefix+"bad", "nope", 0)

	if _, err := s.Get(ctx, "bad"); !errors.Is(err, store.ErrMalformedRecord) {
		t.Errorf("Get() error = %v, want ErrMalformedRecord", err)
	}

	seen := map[string]bool{}
	err := s.Scan(ctx, func(e store.Entry) error {
		seen[e.Key] = e.Err == nil
		return nil
	})
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if ok, found := seen["good"]; !found || !ok {
		t.Errorf("Scan() good = %v, %v", ok, found)
	}
	if ok, found := seen["bad"]; !found || ok {
		t.Errorf("Scan() bad = %v, %v", ok, found)
	}
}

func TestStore_Merge(t *testing.T) {
	storetest.ConcurrentHalves(t, newTestStore(t))
	storetest.SkipWrite(t, newTestStore(t))
}

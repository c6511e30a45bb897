package pgstore

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/discochess/annotator/internal/store"
	"github.com/discochess/annotator/internal/store/storetest"
)

// newTestStore opens a fresh table in the database named by
// ANNOTATOR_TEST_POSTGRES_DSN, or skips.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("ANNOTATOR_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("ANNOTATOR_TEST_POSTGRES_DSN not set")
	}
	table := "evaluations_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	ctx := context.Background()
	s, err := Open(ctx, Config{DSN: dsn, Table: table, CreateTable: true})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DROP TABLE `+s.table)
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

	rows := []store.Row{
		{Nodes: 5000, W: 700, D: 200, L: 100, Depth: store.Unset},
		{Nodes: 5000, W: 700, D: 200, L: 100, Depth: 20, Score: 85, PV: "e2e4 e7e5"},
		{Nodes: store.Unset, Depth: 30, Mate: -4},
	}
	for _, want := range rows {
		if err := s.Put(ctx, "k", want); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		got, err := s.Get(ctx, "k")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got != want {
			t.Errorf("Get() = %+v, want %+v", got, want)
		}
	}
}

func TestStore_Malformed(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.db.ExecContext(ctx, `INSERT INTO `+s.table+` (fingerprint, nodes_budget, w, d, l) VALUES ('bad', 100, 1, 2, 3)`)
	if err != nil {
		t.Fatalf("insert error = %v", err)
	}
	if _, err := s.Get(ctx, "bad"); !errors.Is(err, store.ErrMalformedRecord) {
		t.Errorf("Get() error = %v, want ErrMalformedRecord", err)
	}

	var bad int
	err = s.Scan(ctx, func(e store.Entry) error {
		if e.Err != nil {
			bad++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if bad != 1 {
		t.Errorf("malformed = %d, want 1", bad)
	}
}

func TestStore_Merge(t *testing.T) {
	storetest.ConcurrentHalves(t, newTestStore(t))
	storetest.SkipWrite(t, newTestStore(t))
}

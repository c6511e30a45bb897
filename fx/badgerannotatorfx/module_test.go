package badgerannotatorfx

import (
	"context"
	"testing"

	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"github.com/discochess/annotator"
)

func TestModule(t *testing.T) {
	dir := t.TempDir()
	fp, err := annotator.Fingerprint("rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1")
	if err != nil {
		t.Fatal(err)
	}
	rec := annotator.Record{Nodes: 800, WDL: annotator.WDL{Win: 100, Draw: 850, Loss: 50}}

	var cache *annotator.Cache
	app := fxtest.New(t,
		fx.Supply(zap.NewNop(), Config{DataDir: dir, RowCacheSize: 10}),
		Module,
		fx.Populate(&cache),
	)
	app.RequireStart()
	if err := cache.Put(context.Background(), fp, rec); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	app.RequireStop()

	// The record survives a restart.
	app = fxtest.New(t,
		fx.Supply(zap.NewNop(), Config{DataDir: dir}),
		Module,
		fx.Populate(&cache),
	)
	app.RequireStart()
	defer app.RequireStop()

	got, found, err := cache.Get(context.Background(), fp)
	if err != nil || !found {
		t.Fatalf("Get() = %v, %v, want found", found, err)
	}
	if got.WDL != rec.WDL || got.Nodes != rec.Nodes {
		t.Errorf("Get() = %+v, want %+v", got, rec)
	}
}

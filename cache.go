package annotator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/discochess/annotator/internal/fen"
	"github.com/discochess/annotator/internal/shard"
	"github.com/discochess/annotator/internal/stats"
	"github.com/discochess/annotator/internal/store"
)

// MergePolicy decides whether an incoming half replaces a stored one.
type MergePolicy int

const (
	// KeepFirst never replaces a present half. A low-budget result stays cached
	// even after a higher-budget one is computed for the same position.
	KeepFirst MergePolicy = iota

	// KeepBest replaces a present half when the incoming budget is strictly higher.
	KeepBest
)

func (p MergePolicy) String() string {
	switch p {
	case KeepFirst:
		return "keep-first"
	case KeepBest:
		return "keep-best"
	default:
		return fmt.Sprintf("MergePolicy(%d)", int(p))
	}
}

// Fingerprint returns the cache key of a FEN position: piece placement, side to
// move, castling rights and en passant square. Move counters are ignored.
func Fingerprint(position string) (string, error) {
	fp, err := fen.Normalize(position)
	if err != nil {
		return "", fmt.Errorf("fingerprint %q: %w", position, err)
	}
	return fp, nil
}

// Cache is the persistent fingerprint to Record map. Operations on one
// fingerprint are serialized through a striped lock, and MergeUpdate runs
// atomically in stores that support it, so concurrent MergeUpdate calls never
// lose a half. A Cache is safe for concurrent use.
type Cache struct {
	store    store.Store
	strategy shard.Strategy
	stripes  []sync.RWMutex
	policy   MergePolicy
	stats    stats.Collector
	logger   *zap.Logger
}

// NewCache creates a Cache over the store set with WithStore. Options that only
// apply to the pipeline are ignored.
func NewCache(opts ...Option) (*Cache, error) {
	cfg := defaultOptions()
	for _, opt := range opts {
		opt.apply(&cfg)
	}
	return newCache(cfg)
}

func newCache(cfg options) (*Cache, error) {
	if cfg.store == nil {
		return nil, ErrNoStore
	}
	if cfg.lockStripes < 1 {
		cfg.lockStripes = 1
	}
	return &Cache{
		store:    cfg.store,
		strategy: cfg.shardStrategy,
		stripes:  make([]sync.RWMutex, cfg.lockStripes),
		policy:   cfg.policy,
		stats:    cfg.stats,
		logger:   cfg.logger,
	}, nil
}

// Policy returns the merge policy.
func (c *Cache) Policy() MergePolicy {
	return c.policy
}

func (c *Cache) stripe(fp string) *sync.RWMutex {
	return &c.stripes[c.strategy.ShardID(fp, len(c.stripes))]
}

// Get returns the record stored for fp. A malformed stored record is reported as
// absent.
func (c *Cache) Get(ctx context.Context, fp string) (Record, bool, error) {
	mu := c.stripe(fp)
	mu.RLock()
	defer mu.RUnlock()

	c.stats.IncCounter(stats.MetricLookups, 1)
	rec, found, err := c.load(ctx, fp)
	if err != nil {
		return Record{}, false, err
	}
	if found {
		c.stats.IncCounter(stats.MetricHits, 1)
	} else {
		c.stats.IncCounter(stats.MetricMisses, 1)
	}
	return rec, found, nil
}

// Contains reports whether a well-formed record is stored for fp.
func (c *Cache) Contains(ctx context.Context, fp string) (bool, error) {
	_, found, err := c.Get(ctx, fp)
	return found, err
}

// Put stores rec for fp, replacing whatever was there.
func (c *Cache) Put(ctx context.Context, fp string, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	mu := c.stripe(fp)
	mu.Lock()
	defer mu.Unlock()

	if err := c.store.Put(ctx, fp, recordToRow(rec)); err != nil {
		return fmt.Errorf("storing %q: %w", fp, err)
	}
	return nil
}

// MergeUpdate merges the present halves of partial into the record stored for fp
// and returns the stored result. Each half is decided independently by the
// merge policy; a half absent from partial is never touched. With nothing
// stored, MergeUpdate behaves like Put.
//
// The read-merge-write runs inside the store when it implements store.Merger,
// which keeps halves written by other processes sharing the store. Otherwise
// only the stripe lock serializes it.
func (c *Cache) MergeUpdate(ctx context.Context, fp string, partial Record) (Record, error) {
	if err := partial.Validate(); err != nil {
		return Record{}, err
	}
	mu := c.stripe(fp)
	mu.Lock()
	defer mu.Unlock()

	var (
		result Record
		wrote  bool
	)
	err := store.Merge(ctx, c.store, fp, func(row store.Row, err error) (store.Row, bool) {
		existing, found := c.decode(fp, row, err)
		merged := merge(existing, partial, c.policy)
		result, wrote = merged, false
		if (found && merged == existing) || merged.IsEmpty() {
			return store.Row{}, false
		}
		wrote = true
		return recordToRow(merged), true
	})
	if err != nil {
		return Record{}, fmt.Errorf("merging %q: %w", fp, err)
	}
	if wrote {
		c.stats.IncCounter(stats.MetricMerges, 1)
	}
	return result, nil
}

// CacheEntry is one record visited by Scan. Err wraps ErrMalformedRecord, and
// Record is zero, when the stored record is unreadable.
type CacheEntry struct {
	Fingerprint string
	Record      Record
	Err         error
}

// Scan calls fn for every stored record until fn returns an error. It takes no
// stripe locks, so records written during the scan may or may not be visited.
func (c *Cache) Scan(ctx context.Context, fn func(CacheEntry) error) error {
	return c.store.Scan(ctx, func(e store.Entry) error {
		if e.Err == nil {
			e.Err = e.Row.Validate()
		}
		if e.Err != nil {
			return fn(CacheEntry{Fingerprint: e.Key, Err: e.Err})
		}
		return fn(CacheEntry{Fingerprint: e.Key, Record: rowToRecord(e.Row)})
	})
}

// load reads and converts a row. Callers hold the stripe lock.
func (c *Cache) load(ctx context.Context, fp string) (Record, bool, error) {
	row, err := c.store.Get(ctx, fp)
	if err != nil && !errors.Is(err, store.ErrNotFound) && !errors.Is(err, store.ErrMalformedRecord) {
		return Record{}, false, fmt.Errorf("reading %q: %w", fp, err)
	}
	rec, found := c.decode(fp, row, err)
	return rec, found, nil
}

// decode converts a stored row, reporting missing and malformed rows as absent.
func (c *Cache) decode(fp string, row store.Row, err error) (Record, bool) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return Record{}, false
	case err != nil:
		c.stats.IncCounter(stats.MetricMalformed, 1)
		c.logger.Warn("ignoring malformed cache record",
			zap.String("fingerprint", fp),
			zap.Error(err),
		)
		return Record{}, false
	}
	return rowToRecord(row), true
}

// merge applies policy to each half independently.
func merge(existing, partial Record, policy MergePolicy) Record {
	out := existing
	if partial.HasWDL() && accept(existing.Nodes, partial.Nodes, policy) {
		out.Nodes, out.WDL = partial.Nodes, partial.WDL
	}
	if partial.HasScore() && accept(int64(existing.Depth), int64(partial.Depth), policy) {
		out.Depth, out.Score = partial.Depth, partial.Score
		out.PrincipalLine = partial.PrincipalLine
	}
	return out
}

// wants reports whether a fresh half at budget would be stored over a cached
// half at stored. Under KeepFirst any present half is final, whatever its
// budget.
func (c *Cache) wants(stored, budget int64) bool {
	return accept(stored, budget, c.policy)
}

func accept(stored, incoming int64, policy MergePolicy) bool {
	if stored <= 0 {
		return true
	}
	return policy == KeepBest && incoming > stored
}

func recordToRow(r Record) store.Row {
	row := store.EmptyRow()
	if r.HasWDL() {
		row.Nodes = r.Nodes
		row.W, row.D, row.L = r.WDL.Win, r.WDL.Draw, r.WDL.Loss
	}
	if r.HasScore() {
		row.Depth = r.Depth
		row.Score = r.Score.Centipawns
		row.Mate = r.Score.Mate
	}
	row.PV = r.PrincipalLine
	return row
}

func rowToRecord(row store.Row) Record {
	var r Record
	if row.Nodes != store.Unset {
		r.Nodes = row.Nodes
		r.WDL = WDL{Win: row.W, Draw: row.D, Loss: row.L}
	}
	if row.Depth != store.Unset {
		r.Depth = row.Depth
		r.Score = Score{Centipawns: row.Score, Mate: row.Mate}
		if r.Score.IsMate() {
			r.Score.Centipawns = 0
		}
	}
	r.PrincipalLine = row.PV
	return r
}

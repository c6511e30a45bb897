package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// Searcher runs one search. Engine and Pool implement it.
type Searcher interface {
	Go(ctx context.Context, fen string, limit Limit) (Result, error)
}

var (
	_ Searcher = (*Engine)(nil)
	_ Searcher = (*Pool)(nil)
)

// Pool hands out idle engines from a fixed set. Engines that die are dropped,
// not restarted; once every engine is dead searches fail with ErrUnavailable.
type Pool struct {
	all       []*Engine
	idle      chan *Engine
	alive     atomic.Int32
	exhausted chan struct{}
	once      sync.Once
	closed    atomic.Bool
}

// NewPool starts size engines with the same configuration.
func NewPool(ctx context.Context, cfg Config, size int) (*Pool, error) {
	if size < 1 {
		size = 1
	}
	engines := make([]*Engine, 0, size)
	for i := 0; i < size; i++ {
		e, err := Start(ctx, cfg)
		if err != nil {
			for _, started := range engines {
				_ = started.Close()
			}
			return nil, fmt.Errorf("starting engine %d of %d: %w", i+1, size, err)
		}
		engines = append(engines, e)
	}
	return newPool(engines), nil
}

func newPool(engines []*Engine) *Pool {
	p := &Pool{
		all:       engines,
		idle:      make(chan *Engine, len(engines)),
		exhausted: make(chan struct{}),
	}
	for _, e := range engines {
		p.idle <- e
	}
	p.alive.Store(int32(len(engines)))
	return p
}

// Size returns the number of engines still alive.
func (p *Pool) Size() int {
	return int(p.alive.Load())
}

// Acquire waits for an idle engine.
func (p *Pool) Acquire(ctx context.Context) (*Engine, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}
	select {
	case e := <-p.idle:
		return e, nil
	case <-p.exhausted:
		return nil, fmt.Errorf("%w: every engine in the pool has failed", ErrUnavailable)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns e to the pool, or drops it if it died.
func (p *Pool) Release(e *Engine) {
	if e.Dead() {
		if p.alive.Add(-1) == 0 {
			p.once.Do(func() { close(p.exhausted) })
		}
		return
	}
	p.idle <- e
}

// Go runs a search on any idle engine.
func (p *Pool) Go(ctx context.Context, fen string, limit Limit) (Result, error) {
	e, err := p.Acquire(ctx)
	if err != nil {
		return Result{}, err
	}
	defer p.Release(e)
	return e.Go(ctx, fen, limit)
}

// Close closes every engine. A second call returns ErrClosed.
func (p *Pool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	var errs []error
	for _, e := range p.all {
		if err := e.Close(); err != nil && !errors.Is(err, ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

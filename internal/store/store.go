// Package store defines the persistence backend for cached position evaluations.
//
// A backend is a key-value table with one row per position fingerprint. Rows use
// the sentinel Unset in a budget column to mark the corresponding half as absent.
package store

import (
	"context"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrNotFound is returned when no row exists for a fingerprint.
	ErrNotFound = errors.New("store: record not found")

	// ErrMalformedRecord is returned when a stored row cannot be decoded or
	// violates the row invariants.
	ErrMalformedRecord = errors.New("store: malformed record")

	// ErrContention is returned when a Merge keeps losing to concurrent writers.
	ErrContention = errors.New("store: merge contention")
)

// MaxMergeAttempts bounds the optimistic retries of a Merge.
const MaxMergeAttempts = 16

// Unset marks an absent half in a budget column.
const Unset = -1

// WDLTotal is the fixed sum of a stored win/draw/loss triple.
const WDLTotal = 1000

// Row is the persisted form of one evaluation record.
type Row struct {
	Nodes int64   `json:"nodes" bson:"nodes"`
	W     int     `json:"w" bson:"w"`
	D     int     `json:"d" bson:"d"`
	L     int     `json:"l" bson:"l"`
	Depth int     `json:"depth" bson:"depth"`
	Score float64 `json:"score" bson:"score"`
	Mate  int     `json:"mate" bson:"mate"`
	PV    string  `json:"pv,omitempty" bson:"pv,omitempty"`
}

// EmptyRow returns a row with both halves absent.
func EmptyRow() Row {
	return Row{Nodes: Unset, Depth: Unset}
}

// Validate checks the row invariants. The returned error wraps ErrMalformedRecord.
func (r Row) Validate() error {
	switch {
	case r.Nodes != Unset && r.Nodes <= 0:
		return fmt.Errorf("%w: nodes budget %d", ErrMalformedRecord, r.Nodes)
	case r.Depth != Unset && r.Depth <= 0:
		return fmt.Errorf("%w: depth budget %d", ErrMalformedRecord, r.Depth)
	case math.IsNaN(r.Score) || math.IsInf(r.Score, 0):
		return fmt.Errorf("%w: score %v", ErrMalformedRecord, r.Score)
	}
	if r.Nodes != Unset {
		if r.W < 0 || r.D < 0 || r.L < 0 || r.W+r.D+r.L != WDLTotal {
			return fmt.Errorf("%w: wdl [%d,%d,%d]", ErrMalformedRecord, r.W, r.D, r.L)
		}
	}
	return nil
}

// Entry is one row visited by Scan. Err is set, and Row is zero, when the stored
// bytes for Key could not be decoded.
type Entry struct {
	Key string
	Row Row
	Err error
}

// Store defines the interface for storage backends.
// Implementations must be safe for concurrent use. Backends that can apply a
// read-modify-write atomically also implement Merger.
type Store interface {
	// Get returns the row for key. It returns ErrNotFound if no row exists and
	// an error wrapping ErrMalformedRecord if the stored row is unreadable.
	Get(ctx context.Context, key string) (Row, error)

	// Put unconditionally writes the row for key.
	Put(ctx context.Context, key string, row Row) error

	// Scan calls fn for every stored row. Iteration stops at the first
	// non-nil error returned by fn, which Scan returns.
	Scan(ctx context.Context, fn func(Entry) error) error

	// Close releases any resources held by the store.
	Close() error
}

// MergeFunc computes the row to store from the current one. err is nil,
// ErrNotFound, or wraps ErrMalformedRecord; current is only meaningful when err
// is nil. Returning write false leaves the stored row as it is. A MergeFunc may
// be called more than once for one Merge and must not have side effects beyond
// its return values.
type MergeFunc func(current Row, err error) (next Row, write bool)

// Merger is implemented by stores that run a MergeFunc atomically with respect
// to every other writer of the key, including other processes.
type Merger interface {
	Merge(ctx context.Context, key string, fn MergeFunc) error
}

// Merge applies fn to the row stored under key. It delegates to s when s
// implements Merger; otherwise it reads and writes in two steps, and the
// caller must serialize writers of key.
func Merge(ctx context.Context, s Store, key string, fn MergeFunc) error {
	if m, ok := s.(Merger); ok {
		return m.Merge(ctx, key, fn)
	}

	current, err := s.Get(ctx, key)
	if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrMalformedRecord) {
		return err
	}
	next, write := fn(current, err)
	if !write {
		return nil
	}
	return s.Put(ctx, key, next)
}

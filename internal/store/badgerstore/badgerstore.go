// Package badgerstore provides the default persistent store, an embedded
// BadgerDB key-value database.
package badgerstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/discochess/annotator/internal/store"
	"github.com/discochess/annotator/internal/store/rowcodec"
)

// keyPrefix namespaces evaluation rows inside the database.
const keyPrefix = "eval/"

var (
	_ store.Store  = (*Store)(nil)
	_ store.Merger = (*Store)(nil)
)

// Store persists rows in a BadgerDB directory.
type Store struct {
	db     *badger.DB
	logger *zap.Logger
}

// Option configures a Store.
type Option func(*config)

type config struct {
	logger   *zap.Logger
	inMemory bool
	syncWrit bool
}

// WithLogger routes badger's internal logging to logger at debug level.
func WithLogger(logger *zap.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithInMemory keeps the database in memory. The directory argument is ignored.
func WithInMemory() Option {
	return func(c *config) { c.inMemory = true }
}

// WithSyncWrites fsyncs every write.
func WithSyncWrites(sync bool) Option {
	return func(c *config) { c.syncWrit = sync }
}

// Open opens or creates a database in dir.
func Open(dir string, opts ...Option) (*Store, error) {
	cfg := config{logger: zap.NewNop()}
	for _, o := range opts {
		o(&cfg)
	}

	bopts := badger.DefaultOptions(dir)
	if cfg.inMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	}
	bopts = bopts.WithSyncWrites(cfg.syncWrit).WithLogger(badgerLogger{cfg.logger.Sugar()})

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("opening badger at %q: %w", dir, err)
	}
	return &Store{db: db, logger: cfg.logger}, nil
}

// Get reads a row.
func (s *Store) Get(ctx context.Context, key string) (store.Row, error) {
	if err := ctx.Err(); err != nil {
		return store.Row{}, err
	}

	var row store.Row
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		row, err = getRow(txn, []byte(keyPrefix+key))
		return err
	})
	if err != nil {
		return store.Row{}, err
	}
	return row, nil
}

func getRow(txn *badger.Txn, key []byte) (store.Row, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return store.Row{}, store.ErrNotFound
	}
	if err != nil {
		return store.Row{}, err
	}
	var row store.Row
	err = item.Value(func(val []byte) error {
		row, err = rowcodec.Unmarshal(val)
		return err
	})
	return row, err
}

// Put writes a row.
func (s *Store) Put(ctx context.Context, key string, row store.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := rowcodec.Marshal(row)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+key), data)
	})
}

// Merge reads and writes key inside one update transaction, retrying when
// badger reports a conflicting concurrent transaction.
func (s *Store) Merge(ctx context.Context, key string, fn store.MergeFunc) error {
	k := []byte(keyPrefix + key)
	for attempt := 0; attempt < store.MaxMergeAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.Update(func(txn *badger.Txn) error {
			current, err := getRow(txn, k)
			if err != nil && !errors.Is(err, store.ErrNotFound) && !errors.Is(err, store.ErrMalformedRecord) {
				return err
			}
			next, write := fn(current, err)
			if !write {
				return nil
			}
			data, err := rowcodec.Marshal(next)
			if err != nil {
				return err
			}
			return txn.Set(k, data)
		})
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		return err
	}
	return fmt.Errorf("merging %q: %w", key, store.ErrContention)
}

// Scan iterates rows in key order inside a single read transaction.
func (s *Store) Scan(ctx context.Context, fn func(store.Entry) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			entry := store.Entry{Key: string(item.Key()[len(prefix):])}
			err := item.Value(func(val []byte) error {
				entry.Row, entry.Err = rowcodec.Unmarshal(val)
				return nil
			})
			if err != nil {
				return err
			}
			if err := fn(entry); err != nil {
				return err
			}
		}
		return nil
	})
}

// putRaw writes bytes without validation. Used by tests to plant corrupt rows.
func (s *Store) putRaw(key string, data []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+key), data)
	})
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// badgerLogger adapts zap to badger.Logger.
type badgerLogger struct {
	s *zap.SugaredLogger
}

func (l badgerLogger) Errorf(f string, args ...interface{})   { l.s.Errorf(f, args...) }
func (l badgerLogger) Warningf(f string, args ...interface{}) { l.s.Warnf(f, args...) }
func (l badgerLogger) Infof(f string, args ...interface{})    { l.s.Debugf(f, args...) }
func (l badgerLogger) Debugf(f string, args ...interface{})   { l.s.Debugf(f, args...) }

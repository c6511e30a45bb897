// Package redisstore stores rows in Redis so several annotator processes can
// share one evaluation cache.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/discochess/annotator/internal/store"
	"github.com/discochess/annotator/internal/store/rowcodec"
)

// DefaultPrefix is prepended to every fingerprint.
const DefaultPrefix = "annotator:eval:"

var (
	_ store.Store  = (*Store)(nil)
	_ store.Merger = (*Store)(nil)
)

// Store persists rows as JSON strings.
type Store struct {
	client *redis.Client
	prefix string
}

// Config holds the Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	// Prefix defaults to DefaultPrefix.
	Prefix string
}

// New connects to Redis and verifies the connection with a PING.
func New(ctx context.Context, cfg Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
	}

	return NewFromClient(client, cfg.Prefix), nil
}

// NewFromClient wraps an existing client. The store takes ownership of it.
func NewFromClient(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

// Get reads a row.
func (s *Store) Get(ctx context.Context, key string) (store.Row, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return store.Row{}, store.ErrNotFound
	}
	if err != nil {
		return store.Row{}, fmt.Errorf("redis get: %w", err)
	}
	return rowcodec.Unmarshal(data)
}

// Put writes a row with no expiry.
func (s *Store) Put(ctx context.Context, key string, row store.Row) error {
	data, err := rowcodec.Marshal(row)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.prefix+key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Merge reads and rewrites key inside a WATCH transaction. The write is
// dropped and retried when another client changes key in between.
func (s *Store) Merge(ctx context.Context, key string, fn store.MergeFunc) error {
	k := s.prefix + key
	txf := func(tx *redis.Tx) error {
		var (
			current store.Row
			getErr  error
		)
		data, err := tx.Get(ctx, k).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			getErr = store.ErrNotFound
		case err != nil:
			return fmt.Errorf("redis get: %w", err)
		default:
			current, getErr = rowcodec.Unmarshal(data)
		}

		next, write := fn(current, getErr)
		if !write {
			return nil
		}
		encoded, err := rowcodec.Marshal(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, encoded, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < store.MaxMergeAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, k)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("redis merge: %w", err)
		}
		return nil
	}
	return fmt.Errorf("merging %q: %w", key, store.ErrContention)
}

// Scan walks the keyspace with SCAN. Rows written during a scan may or may not
// be visited.
func (s *Store) Scan(ctx context.Context, fn func(store.Entry) error) error {
	it := s.client.Scan(ctx, 0, s.prefix+"*", 512).Iterator()
	for it.Next(ctx) {
		key := it.Val()
		data, err := s.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return fmt.Errorf("redis get: %w", err)
		}
		entry := store.Entry{Key: strings.TrimPrefix(key, s.prefix)}
		entry.Row, entry.Err = rowcodec.Unmarshal(data)
		if err := fn(entry); err != nil {
			return err
		}
	}
	return it.Err()
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Package mongostore stores rows as MongoDB documents keyed by fingerprint.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/discochess/annotator/internal/store"
)

const (
	DefaultDatabase   = "annotator"
	DefaultCollection = "evaluations"
)

var (
	_ store.Store  = (*Store)(nil)
	_ store.Merger = (*Store)(nil)
)

// Config holds the MongoDB connection settings.
type Config struct {
	URI        string
	Database   string
	Collection string
}

// Store persists rows in a MongoDB collection.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// document is the stored shape. The fingerprint is the _id. Rev changes on
// every write and guards Merge's compare-and-swap.
type document struct {
	ID        string `bson:"_id"`
	Rev       string `bson:"rev,omitempty"`
	store.Row `bson:",inline"`
}

// Open connects to MongoDB and pings the primary.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongodb: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging mongodb: %w", err)
	}

	db, coll := cfg.Database, cfg.Collection
	if db == "" {
		db = DefaultDatabase
	}
	if coll == "" {
		coll = DefaultCollection
	}
	return &Store{client: client, coll: client.Database(db).Collection(coll)}, nil
}

// Get reads a row.
func (s *Store) Get(ctx context.Context, key string) (store.Row, error) {
	raw, err := s.coll.FindOne(ctx, bson.M{"_id": key}).Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return store.Row{}, store.ErrNotFound
	}
	if err != nil {
		return store.Row{}, fmt.Errorf("mongodb find: %w", err)
	}
	_, row, err := decode(raw)
	return row, err
}

// Put upserts a row.
func (s *Store) Put(ctx context.Context, key string, row store.Row) error {
	if err := row.Validate(); err != nil {
		return err
	}
	_, err := s.coll.ReplaceOne(ctx,
		bson.M{"_id": key},
		document{ID: key, Rev: uuid.NewString(), Row: row},
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongodb replace: %w", err)
	}
	return nil
}

// Merge is an optimistic compare-and-swap on the document revision: the
// replacement only matches if no other writer changed the document since it
// was read. A missing document is inserted, and a duplicate key means another
// writer got there first.
func (s *Store) Merge(ctx context.Context, key string, fn store.MergeFunc) error {
	for attempt := 0; attempt < store.MaxMergeAttempts; attempt++ {
		done, err := s.mergeOnce(ctx, key, fn)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	return fmt.Errorf("merging %q: %w", key, store.ErrContention)
}

func (s *Store) mergeOnce(ctx context.Context, key string, fn store.MergeFunc) (bool, error) {
	var (
		current store.Row
		getErr  error
		filter  bson.M
	)
	raw, err := s.coll.FindOne(ctx, bson.M{"_id": key}).Raw()
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		getErr = store.ErrNotFound
	case err != nil:
		return false, fmt.Errorf("mongodb find: %w", err)
	default:
		_, current, getErr = decode(raw)
		if rev, ok := raw.Lookup("rev").StringValueOK(); ok {
			filter = bson.M{"_id": key, "rev": rev}
		} else {
			filter = bson.M{"_id": key, "rev": bson.M{"$exists": false}}
		}
	}

	next, write := fn(current, getErr)
	if !write {
		return true, nil
	}
	if err := next.Validate(); err != nil {
		return false, err
	}
	doc := document{ID: key, Rev: uuid.NewString(), Row: next}

	if filter == nil {
		_, err := s.coll.InsertOne(ctx, doc)
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("mongodb insert: %w", err)
		}
		return true, nil
	}

	res, err := s.coll.ReplaceOne(ctx, filter, doc)
	if err != nil {
		return false, fmt.Errorf("mongodb replace: %w", err)
	}
	return res.MatchedCount == 1, nil
}

// Scan visits every document in _id order.
func (s *Store) Scan(ctx context.Context, fn func(store.Entry) error) error {
	cur, err := s.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return fmt.Errorf("mongodb find: %w", err)
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		key, row, err := decode(cur.Current)
		if err := fn(store.Entry{Key: key, Row: row, Err: err}); err != nil {
			return err
		}
	}
	return cur.Err()
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func decode(raw bson.Raw) (string, store.Row, error) {
	doc := document{Row: store.EmptyRow()}
	if err := bson.Unmarshal(raw, &doc); err != nil {
		key, _ := raw.Lookup("_id").StringValueOK()
		return key, store.Row{}, fmt.Errorf("%w: %v", store.ErrMalformedRecord, err)
	}
	if err := doc.Row.Validate(); err != nil {
		return doc.ID, store.Row{}, err
	}
	return doc.ID, doc.Row, nil
}

// Package pgstore stores rows in a PostgreSQL table, one column per record field.
//
// Absent halves are stored as NULL budgets so the table can be queried directly:
//
//	SELECT count(*) FROM evaluations WHERE depth_budget >= 20;
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/discochess/annotator/internal/store"
)

// DefaultTable is the table used when Config.Table is empty.
const DefaultTable = "evaluations"

var (
	_ store.Store  = (*Store)(nil)
	_ store.Merger = (*Store)(nil)
)

// Config holds the PostgreSQL connection settings.
type Config struct {
	// DSN is a lib/pq connection string or postgres:// URL.
	DSN   string
	Table string
	// CreateTable issues CREATE TABLE IF NOT EXISTS on open.
	CreateTable bool
}

// Store persists rows in PostgreSQL.
type Store struct {
	db    *sql.DB
	table string
}

// Open connects to PostgreSQL and pings it.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db.Ping: %w", err)
	}

	table := cfg.Table
	if table == "" {
		table = DefaultTable
	}
	s := &Store{db: db, table: pq.QuoteIdentifier(table)}

	if cfg.CreateTable {
		if err := s.createTable(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) createTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS `+s.table+` (
			fingerprint    TEXT PRIMARY KEY,
			nodes_budget   BIGINT,
			w              INT,
			d              INT,
			l              INT,
			depth_budget   INT,
			score          DOUBLE PRECISION,
			mate           INT,
			principal_line TEXT
		)`)
	if err != nil {
		return fmt.Errorf("creating table %s: %w", s.table, err)
	}
	return nil
}

// columns lists the selected columns in scan order.
const columns = `fingerprint, nodes_budget, w, d, l, depth_budget, score, mate, principal_line`

// Get reads a row.
func (s *Store) Get(ctx context.Context, key string) (store.Row, error) {
	r := s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM `+s.table+` WHERE fingerprint = $1`, key)
	_, row, err := scanRow(r)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Row{}, store.ErrNotFound
	}
	return row, err
}

// Put upserts a row.
func (s *Store) Put(ctx context.Context, key string, row store.Row) error {
	if err := row.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO `+s.table+` (`+columns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (fingerprint) DO UPDATE SET
			nodes_budget = EXCLUDED.nodes_budget,
			w = EXCLUDED.w,
			d = EXCLUDED.d,
			l = EXCLUDED.l,
			depth_budget = EXCLUDED.depth_budget,
			score = EXCLUDED.score,
			mate = EXCLUDED.mate,
			principal_line = EXCLUDED.principal_line`,
		rowArgs(key, row)...)
	if err != nil {
		return fmt.Errorf("upserting %q: %w", key, err)
	}
	return nil
}

// Merge locks the row with SELECT ... FOR UPDATE and rewrites it in the same
// transaction. A missing row is inserted with ON CONFLICT DO NOTHING; losing
// that race to another writer restarts the merge against the winner's row.
func (s *Store) Merge(ctx context.Context, key string, fn store.MergeFunc) error {
	for attempt := 0; attempt < store.MaxMergeAttempts; attempt++ {
		done, err := s.mergeOnce(ctx, key, fn)
		if err != nil {
			return fmt.Errorf("merging %q: %w", key, err)
		}
		if done {
			return nil
		}
	}
	return fmt.Errorf("merging %q: %w", key, store.ErrContention)
}

func (s *Store) mergeOnce(ctx context.Context, key string, fn store.MergeFunc) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	r := tx.QueryRowContext(ctx, `SELECT `+columns+` FROM `+s.table+` WHERE fingerprint = $1 FOR UPDATE`, key)
	_, current, getErr := scanRow(r)
	exists := true
	switch {
	case errors.Is(getErr, sql.ErrNoRows):
		getErr, exists = store.ErrNotFound, false
	case getErr != nil && !errors.Is(getErr, store.ErrMalformedRecord):
		return false, getErr
	}

	next, write := fn(current, getErr)
	if !write {
		return true, tx.Commit()
	}
	if err := next.Validate(); err != nil {
		return false, err
	}

	if exists {
		_, err = tx.ExecContext(ctx, `
			UPDATE `+s.table+` SET
				nodes_budget = $2, w = $3, d = $4, l = $5,
				depth_budget = $6, score = $7, mate = $8, principal_line = $9
			WHERE fingerprint = $1`,
			rowArgs(key, next)...)
		if err != nil {
			return false, err
		}
		return true, tx.Commit()
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO `+s.table+` (`+columns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (fingerprint) DO NOTHING`,
		rowArgs(key, next)...)
	if err != nil {
		return false, err
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if inserted == 0 {
		return false, nil
	}
	return true, tx.Commit()
}

// rowArgs returns the column values of row in columns order, with NULL for the
// columns of an absent half.
func rowArgs(key string, row store.Row) []any {
	var (
		nodes, depth  sql.NullInt64
		w, d, l, mate sql.NullInt64
		score         sql.NullFloat64
		principalLine sql.NullString
	)
	if row.Nodes != store.Unset {
		nodes = sql.NullInt64{Int64: row.Nodes, Valid: true}
		w = sql.NullInt64{Int64: int64(row.W), Valid: true}
		d = sql.NullInt64{Int64: int64(row.D), Valid: true}
		l = sql.NullInt64{Int64: int64(row.L), Valid: true}
	}
	if row.Depth != store.Unset {
		depth = sql.NullInt64{Int64: int64(row.Depth), Valid: true}
		score = sql.NullFloat64{Float64: row.Score, Valid: true}
		mate = sql.NullInt64{Int64: int64(row.Mate), Valid: true}
	}
	if row.PV != "" {
		principalLine = sql.NullString{String: row.PV, Valid: true}
	}
	return []any{key, nodes, w, d, l, depth, score, mate, principalLine}
}

// Scan visits rows in fingerprint order.
func (s *Store) Scan(ctx context.Context, fn func(store.Entry) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT `+columns+` FROM `+s.table+` ORDER BY fingerprint`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		key, row, err := scanRow(rows)
		if err != nil && !errors.Is(err, store.ErrMalformedRecord) {
			return err
		}
		if err := fn(store.Entry{Key: key, Row: row, Err: err}); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

// scanRow converts one SQL row. A half whose budget is set but whose value
// columns are NULL is malformed.
func scanRow(sc scanner) (string, store.Row, error) {
	var (
		key           string
		nodes, depth  sql.NullInt64
		w, d, l, mate sql.NullInt64
		score         sql.NullFloat64
		principalLine sql.NullString
	)
	if err := sc.Scan(&key, &nodes, &w, &d, &l, &depth, &score, &mate, &principalLine); err != nil {
		return "", store.Row{}, err
	}

	row := store.EmptyRow()
	if nodes.Valid {
		if !w.Valid || !d.Valid || !l.Valid {
			return key, store.Row{}, fmt.Errorf("%w: %q has nodes budget without wdl", store.ErrMalformedRecord, key)
		}
		row.Nodes = nodes.Int64
		row.W, row.D, row.L = int(w.Int64), int(d.Int64), int(l.Int64)
	}
	if depth.Valid {
		if !score.Valid {
			return key, store.Row{}, fmt.Errorf("%w: %q has depth budget without score", store.ErrMalformedRecord, key)
		}
		row.Depth = int(depth.Int64)
		row.Score = score.Float64
		row.Mate = int(mate.Int64)
	}
	row.PV = principalLine.String

	if err := row.Validate(); err != nil {
		return key, store.Row{}, err
	}
	return key, row, nil
}

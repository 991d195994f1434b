/*
Package sqlstore implements store.Store over database/sql.

PURPOSE:
  One implementation of the generic persistent-store interface shared by the
  SQLite and Postgres backends. The two only differ in their Dialect
  (placeholders, ILIKE, column types, conflict detection).

SAFETY:
  Table and column names come from user input on some routes. Every name is
  checked against the schema registry (store.ValidateQuery) and must also be a
  plain identifier before it is quoted into a statement. Values are always
  bound as parameters.

WRITES:
  Insert and Upsert run one statement per row inside a transaction, so rows
  with different column sets can be written together and a failure leaves
  nothing behind.

SEE ALSO:
  - builder.go: Statement generation
  - ddl.go:     Schema migration
  - store/sqlite, store/postgres: Driver wiring
*/
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/warp/millops/store"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// conn runs statements against a querier.
type conn struct {
	q querier
	d Dialect
}

// Store implements store.Store and store.TxStore.
type Store struct {
	conn
	db *sql.DB
}

// New wraps an open database handle.
func New(db *sql.DB, d Dialect) *Store {
	return &Store{conn: conn{q: db, d: d}, db: db}
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Dialect returns the store's dialect.
func (s *Store) Dialect() Dialect { return s.d }

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx executes fn within a transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&conn{q: tx, d: s.d}); err != nil {
		return err
	}
	return tx.Commit()
}

// =============================================================================
// store.Store
// =============================================================================

// Fetch returns the rows matching q.
func (c *conn) Fetch(ctx context.Context, q store.Query) ([]store.Row, error) {
	t, err := store.ValidateQuery(q)
	if err != nil {
		return nil, err
	}
	query, args, err := buildSelect(c.d, q)
	if err != nil {
		return nil, err
	}
	return c.query(ctx, t, query, args)
}

// Insert stores rows and returns them as persisted.
func (c *conn) Insert(ctx context.Context, table string, rows []store.Row) ([]store.Row, error) {
	return c.write(ctx, table, rows, nil)
}

// Upsert inserts rows, resolving conflicts on opts.OnConflict.
func (c *conn) Upsert(ctx context.Context, table string, rows []store.Row, opts store.UpsertOptions) ([]store.Row, error) {
	t, err := store.Lookup(table)
	if err != nil {
		return nil, err
	}
	if err := t.Validate(opts.OnConflict...); err != nil {
		return nil, err
	}
	return c.write(ctx, table, rows, &opts)
}

// Update sets columns on every matching row.
func (c *conn) Update(ctx context.Context, table string, set store.Row, filters ...store.Filter) ([]store.Row, error) {
	t, err := store.Lookup(table)
	if err != nil {
		return nil, err
	}
	if err := store.ValidateRow(t, set); err != nil {
		return nil, err
	}
	if err := store.ValidateFilters(t, filters); err != nil {
		return nil, err
	}

	query, args, err := buildUpdate(c.d, t, store.NormalizeRow(t, set), filters)
	if err != nil {
		return nil, err
	}
	rows, err := c.query(ctx, t, query, args)
	if err != nil {
		return nil, c.wrap("update", t.Name, err)
	}
	return rows, nil
}

// Delete removes every matching row.
func (c *conn) Delete(ctx context.Context, table string, filters ...store.Filter) (int64, error) {
	t, err := store.Lookup(table)
	if err != nil {
		return 0, err
	}
	if err := store.ValidateFilters(t, filters); err != nil {
		return 0, err
	}

	query, args, err := buildDelete(c.d, t, filters)
	if err != nil {
		return 0, err
	}
	res, err := c.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, c.wrap("delete from", t.Name, err)
	}
	return res.RowsAffected()
}

// =============================================================================
// HELPERS
// =============================================================================

func (c *conn) write(ctx context.Context, table string, rows []store.Row, opts *store.UpsertOptions) ([]store.Row, error) {
	t, err := store.Lookup(table)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		if err := store.ValidateRow(t, r); err != nil {
			return nil, err
		}
	}
	if len(rows) == 0 {
		return []store.Row{}, nil
	}

	run := func(target *conn) ([]store.Row, error) {
		out := make([]store.Row, 0, len(rows))
		for _, r := range rows {
			query, args, err := buildInsert(target.d, t, store.NormalizeRow(t, r), opts)
			if err != nil {
				return nil, err
			}
			written, err := target.query(ctx, t, query, args)
			if err != nil {
				return nil, target.wrap("insert into", t.Name, err)
			}
			out = append(out, written...)
		}
		return out, nil
	}

	// Already inside WithTx.
	if _, ok := c.q.(*sql.Tx); ok {
		return run(c)
	}
	db, ok := c.q.(*sql.DB)
	if !ok {
		return run(c)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	out, err := run(&conn{q: tx, d: c.d})
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit %s: %w", t.Name, err)
	}
	return out, nil
}

func (c *conn) query(ctx context.Context, t store.Table, query string, args []any) ([]store.Row, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", t.Name, err)
	}
	defer rows.Close()
	return scanRows(rows, t)
}

func (c *conn) wrap(verb, table string, err error) error {
	if c.d.IsConflict != nil && c.d.IsConflict(err) {
		return fmt.Errorf("%s %s: %w: %v", verb, table, store.ErrConflict, err)
	}
	return fmt.Errorf("failed to %s %s: %w", verb, table, err)
}

/*
store.go - Persistence interface shared by every route

PURPOSE:
  Defines the one generic interface between the HTTP layer / dispatch pipeline
  and the database. Every table is reached through the same five operations,
  so the handlers never build SQL and the pipeline can run against SQLite,
  hosted Postgres or the in-memory store unchanged.

KEY TYPES:
  Row:           One record, column name -> value
  Query:         Table + projection + filters + ordering + limit
  Filter:        Column predicate (see filter.go)
  UpsertOptions: Conflict columns and insert-or-ignore switch

OPERATIONS:
  Fetch():  Filtered read
  Insert(): Insert rows, returns them with generated columns
  Update(): Set columns on every row matching the filters, returns affected rows
  Upsert(): Insert or update on conflict
  Delete(): Delete matching rows, returns the count

IMPLEMENTATIONS:
  - store/sqlite:   Embedded SQLite (development, tests)
  - store/postgres: Hosted Postgres through lib/pq
  - store/memory:   In-memory, with failure injection for tests

SEE ALSO:
  - filter.go: Filter operators and in-memory evaluation
  - schema.go: Table registry used for validation and migrations
  - errors.go: Sentinel errors
*/
package store

import "context"

// =============================================================================
// ROWS AND QUERIES
// =============================================================================

// Row is a single record keyed by column name.
type Row map[string]any

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Without returns a copy of the row without the given columns.
func (r Row) Without(columns ...string) Row {
	out := r.Clone()
	for _, c := range columns {
		delete(out, c)
	}
	return out
}

// Order is one ORDER BY term.
type Order struct {
	Column     string
	Descending bool
}

// Asc orders by column ascending.
func Asc(column string) Order { return Order{Column: column} }

// Desc orders by column descending.
func Desc(column string) Order { return Order{Column: column, Descending: true} }

// Query describes a filtered read. An empty Columns list selects every column.
// A zero Limit means no limit.
type Query struct {
	Table   string
	Columns []string
	Filters []Filter
	OrderBy []Order
	Limit   int
}

// UpsertOptions controls conflict handling for Upsert.
type UpsertOptions struct {
	// OnConflict lists the unique columns that identify an existing row.
	OnConflict []string

	// IgnoreDuplicates keeps the existing row untouched on conflict.
	IgnoreDuplicates bool
}

// =============================================================================
// STORE
// =============================================================================

// Store is the persistent-store abstraction consumed by every route.
type Store interface {
	// Fetch returns the rows matching q.
	Fetch(ctx context.Context, q Query) ([]Row, error)

	// Insert stores rows and returns them as persisted (ids, defaults).
	Insert(ctx context.Context, table string, rows []Row) ([]Row, error)

	// Update sets the given columns on every row matching filters and returns
	// the affected rows. No match is not an error.
	Update(ctx context.Context, table string, set Row, filters ...Filter) ([]Row, error)

	// Upsert inserts rows, resolving conflicts on opts.OnConflict.
	// With IgnoreDuplicates only newly inserted rows are returned.
	Upsert(ctx context.Context, table string, rows []Row, opts UpsertOptions) ([]Row, error)

	// Delete removes every row matching filters and returns how many went.
	Delete(ctx context.Context, table string, filters ...Filter) (int64, error)
}

// TxStore is implemented by stores that can run several writes atomically.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// RunInTx runs fn inside a transaction when s supports one, and directly
// against s otherwise.
func RunInTx(ctx context.Context, s Store, fn func(Store) error) error {
	if tx, ok := s.(TxStore); ok {
		return tx.WithTx(ctx, fn)
	}
	return fn(s)
}

// First returns the first row of q, or ErrNotFound.
func First(ctx context.Context, s Store, q Query) (Row, error) {
	q.Limit = 1
	rows, err := s.Fetch(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

/*
Package postgres provides the hosted Postgres backend.

PURPOSE:
  Runs the generic SQL store (store/sqlstore) on lib/pq. This is the
  production backend: the dataset lives in a hosted Postgres-compatible
  service and every route reaches it through store.Store.

MIGRATION:
  The hosted database is usually provisioned ahead of time, so migration is
  opt-in (Options.Migrate). When enabled, missing tables and indexes are
  created from the store.Schema registry; existing ones are left alone.

POOLING:
  database/sql pools connections. The reconciler issues up to one batch of
  concurrent updates, so MaxOpenConns should be at least the sync batch size.

SEE ALSO:
  - store/sqlstore: Statement generation and row scanning
  - store/sqlite:   Embedded backend for development
*/
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/warp/millops/store/sqlstore"
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// Options configures the connection pool.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Migrate         bool
}

// DefaultOptions returns pool settings sized for the default sync batch.
func DefaultOptions() Options {
	return Options{
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// Store is a sqlstore.Store on Postgres.
type Store struct {
	*sqlstore.Store
}

// Dialect is the Postgres dialect with SQLSTATE-based conflict detection.
func Dialect() sqlstore.Dialect {
	d := sqlstore.Postgres
	d.IsConflict = isUniqueViolation
	return d
}

// New connects to the database at dsn (a postgres:// URL or key=value string).
func New(ctx context.Context, dsn string, opts Options) (*Store, error) {
	connector, err := pq.NewConnector(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid database url: %w", err)
	}

	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	st := &Store{Store: sqlstore.New(db, Dialect())}
	if opts.Migrate {
		if err := st.Migrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}
	return st, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	return false
}

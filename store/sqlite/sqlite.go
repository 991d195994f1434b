/*
Package sqlite provides the embedded SQLite backend.

PURPOSE:
  Runs the generic SQL store (store/sqlstore) on mattn/go-sqlite3 for local
  development, demos and tests. Production runs against hosted Postgres
  (store/postgres) through the same interface.

CONCURRENCY:
  The pool is limited to one connection. Writes are serialised by SQLite
  anyway, and ":memory:" databases exist per connection, so a single
  connection keeps every caller on the same database. The reconciler's batch
  fan-out still works; its updates simply queue on the connection.

WAL MODE:
  File databases are opened with WAL and a busy timeout:
  - Readers don't block the writer
  - Better crash recovery

USAGE:
  st, err := sqlite.New("./data/millops.db")
  if err != nil {
      log.Fatal(err)
  }
  defer st.Close()

MIGRATION:
  Schema is auto-migrated on New() from the store.Schema registry.

SEE ALSO:
  - store/store.go: Interface definition
  - store/sqlstore: Statement generation and row scanning
  - store/memory:   In-memory implementation for unit tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
	"github.com/warp/millops/store/sqlstore"
)

// Store is a sqlstore.Store on SQLite.
type Store struct {
	*sqlstore.Store
}

// Dialect is the SQLite dialect with driver-level conflict detection.
func Dialect() sqlstore.Dialect {
	d := sqlstore.SQLite
	d.IsConflict = isUniqueConstraintError
	return d
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_foreign_keys=on&_busy_timeout=5000"
	if dbPath != ":memory:" {
		dsn += "&_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	st := &Store{Store: sqlstore.New(db, Dialect())}
	if err := st.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return st, nil
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

package sqlstore

import (
	"fmt"
	"strings"

	"github.com/warp/millops/store"
)

// Dialect captures the SQL differences between SQLite and Postgres.
type Dialect struct {
	Name string

	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string

	// CaseInsensitiveLike is the operator used for store.OpILike.
	CaseInsensitiveLike string

	// TimeAsText binds time.Time values as RFC3339 strings.
	TimeAsText bool

	// Types maps logical column types to column definitions.
	Types map[store.ColumnType]string

	// PrimaryKey is the full definition of the id column.
	PrimaryKey string

	// Now is the default expression for created_at.
	Now string

	// IsConflict recognises a unique-constraint violation from the driver.
	IsConflict func(error) bool
}

// SQLite is the dialect of mattn/go-sqlite3.
var SQLite = Dialect{
	Name:                "sqlite",
	Placeholder:         func(int) string { return "?" },
	CaseInsensitiveLike: "LIKE",
	TimeAsText:          true,
	Types: map[store.ColumnType]string{
		store.TypeText:      "TEXT",
		store.TypeInteger:   "INTEGER",
		store.TypeReal:      "REAL",
		store.TypeDate:      "TEXT",
		store.TypeTimestamp: "TEXT",
		store.TypeJSON:      "TEXT",
	},
	PrimaryKey: `"id" INTEGER PRIMARY KEY AUTOINCREMENT`,
	Now:        `(strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))`,
	IsConflict: messageConflict,
}

// Postgres is the dialect of lib/pq.
var Postgres = Dialect{
	Name:                "postgres",
	Placeholder:         func(n int) string { return fmt.Sprintf("$%d", n) },
	CaseInsensitiveLike: "ILIKE",
	Types: map[store.ColumnType]string{
		store.TypeText:      "TEXT",
		store.TypeInteger:   "BIGINT",
		store.TypeReal:      "DOUBLE PRECISION",
		store.TypeDate:      "DATE",
		store.TypeTimestamp: "TIMESTAMPTZ",
		store.TypeJSON:      "JSONB",
	},
	PrimaryKey: `"id" BIGSERIAL PRIMARY KEY`,
	Now:        "now()",
	IsConflict: messageConflict,
}

func messageConflict(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}

package sqlstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/warp/millops/store"
)

// scanRows reads every row into a store.Row, normalising driver types:
// []byte becomes string, JSON columns are decoded, date columns are
// rendered as YYYY-MM-DD.
func scanRows(rows *sql.Rows, t store.Table) ([]store.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", t.Name, err)
	}

	out := []store.Row{}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", t.Name, err)
		}

		row := make(store.Row, len(cols))
		for i, name := range cols {
			row[name] = normalize(t, name, vals[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", t.Name, err)
	}
	return out, nil
}

func normalize(t store.Table, name string, v any) any {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	if v == nil {
		return nil
	}

	col, ok := t.Column(name)
	if !ok {
		return v
	}
	switch col.Type {
	case store.TypeJSON:
		if s, ok := v.(string); ok {
			var decoded any
			if err := json.Unmarshal([]byte(s), &decoded); err == nil {
				return decoded
			}
		}
	case store.TypeDate:
		if tm, ok := v.(time.Time); ok {
			return tm.Format("2006-01-02")
		}
	}
	return v
}

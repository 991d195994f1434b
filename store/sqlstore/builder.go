package sqlstore

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/warp/millops/store"
)

// builder accumulates a statement and its bind arguments.
type builder struct {
	d    Dialect
	sb   strings.Builder
	args []any
}

func newBuilder(d Dialect) *builder {
	return &builder{d: d}
}

func (b *builder) write(parts ...string) {
	for _, p := range parts {
		b.sb.WriteString(p)
	}
}

func (b *builder) arg(v any) string {
	b.args = append(b.args, b.bind(v))
	return b.d.Placeholder(len(b.args))
}

func (b *builder) String() string { return b.sb.String() }

// bind converts a JSON-decoded value into something the drivers accept.
func (b *builder) bind(v any) any {
	switch t := v.(type) {
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return int64(t)
		}
		return t
	case json.Number:
		return t.String()
	case time.Time:
		if b.d.TimeAsText {
			return t.UTC().Format(time.RFC3339Nano)
		}
		return t
	case map[string]any, []any:
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(raw)
	}
	return v
}

// quote validates and quotes an identifier.
func quote(name string) (string, error) {
	if !store.ValidIdentifier(name) {
		return "", fmt.Errorf("%w: %q", store.ErrInvalidIdentifier, name)
	}
	return `"` + name + `"`, nil
}

func quoteAll(names []string) ([]string, error) {
	out := make([]string, len(names))
	for i, n := range names {
		q, err := quote(n)
		if err != nil {
			return nil, err
		}
		out[i] = q
	}
	return out, nil
}

// where appends a WHERE clause for filters, if any.
func (b *builder) where(filters []store.Filter) error {
	if len(filters) == 0 {
		return nil
	}
	parts := make([]string, 0, len(filters))
	for _, f := range filters {
		p, err := b.filter(f)
		if err != nil {
			return err
		}
		parts = append(parts, p)
	}
	b.write(" WHERE ", strings.Join(parts, " AND "))
	return nil
}

func (b *builder) filter(f store.Filter) (string, error) {
	if f.Op == store.OpOr {
		if len(f.Any) == 0 {
			return "1 = 0", nil
		}
		parts := make([]string, 0, len(f.Any))
		for _, sub := range f.Any {
			p, err := b.filter(sub)
			if err != nil {
				return "", err
			}
			parts = append(parts, p)
		}
		return "(" + strings.Join(parts, " OR ") + ")", nil
	}

	col, err := quote(f.Column)
	if err != nil {
		return "", err
	}

	switch f.Op {
	case store.OpEq:
		return col + " = " + b.arg(f.Value), nil
	case store.OpNeq:
		return col + " <> " + b.arg(f.Value), nil
	case store.OpGte:
		return col + " >= " + b.arg(f.Value), nil
	case store.OpLte:
		return col + " <= " + b.arg(f.Value), nil
	case store.OpILike:
		return col + " " + b.d.CaseInsensitiveLike + " " + b.arg(f.Value), nil
	case store.OpNotILike:
		return "NOT (" + col + " " + b.d.CaseInsensitiveLike + " " + b.arg(f.Value) + ")", nil
	case store.OpIsNull:
		return col + " IS NULL", nil
	case store.OpNotNull:
		return col + " IS NOT NULL", nil
	case store.OpIn:
		if len(f.Values) == 0 {
			return "1 = 0", nil
		}
		ph := make([]string, len(f.Values))
		for i, v := range f.Values {
			ph[i] = b.arg(v)
		}
		return col + " IN (" + strings.Join(ph, ", ") + ")", nil
	}
	return "", fmt.Errorf("unsupported filter operator %q", f.Op)
}

// =============================================================================
// STATEMENTS
// =============================================================================

func buildSelect(d Dialect, q store.Query) (string, []any, error) {
	b := newBuilder(d)

	table, err := quote(q.Table)
	if err != nil {
		return "", nil, err
	}
	projection := "*"
	if len(q.Columns) > 0 {
		cols, err := quoteAll(q.Columns)
		if err != nil {
			return "", nil, err
		}
		projection = strings.Join(cols, ", ")
	}
	b.write("SELECT ", projection, " FROM ", table)

	if err := b.where(q.Filters); err != nil {
		return "", nil, err
	}

	if len(q.OrderBy) > 0 {
		terms := make([]string, len(q.OrderBy))
		for i, o := range q.OrderBy {
			col, err := quote(o.Column)
			if err != nil {
				return "", nil, err
			}
			dir := "ASC"
			if o.Descending {
				dir = "DESC"
			}
			terms[i] = col + " " + dir
		}
		b.write(" ORDER BY ", strings.Join(terms, ", "))
	}
	if q.Limit > 0 {
		b.write(fmt.Sprintf(" LIMIT %d", q.Limit))
	}
	return b.String(), b.args, nil
}

// sortedKeys returns the row keys in a stable order so statements are
// reproducible.
func sortedKeys(row store.Row, t store.Table) []string {
	keys := make([]string, 0, len(row))
	for _, c := range t.Columns {
		if _, ok := row[c.Name]; ok {
			keys = append(keys, c.Name)
		}
	}
	return keys
}

func buildInsert(d Dialect, t store.Table, row store.Row, opts *store.UpsertOptions) (string, []any, error) {
	b := newBuilder(d)

	table, err := quote(t.Name)
	if err != nil {
		return "", nil, err
	}
	keys := sortedKeys(row, t)
	if len(keys) == 0 {
		b.write("INSERT INTO ", table, " DEFAULT VALUES RETURNING *")
		return b.String(), nil, nil
	}

	cols, err := quoteAll(keys)
	if err != nil {
		return "", nil, err
	}
	ph := make([]string, len(keys))
	for i, k := range keys {
		ph[i] = b.arg(row[k])
	}
	b.write("INSERT INTO ", table, " (", strings.Join(cols, ", "), ") VALUES (", strings.Join(ph, ", "), ")")

	if opts != nil && len(opts.OnConflict) > 0 {
		conflict, err := quoteAll(opts.OnConflict)
		if err != nil {
			return "", nil, err
		}
		b.write(" ON CONFLICT (", strings.Join(conflict, ", "), ")")

		var sets []string
		if !opts.IgnoreDuplicates {
			isKey := make(map[string]bool, len(opts.OnConflict))
			for _, k := range opts.OnConflict {
				isKey[k] = true
			}
			for i, k := range keys {
				if !isKey[k] {
					sets = append(sets, cols[i]+" = excluded."+cols[i])
				}
			}
		}
		if len(sets) == 0 {
			b.write(" DO NOTHING")
		} else {
			b.write(" DO UPDATE SET ", strings.Join(sets, ", "))
		}
	}
	b.write(" RETURNING *")
	return b.String(), b.args, nil
}

func buildUpdate(d Dialect, t store.Table, set store.Row, filters []store.Filter) (string, []any, error) {
	b := newBuilder(d)

	table, err := quote(t.Name)
	if err != nil {
		return "", nil, err
	}
	keys := sortedKeys(set, t)
	if len(keys) == 0 {
		return "", nil, fmt.Errorf("update %s: no columns to set", t.Name)
	}
	assignments := make([]string, len(keys))
	for i, k := range keys {
		col, err := quote(k)
		if err != nil {
			return "", nil, err
		}
		assignments[i] = col + " = " + b.arg(set[k])
	}
	b.write("UPDATE ", table, " SET ", strings.Join(assignments, ", "))
	if err := b.where(filters); err != nil {
		return "", nil, err
	}
	b.write(" RETURNING *")
	return b.String(), b.args, nil
}

func buildDelete(d Dialect, t store.Table, filters []store.Filter) (string, []any, error) {
	b := newBuilder(d)

	table, err := quote(t.Name)
	if err != nil {
		return "", nil, err
	}
	b.write("DELETE FROM ", table)
	if err := b.where(filters); err != nil {
		return "", nil, err
	}
	return b.String(), b.args, nil
}

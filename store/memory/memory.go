// Package memory provides an in-memory store.Store for tests and development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/millops/store"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Call describes one store operation, as seen by a Hook.
type Call struct {
	Op      string // "fetch", "insert", "update", "upsert", "delete"
	Table   string
	Query   store.Query
	Rows    []store.Row
	Set     store.Row
	Filters []store.Filter
}

// Hook runs before every operation. A non-nil error fails the operation
// without touching the data.
type Hook func(ctx context.Context, c Call) error

// Memory keeps every table as a slice of rows.
type Memory struct {
	mu     sync.RWMutex
	tables map[string][]store.Row
	nextID map[string]int64
	hook   Hook
	now    func() time.Time
}

// New creates an empty store.
func New() *Memory {
	return &Memory{
		tables: make(map[string][]store.Row),
		nextID: make(map[string]int64),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetHook installs h. Pass nil to remove it.
func (m *Memory) SetHook(h Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hook = h
}

// Seed inserts rows directly, bypassing the hook. Panics on unknown tables.
func (m *Memory) Seed(table string, rows ...store.Row) []store.Row {
	t, err := store.Lookup(table)
	if err != nil {
		panic(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]store.Row, 0, len(rows))
	for _, r := range rows {
		out = append(out, m.insertLocked(t, r).Clone())
	}
	return out
}

// Rows returns a copy of every row in table.
func (m *Memory) Rows(table string) []store.Row {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneAll(m.tables[table])
}

func (m *Memory) before(ctx context.Context, c Call) error {
	m.mu.RLock()
	h := m.hook
	m.mu.RUnlock()
	if h == nil {
		return ctx.Err()
	}
	return h(ctx, c)
}

// WithTx runs fn against the store and restores the previous contents if fn
// fails. Concurrent writers are not isolated from each other.
func (m *Memory) WithTx(ctx context.Context, fn func(store.Store) error) error {
	m.mu.Lock()
	snapshot := make(map[string][]store.Row, len(m.tables))
	for name, rows := range m.tables {
		snapshot[name] = cloneAll(rows)
	}
	ids := make(map[string]int64, len(m.nextID))
	for name, id := range m.nextID {
		ids[name] = id
	}
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.tables = snapshot
		m.nextID = ids
		m.mu.Unlock()
		return err
	}
	return nil
}

// Fetch returns the rows matching q.
func (m *Memory) Fetch(ctx context.Context, q store.Query) ([]store.Row, error) {
	if _, err := store.ValidateQuery(q); err != nil {
		return nil, err
	}
	if err := m.before(ctx, Call{Op: "fetch", Table: q.Table, Query: q, Filters: q.Filters}); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []store.Row
	for _, r := range m.tables[q.Table] {
		if store.MatchAll(r, q.Filters) {
			out = append(out, r)
		}
	}

	if len(q.OrderBy) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			for _, o := range q.OrderBy {
				c := compareNullsFirst(out[i][o.Column], out[j][o.Column])
				if c == 0 {
					continue
				}
				if o.Descending {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}

	result := make([]store.Row, 0, len(out))
	for _, r := range out {
		if len(q.Columns) == 0 {
			result = append(result, r.Clone())
			continue
		}
		projected := make(store.Row, len(q.Columns))
		for _, c := range q.Columns {
			projected[c] = r[c]
		}
		result = append(result, projected)
	}
	return result, nil
}

// Insert stores rows and returns them with id and created_at.
func (m *Memory) Insert(ctx context.Context, table string, rows []store.Row) ([]store.Row, error) {
	t, err := m.validateWrite(table, rows)
	if err != nil {
		return nil, err
	}
	if err := m.before(ctx, Call{Op: "insert", Table: table, Rows: rows}); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Check all unique constraints first (atomic check)
	pending := make([]store.Row, 0, len(rows))
	for _, r := range rows {
		r = store.NormalizeRow(t, r)
		if m.conflictLocked(t, r, pending) {
			return nil, store.ErrConflict
		}
		pending = append(pending, r)
	}

	out := make([]store.Row, 0, len(rows))
	for _, r := range pending {
		out = append(out, m.insertLocked(t, r).Clone())
	}
	return out, nil
}

// Update sets columns on every matching row.
func (m *Memory) Update(ctx context.Context, table string, set store.Row, filters ...store.Filter) ([]store.Row, error) {
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
	if err := m.before(ctx, Call{Op: "update", Table: table, Set: set, Filters: filters}); err != nil {
		return nil, err
	}

	set = store.NormalizeRow(t, set)

	m.mu.Lock()
	defer m.mu.Unlock()

	out := []store.Row{}
	for _, r := range m.tables[table] {
		if !store.MatchAll(r, filters) {
			continue
		}
		for k, v := range set {
			r[k] = v
		}
		out = append(out, r.Clone())
	}
	return out, nil
}

// Upsert inserts rows, resolving conflicts on opts.OnConflict.
func (m *Memory) Upsert(ctx context.Context, table string, rows []store.Row, opts store.UpsertOptions) ([]store.Row, error) {
	t, err := m.validateWrite(table, rows)
	if err != nil {
		return nil, err
	}
	if err := t.Validate(opts.OnConflict...); err != nil {
		return nil, err
	}
	if err := m.before(ctx, Call{Op: "upsert", Table: table, Rows: rows}); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	out := []store.Row{}
	for _, r := range rows {
		r = store.NormalizeRow(t, r)
		existing := m.findLocked(table, opts.OnConflict, r)
		switch {
		case existing == nil:
			out = append(out, m.insertLocked(t, r).Clone())
		case opts.IgnoreDuplicates:
			continue
		default:
			for k, v := range r {
				existing[k] = v
			}
			out = append(out, existing.Clone())
		}
	}
	return out, nil
}

// Delete removes every matching row.
func (m *Memory) Delete(ctx context.Context, table string, filters ...store.Filter) (int64, error) {
	t, err := store.Lookup(table)
	if err != nil {
		return 0, err
	}
	if err := store.ValidateFilters(t, filters); err != nil {
		return 0, err
	}
	if err := m.before(ctx, Call{Op: "delete", Table: table, Filters: filters}); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.tables[table][:0]
	var removed int64
	for _, r := range m.tables[table] {
		if store.MatchAll(r, filters) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	m.tables[table] = kept
	return removed, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (m *Memory) validateWrite(table string, rows []store.Row) (store.Table, error) {
	t, err := store.Lookup(table)
	if err != nil {
		return t, err
	}
	for _, r := range rows {
		if err := store.ValidateRow(t, r); err != nil {
			return t, err
		}
	}
	return t, nil
}

func (m *Memory) insertLocked(t store.Table, r store.Row) store.Row {
	row := make(store.Row, len(t.Columns))
	for _, c := range t.Columns {
		row[c.Name] = nil
	}
	for k, v := range r {
		row[k] = v
	}
	if row["id"] == nil {
		m.nextID[t.Name]++
		row["id"] = m.nextID[t.Name]
	}
	if row["created_at"] == nil {
		row["created_at"] = m.now()
	}
	m.tables[t.Name] = append(m.tables[t.Name], row)
	return row
}

func (m *Memory) findLocked(table string, keys []string, r store.Row) store.Row {
	if len(keys) == 0 {
		return nil
	}
	for _, existing := range m.tables[table] {
		if sameKey(existing, r, keys) {
			return existing
		}
	}
	return nil
}

func (m *Memory) conflictLocked(t store.Table, r store.Row, pending []store.Row) bool {
	for _, u := range t.Unique {
		if m.findLocked(t.Name, u, r) != nil {
			return true
		}
		for _, p := range pending {
			if sameKey(p, r, u) {
				return true
			}
		}
	}
	return false
}

func sameKey(a, b store.Row, keys []string) bool {
	for _, k := range keys {
		if a[k] == nil || b[k] == nil || !store.Equal(a[k], b[k]) {
			return false
		}
	}
	return true
}

func compareNullsFirst(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return store.Compare(a, b)
}

func cloneAll(rows []store.Row) []store.Row {
	out := make([]store.Row, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out
}

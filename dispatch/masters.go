/*
masters.go - Master table maintenance

PURPOSE:
  Keeps the three master tables in step with dispatch_data so operators can
  curate them before a sync:

    Refresh:     add every natural key seen on active dispatch rows
    Pending:     master rows still waiting for a canonical value
    Edit:        set the canonical value(s) of one master row
    Suggestions: values already in use, for autocompletion

  Count master is split by division. Yarn rows are those whose
  division_description is "Yarn" (case-insensitive); everything else is fabric.

REFRESH SEMANTICS:
  Count master refreshes overwrite division_description on existing keys.
  Market and customer refreshes only add missing keys with an empty value,
  never touching curated rows.

SEE ALSO:
  - reconcile.go: Propagates curated values back onto dispatch_data
*/
package dispatch

import (
	"context"
	"fmt"

	"github.com/warp/millops/store"
)

// Master describes one curated lookup and how it is refreshed.
type Master struct {
	Name      string
	Table     string
	Key       string
	Values    []string
	Scope     []store.Filter
	Carry     []string
	Overwrite bool
}

var (
	YarnCountMaster = Master{
		Name:      "yarn-count",
		Table:     store.TableCountMaster,
		Key:       "item_description",
		Values:    []string{"smpl_count", "blend"},
		Scope:     []store.Filter{store.ILike("division_description", "Yarn")},
		Carry:     []string{"division_description"},
		Overwrite: true,
	}
	FabricCountMaster = Master{
		Name:      "fabric-count",
		Table:     store.TableCountMaster,
		Key:       "item_description",
		Values:    []string{"smpl_count", "blend"},
		Scope:     []store.Filter{store.NotILike("division_description", "Yarn")},
		Carry:     []string{"division_description"},
		Overwrite: true,
	}
	MarketMaster = Master{
		Name:   "market",
		Table:  store.TableMarketMaster,
		Key:    "ship_to_city",
		Values: []string{"market"},
	}
	CustomerMaster = Master{
		Name:   "customer",
		Table:  store.TableCustomerMaster,
		Key:    "bill_to_customer",
		Values: []string{"customer_name"},
	}
)

// Masters lists the refreshable masters by route name.
var Masters = map[string]Master{
	YarnCountMaster.Name:   YarnCountMaster,
	FabricCountMaster.Name: FabricCountMaster,
	MarketMaster.Name:      MarketMaster,
	CustomerMaster.Name:    CustomerMaster,
}

// EditableMasters lists the masters an operator edits by id. Count rows of
// either division share one table.
var EditableMasters = map[string]Master{
	"count":             YarnCountMaster,
	MarketMaster.Name:   MarketMaster,
	CustomerMaster.Name: CustomerMaster,
}

// Refresh upserts every natural key found on active dispatch rows within
// the master's scope and returns how many keys were written.
func (m Master) Refresh(ctx context.Context, s store.Store) (int, error) {
	filters := append([]store.Filter{store.Active("canceled")}, m.Scope...)
	rows, err := s.Fetch(ctx, store.Query{
		Table:   store.TableDispatchData,
		Columns: append([]string{m.Key}, m.Carry...),
		Filters: filters,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read dispatch keys for %s: %w", m.Name, err)
	}

	// Later rows win for carried columns, first appearance fixes the order.
	byKey := map[string]store.Row{}
	var order []string
	for _, r := range rows {
		key := store.Text(r[m.Key])
		if key == "" {
			continue
		}
		rec, ok := byKey[key]
		if !ok {
			rec = store.Row{m.Key: key}
			if !m.Overwrite {
				for _, col := range m.Values {
					rec[col] = ""
				}
			}
			byKey[key] = rec
			order = append(order, key)
		}
		for _, col := range m.Carry {
			rec[col] = r[col]
		}
	}
	if len(order) == 0 {
		return 0, nil
	}

	upserts := make([]store.Row, len(order))
	for i, key := range order {
		upserts[i] = byKey[key]
	}
	if _, err := s.Upsert(ctx, m.Table, upserts, store.UpsertOptions{
		OnConflict:       []string{m.Key},
		IgnoreDuplicates: !m.Overwrite,
	}); err != nil {
		return 0, fmt.Errorf("failed to refresh %s: %w", m.Name, err)
	}
	return len(upserts), nil
}

// Pending returns the master rows in scope with any canonical value missing.
func (m Master) Pending(ctx context.Context, s store.Store) ([]store.Row, error) {
	missing := make([]store.Filter, 0, 2*len(m.Values))
	for _, col := range m.Values {
		missing = append(missing, store.IsNull(col), store.Eq(col, ""))
	}
	filters := append(append([]store.Filter{}, m.Scope...), store.Or(missing...))
	return s.Fetch(ctx, store.Query{
		Table:   m.Table,
		Filters: filters,
		OrderBy: []store.Order{store.Asc("id")},
	})
}

// Edit sets the canonical values present in body on the row with id. Other
// keys of body are ignored.
func (m Master) Edit(ctx context.Context, s store.Store, id int64, body store.Row) (store.Row, error) {
	set := store.Row{}
	for _, col := range m.Values {
		if v, ok := body[col]; ok {
			set[col] = v
		}
	}
	if len(set) == 0 {
		return nil, fmt.Errorf("%w: none of %v given", ErrNothingToUpdate, m.Values)
	}

	rows, err := s.Update(ctx, m.Table, set, store.Eq("id", id))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	return rows[0], nil
}

// =============================================================================
// LOOKUPS
// =============================================================================

// suggestionSources maps a suggestion type to its table and column.
var suggestionSources = map[string][2]string{
	"count":    {store.TableCountMaster, "smpl_count"},
	"blend":    {store.TableCountMaster, "blend"},
	"market":   {store.TableMarketMaster, "market"},
	"customer": {store.TableCustomerMaster, "customer_name"},
}

// Suggestions returns the sorted distinct values already used for kind.
func Suggestions(ctx context.Context, s store.Store, kind string) ([]string, error) {
	src, ok := suggestionSources[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSuggestion, kind)
	}
	table, column := src[0], src[1]

	rows, err := s.Fetch(ctx, store.Query{
		Table:   table,
		Columns: []string{column},
		Filters: store.Present(column),
	})
	if err != nil {
		return nil, err
	}
	return store.Distinct(rows, column), nil
}

// MarketMappings returns every ship_to_city -> market pair.
func MarketMappings(ctx context.Context, s store.Store) ([]store.Row, error) {
	return s.Fetch(ctx, store.Query{
		Table:   store.TableMarketMaster,
		Columns: []string{"ship_to_city", "market"},
	})
}

// RecordMarket stores the market a complaint names for its city, replacing
// any previous value. A blank city is ignored.
func RecordMarket(ctx context.Context, s store.Store, city, market any) error {
	c := store.Text(city)
	if c == "" {
		return nil
	}
	_, err := s.Upsert(ctx, store.TableMarketMaster,
		[]store.Row{{"ship_to_city": c, "market": store.Text(market)}},
		store.UpsertOptions{OnConflict: []string{"ship_to_city"}})
	return err
}

/*
duplicates.go - Composite-key duplicate classification

PURPOSE:
  Splits candidate rows into duplicates and non-duplicates of rows already in
  the store. Two rows are the same physical shipment when they agree on every
  field of the key.

COMPARISON:
  Text fields compare by their string form, NULL reading as "".
  Numeric fields compare by value, NULL and "" reading as 0. A numeric field
  that does not hold a number falls back to its trimmed string form.

ALGORITHM:
  The existing rows are indexed by their encoded key once, then each
  candidate is a single map lookup. Field order inside the key does not
  change the outcome, only which rows end up equal.

NARROWING:
  Callers fetch the existing rows with NarrowFilters, which restricts them to
  the candidates' billing documents (or lot numbers). Candidates whose
  narrowing value is blank are compared against every blank-keyed row rather
  than being classified blindly.

SEE ALSO:
  - results.go: ResultKey for the dispatch_results batch insert
*/
package dispatch

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/warp/millops/store"
)

// KeyField is one column of a composite key.
type KeyField struct {
	Name    string
	Numeric bool
}

// Key is an ordered set of fields identifying a record.
type Key []KeyField

// DispatchKey identifies one physical shipment in dispatch_data.
var DispatchKey = Key{
	{Name: "billing_document"},
	{Name: "billing_date"},
	{Name: "bill_to_customer"},
	{Name: "lot_no"},
	{Name: "plant"},
	{Name: "product"},
	{Name: "item_description"},
	{Name: "billed_quantity", Numeric: true},
	{Name: "no_of_package", Numeric: true},
	{Name: "gross_weight", Numeric: true},
	{Name: "vehicle_number"},
}

// ResultKey identifies one row of dispatch_results.
var ResultKey = Key{
	{Name: "billing_date"},
	{Name: "lot_no"},
	{Name: "customer_name"},
	{Name: "billing_document"},
}

// Columns returns the key's column names.
func (k Key) Columns() []string {
	cols := make([]string, len(k))
	for i, f := range k {
		cols[i] = f.Name
	}
	return cols
}

// Encode renders the key of row as a single comparable string.
func (k Key) Encode(row store.Row) string {
	var b strings.Builder
	for i, f := range k {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(strconv.Quote(f.value(row[f.Name])))
	}
	return b.String()
}

func (f KeyField) value(v any) string {
	if !f.Numeric {
		return "s:" + store.Text(v)
	}
	s := strings.TrimSpace(store.Text(v))
	if s == "" {
		return "n:0"
	}
	// NaN never equals itself, so non-finite values compare as text.
	if n, ok := store.Number(v); ok && !math.IsNaN(n) && !math.IsInf(n, 0) {
		return "n:" + strconv.FormatFloat(n, 'g', -1, 64)
	}
	return "s:" + s
}

// Classification partitions candidates, keeping input order in both halves.
type Classification struct {
	Duplicates    []store.Row
	NonDuplicates []store.Row
}

// Classify matches candidates against existing on DispatchKey.
func Classify(candidates, existing []store.Row) Classification {
	return ClassifyBy(DispatchKey, candidates, existing)
}

// ClassifyBy matches candidates against existing on key. Neither slice is
// modified.
func ClassifyBy(key Key, candidates, existing []store.Row) Classification {
	index := make(map[string]struct{}, len(existing))
	for _, r := range existing {
		index[key.Encode(r)] = struct{}{}
	}

	out := Classification{
		Duplicates:    []store.Row{},
		NonDuplicates: []store.Row{},
	}
	for _, c := range candidates {
		if _, ok := index[key.Encode(c)]; ok {
			out.Duplicates = append(out.Duplicates, c)
		} else {
			out.NonDuplicates = append(out.NonDuplicates, c)
		}
	}
	return out
}

// =============================================================================
// NARROWING
// =============================================================================

// NarrowFilters restricts existing rows to those sharing column's value with
// at least one candidate. A blank value on any candidate also admits rows
// where column is NULL or "". It reports false when there is nothing to fetch.
func NarrowFilters(column string, candidates []store.Row) ([]store.Filter, bool) {
	seen := map[string]bool{}
	var values []string
	blank := false
	for _, c := range candidates {
		v := store.Text(c[column])
		if v == "" {
			blank = true
			continue
		}
		if !seen[v] {
			seen[v] = true
			values = append(values, v)
		}
	}

	switch {
	case len(values) == 0 && !blank:
		return nil, false
	case len(values) == 0:
		return []store.Filter{store.Blank(column)}, true
	case blank:
		return []store.Filter{store.Or(store.InStrings(column, values), store.IsNull(column), store.Eq(column, ""))}, true
	}
	return []store.Filter{store.InStrings(column, values)}, true
}

// FetchExisting loads the rows of table that could collide with candidates
// on key, narrowed by column.
func FetchExisting(ctx context.Context, s store.Store, table, column string, key Key, candidates []store.Row) ([]store.Row, error) {
	filters, ok := NarrowFilters(column, candidates)
	if !ok {
		return []store.Row{}, nil
	}
	return s.Fetch(ctx, store.Query{
		Table:   table,
		Columns: key.Columns(),
		Filters: filters,
	})
}

// CheckDuplicates classifies candidate dispatch rows against the store.
func CheckDuplicates(ctx context.Context, s store.Store, candidates []store.Row) (Classification, error) {
	existing, err := FetchExisting(ctx, s, store.TableDispatchData, "billing_document", DispatchKey, candidates)
	if err != nil {
		return Classification{}, err
	}
	return Classify(candidates, existing), nil
}

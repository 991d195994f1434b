/*
results.go - Dispatch test results

PURPOSE:
  dispatch_results holds lab results per lot. Listing them pulls the latest
  dispatch row of each lot in for display; batch inserts skip rows already
  recorded; a two-step plan/execute pass fills missing count, blend and
  customer short names from the master tables.

MISSING VALUES:
  A result field counts as missing when it is NULL, "" or "-". Displayed
  fallbacks use "-".

SEE ALSO:
  - duplicates.go: ResultKey and batch narrowing
  - masters.go: The master tables the plan reads
*/
package dispatch

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/warp/millops/store"
)

// Placeholder is shown for result fields without a value.
const Placeholder = "-"

// resultDispatchColumns are the dispatch columns merged into listed results.
var resultDispatchColumns = []string{"lot_no", "smpl_count", "customer_name", "item_description", "blend", "billing_date"}

// ListResults returns dispatch results, newest first, optionally for one
// lot, merged with the latest dispatch row of their lot. When the dispatch
// lookup fails the results are returned unmerged.
func ListResults(ctx context.Context, s store.Store, lotNo string) ([]store.Row, error) {
	q := store.Query{
		Table:   store.TableDispatchResults,
		OrderBy: []store.Order{store.Desc("created_at"), store.Desc("id")},
	}
	if lotNo != "" {
		q.Filters = []store.Filter{store.Eq("lot_no", lotNo)}
	}
	results, err := s.Fetch(ctx, q)
	if err != nil {
		return nil, err
	}

	lots := store.Distinct(results, "lot_no")
	if len(lots) == 0 {
		return results, nil
	}
	dispatch, err := s.Fetch(ctx, store.Query{
		Table:   store.TableDispatchData,
		Columns: resultDispatchColumns,
		Filters: []store.Filter{store.InStrings("lot_no", lots)},
	})
	if err != nil {
		return results, nil
	}
	return MergeResults(results, LatestByLot(dispatch)), nil
}

// LatestByLot keeps the dispatch row with the latest billing_date per lot.
// Rows with an unreadable date never replace an earlier pick.
func LatestByLot(rows []store.Row) map[string]store.Row {
	latest := map[string]store.Row{}
	for _, r := range rows {
		lot := store.Text(r["lot_no"])
		cur, ok := latest[lot]
		if !ok {
			latest[lot] = r
			continue
		}
		next, okNext := store.Time(r["billing_date"])
		prev, okPrev := store.Time(cur["billing_date"])
		if okNext && okPrev && next.After(prev) {
			latest[lot] = r
		}
	}
	return latest
}

// MergeResults fills display fields of results from their lot's dispatch row.
func MergeResults(results []store.Row, byLot map[string]store.Row) []store.Row {
	out := make([]store.Row, len(results))
	for i, r := range results {
		d := byLot[store.Text(r["lot_no"])]
		m := r.Clone()
		m["smpl_count"] = firstPresent(r["smpl_count"], d["smpl_count"])
		m["blend"] = firstPresent(r["blend"], d["blend"])
		m["customer_short_name"] = firstPresent(r["customer_short_name"], d["customer_name"])
		m["item_description"] = firstPresent(d["item_description"])
		if date := d["billing_date"]; store.Text(date) != "" {
			m["billing_date"] = date
		} else {
			m["billing_date"] = nil
		}
		out[i] = m
	}
	return out
}

func firstPresent(values ...any) any {
	for _, v := range values {
		if store.Text(v) != "" {
			return v
		}
	}
	return Placeholder
}

func missing(v any) bool {
	s := store.Text(v)
	return s == "" || s == Placeholder
}

// =============================================================================
// BATCH INSERT
// =============================================================================

// BatchResult reports what InsertResults wrote.
type BatchResult struct {
	Inserted []store.Row
	Skipped  int
}

// InsertResults inserts the rows not already recorded under ResultKey.
// Client-supplied id and created_at are dropped.
func InsertResults(ctx context.Context, s store.Store, rows []store.Row) (BatchResult, error) {
	existing, err := FetchExisting(ctx, s, store.TableDispatchResults, "lot_no", ResultKey, rows)
	if err != nil {
		return BatchResult{}, err
	}

	c := ClassifyBy(ResultKey, rows, existing)
	out := BatchResult{Inserted: []store.Row{}, Skipped: len(c.Duplicates)}
	if len(c.NonDuplicates) == 0 {
		return out, nil
	}

	clean := make([]store.Row, len(c.NonDuplicates))
	for i, r := range c.NonDuplicates {
		clean[i] = r.Without("id", "created_at")
	}
	inserted, err := s.Insert(ctx, store.TableDispatchResults, clean)
	if err != nil {
		return BatchResult{}, err
	}
	out.Inserted = inserted
	return out, nil
}

// =============================================================================
// MASTER UPDATE PLAN
// =============================================================================

// PlanMasterUpdates proposes values for results missing smpl_count, blend
// or customer_short_name. Each entry is {"id": ..., column: value, ...}.
func PlanMasterUpdates(ctx context.Context, s store.Store) ([]store.Row, error) {
	var counts, customers, pending []store.Row

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		counts, err = s.Fetch(gctx, store.Query{
			Table:   store.TableCountMaster,
			Columns: []string{"item_description", "smpl_count", "blend"},
		})
		return err
	})
	g.Go(func() (err error) {
		customers, err = s.Fetch(gctx, store.Query{
			Table:   store.TableCustomerMaster,
			Columns: []string{"bill_to_customer", "customer_name"},
			Filters: store.Present("customer_name"),
		})
		return err
	})
	g.Go(func() (err error) {
		pending, err = s.Fetch(gctx, store.Query{
			Table:   store.TableDispatchResults,
			Columns: []string{"id", "item_description", "name_of_customer", "smpl_count", "customer_short_name", "blend"},
			Filters: []store.Filter{store.Or(
				store.Eq("smpl_count", Placeholder), store.IsNull("smpl_count"),
				store.Eq("customer_short_name", Placeholder), store.IsNull("customer_short_name"),
				store.Eq("blend", Placeholder), store.IsNull("blend"),
			)},
			OrderBy: []store.Order{store.Asc("id")},
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load update plan inputs: %w", err)
	}

	countBy := make(map[string]store.Row, len(counts))
	for _, c := range counts {
		countBy[store.Text(c["item_description"])] = c
	}
	customerBy := make(map[string]string, len(customers))
	for _, c := range customers {
		customerBy[store.Text(c["bill_to_customer"])] = store.Text(c["customer_name"])
	}

	plan := []store.Row{}
	for _, r := range pending {
		set := store.Row{}
		if c, ok := countBy[store.Text(r["item_description"])]; ok {
			if store.Text(c["smpl_count"]) != "" && missing(r["smpl_count"]) {
				set["smpl_count"] = c["smpl_count"]
			}
			if store.Text(c["blend"]) != "" && missing(r["blend"]) {
				set["blend"] = c["blend"]
			}
		}
		if name := customerBy[store.Text(r["name_of_customer"])]; name != "" && missing(r["customer_short_name"]) {
			set["customer_short_name"] = name
		}
		if len(set) > 0 {
			set["id"] = r["id"]
			plan = append(plan, set)
		}
	}
	return plan, nil
}

// ExecuteMasterUpdates applies a plan from PlanMasterUpdates, at most
// DefaultBatchSize updates at a time.
func ExecuteMasterUpdates(ctx context.Context, s store.Store, plan []store.Row) error {
	ids := make([]int64, len(plan))
	for i, u := range plan {
		id, ok := store.ID(u["id"])
		if !ok {
			return fmt.Errorf("%w: entry %d has no valid id", ErrInvalidPlan, i)
		}
		if len(u) < 2 {
			return fmt.Errorf("%w: entry %d sets nothing", ErrInvalidPlan, i)
		}
		ids[i] = id
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(DefaultBatchSize)
	for i, u := range plan {
		g.Go(func() error {
			_, err := s.Update(gctx, store.TableDispatchResults, u.Without("id"), store.Eq("id", ids[i]))
			return err
		})
	}
	return g.Wait()
}

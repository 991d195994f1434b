/*
report.go - Read-only reporting helpers

PURPOSE:
  Small reports the dashboard builds its filters and cards from:

    ComplaintSummary:   open/closed/incomplete counts per complaint table
    AvailableYears:     distinct years of a date column, newest first
    ComplaintYears:     the same across both complaint tables, plus this year
    MaxDate:            latest value of a date column
    UniqueValues:       distinct values of a column for filter dropdowns
    TableColumns:       column names of a registered table
    LatestRealization:  yarn realization rows of the latest date

  Table and column names are user input on these routes; every query goes
  through the schema registry before it reaches the store.

SEE ALSO:
  - api/utils.go: HTTP handlers
*/
package report

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/warp/millops/store"
)

// =============================================================================
// COMPLAINT SUMMARY
// =============================================================================

// ComplaintSummary counts complaints by state.
type ComplaintSummary struct {
	Open            int `json:"open"`
	Closed          int `json:"closed"`
	Incomplete      int `json:"incomplete"`
	TotalComplaints int `json:"totalComplaints"`
	TotalCustomers  int `json:"totalCustomers"`
}

// optionalComplaintColumns may stay empty without making a complaint
// incomplete.
var optionalComplaintColumns = map[string]bool{
	"id":                   true,
	"created_at":           true,
	"action_taken":         true,
	"remark":               true,
	"complaint_qty":        true,
	"analysis_and_outcome": true,
	"reply_date":           true,
	"mfg_date":             true,
	"mfg_month":            true,
	"cotton":               true,
	"complaint_mode":       true,
	"nature_of_complaint":  true,
}

// Summarize counts rows of one complaint table.
func Summarize(rows []store.Row) ComplaintSummary {
	s := ComplaintSummary{TotalComplaints: len(rows)}
	customers := map[string]bool{}
	for _, r := range rows {
		switch strings.ToLower(store.Text(r["status"])) {
		case "open":
			s.Open++
		case "closed", "close":
			s.Closed++
		}
		if c := store.Text(r["customer_name"]); c != "" {
			customers[c] = true
		}
		if incomplete(r) {
			s.Incomplete++
		}
	}
	s.TotalCustomers = len(customers)
	return s
}

func incomplete(r store.Row) bool {
	for k, v := range r {
		if optionalComplaintColumns[k] {
			continue
		}
		if v == nil || v == "" {
			return true
		}
	}
	return false
}

// ComplaintStats summarises yarn and fabric complaints, optionally for one
// calendar year and further equality filters.
func ComplaintStats(ctx context.Context, s store.Store, year string, filters []store.Filter) (map[string]ComplaintSummary, error) {
	base := append([]store.Filter{}, filters...)
	if year != "" {
		base = append(base,
			store.Gte("query_received_date", year+"-01-01"),
			store.Lte("query_received_date", year+"-12-31"))
	}

	var yarn, fabric []store.Row
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		yarn, err = s.Fetch(gctx, store.Query{Table: store.TableYarnComplaints, Filters: base})
		return err
	})
	g.Go(func() (err error) {
		fabric, err = s.Fetch(gctx, store.Query{Table: store.TableFabricComplaints, Filters: base})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return map[string]ComplaintSummary{
		"yarn":   Summarize(yarn),
		"fabric": Summarize(fabric),
	}, nil
}

// =============================================================================
// YEARS AND DATES
// =============================================================================

// Years returns the distinct years of column across rows, newest first.
// Unparseable dates are skipped.
func Years(rows []store.Row, column string) []string {
	set := map[string]bool{}
	for _, r := range rows {
		if t, ok := store.Time(r[column]); ok {
			set[strconv.Itoa(t.Year())] = true
		}
	}
	return sortedDesc(set)
}

func sortedDesc(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for y := range set {
		out = append(out, y)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out
}

// AvailableYears returns the years present in table.column.
func AvailableYears(ctx context.Context, s store.Store, table, column string) ([]string, error) {
	rows, err := s.Fetch(ctx, store.Query{
		Table:   table,
		Columns: []string{column},
		Filters: []store.Filter{store.NotNull(column)},
	})
	if err != nil {
		return nil, err
	}
	return Years(rows, column), nil
}

// ComplaintYears returns the years complaints were received in, always
// including the year of now.
func ComplaintYears(ctx context.Context, s store.Store, now time.Time) ([]string, error) {
	var yarn, fabric []store.Row
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range []struct {
		table string
		dst   *[]store.Row
	}{
		{store.TableYarnComplaints, &yarn},
		{store.TableFabricComplaints, &fabric},
	} {
		g.Go(func() error {
			rows, err := s.Fetch(gctx, store.Query{Table: t.table, Columns: []string{"query_received_date"}})
			*t.dst = rows
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	set := map[string]bool{strconv.Itoa(now.Year()): true}
	for _, y := range Years(append(yarn, fabric...), "query_received_date") {
		set[y] = true
	}
	return sortedDesc(set), nil
}

// MaxDate returns the largest non-NULL value of table.column, or nil.
func MaxDate(ctx context.Context, s store.Store, table, column string) (any, error) {
	row, err := store.First(ctx, s, store.Query{
		Table:   table,
		Columns: []string{column},
		Filters: []store.Filter{store.NotNull(column)},
		OrderBy: []store.Order{store.Desc(column)},
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row[column], nil
}

// =============================================================================
// INTROSPECTION
// =============================================================================

// UniqueValues returns the sorted distinct non-empty values of
// table.column. Canceled dispatch rows are left out.
func UniqueValues(ctx context.Context, s store.Store, table, column string, filters []store.Filter) ([]string, error) {
	all := []store.Filter{store.NotNull(column)}
	if table == store.TableDispatchData {
		all = append(all, store.Active("canceled"))
	}
	all = append(all, filters...)

	rows, err := s.Fetch(ctx, store.Query{Table: table, Columns: []string{column}, Filters: all})
	if err != nil {
		return nil, err
	}
	return store.Distinct(rows, column), nil
}

// TableColumns returns the column names of table in declaration order.
func TableColumns(table string) ([]string, error) {
	t, err := store.Lookup(table)
	if err != nil {
		return nil, err
	}
	return t.ColumnNames(), nil
}

// =============================================================================
// YARN REALIZATION
// =============================================================================

// Realization periods, preferred first.
var realizationPeriods = []string{"monthly", "fortnightly"}

// LatestRealization returns the realization rows of the latest date, monthly
// figures when there are any, fortnightly otherwise.
func LatestRealization(ctx context.Context, s store.Store) ([]store.Row, error) {
	latest, err := store.First(ctx, s, store.Query{
		Table:   store.TableYarnRealization,
		Columns: []string{"date"},
		Filters: []store.Filter{store.NotNull("date")},
		OrderBy: []store.Order{store.Desc("date")},
	})
	if errors.Is(err, store.ErrNotFound) {
		return []store.Row{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find latest realization date: %w", err)
	}

	for _, period := range realizationPeriods {
		rows, err := s.Fetch(ctx, store.Query{
			Table: store.TableYarnRealization,
			Filters: []store.Filter{
				store.Eq("date", latest["date"]),
				store.Eq("period", period),
			},
			OrderBy: []store.Order{store.Asc("id")},
		})
		if err != nil {
			return nil, err
		}
		if len(rows) > 0 {
			return rows, nil
		}
	}
	return []store.Row{}, nil
}

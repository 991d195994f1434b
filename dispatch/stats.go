/*
stats.go - Dispatch statistics aggregation

PURPOSE:
  Folds a filtered slice of dispatch rows into tonnage totals grouped by
  unit, market, customer, month and year, plus a grand total.

BUCKETS:
  unit:     plant mod 100 for Yarn (1101 -> "1"), the raw plant otherwise,
            "Unknown" when the plant is not a number
  market:   market, "Unknown" when absent
  customer: customer_name, "Unknown" when absent
  month:    "Jan".."Dec", only when billing_date parses
  year:     "2024", only when billing_date parses

INVARIANT:
  Every row contributes to exactly one unit bucket, and quantities are summed
  as decimals, so the unit buckets add up to Total exactly.

SEE ALSO:
  - quantity.go: billed_quantity parsing
*/
package dispatch

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/millops/store"
)

// Unknown is the bucket for rows without a usable value.
const Unknown = "Unknown"

// StatsColumns are the dispatch columns the aggregation reads.
var StatsColumns = []string{"plant", "market", "billing_date", "billed_quantity", "customer_name"}

// =============================================================================
// DIVISION
// =============================================================================

// Division selects the yarn or fabric side of the business.
type Division string

const (
	DivisionAll    Division = ""
	DivisionYarn   Division = "Yarn"
	DivisionFabric Division = "Fabric"
)

// ParseDivision maps a query value to a Division. Unrecognised values select
// every division.
func ParseDivision(s string) Division {
	switch Division(s) {
	case DivisionYarn:
		return DivisionYarn
	case DivisionFabric:
		return DivisionFabric
	}
	return DivisionAll
}

// Filter returns the division_description predicate for d.
func (d Division) Filter() (store.Filter, bool) {
	switch d {
	case DivisionYarn:
		return store.ILike("division_description", "%YARN%"), true
	case DivisionFabric:
		return store.ILike("division_description", "%FABRIC%"), true
	}
	return store.Filter{}, false
}

// StatsQuery builds the dispatch_data query behind the statistics report.
// Canceled rows are excluded. Empty dates are ignored.
func StatsQuery(d Division, startDate, endDate string, extra ...store.Filter) store.Query {
	filters := []store.Filter{store.Active("canceled")}
	if f, ok := d.Filter(); ok {
		filters = append(filters, f)
	}
	if startDate != "" {
		filters = append(filters, store.Gte("billing_date", startDate))
	}
	if endDate != "" {
		filters = append(filters, store.Lte("billing_date", endDate))
	}
	filters = append(filters, extra...)

	return store.Query{
		Table:   store.TableDispatchData,
		Columns: StatsColumns,
		Filters: filters,
	}
}

// =============================================================================
// AGGREGATION
// =============================================================================

// Stats holds the accumulated tonnage per bucket.
type Stats struct {
	Unit     map[string]decimal.Decimal
	Market   map[string]decimal.Decimal
	Customer map[string]decimal.Decimal
	Month    map[string]decimal.Decimal
	Year     map[string]decimal.Decimal
	Total    decimal.Decimal
}

// NewStats returns an empty accumulator.
func NewStats() Stats {
	return Stats{
		Unit:     map[string]decimal.Decimal{},
		Market:   map[string]decimal.Decimal{},
		Customer: map[string]decimal.Decimal{},
		Month:    map[string]decimal.Decimal{},
		Year:     map[string]decimal.Decimal{},
		Total:    decimal.Zero,
	}
}

// Aggregate folds rows into a fresh Stats. It is deterministic and does not
// touch rows.
func Aggregate(rows []store.Row, division Division) Stats {
	acc := NewStats()
	for _, r := range rows {
		acc = acc.Add(r, division)
	}
	return acc
}

// Add accumulates one row and returns the accumulator. The bucket maps are
// shared with s, so s must not be used afterwards.
func (s Stats) Add(row store.Row, division Division) Stats {
	qty := ParseTonnes(row["billed_quantity"])

	bump(s.Unit, UnitKey(row["plant"], division), qty)
	bump(s.Market, orUnknown(row["market"]), qty)
	bump(s.Customer, orUnknown(row["customer_name"]), qty)

	if t, ok := store.Time(row["billing_date"]); ok {
		bump(s.Month, t.Month().String()[:3], qty)
		bump(s.Year, strconv.Itoa(t.Year()), qty)
	}

	s.Total = s.Total.Add(qty)
	return s
}

var leadingInt = regexp.MustCompile(`^[+-]?\d+`)

// UnitKey returns the unit bucket for a plant code.
func UnitKey(plant any, division Division) string {
	m := leadingInt.FindString(strings.TrimSpace(store.Text(plant)))
	if m == "" {
		return Unknown
	}
	p, err := strconv.ParseInt(m, 10, 64)
	if err != nil {
		return Unknown
	}
	if division == DivisionYarn {
		p %= 100
	}
	return strconv.FormatInt(p, 10)
}

func orUnknown(v any) string {
	if s := store.Text(v); s != "" {
		return s
	}
	return Unknown
}

func bump(m map[string]decimal.Decimal, key string, qty decimal.Decimal) {
	m[key] = m[key].Add(qty)
}

// =============================================================================
// REPORT
// =============================================================================

// Report is the JSON shape of Stats.
type Report struct {
	Unit     map[string]float64 `json:"unit"`
	Market   map[string]float64 `json:"market"`
	Customer map[string]float64 `json:"customer"`
	Month    map[string]float64 `json:"month"`
	Year     map[string]float64 `json:"year"`
	Total    float64            `json:"total"`
}

// Report converts the accumulated decimals to floats.
func (s Stats) Report() Report {
	return Report{
		Unit:     floats(s.Unit),
		Market:   floats(s.Market),
		Customer: floats(s.Customer),
		Month:    floats(s.Month),
		Year:     floats(s.Year),
		Total:    s.Total.InexactFloat64(),
	}
}

func floats(m map[string]decimal.Decimal) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v.InexactFloat64()
	}
	return out
}

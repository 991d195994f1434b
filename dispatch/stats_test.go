package dispatch

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/millops/store"
)

func TestParseTonnes(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{"8,870 KG", "8.87"},
		{"1,000 KG", "1"},
		{"8870KG", "8.87"},
		{"  500 KG ", "0.5"},
		{"250", "0.25"},
		{float64(2000), "2"},
		{"", "0"},
		{nil, "0"},
		{"KG 100", "0"},
		{"n/a", "0"},
	}
	for _, tt := range tests {
		got := ParseTonnes(tt.in)
		assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "%#v: got %s want %s", tt.in, got, tt.want)
	}
}

func TestUnitKey(t *testing.T) {
	assert.Equal(t, "1", UnitKey("1101", DivisionYarn))
	assert.Equal(t, "2", UnitKey(float64(1102), DivisionYarn))
	assert.Equal(t, "1201", UnitKey("1201", DivisionFabric))
	assert.Equal(t, "1101", UnitKey("1101", DivisionAll))
	assert.Equal(t, Unknown, UnitKey("", DivisionYarn))
	assert.Equal(t, Unknown, UnitKey(nil, DivisionFabric))
	assert.Equal(t, Unknown, UnitKey("PLANT", DivisionAll))
}

func TestParseDivision(t *testing.T) {
	assert.Equal(t, DivisionYarn, ParseDivision("Yarn"))
	assert.Equal(t, DivisionFabric, ParseDivision("Fabric"))
	assert.Equal(t, DivisionAll, ParseDivision(""))
	assert.Equal(t, DivisionAll, ParseDivision("yarn"))

	_, ok := DivisionAll.Filter()
	assert.False(t, ok)
}

func TestStatsQuery(t *testing.T) {
	q := StatsQuery(DivisionFabric, "2025-01-01", "", store.Eq("market", "EXPORT"))

	assert.Equal(t, store.TableDispatchData, q.Table)
	assert.Equal(t, StatsColumns, q.Columns)
	require.Len(t, q.Filters, 4)
	assert.Equal(t, store.Active("canceled"), q.Filters[0])
	assert.Equal(t, store.ILike("division_description", "%FABRIC%"), q.Filters[1])
	assert.Equal(t, store.Gte("billing_date", "2025-01-01"), q.Filters[2])
	assert.Equal(t, store.Eq("market", "EXPORT"), q.Filters[3])
}

func TestAggregate_YarnDivision(t *testing.T) {
	// GIVEN: Yarn rows across two plants, one with no market or date
	rows := []store.Row{
		{"plant": "1101", "market": "EXPORT", "customer_name": "ACME", "billing_date": "2025-01-15", "billed_quantity": "8,870 KG"},
		{"plant": "1101", "market": "DOMESTIC", "customer_name": "ACME", "billing_date": "2025-02-03", "billed_quantity": "1,130 KG"},
		{"plant": "1102", "market": nil, "customer_name": "", "billing_date": "", "billed_quantity": "500 KG"},
		{"plant": "1102", "market": "EXPORT", "customer_name": "BETA", "billing_date": "2024-12-31", "billed_quantity": nil},
	}

	// WHEN: Aggregating
	s := Aggregate(rows, DivisionYarn)

	// THEN: Buckets carry tonnes
	assert.True(t, s.Total.Equal(decimal.RequireFromString("10.5")), s.Total.String())
	assert.True(t, s.Unit["1"].Equal(decimal.NewFromInt(10)))
	assert.True(t, s.Unit["2"].Equal(decimal.RequireFromString("0.5")))
	assert.True(t, s.Market[Unknown].Equal(decimal.RequireFromString("0.5")))
	assert.True(t, s.Market["EXPORT"].Equal(decimal.RequireFromString("8.87")))
	assert.True(t, s.Customer[Unknown].Equal(decimal.RequireFromString("0.5")))
	assert.True(t, s.Month["Jan"].Equal(decimal.RequireFromString("8.87")))
	assert.True(t, s.Month["Feb"].Equal(decimal.RequireFromString("1.13")))
	assert.True(t, s.Year["2025"].Equal(decimal.NewFromInt(10)))
	assert.Contains(t, s.Year, "2024", "zero-quantity rows still open their buckets")

	// AND: Undated rows stay out of the month and year buckets
	var monthSum decimal.Decimal
	for _, v := range s.Month {
		monthSum = monthSum.Add(v)
	}
	assert.True(t, monthSum.Equal(decimal.NewFromInt(10)))
}

func TestAggregate_UnitBucketsSumToTotal(t *testing.T) {
	var rows []store.Row
	plants := []string{"1101", "1102", "1201", "", "x"}
	for i := 0; i < 100; i++ {
		rows = append(rows, store.Row{
			"plant":           plants[i%len(plants)],
			"billed_quantity": decimal.NewFromFloat(float64(i) * 10.1).String() + " KG",
		})
	}

	for _, div := range []Division{DivisionAll, DivisionYarn, DivisionFabric} {
		s := Aggregate(rows, div)
		sum := decimal.Zero
		for _, v := range s.Unit {
			sum = sum.Add(v)
		}
		assert.True(t, sum.Equal(s.Total), "division %q: %s != %s", div, sum, s.Total)
	}
}

func TestAggregate_Empty(t *testing.T) {
	r := Aggregate(nil, DivisionAll).Report()

	assert.Zero(t, r.Total)
	assert.NotNil(t, r.Unit)
	assert.Empty(t, r.Unit)
	assert.Empty(t, r.Year)
}

func TestReport(t *testing.T) {
	rows := []store.Row{{"plant": "1201", "market": "EXPORT", "billed_quantity": "8,870 KG"}}
	r := Aggregate(rows, DivisionFabric).Report()

	assert.Equal(t, 8.87, r.Total)
	assert.Equal(t, map[string]float64{"1201": 8.87}, r.Unit)
	assert.Equal(t, map[string]float64{"EXPORT": 8.87}, r.Market)
}

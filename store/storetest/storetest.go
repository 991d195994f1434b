/*
Package storetest is a behavioural suite every store.Store implementation
must pass.

USAGE:
  func TestStore(t *testing.T) {
      storetest.Run(t, func(t *testing.T) store.Store { return memory.New() })
  }

The factory is called once per subtest and must return an empty store.
*/
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/millops/store"
)

// Factory returns a fresh, empty store.
type Factory func(t *testing.T) store.Store

// Run executes the suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("InsertAssignsIDs", func(t *testing.T) { testInsertAssignsIDs(t, newStore(t)) })
	t.Run("FetchFilters", func(t *testing.T) { testFetchFilters(t, newStore(t)) })
	t.Run("FetchOrderLimitProjection", func(t *testing.T) { testFetchOrderLimitProjection(t, newStore(t)) })
	t.Run("Update", func(t *testing.T) { testUpdate(t, newStore(t)) })
	t.Run("UpsertMerges", func(t *testing.T) { testUpsertMerges(t, newStore(t)) })
	t.Run("UpsertIgnoreDuplicates", func(t *testing.T) { testUpsertIgnoreDuplicates(t, newStore(t)) })
	t.Run("InsertConflict", func(t *testing.T) { testInsertConflict(t, newStore(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("UnknownNames", func(t *testing.T) { testUnknownNames(t, newStore(t)) })
	t.Run("TxRollback", func(t *testing.T) { testTxRollback(t, newStore(t)) })
	t.Run("JSONColumn", func(t *testing.T) { testJSONColumn(t, newStore(t)) })
}

func dispatchRow(doc, date, city, market, canceled string) store.Row {
	r := store.Row{
		"billing_document": doc,
		"billing_date":     date,
		"ship_to_city":     city,
		"market":           market,
		"no_of_package":    float64(10),
	}
	if canceled != "" {
		r["canceled"] = canceled
	}
	return r
}

func testInsertAssignsIDs(t *testing.T, s store.Store) {
	ctx := context.Background()

	rows, err := s.Insert(ctx, store.TableDispatchData, []store.Row{
		dispatchRow("INV1", "2025-03-01", "TIRUPUR", "", ""),
		dispatchRow("INV2", "2025-03-02", "SALEM", "EXPORT", ""),
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	id1, ok1 := store.ID(rows[0]["id"])
	id2, ok2 := store.ID(rows[1]["id"])
	require.True(t, ok1)
	require.True(t, ok2)
	assert.NotEqual(t, id1, id2)
	assert.NotNil(t, rows[0]["created_at"])
	assert.Equal(t, "2025-03-01", store.Text(rows[0]["billing_date"]))

	empty, err := s.Insert(ctx, store.TableDispatchData, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testFetchFilters(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, err := s.Insert(ctx, store.TableDispatchData, []store.Row{
		dispatchRow("INV1", "2025-03-01", "TIRUPUR", "", ""),
		dispatchRow("INV2", "2025-03-15", "SALEM", "EXPORT", "X"),
		dispatchRow("INV3", "2025-04-01", "Salem", "DOMESTIC", ""),
	})
	require.NoError(t, err)

	fetch := func(filters ...store.Filter) []string {
		rows, err := s.Fetch(ctx, store.Query{
			Table:   store.TableDispatchData,
			Filters: filters,
			OrderBy: []store.Order{store.Asc("billing_document")},
		})
		require.NoError(t, err)
		docs := make([]string, len(rows))
		for i, r := range rows {
			docs[i] = store.Text(r["billing_document"])
		}
		return docs
	}

	assert.Equal(t, []string{"INV1", "INV3"}, fetch(store.Active("canceled")))
	assert.Equal(t, []string{"INV1", "INV2"}, fetch(
		store.Gte("billing_date", "2025-03-01"), store.Lte("billing_date", "2025-03-31")))
	assert.Equal(t, []string{"INV1"}, fetch(store.Blank("market")))
	assert.Equal(t, []string{"INV2", "INV3"}, fetch(store.Present("market")...))
	assert.Equal(t, []string{"INV2", "INV3"}, fetch(store.ILike("ship_to_city", "sal%")))
	assert.Equal(t, []string{"INV1", "INV3"}, fetch(store.In("billing_document", "INV1", "INV3", "INV9")))
	assert.Empty(t, fetch(store.In("billing_document")))
	assert.Equal(t, []string{"INV1", "INV2", "INV3"}, fetch(store.Eq("no_of_package", float64(10))))
}

func testFetchOrderLimitProjection(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, err := s.Insert(ctx, store.TableDispatchData, []store.Row{
		dispatchRow("INV1", "2025-03-01", "A", "", ""),
		dispatchRow("INV2", "2025-03-03", "B", "", ""),
		dispatchRow("INV3", "2025-03-02", "C", "", ""),
	})
	require.NoError(t, err)

	rows, err := s.Fetch(ctx, store.Query{
		Table:   store.TableDispatchData,
		Columns: []string{"billing_document", "billing_date"},
		OrderBy: []store.Order{store.Desc("billing_date")},
		Limit:   2,
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "INV2", rows[0]["billing_document"])
	assert.Equal(t, "INV3", rows[1]["billing_document"])
	assert.Len(t, rows[0], 2)

	row, err := store.First(ctx, s, store.Query{
		Table:   store.TableDispatchData,
		Filters: []store.Filter{store.Eq("billing_document", "NOPE")},
	})
	assert.Nil(t, row)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testUpdate(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, err := s.Insert(ctx, store.TableDispatchData, []store.Row{
		dispatchRow("INV1", "2025-03-01", "TIRUPUR", "", ""),
		dispatchRow("INV2", "2025-03-01", "TIRUPUR", "DOMESTIC", ""),
		dispatchRow("INV3", "2025-03-01", "SALEM", "", ""),
	})
	require.NoError(t, err)

	// Fill the blank market of TIRUPUR rows only
	updated, err := s.Update(ctx, store.TableDispatchData,
		store.Row{"market": "EXPORT"},
		store.Eq("ship_to_city", "TIRUPUR"), store.Blank("market"))
	require.NoError(t, err)
	require.Len(t, updated, 1)
	assert.Equal(t, "INV1", updated[0]["billing_document"])
	assert.Equal(t, "EXPORT", updated[0]["market"])

	none, err := s.Update(ctx, store.TableDispatchData,
		store.Row{"market": "EXPORT"}, store.Eq("ship_to_city", "NOWHERE"))
	require.NoError(t, err)
	assert.Empty(t, none)

	rows, err := s.Fetch(ctx, store.Query{
		Table:   store.TableDispatchData,
		Filters: []store.Filter{store.Eq("market", "DOMESTIC")},
	})
	require.NoError(t, err)
	assert.Len(t, rows, 1, "non-blank markets stay untouched")
}

func testUpsertMerges(t *testing.T, s store.Store) {
	ctx := context.Background()
	opts := store.UpsertOptions{OnConflict: []string{"ship_to_city"}}

	_, err := s.Upsert(ctx, store.TableMarketMaster, []store.Row{{"ship_to_city": "TIRUPUR"}}, opts)
	require.NoError(t, err)

	rows, err := s.Upsert(ctx, store.TableMarketMaster, []store.Row{{"ship_to_city": "TIRUPUR", "market": "EXPORT"}}, opts)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "EXPORT", rows[0]["market"])

	all, err := s.Fetch(ctx, store.Query{Table: store.TableMarketMaster})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "EXPORT", all[0]["market"])
}

func testUpsertIgnoreDuplicates(t *testing.T, s store.Store) {
	ctx := context.Background()
	opts := store.UpsertOptions{OnConflict: []string{"ship_to_city"}, IgnoreDuplicates: true}

	_, err := s.Upsert(ctx, store.TableMarketMaster, []store.Row{{"ship_to_city": "TIRUPUR", "market": "EXPORT"}}, opts)
	require.NoError(t, err)

	rows, err := s.Upsert(ctx, store.TableMarketMaster, []store.Row{
		{"ship_to_city": "TIRUPUR", "market": "DOMESTIC"},
		{"ship_to_city": "SALEM"},
	}, opts)
	require.NoError(t, err)
	require.Len(t, rows, 1, "only the new key is returned")
	assert.Equal(t, "SALEM", rows[0]["ship_to_city"])

	existing, err := store.First(ctx, s, store.Query{
		Table:   store.TableMarketMaster,
		Filters: []store.Filter{store.Eq("ship_to_city", "TIRUPUR")},
	})
	require.NoError(t, err)
	assert.Equal(t, "EXPORT", existing["market"])
}

func testInsertConflict(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, err := s.Insert(ctx, store.TableCustomerMaster, []store.Row{{"bill_to_customer": "C1"}})
	require.NoError(t, err)

	_, err = s.Insert(ctx, store.TableCustomerMaster, []store.Row{{"bill_to_customer": "C2"}, {"bill_to_customer": "C1"}})
	assert.ErrorIs(t, err, store.ErrConflict)

	rows, err := s.Fetch(ctx, store.Query{Table: store.TableCustomerMaster})
	require.NoError(t, err)
	assert.Len(t, rows, 1, "a failed batch leaves nothing behind")
}

func testDelete(t *testing.T, s store.Store) {
	ctx := context.Background()
	rows, err := s.Insert(ctx, store.TableDispatchData, []store.Row{
		dispatchRow("INV1", "2025-03-01", "A", "", ""),
		dispatchRow("INV2", "2025-03-01", "B", "", ""),
	})
	require.NoError(t, err)

	n, err := s.Delete(ctx, store.TableDispatchData, store.Eq("id", rows[0]["id"]))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.Delete(ctx, store.TableDispatchData, store.Eq("id", rows[0]["id"]))
	require.NoError(t, err)
	assert.Zero(t, n)

	left, err := s.Fetch(ctx, store.Query{Table: store.TableDispatchData})
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "INV2", left[0]["billing_document"])
}

func testUnknownNames(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.Fetch(ctx, store.Query{Table: "no_such_table"})
	assert.ErrorIs(t, err, store.ErrUnknownTable)
	assert.True(t, store.IsClientError(err))

	_, err = s.Fetch(ctx, store.Query{
		Table:   store.TableDispatchData,
		Filters: []store.Filter{store.Eq("1=1; --", "x")},
	})
	assert.ErrorIs(t, err, store.ErrInvalidIdentifier)

	_, err = s.Insert(ctx, store.TableDispatchData, []store.Row{{"bogus": 1}})
	var colErr *store.ColumnError
	require.True(t, errors.As(err, &colErr))
	assert.Equal(t, "bogus", colErr.Column)
}

func testTxRollback(t *testing.T, s store.Store) {
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.RunInTx(ctx, s, func(tx store.Store) error {
		if _, err := tx.Insert(ctx, store.TableCottonPlanning, []store.Row{{"unit": "U1"}}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	if _, ok := s.(store.TxStore); !ok {
		return
	}
	rows, err := s.Fetch(ctx, store.Query{Table: store.TableCottonPlanning})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func testJSONColumn(t *testing.T, s store.Store) {
	ctx := context.Background()
	layout := map[string]any{"columns": []any{"lot_no", "market"}}

	_, err := s.Insert(ctx, store.TableLayouts, []store.Row{{
		"table_name":  "dispatch_data",
		"layout_name": "default",
		"layout":      layout,
	}})
	require.NoError(t, err)

	row, err := store.First(ctx, s, store.Query{
		Table:   store.TableLayouts,
		Filters: []store.Filter{store.Eq("layout_name", "default")},
	})
	require.NoError(t, err)
	assert.Equal(t, layout, row["layout"])
}

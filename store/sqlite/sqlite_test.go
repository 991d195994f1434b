package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/millops/store"
	"github.com/warp/millops/store/storetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSQLiteStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return newTestStore(t) })
}

func TestNew_FileDatabaseReopens(t *testing.T) {
	// GIVEN: A file database with one row
	path := filepath.Join(t.TempDir(), "millops.db")
	st, err := New(path)
	require.NoError(t, err)
	_, err = st.Insert(context.Background(), store.TableMarketMaster, []store.Row{{"ship_to_city": "SALEM"}})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	// WHEN: Reopening it (migration runs again)
	st, err = New(path)
	require.NoError(t, err)
	defer st.Close()

	// THEN: The row survived
	rows, err := st.Fetch(context.Background(), store.Query{Table: store.TableMarketMaster})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "SALEM", rows[0]["ship_to_city"])
}

func TestScan_NormalizesTypes(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	rows, err := st.Insert(ctx, store.TableDispatchData, []store.Row{{
		"billing_document": "INV1",
		"billing_date":     "2025-03-01",
		"no_of_package":    float64(12),
		"gross_weight":     1234.5,
		"billed_quantity":  "1,000 KG",
	}})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.IsType(t, int64(0), row["id"])
	assert.Equal(t, float64(12), row["no_of_package"])
	assert.Equal(t, 1234.5, row["gross_weight"])
	assert.Equal(t, "1,000 KG", row["billed_quantity"])
	assert.Equal(t, "2025-03-01", row["billing_date"])
	assert.Nil(t, row["canceled"])
}

func TestBlankDateBecomesNull(t *testing.T) {
	st := newTestStore(t)

	rows, err := st.Insert(context.Background(), store.TableYarnComplaints, []store.Row{{
		"invoice_no":          "INV1",
		"query_received_date": "2025-02-10",
		"reply_date":          "",
	}})
	require.NoError(t, err)
	assert.Nil(t, rows[0]["reply_date"])
}

func TestIsUniqueConstraintError(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.Insert(ctx, store.TableCountMaster, []store.Row{{"item_description": "40s CW"}})
	require.NoError(t, err)

	_, err = st.Insert(ctx, store.TableCountMaster, []store.Row{{"item_description": "40s CW"}})
	assert.ErrorIs(t, err, store.ErrConflict)
	assert.False(t, isUniqueConstraintError(nil))
}

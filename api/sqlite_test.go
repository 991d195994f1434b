package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/millops/store"
	"github.com/warp/millops/store/sqlite"
)

// dispatchUpload mixes text and numeric JSON values the way spreadsheet
// uploads arrive. The last row has no date.
const dispatchUpload = `[
	{"billing_document":"A","billing_date":"2024-01-01","bill_to_customer":"C1","lot_no":"L1","plant":"1",
	 "product":"P1","item_description":"D1","billed_quantity":10,"no_of_package":1,"gross_weight":5,
	 "vehicle_number":"V1","ship_to_city":"SALEM"},
	{"billing_document":9000123456,"billing_date":"2025-01-15","plant":1101,"division_description":"YARN",
	 "market":"EXPORT","customer_name":"ACME","billed_quantity":"8,870 KG","no_of_package":20,"gross_weight":8900.5},
	{"billing_document":"INV3","billing_date":"2025-02-10","plant":"1201","division_description":"FABRIC",
	 "market":"EXPORT","customer_name":"ACME","billed_quantity":"2,000 KG"},
	{"billing_document":"INV4","billing_date":"","plant":"1102","division_description":"Yarn",
	 "market":"DOMESTIC","customer_name":"BETA","billed_quantity":"1,130 KG"}
]`

func setupSQLiteServer(t *testing.T) (*testServer, *sqlite.Store) {
	t.Helper()
	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return newTestServer(t, st, RouterOptions{}), st
}

func fetchStats(t *testing.T, ts *testServer, query string) map[string]any {
	t.Helper()
	rec := ts.do(http.MethodGet, "/api/dispatch-stats?"+query, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeBody(t, rec)["stats"].(map[string]any)
}

func TestSQLite_CoreRoutes(t *testing.T) {
	ts, st := setupSQLiteServer(t)

	// GIVEN: An uploaded batch of dispatch rows
	rec := ts.do(http.MethodPost, "/api/dispatch-data/bulk", dispatchUpload)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, decodeBody(t, rec)["data"], 4)

	t.Run("unknown column is rejected", func(t *testing.T) {
		rec := ts.do(http.MethodPost, "/api/dispatch-data/bulk", `[{"colour":"red"}]`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("check duplicates", func(t *testing.T) {
		// WHEN: Uploading two stored rows again, one with numeric values, and a new row
		rec := ts.do(http.MethodPost, "/api/dispatch-data/check-duplicates", `[
			{"billing_document":"A","billing_date":"2024-01-01","bill_to_customer":"C1","lot_no":"L1","plant":"1",
			 "product":"P1","item_description":"D1","billed_quantity":"10","no_of_package":1,"gross_weight":"5.0",
			 "vehicle_number":"V1"},
			{"billing_document":9000123456,"billing_date":"2025-01-15","plant":1101,"billed_quantity":"8,870 KG",
			 "no_of_package":"20","gross_weight":8900.5},
			{"billing_document":"A","billing_date":"2024-01-02","bill_to_customer":"C1","lot_no":"L1","plant":"1"}
		]`)

		// THEN: Both stored rows are recognised after the round trip through SQL
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		out := decodeBody(t, rec)
		assert.Equal(t, float64(2), out["duplicateCount"])
		fresh := out["nonDuplicates"].([]any)
		require.Len(t, fresh, 1)
		assert.Equal(t, "2024-01-02", fresh[0].(map[string]any)["billing_date"])
	})

	t.Run("dispatch stats", func(t *testing.T) {
		// Mixed-case divisions match through LIKE
		yarn := fetchStats(t, ts, "division=Yarn")
		assert.InDelta(t, 10.0, yarn["total"], 1e-9)
		assert.Equal(t, map[string]any{"1": 8.87, "2": 1.13}, yarn["unit"])
		assert.Equal(t, map[string]any{"Jan": 8.87}, yarn["month"], "undated rows stay out of month buckets")
		assert.Equal(t, map[string]any{"2025": 8.87}, yarn["year"])

		fabric := fetchStats(t, ts, "division=Fabric")
		assert.Equal(t, map[string]any{"1201": 2.0}, fabric["unit"])

		// Comma lists become IN filters
		both := fetchStats(t, ts, "division=Yarn&market=EXPORT,DOMESTIC")
		assert.InDelta(t, 10.0, both["total"], 1e-9)
		acme := fetchStats(t, ts, "division=Yarn&customer_name=ACME,NOBODY")
		assert.InDelta(t, 8.87, acme["total"], 1e-9)

		// Date bounds apply to the stored dates
		dated := fetchStats(t, ts, "startDate=2025-01-01&endDate=2025-01-31")
		assert.InDelta(t, 8.87, dated["total"], 1e-9)
	})

	t.Run("sync master data", func(t *testing.T) {
		ctx := context.Background()
		_, err := st.Insert(ctx, store.TableMarketMaster, []store.Row{{"ship_to_city": "SALEM", "market": "DOMESTIC"}})
		require.NoError(t, err)

		// WHEN: Running the sync
		rec := ts.do(http.MethodPost, "/api/sync-master-data", "")
		require.Equal(t, http.StatusOK, rec.Code)

		// THEN: The stream runs from start to complete through 100 percent
		var events []map[string]any
		sc := bufio.NewScanner(strings.NewReader(rec.Body.String()))
		for sc.Scan() {
			var e map[string]any
			require.NoError(t, json.Unmarshal(sc.Bytes(), &e), sc.Text())
			events = append(events, e)
		}
		require.GreaterOrEqual(t, len(events), 3)
		assert.Equal(t, "start", events[0]["type"])
		assert.Equal(t, float64(100), events[len(events)-2]["percent"])
		assert.Equal(t, "complete", events[len(events)-1]["type"])

		// AND: The row shipped to SALEM carries the curated market
		row, err := store.First(ctx, st, store.Query{
			Table:   store.TableDispatchData,
			Filters: []store.Filter{store.Eq("billing_document", "A")},
		})
		require.NoError(t, err)
		assert.Equal(t, "DOMESTIC", row["market"])
	})
}

/*
server_test.go - HTTP tests for the router and handlers

Tests for:
- Health and metrics endpoints
- Input validation before any store call (400)
- Dispatch statistics and duplicate check end to end
- Streamed master-data sync (NDJSON)
- Login, layouts, retired routes and error statuses
*/
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/warp/millops/store"
	"github.com/warp/millops/store/memory"
)

type testServer struct {
	store  *memory.Memory
	reg    *prometheus.Registry
	router http.Handler
}

func setupTestServer(t *testing.T, opts RouterOptions) *testServer {
	t.Helper()
	s := memory.New()
	ts := newTestServer(t, s, opts)
	ts.store = s
	return ts
}

// newTestServer serves the API over any store. Only setupTestServer fills
// the memory store field.
func newTestServer(t *testing.T, s store.Store, opts RouterOptions) *testServer {
	t.Helper()
	h := NewHandler(s, nil, zaptest.NewLogger(t))
	h.Now = func() time.Time { return time.Date(2025, 3, 15, 14, 5, 9, 0, time.UTC) }

	reg := prometheus.NewRegistry()
	opts.Registry = reg
	return &testServer{reg: reg, router: NewRouter(h, opts)}
}

func (ts *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// countCalls installs a hook counting every store operation.
func countCalls(s *memory.Memory) *atomic.Int32 {
	var n atomic.Int32
	s.SetHook(func(context.Context, memory.Call) error {
		n.Add(1)
		return nil
	})
	return &n
}

func TestHealth(t *testing.T) {
	ts := setupTestServer(t, RouterOptions{})

	rec := ts.do(http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, HealthMessage, decodeBody(t, rec)["status"])
}

func TestMetrics_CountsRequestsByRoute(t *testing.T) {
	ts := setupTestServer(t, RouterOptions{})

	ts.do(http.MethodGet, "/health", "")
	ts.do(http.MethodPut, "/api/dispatch-data/abc", `{"market":"EXPORT"}`)

	n, err := testutil.GatherAndCount(ts.reg, "millops_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rec := ts.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `route="/health"`)
	assert.Contains(t, rec.Body.String(), `route="/api/dispatch-data/{id}"`)
	assert.Contains(t, rec.Body.String(), `status="400"`)
}

func TestNewRouter_SharedRegistry(t *testing.T) {
	// GIVEN: Two routers on one registry
	reg := prometheus.NewRegistry()
	h := NewHandler(memory.New(), nil, zaptest.NewLogger(t))
	first := NewRouter(h, RouterOptions{Registry: reg})
	second := NewRouter(h, RouterOptions{Registry: reg})

	// WHEN: Each serves a request
	for _, r := range []http.Handler{first, second} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	}

	// THEN: Both count into the same series
	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, f := range families {
		if f.GetName() != "millops_http_requests_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, 2.0, total)

	// AND: Routers on the default registry can be built more than once
	assert.NotPanics(t, func() {
		NewRouter(h, RouterOptions{})
		NewRouter(h, RouterOptions{})
	})
}

func TestCheckDuplicates_RejectsNonArrayBeforeStore(t *testing.T) {
	ts := setupTestServer(t, RouterOptions{})
	calls := countCalls(ts.store)

	for _, body := range []string{`{"billing_document":"INV1"}`, `"INV1"`, `not json`} {
		t.Run(body, func(t *testing.T) {
			rec := ts.do(http.MethodPost, "/api/dispatch-data/check-duplicates", body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			out := decodeBody(t, rec)
			assert.Equal(t, false, out["success"])
			assert.Equal(t, "Failed to check duplicates", out["error"])
		})
	}
	assert.Zero(t, calls.Load(), "no store call for invalid input")
}

func TestCheckDuplicates(t *testing.T) {
	// GIVEN: One stored shipment
	ts := setupTestServer(t, RouterOptions{})
	ts.store.Seed(store.TableDispatchData, store.Row{
		"billing_document": "INV1",
		"billing_date":     "2025-03-01",
		"lot_no":           "L1",
		"billed_quantity":  "1,000 KG",
	})

	// WHEN: Uploading it again with a new one
	rec := ts.do(http.MethodPost, "/api/dispatch-data/check-duplicates", `[
		{"billing_document":"INV1","billing_date":"2025-03-01","lot_no":"L1","billed_quantity":"1,000 KG"},
		{"billing_document":"INV2","billing_date":"2025-03-01","lot_no":"L2","billed_quantity":"500 KG"}
	]`)

	// THEN: Only the new one is returned
	require.Equal(t, http.StatusOK, rec.Code)
	out := decodeBody(t, rec)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, float64(1), out["duplicateCount"])
	fresh := out["nonDuplicates"].([]any)
	require.Len(t, fresh, 1)
	assert.Equal(t, "INV2", fresh[0].(map[string]any)["billing_document"])
}

func TestDispatchStats(t *testing.T) {
	// GIVEN: Yarn, fabric and canceled rows
	ts := setupTestServer(t, RouterOptions{})
	ts.store.Seed(store.TableDispatchData,
		store.Row{"division_description": "YARN", "plant": "1101", "market": "EXPORT", "customer_name": "ACME",
			"billing_date": "2025-01-15", "billed_quantity": "8,870 KG"},
		store.Row{"division_description": "Yarn", "plant": "1102", "market": "DOMESTIC", "customer_name": "BETA",
			"billing_date": "2025-02-03", "billed_quantity": "1,130 KG"},
		store.Row{"division_description": "YARN", "plant": "1101", "market": "EXPORT", "customer_name": "ACME",
			"billing_date": "2025-02-04", "billed_quantity": "5,000 KG", "canceled": "X"},
		store.Row{"division_description": "FABRIC", "plant": "1201", "market": "EXPORT", "customer_name": "ACME",
			"billing_date": "2025-02-05", "billed_quantity": "2,000 KG"},
	)

	// WHEN: Asking for yarn statistics
	rec := ts.do(http.MethodGet, "/api/dispatch-stats?division=Yarn&startDate=2025-01-01", "")

	// THEN: Canceled and fabric rows are left out
	require.Equal(t, http.StatusOK, rec.Code)
	out := decodeBody(t, rec)
	assert.Equal(t, true, out["success"])
	stats := out["stats"].(map[string]any)
	assert.InDelta(t, 10.0, stats["total"], 1e-9)
	assert.Equal(t, map[string]any{"1": 8.87, "2": 1.13}, stats["unit"])
	assert.Equal(t, map[string]any{"EXPORT": 8.87, "DOMESTIC": 1.13}, stats["market"])

	// AND: Column filters narrow further
	rec = ts.do(http.MethodGet, "/api/dispatch-stats?division=Yarn&market=DOMESTIC", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 1.13, decodeBody(t, rec)["stats"].(map[string]any)["total"], 1e-9)
}

func TestSyncMasterData_StreamsEvents(t *testing.T) {
	// GIVEN: Dispatch rows missing their market
	ts := setupTestServer(t, RouterOptions{})
	ts.store.Seed(store.TableMarketMaster,
		store.Row{"ship_to_city": "SALEM", "market": "DOMESTIC"},
		store.Row{"ship_to_city": "DHAKA", "market": "EXPORT"})
	ts.store.Seed(store.TableDispatchData,
		store.Row{"ship_to_city": "SALEM"},
		store.Row{"ship_to_city": "DHAKA"})

	// WHEN: Running the sync
	rec := ts.do(http.MethodPost, "/api/sync-master-data", "")

	// THEN: One JSON object per line, start first and complete last
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))

	var events []map[string]any
	sc := bufio.NewScanner(strings.NewReader(rec.Body.String()))
	for sc.Scan() {
		var e map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e), sc.Text())
		events = append(events, e)
	}
	require.GreaterOrEqual(t, len(events), 3)
	assert.Equal(t, "start", events[0]["type"])
	assert.NotEmpty(t, events[0]["runId"])
	last := events[len(events)-1]
	assert.Equal(t, "complete", last["type"])
	assert.Equal(t, "ok", last["status"])

	// AND: The dispatch rows carry the curated market
	for _, row := range ts.store.Rows(store.TableDispatchData) {
		assert.NotEmpty(t, row["market"], row["ship_to_city"])
	}
}

func TestLogin(t *testing.T) {
	ts := setupTestServer(t, RouterOptions{})
	ts.store.Seed(store.TableLoginDetails,
		store.Row{"role": "admin", "full_name": "Priya", "secret_password": "s3cret"})

	rec := ts.do(http.MethodPost, "/api/login", `{"role":"admin","full_name":"Priya","secret_password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, invalidCredentials, decodeBody(t, rec)["error"])

	rec = ts.do(http.MethodPost, "/api/login", `{"role":"admin","full_name":"Priya","secret_password":"s3cret"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	user := decodeBody(t, rec)["user"].(map[string]any)
	assert.Equal(t, "Priya", user["full_name"])
	assert.NotContains(t, user, "secret_password")

	rec = ts.do(http.MethodGet, "/api/login-names", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"Priya"}, decodeBody(t, rec)["names"])
}

func TestTableLayouts(t *testing.T) {
	ts := setupTestServer(t, RouterOptions{})
	ts.store.Seed(store.TableLoginDetails,
		store.Row{"role": "admin", "full_name": "Priya", "secret_password": "s3cret"})

	// No layout yet
	rec := ts.do(http.MethodGet, "/api/table-layout/dispatch_data", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decodeBody(t, rec)["data"])

	// Missing fields
	rec = ts.do(http.MethodPost, "/api/table-layout", `{"table_name":"dispatch_data"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Save, then read back
	rec = ts.do(http.MethodPost, "/api/table-layout",
		`{"table_name":"dispatch_data","layout_name":"default","layout":{"hidden":["plant"]}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	id := decodeBody(t, rec)["data"].(map[string]any)["id"]

	rec = ts.do(http.MethodGet, "/api/table-layout/dispatch_data", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, decodeBody(t, rec)["data"].(map[string]any)["id"])

	rec = ts.do(http.MethodGet, "/api/table-layouts/dispatch_data", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["data"], 1)

	// Delete records the operator
	rec = ts.do(http.MethodDelete, "/api/table-layout/1?deleted_by=Priya", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, ts.store.Rows(store.TableLayouts))
	users := ts.store.Rows(store.TableLoginDetails)
	assert.Equal(t, "Deleted table layout ID 1 at 3/15/2025, 2:05:09 PM", users[0]["work_details"])
}

func TestDispatchByInvoice(t *testing.T) {
	ts := setupTestServer(t, RouterOptions{})
	ts.store.Seed(store.TableDispatchData,
		store.Row{"billing_document": "INV1", "lot_no": "L1", "canceled": "X"},
		store.Row{"billing_document": "INV1", "lot_no": "L2"})

	rec := ts.do(http.MethodGet, "/api/dispatch-data/by-invoice/INV1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "L2", decodeBody(t, rec)["data"].(map[string]any)["lot_no"])

	rec = ts.do(http.MethodGet, "/api/dispatch-data/by-invoice/INV9", "")
	require.Equal(t, http.StatusOK, rec.Code)
	out := decodeBody(t, rec)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "Invoice not found", out["message"])
}

func TestErrorStatuses(t *testing.T) {
	ts := setupTestServer(t, RouterOptions{MaxBodyBytes: 64})

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"invalid id", http.MethodPut, "/api/dispatch-data/abc", `{"market":"X"}`, http.StatusBadRequest},
		{"missing row", http.MethodPut, "/api/dispatch-data/99", `{"market":"X"}`, http.StatusNotFound},
		{"nothing to update", http.MethodPut, "/api/dispatch-data/99", `{"id":5}`, http.StatusBadRequest},
		{"unknown column", http.MethodPost, "/api/yarn-complaints", `{"colour":"red"}`, http.StatusBadRequest},
		{"unknown table", http.MethodGet, "/api/unique-values/pg_user/usename", "", http.StatusBadRequest},
		{"unknown master", http.MethodPut, "/api/master/bogus/1", `{"market":"X"}`, http.StatusBadRequest},
		{"retired route", http.MethodPost, "/api/dispatch-results/update-masters", "", http.StatusGone},
		{"body too large", http.MethodPost, "/api/dispatch-data/bulk",
			`[{"billing_document":"` + strings.Repeat("A", 100) + `"}]`, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.Equal(t, false, decodeBody(t, rec)["success"])
		})
	}
}

func TestMasterRoutes(t *testing.T) {
	ts := setupTestServer(t, RouterOptions{})
	ts.store.Seed(store.TableDispatchData,
		store.Row{"ship_to_city": "SALEM"},
		store.Row{"ship_to_city": "DHAKA"})

	rec := ts.do(http.MethodPost, "/api/master/refresh-market", "")
	require.Equal(t, http.StatusOK, rec.Code)
	out := decodeBody(t, rec)
	assert.Equal(t, "Market master refreshed", out["message"])
	assert.Equal(t, float64(2), out["count"])

	rec = ts.do(http.MethodGet, "/api/master/pending-market", "")
	require.Equal(t, http.StatusOK, rec.Code)
	pending := decodeBody(t, rec)["data"].([]any)
	require.Len(t, pending, 2)

	id := pending[0].(map[string]any)["id"].(float64)
	rec = ts.do(http.MethodPut, "/api/master/market/"+jsonNumber(id), `{"market":"EXPORT"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(http.MethodGet, "/api/master/pending-market", "")
	assert.Len(t, decodeBody(t, rec)["data"], 1)
}

func jsonNumber(f float64) string {
	b, _ := json.Marshal(f)
	return string(b)
}

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/warp/millops/dispatch"
	"github.com/warp/millops/store"
)

// =============================================================================
// DISPATCH DATA
// =============================================================================

// ListDispatchData returns active dispatch rows, newest first.
// GET /api/dispatch-data?startDate&endDate&<column>=<value[,value...]>
func (h *Handler) ListDispatchData(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := []store.Filter{store.Active("canceled")}
	filters = append(filters, dateRange(q, "billing_date")...)
	filters = append(filters, listFilters(q, "startDate", "endDate")...)

	rows, err := h.Store.Fetch(r.Context(), store.Query{
		Table:   store.TableDispatchData,
		Filters: filters,
		OrderBy: []store.Order{store.Desc("created_at"), store.Desc("id")},
	})
	if err != nil {
		h.fail(w, r, "Failed to get dispatch data", err)
		return
	}
	writeData(w, rows)
}

// UpdateDispatchData updates one dispatch row.
// PUT /api/dispatch-data/{id}
func (h *Handler) UpdateDispatchData(w http.ResponseWriter, r *http.Request) {
	h.updateByID(w, r, store.TableDispatchData, "Failed to update dispatch entry")
}

// DeleteDispatchData removes one dispatch row.
// DELETE /api/dispatch-data/{id}?deleted_by=
func (h *Handler) DeleteDispatchData(w http.ResponseWriter, r *http.Request) {
	h.deleteByID(w, r, store.TableDispatchData, "dispatch entry", "Entry deleted")
}

// BulkInsertDispatchData inserts an array of dispatch rows.
// POST /api/dispatch-data/bulk
func (h *Handler) BulkInsertDispatchData(w http.ResponseWriter, r *http.Request) {
	rows, err := decodeRows(r)
	if err != nil {
		h.fail(w, r, "Failed to add dispatch entries", err)
		return
	}
	if len(rows) == 0 {
		writeData(w, []store.Row{})
		return
	}

	inserted, err := h.Store.Insert(r.Context(), store.TableDispatchData, cleanAll(rows))
	if err != nil {
		h.fail(w, r, "Failed to add dispatch entries", err)
		return
	}
	writeData(w, inserted)
}

// DispatchByInvoice returns the first active dispatch row of an invoice, for
// auto-filling complaint forms. An unknown invoice is success=false, not 404.
// GET /api/dispatch-data/by-invoice/{invoiceNo}
func (h *Handler) DispatchByInvoice(w http.ResponseWriter, r *http.Request) {
	row, err := store.First(r.Context(), h.Store, store.Query{
		Table: store.TableDispatchData,
		Filters: []store.Filter{
			store.Eq("billing_document", chi.URLParam(r, "invoiceNo")),
			store.Active("canceled"),
		},
		OrderBy: []store.Order{store.Asc("id")},
	})
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusOK, MessageResponse{Message: "Invoice not found"})
		return
	}
	if err != nil {
		h.fail(w, r, "Failed to look up invoice", err)
		return
	}
	writeData(w, row)
}

// CheckDuplicates splits an upload into rows already stored and new rows.
// POST /api/dispatch-data/check-duplicates
func (h *Handler) CheckDuplicates(w http.ResponseWriter, r *http.Request) {
	candidates, err := decodeRows(r)
	if err != nil {
		h.fail(w, r, "Failed to check duplicates", err)
		return
	}

	c, err := dispatch.CheckDuplicates(r.Context(), h.Store, candidates)
	if err != nil {
		h.fail(w, r, "Failed to check duplicates", err)
		return
	}
	writeJSON(w, http.StatusOK, DuplicateCheckResponse{
		Success:        true,
		DuplicateCount: len(c.Duplicates),
		NonDuplicates:  c.NonDuplicates,
	})
}

// =============================================================================
// STATISTICS
// =============================================================================

// DispatchStats aggregates billed tonnage by unit, market, customer, month
// and year.
// GET /api/dispatch-stats?division=Yarn|Fabric&startDate&endDate&<column>=<value[,value...]>
func (h *Handler) DispatchStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	division := dispatch.ParseDivision(q.Get("division"))
	query := dispatch.StatsQuery(division, q.Get("startDate"), q.Get("endDate"),
		listFilters(q, "division", "startDate", "endDate")...)

	rows, err := h.Store.Fetch(r.Context(), query)
	if err != nil {
		h.fail(w, r, "Failed to get dispatch statistics", err)
		return
	}
	writeJSON(w, http.StatusOK, StatsResponse{
		Success: true,
		Stats:   dispatch.Aggregate(rows, division).Report(),
	})
}

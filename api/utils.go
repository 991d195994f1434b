package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/warp/millops/report"
)

// =============================================================================
// INTROSPECTION
// =============================================================================

// TableColumns lists the columns of a table.
// GET /api/table-columns/{table}
func (h *Handler) TableColumns(w http.ResponseWriter, r *http.Request) {
	cols, err := report.TableColumns(chi.URLParam(r, "table"))
	if err != nil {
		h.fail(w, r, "Failed to get table columns", err)
		return
	}
	writeData(w, cols)
}

// UniqueValues lists the distinct values of a column for filter dropdowns.
// GET /api/unique-values/{table}/{column}?<column>=<value>
func (h *Handler) UniqueValues(w http.ResponseWriter, r *http.Request) {
	values, err := report.UniqueValues(r.Context(), h.Store,
		chi.URLParam(r, "table"), chi.URLParam(r, "column"), eqFilters(r.URL.Query()))
	if err != nil {
		h.fail(w, r, "Failed to get unique values", err)
		return
	}
	writeData(w, values)
}

// AvailableYears lists the years a date column covers, newest first.
// GET /api/available-years/{table}/{column}
func (h *Handler) AvailableYears(w http.ResponseWriter, r *http.Request) {
	years, err := report.AvailableYears(r.Context(), h.Store, chi.URLParam(r, "table"), chi.URLParam(r, "column"))
	if err != nil {
		h.fail(w, r, "Failed to get available years", err)
		return
	}
	writeData(w, years)
}

// ComplaintYears lists the years complaints were received in.
// GET /api/available-years
func (h *Handler) ComplaintYears(w http.ResponseWriter, r *http.Request) {
	years, err := report.ComplaintYears(r.Context(), h.Store, h.now())
	if err != nil {
		h.fail(w, r, "Failed to get available years", err)
		return
	}
	writeData(w, years)
}

// MaxDate returns the latest value of a date column, or null.
// GET /api/max-date/{table}/{column}
func (h *Handler) MaxDate(w http.ResponseWriter, r *http.Request) {
	v, err := report.MaxDate(r.Context(), h.Store, chi.URLParam(r, "table"), chi.URLParam(r, "column"))
	if err != nil {
		h.fail(w, r, "Failed to get max date", err)
		return
	}
	writeData(w, v)
}

// =============================================================================
// REPORTS
// =============================================================================

// ComplaintStats counts open, closed and incomplete complaints per division.
// GET /api/complaint-stats?year&<column>=<value>
func (h *Handler) ComplaintStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	year := q.Get("year")
	if year == "undefined" {
		year = ""
	}
	stats, err := report.ComplaintStats(r.Context(), h.Store, year, eqFilters(q, "year"))
	if err != nil {
		h.fail(w, r, "Failed to get complaint statistics", err)
		return
	}
	writeJSON(w, http.StatusOK, ComplaintStatsResponse{Success: true, Data: stats})
}

// YarnRealization returns the realization figures of the latest date.
// GET /api/yarn-realization
func (h *Handler) YarnRealization(w http.ResponseWriter, r *http.Request) {
	rows, err := report.LatestRealization(r.Context(), h.Store)
	if err != nil {
		h.fail(w, r, "Failed to get yarn realization", err)
		return
	}
	writeData(w, rows)
}

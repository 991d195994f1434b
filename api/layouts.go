package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/warp/millops/store"
)

// =============================================================================
// TABLE LAYOUTS
// =============================================================================

// ListTableLayouts returns the saved layouts of a table, latest first.
// GET /api/table-layouts/{table}
func (h *Handler) ListTableLayouts(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Store.Fetch(r.Context(), store.Query{
		Table:   store.TableLayouts,
		Columns: []string{"id", "layout_name", "layout", "updated_at"},
		Filters: []store.Filter{store.Eq("table_name", chi.URLParam(r, "table"))},
		OrderBy: []store.Order{store.Desc("updated_at"), store.Desc("id")},
	})
	if err != nil {
		h.fail(w, r, "Failed to get table layouts", err)
		return
	}
	writeData(w, rows)
}

// LatestTableLayout returns the most recently saved layout of a table, or
// null.
// GET /api/table-layout/{table}
func (h *Handler) LatestTableLayout(w http.ResponseWriter, r *http.Request) {
	row, err := store.First(r.Context(), h.Store, store.Query{
		Table:   store.TableLayouts,
		Filters: []store.Filter{store.Eq("table_name", chi.URLParam(r, "table"))},
		OrderBy: []store.Order{store.Desc("updated_at"), store.Desc("id")},
	})
	if errors.Is(err, store.ErrNotFound) {
		writeData(w, nil)
		return
	}
	if err != nil {
		h.fail(w, r, "Failed to get table layout", err)
		return
	}
	writeData(w, row)
}

// SaveTableLayout creates a layout or, when an id or an existing
// table/layout name pair is given, replaces it.
// POST /api/table-layout
func (h *Handler) SaveTableLayout(w http.ResponseWriter, r *http.Request) {
	var req LayoutRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, "Failed to save table layout", err)
		return
	}
	if req.TableName == "" || req.LayoutName == "" || req.Layout == nil {
		h.fail(w, r, "Missing required fields",
			fmt.Errorf("%w: table_name, layout_name and layout are required", errMissing))
		return
	}

	row := store.Row{
		"table_name":  req.TableName,
		"layout_name": req.LayoutName,
		"layout":      req.Layout,
		"user_id":     nil,
		"updated_at":  h.now().UTC(),
	}

	var (
		saved []store.Row
		err   error
	)
	if id, ok := store.ID(req.ID); ok {
		saved, err = h.Store.Update(r.Context(), store.TableLayouts, row, store.Eq("id", id))
		if err == nil && len(saved) == 0 {
			err = store.ErrNotFound
		}
	} else {
		saved, err = h.Store.Upsert(r.Context(), store.TableLayouts, []store.Row{row},
			store.UpsertOptions{OnConflict: []string{"table_name", "layout_name"}})
	}
	if err != nil {
		h.fail(w, r, "Failed to save table layout", err)
		return
	}
	if len(saved) == 0 {
		h.fail(w, r, "Failed to save table layout", store.ErrNotFound)
		return
	}
	writeData(w, saved[0])
}

// DeleteTableLayout removes a saved layout.
// DELETE /api/table-layout/{id}?deleted_by=
func (h *Handler) DeleteTableLayout(w http.ResponseWriter, r *http.Request) {
	h.deleteByID(w, r, store.TableLayouts, "table layout", "Layout deleted successfully")
}

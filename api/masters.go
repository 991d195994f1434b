package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/warp/millops/dispatch"
)

// =============================================================================
// MASTER DATA
// =============================================================================

var refreshMessages = map[string]string{
	dispatch.YarnCountMaster.Name:   "Yarn count master refreshed",
	dispatch.FabricCountMaster.Name: "Fabric count master refreshed",
	dispatch.MarketMaster.Name:      "Market master refreshed",
	dispatch.CustomerMaster.Name:    "Customer master refreshed",
}

// RefreshMaster collects new natural keys from dispatch data into m.
// POST /api/master/refresh-{yarn-count|fabric-count|market|customer}
func (h *Handler) RefreshMaster(m dispatch.Master) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := m.Refresh(r.Context(), h.Store)
		if err != nil {
			h.fail(w, r, "Failed to refresh master", err)
			return
		}
		writeJSON(w, http.StatusOK, RefreshResponse{Success: true, Message: refreshMessages[m.Name], Count: n})
	}
}

// PendingMaster lists rows of m still missing a canonical value.
// GET /api/master/pending-{yarn-count|fabric-count|market|customer}
func (h *Handler) PendingMaster(m dispatch.Master) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := m.Pending(r.Context(), h.Store)
		if err != nil {
			h.fail(w, r, "Failed to get pending master rows", err)
			return
		}
		writeData(w, rows)
	}
}

// EditMaster sets the canonical values of one master row.
// PUT /api/master/{count|market|customer}/{id}
func (h *Handler) EditMaster(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	m, ok := dispatch.EditableMasters[kind]
	if !ok {
		h.fail(w, r, "Failed to update master", fmt.Errorf("%w: unknown master %q", errInvalidID, kind))
		return
	}
	id, err := idParam(r)
	if err != nil {
		h.fail(w, r, "Failed to update master", err)
		return
	}
	body, err := decodeRow(r)
	if err != nil {
		h.fail(w, r, "Failed to update master", err)
		return
	}

	row, err := m.Edit(r.Context(), h.Store, id, body)
	if err != nil {
		h.fail(w, r, "Failed to update master", err)
		return
	}
	writeData(w, row)
}

// MasterSuggestions returns values already in use, for autocompletion.
// GET /api/master/suggestions/{type}
func (h *Handler) MasterSuggestions(w http.ResponseWriter, r *http.Request) {
	values, err := dispatch.Suggestions(r.Context(), h.Store, chi.URLParam(r, "type"))
	if err != nil {
		h.fail(w, r, "Failed to get suggestions", err)
		return
	}
	writeData(w, values)
}

// MarketMappings returns every city to market mapping.
// GET /api/master/market-mappings
func (h *Handler) MarketMappings(w http.ResponseWriter, r *http.Request) {
	rows, err := dispatch.MarketMappings(r.Context(), h.Store)
	if err != nil {
		h.fail(w, r, "Failed to get market mappings", err)
		return
	}
	writeData(w, rows)
}

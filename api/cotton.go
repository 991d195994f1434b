package api

import (
	"net/http"

	"github.com/warp/millops/cotton"
	"github.com/warp/millops/store"
)

// =============================================================================
// COTTON GROUPS
// =============================================================================

// ListCottonGroups returns every cotton variety.
// GET /api/cotton/groups
func (h *Handler) ListCottonGroups(w http.ResponseWriter, r *http.Request) {
	rows, err := cotton.ListGroups(r.Context(), h.Store)
	if err != nil {
		h.fail(w, r, "Failed to get cotton groups", err)
		return
	}
	writeData(w, rows)
}

// CreateCottonGroup adds a variety.
// POST /api/cotton/groups
func (h *Handler) CreateCottonGroup(w http.ResponseWriter, r *http.Request) {
	var g cotton.Group
	if err := decodeJSON(r, &g); err != nil {
		h.fail(w, r, "Failed to create cotton group", err)
		return
	}
	row, err := cotton.CreateGroup(r.Context(), h.Store, g)
	if err != nil {
		h.fail(w, r, "Failed to create cotton group", err)
		return
	}
	writeData(w, row)
}

// UpdateCottonGroup replaces a variety.
// PUT /api/cotton/groups/{id}
func (h *Handler) UpdateCottonGroup(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.fail(w, r, "Failed to update cotton group", err)
		return
	}
	var g cotton.Group
	if err := decodeJSON(r, &g); err != nil {
		h.fail(w, r, "Failed to update cotton group", err)
		return
	}
	row, err := cotton.UpdateGroup(r.Context(), h.Store, id, g)
	if err != nil {
		h.fail(w, r, "Failed to update cotton group", err)
		return
	}
	writeData(w, row)
}

// DeleteCottonGroup removes a variety.
// DELETE /api/cotton/groups/{id}?deleted_by=
func (h *Handler) DeleteCottonGroup(w http.ResponseWriter, r *http.Request) {
	h.deleteByID(w, r, store.TableCottonGroups, "cotton variety", "Variety deleted")
}

// =============================================================================
// COTTON PLANNING
// =============================================================================

// ListCottonPlannings returns every planning with its blend lines.
// GET /api/cotton/planning
func (h *Handler) ListCottonPlannings(w http.ResponseWriter, r *http.Request) {
	rows, err := cotton.ListPlannings(r.Context(), h.Store)
	if err != nil {
		h.fail(w, r, "Failed to get cotton planning", err)
		return
	}
	writeData(w, rows)
}

// CreateCottonPlanning stores a planning and its blend.
// POST /api/cotton/planning
func (h *Handler) CreateCottonPlanning(w http.ResponseWriter, r *http.Request) {
	var p cotton.Planning
	if err := decodeJSON(r, &p); err != nil {
		h.fail(w, r, "Failed to save cotton planning", err)
		return
	}
	row, err := cotton.CreatePlanning(r.Context(), h.Store, p)
	if err != nil {
		h.fail(w, r, "Failed to save cotton planning", err)
		return
	}
	writeData(w, row)
}

// UpdateCottonPlanning replaces a planning, and its blend when one is sent.
// PUT /api/cotton/planning/{id}
func (h *Handler) UpdateCottonPlanning(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.fail(w, r, "Failed to update cotton planning", err)
		return
	}
	var p cotton.Planning
	if err := decodeJSON(r, &p); err != nil {
		h.fail(w, r, "Failed to update cotton planning", err)
		return
	}
	if err := cotton.UpdatePlanning(r.Context(), h.Store, id, p); err != nil {
		h.fail(w, r, "Failed to update cotton planning", err)
		return
	}
	writeMessage(w, "Planning updated")
}

// DeleteCottonPlanning removes a planning and its blend.
// DELETE /api/cotton/planning/{id}?deleted_by=
func (h *Handler) DeleteCottonPlanning(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.fail(w, r, "Failed to delete cotton planning", err)
		return
	}
	if err := cotton.DeletePlanning(r.Context(), h.Store, id); err != nil {
		h.fail(w, r, "Failed to delete cotton planning", err)
		return
	}
	h.audit(r, "cotton planning", id)
	writeMessage(w, "Planning deleted")
}

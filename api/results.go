package api

import (
	"fmt"
	"net/http"

	"github.com/warp/millops/dispatch"
	"github.com/warp/millops/store"
)

// =============================================================================
// DISPATCH RESULTS
// =============================================================================

// ListDispatchResults returns lab results, newest first, completed from the
// dispatch rows of their lots.
// GET /api/dispatch-results?lot_no=
func (h *Handler) ListDispatchResults(w http.ResponseWriter, r *http.Request) {
	rows, err := dispatch.ListResults(r.Context(), h.Store, r.URL.Query().Get("lot_no"))
	if err != nil {
		h.fail(w, r, "Failed to get dispatch results", err)
		return
	}
	writeData(w, rows)
}

// CreateDispatchResult stores one result.
// POST /api/dispatch-results
func (h *Handler) CreateDispatchResult(w http.ResponseWriter, r *http.Request) {
	body, err := decodeRow(r)
	if err != nil {
		h.fail(w, r, "Failed to create dispatch result", err)
		return
	}
	rows, err := h.Store.Insert(r.Context(), store.TableDispatchResults, []store.Row{clean(body)})
	if err != nil {
		h.fail(w, r, "Failed to create dispatch result", err)
		return
	}
	writeData(w, rows[0])
}

// BatchDispatchResults stores the results not recorded yet.
// POST /api/dispatch-results/batch {"results": [...]}
func (h *Handler) BatchDispatchResults(w http.ResponseWriter, r *http.Request) {
	var req BatchResultsRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, "Failed to add dispatch results", err)
		return
	}
	if len(req.Results) == 0 {
		h.fail(w, r, "No results provided", fmt.Errorf("%w: results must be a non-empty array", errMissing))
		return
	}

	res, err := dispatch.InsertResults(r.Context(), h.Store, req.Results)
	if err != nil {
		h.fail(w, r, "Failed to add dispatch results", err)
		return
	}
	writeJSON(w, http.StatusOK, BatchResultsResponse{
		Success:  true,
		Data:     res.Inserted,
		Inserted: len(res.Inserted),
		Skipped:  res.Skipped,
	})
}

// PlanResultMasterUpdates proposes master values for incomplete results.
// GET /api/dispatch-results/update-masters-plan
func (h *Handler) PlanResultMasterUpdates(w http.ResponseWriter, r *http.Request) {
	plan, err := dispatch.PlanMasterUpdates(r.Context(), h.Store)
	if err != nil {
		h.fail(w, r, "Failed to plan master updates", err)
		return
	}
	writeJSON(w, http.StatusOK, UpdatePlanResponse{Success: true, Updates: plan})
}

// ExecuteResultMasterUpdates applies a plan, or a chunk of one.
// POST /api/dispatch-results/update-masters-execute {"updates": [...]}
func (h *Handler) ExecuteResultMasterUpdates(w http.ResponseWriter, r *http.Request) {
	var req ExecutePlanRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, "Failed to apply master updates", err)
		return
	}
	if req.Updates == nil {
		h.fail(w, r, "Invalid updates format", errNotArray)
		return
	}
	if err := dispatch.ExecuteMasterUpdates(r.Context(), h.Store, req.Updates); err != nil {
		h.fail(w, r, "Failed to apply master updates", err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: fmt.Sprintf("%d results updated", len(req.Updates))})
}

// UpdateResultMastersGone answers the retired single-step update.
// POST /api/dispatch-results/update-masters
func (h *Handler) UpdateResultMastersGone(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusGone,
		"This endpoint is deprecated. Use update-masters-plan and update-masters-execute.", nil)
}

/*
handlers.go - Handler context and shared HTTP helpers

PURPOSE:
  Handler holds the dependencies every route needs. The route handlers
  themselves live in one file per area:

    dispatch.go     dispatch data, duplicate check, statistics
    sync.go         streamed master-data sync
    masters.go      master refresh, pending lists, edits, suggestions
    complaints.go   yarn and fabric complaints
    results.go      dispatch results and their master update plan
    cotton.go       cotton groups and planning
    layouts.go      saved table layouts
    users.go        accounts and login
    utils.go        introspection and small reports

REQUEST FLOW:
  1. Parse path and query parameters, decode the body
  2. Validate input (400 before any store call)
  3. Call the domain package
  4. Serialize the response

ERROR HANDLING:
  Every failure is {"success": false, "error": ..., "details": ...}:
  - 400: Invalid body, ids, table or column names, missing fields
  - 401: Failed login
  - 404: Row not found
  - 409: Unique constraint violation
  - 413: Body larger than the configured limit
  - 500: Store errors

SECURITY NOTE:
  No authentication or authorization. Login only checks credentials for
  the dashboard; it issues no token.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/warp/millops/account"
	"github.com/warp/millops/cotton"
	"github.com/warp/millops/dispatch"
	"github.com/warp/millops/store"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	Store      store.Store
	Reconciler *dispatch.Reconciler
	Logger     *zap.Logger

	// Now is the clock for audit lines and timestamps. Defaults to time.Now.
	Now func() time.Time
}

// NewHandler creates a new handler. A nil reconciler gets the default one.
func NewHandler(s store.Store, rec *dispatch.Reconciler, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rec == nil {
		rec = dispatch.NewReconciler(s, logger)
	}
	return &Handler{
		Store:      s,
		Reconciler: rec,
		Logger:     logger,
		Now:        time.Now,
	}
}

func (h *Handler) now() time.Time {
	if h.Now == nil {
		return time.Now()
	}
	return h.Now()
}

// log returns the handler logger tagged with the request id.
func (h *Handler) log(r *http.Request) *zap.Logger {
	if id := middleware.GetReqID(r.Context()); id != "" {
		return h.Logger.With(zap.String("request_id", id))
	}
	return h.Logger
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	errInvalidBody = errors.New("invalid request body")
	errNotArray    = errors.New("payload must be an array")
	errInvalidID   = errors.New("invalid id")
	errMissing     = errors.New("missing required fields")
)

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errInvalidBody),
		errors.Is(err, errNotArray),
		errors.Is(err, errInvalidID),
		errors.Is(err, errMissing),
		errors.Is(err, cotton.ErrMissingFields),
		store.IsClientError(err),
		dispatch.IsClientError(err):
		return http.StatusBadRequest
	case errors.Is(err, account.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with the status it maps to. Server errors are logged.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log(r).Error(message, zap.Error(err), zap.String("path", r.URL.Path))
	}
	writeError(w, status, message, err)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, DataResponse{Success: true, Data: data})
}

func writeMessage(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: message})
}

// decodeJSON decodes the request body into dst.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	return nil
}

// decodeRows decodes a body that must be a JSON array of objects.
func decodeRows(r *http.Request) ([]store.Row, error) {
	var raw json.RawMessage
	if err := decodeJSON(r, &raw); err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(bytes.TrimSpace(raw), []byte("[")) {
		return nil, errNotArray
	}
	var rows []store.Row
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	return rows, nil
}

// decodeRow decodes a body that must be a JSON object.
func decodeRow(r *http.Request) (store.Row, error) {
	var row store.Row
	if err := decodeJSON(r, &row); err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("%w: expected an object", errInvalidBody)
	}
	return row, nil
}

// idParam parses the {id} path parameter.
func idParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", errInvalidID, raw)
	}
	return id, nil
}

// clean drops the columns a client may not set.
func clean(row store.Row) store.Row {
	return row.Without("id", "created_at")
}

func cleanAll(rows []store.Row) []store.Row {
	out := make([]store.Row, len(rows))
	for i, r := range rows {
		out[i] = clean(r)
	}
	return out
}

// sortedKeys returns the query parameter names in a stable order.
func sortedKeys(q url.Values, skip ...string) []string {
	skipped := make(map[string]bool, len(skip))
	for _, s := range skip {
		skipped[s] = true
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		if !skipped[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// listFilters turns query parameters into column filters: a comma list
// becomes IN, a single value equality. Empty values are ignored.
func listFilters(q url.Values, skip ...string) []store.Filter {
	var filters []store.Filter
	for _, k := range sortedKeys(q, skip...) {
		v := q.Get(k)
		if v == "" {
			continue
		}
		if values := strings.Split(v, ","); len(values) > 1 {
			filters = append(filters, store.InStrings(k, values))
		} else {
			filters = append(filters, store.Eq(k, v))
		}
	}
	return filters
}

// eqFilters turns query parameters into equality filters. Empty values and
// the literal "undefined" a careless client sends are ignored.
func eqFilters(q url.Values, skip ...string) []store.Filter {
	var filters []store.Filter
	for _, k := range sortedKeys(q, skip...) {
		v := q.Get(k)
		if v == "" || v == "undefined" {
			continue
		}
		filters = append(filters, store.Eq(k, v))
	}
	return filters
}

// dateRange bounds column by the startDate and endDate parameters.
func dateRange(q url.Values, column string) []store.Filter {
	var filters []store.Filter
	if v := q.Get("startDate"); v != "" {
		filters = append(filters, store.Gte(column, v))
	}
	if v := q.Get("endDate"); v != "" {
		filters = append(filters, store.Lte(column, v))
	}
	return filters
}

// audit appends a deletion line to the work log of the deleted_by operator.
// Failures are logged, never returned.
func (h *Handler) audit(r *http.Request, what string, id int64) {
	deletedBy := r.URL.Query().Get("deleted_by")
	if deletedBy == "" {
		return
	}
	if err := account.RecordDeletion(r.Context(), h.Store, deletedBy, what, id, h.now()); err != nil {
		h.log(r).Warn("failed to record deletion",
			zap.String("deleted_by", deletedBy),
			zap.String("what", what),
			zap.Int64("id", id),
			zap.Error(err))
	}
}

// =============================================================================
// GENERIC ROW ROUTES
// =============================================================================

// updateByID applies the body of r to one row of table and writes it back.
func (h *Handler) updateByID(w http.ResponseWriter, r *http.Request, table, message string) {
	id, err := idParam(r)
	if err != nil {
		h.fail(w, r, message, err)
		return
	}
	body, err := decodeRow(r)
	if err != nil {
		h.fail(w, r, message, err)
		return
	}
	set := clean(body)
	if len(set) == 0 {
		h.fail(w, r, message, fmt.Errorf("%w: nothing to update", errMissing))
		return
	}

	rows, err := h.Store.Update(r.Context(), table, set, store.Eq("id", id))
	if err != nil {
		h.fail(w, r, message, err)
		return
	}
	if len(rows) == 0 {
		h.fail(w, r, message, store.ErrNotFound)
		return
	}
	writeData(w, rows[0])
}

// deleteByID removes one row of table and records the deletion as what.
func (h *Handler) deleteByID(w http.ResponseWriter, r *http.Request, table, what, message string) {
	id, err := idParam(r)
	if err != nil {
		h.fail(w, r, "Failed to delete "+what, err)
		return
	}
	if _, err := h.Store.Delete(r.Context(), table, store.Eq("id", id)); err != nil {
		h.fail(w, r, "Failed to delete "+what, err)
		return
	}
	h.audit(r, what, id)
	writeMessage(w, message)
}

/*
dto.go - Request and response shapes of the HTTP API

PURPOSE:
  Every response is a JSON object with a "success" flag. Most routes put
  their payload under "data"; a few older routes the dashboard already
  depends on use their own key (stats, names, users, updates, ...) and
  keep it.

NAMING CONVENTION:
  - *Response: Response bodies
  - *Request: Request bodies

VALIDATION:
  Done in handlers. Table rows travel as store.Row and are checked against
  the schema registry by the store, not here.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"github.com/warp/millops/dispatch"
	"github.com/warp/millops/report"
	"github.com/warp/millops/store"
)

// =============================================================================
// ENVELOPES
// =============================================================================

// DataResponse carries a payload under "data".
type DataResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// MessageResponse carries a human-readable message.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ErrorResponse is returned for every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// =============================================================================
// DISPATCH
// =============================================================================

// DuplicateCheckResponse reports the outcome of a duplicate check.
type DuplicateCheckResponse struct {
	Success        bool        `json:"success"`
	DuplicateCount int         `json:"duplicateCount"`
	NonDuplicates  []store.Row `json:"nonDuplicates"`
}

// StatsResponse wraps the dispatch statistics.
type StatsResponse struct {
	Success bool            `json:"success"`
	Stats   dispatch.Report `json:"stats"`
}

// RefreshResponse reports a master refresh.
type RefreshResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// =============================================================================
// DISPATCH RESULTS
// =============================================================================

// BatchResultsRequest is the body of POST /dispatch-results/batch.
type BatchResultsRequest struct {
	Results []store.Row `json:"results"`
}

// BatchResultsResponse reports what a batch insert wrote.
type BatchResultsResponse struct {
	Success  bool        `json:"success"`
	Data     []store.Row `json:"data"`
	Inserted int         `json:"inserted"`
	Skipped  int         `json:"skipped"`
}

// UpdatePlanResponse carries the proposed master updates.
type UpdatePlanResponse struct {
	Success bool        `json:"success"`
	Updates []store.Row `json:"updates"`
}

// ExecutePlanRequest is the body of POST /dispatch-results/update-masters-execute.
type ExecutePlanRequest struct {
	Updates []store.Row `json:"updates"`
}

// =============================================================================
// LAYOUTS
// =============================================================================

// LayoutRequest saves a table layout. A non-empty ID updates that layout.
type LayoutRequest struct {
	ID         any    `json:"id"`
	TableName  string `json:"table_name"`
	LayoutName string `json:"layout_name"`
	Layout     any    `json:"layout"`
}

// =============================================================================
// USERS
// =============================================================================

// UserRequest creates or replaces an account.
type UserRequest struct {
	Role           string  `json:"role"`
	FullName       string  `json:"full_name"`
	SecretPassword string  `json:"secret_password"`
	WorkDetails    *string `json:"work_details"`
}

// NamesResponse lists operator names.
type NamesResponse struct {
	Success bool     `json:"success"`
	Names   []string `json:"names"`
}

// UsersResponse lists accounts.
type UsersResponse struct {
	Success bool        `json:"success"`
	Users   []store.Row `json:"users"`
}

// UserResponse carries one account.
type UserResponse struct {
	Success bool `json:"success"`
	User    any  `json:"user"`
}

// LoginUserDTO is the part of an account a login returns.
type LoginUserDTO struct {
	ID       any    `json:"id"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

// =============================================================================
// REPORTS
// =============================================================================

// ComplaintStatsResponse wraps complaint summaries by division.
type ComplaintStatsResponse struct {
	Success bool                               `json:"success"`
	Data    map[string]report.ComplaintSummary `json:"data"`
}

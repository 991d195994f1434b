package dispatch

import "errors"

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNothingToUpdate is returned when an edit carries none of the
	// editable columns.
	ErrNothingToUpdate = errors.New("nothing to update")

	// ErrUnknownSuggestion is returned for a suggestion type other than
	// count, blend, market or customer.
	ErrUnknownSuggestion = errors.New("invalid suggestion type")

	// ErrInvalidPlan is returned when an update plan entry has no usable id.
	ErrInvalidPlan = errors.New("invalid update plan")
)

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrNothingToUpdate) ||
		errors.Is(err, ErrUnknownSuggestion) ||
		errors.Is(err, ErrInvalidPlan)
}

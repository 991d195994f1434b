package store

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a single-row lookup matches nothing.
	ErrNotFound = errors.New("row not found")

	// ErrConflict is returned when a write violates a unique constraint.
	ErrConflict = errors.New("unique constraint violation")

	// ErrUnknownTable is returned for a table missing from the schema registry.
	ErrUnknownTable = errors.New("unknown table")

	// ErrInvalidIdentifier is returned for a column name that is unknown to the
	// table or not a plain SQL identifier.
	ErrInvalidIdentifier = errors.New("invalid identifier")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ColumnError names the offending table and column.
type ColumnError struct {
	Table  string
	Column string
}

func (e *ColumnError) Error() string {
	return fmt.Sprintf("invalid column %q for table %q", e.Column, e.Table)
}

func (e *ColumnError) Unwrap() error {
	return ErrInvalidIdentifier
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrUnknownTable) ||
		errors.Is(err, ErrInvalidIdentifier)
}

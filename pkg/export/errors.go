package export

import (
	"errors"
	"fmt"

	"github.com/Sternrassler/docapi-export/pkg/pagination"
)

// ErrNoSchemaAvailable is returned when a V2 entity has no resolvable schema.
var ErrNoSchemaAvailable = pagination.ErrNoSchemaAvailable

// ValidationError reports malformed input. It is always raised before any
// remote call is issued.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidationError checks if an error is a ValidationError.
func IsValidationError(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

package chat

import (
	"errors"
	"fmt"
)

// ValidationError reports user-correctable input problems: empty message
// text or a display name outside the allowed length. It is surfaced to the
// caller and never published to remote state.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

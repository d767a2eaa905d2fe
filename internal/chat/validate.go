package chat

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// usernameRules mirrors the login form constraints: a display name is
// required and must be 2-20 characters after trimming.
type usernameRules struct {
	Name string `validate:"required,min=2,max=20"`
}

// ValidateUsername checks a display name against the allowed length.
// Duplicate names across sessions are permitted (last join wins), so
// uniqueness is deliberately not checked here.
func ValidateUsername(name string) error {
	if err := validate.Struct(usernameRules{Name: strings.TrimSpace(name)}); err != nil {
		return &ValidationError{Field: "username", Reason: "must be 2-20 characters"}
	}
	return nil
}

// ValidateStruct runs tag-based validation on a request struct and maps
// the first failure to a ValidationError.
func ValidateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var invalid validator.ValidationErrors
	if errors.As(err, &invalid) && len(invalid) > 0 {
		return &ValidationError{
			Field:  strings.ToLower(invalid[0].Field()),
			Reason: "failed " + invalid[0].Tag() + " constraint",
		}
	}
	return &ValidationError{Field: "request", Reason: err.Error()}
}

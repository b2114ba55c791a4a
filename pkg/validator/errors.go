package validator

import (
	"strings"
)

// ValidationErrors represents a collection of validation errors.
type ValidationErrors struct {
	Errors []FieldError `json:"errors"`
}

// FieldError represents a single field validation error.
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag,omitempty"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (v *ValidationErrors) Error() string {
	if v == nil || len(v.Errors) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("validation failed: ")
	for i, fe := range v.Errors {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(fe.Message)
	}
	return sb.String()
}

// HasErrors returns true if there are validation errors.
func (v *ValidationErrors) HasErrors() bool {
	return v != nil && len(v.Errors) > 0
}

// ByField returns error messages keyed by field name, the shape used in
// HTTP error bodies.
func (v *ValidationErrors) ByField() map[string]string {
	if v == nil || len(v.Errors) == 0 {
		return nil
	}

	result := make(map[string]string, len(v.Errors))
	for _, fe := range v.Errors {
		if _, ok := result[fe.Field]; !ok {
			result[fe.Field] = fe.Message
		}
	}
	return result
}

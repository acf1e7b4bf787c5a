package validation

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	apperrors "github.com/lorrc/issues-insights-backend/internal/core/errors"
)

// Validator collects field errors for one request.
type Validator struct {
	fields map[string]string
}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{fields: make(map[string]string)}
}

// add keeps the first message per field.
func (v *Validator) add(field, message string) {
	if _, exists := v.fields[field]; !exists {
		v.fields[field] = message
	}
}

// HasErrors returns true if there are validation errors
func (v *Validator) HasErrors() bool {
	return len(v.fields) > 0
}

// Err returns a 422 AppError listing every failed field, or nil.
func (v *Validator) Err() error {
	if !v.HasErrors() {
		return nil
	}

	details := make(map[string]interface{}, len(v.fields))
	for field, message := range v.fields {
		details[field] = message
	}
	return apperrors.NewValidationError(apperrors.ErrBadRequest, "Validation failed", details)
}

// Required validates that a string is not empty
func (v *Validator) Required(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.add(field, "This field is required")
	}
	return v
}

// MaxLength validates maximum string length
func (v *Validator) MaxLength(field, value string, max int) *Validator {
	if len(value) > max {
		v.add(field, "Must be at most "+strconv.Itoa(max)+" characters")
	}
	return v
}

// Range validates integer is within range
func (v *Validator) Range(field string, value, min, max int) *Validator {
	if value < min || value > max {
		v.add(field, "Must be between "+strconv.Itoa(min)+" and "+strconv.Itoa(max))
	}
	return v
}

// Custom adds a custom validation
func (v *Validator) Custom(field string, valid bool, message string) *Validator {
	if !valid {
		v.add(field, message)
	}
	return v
}

// DecodeJSON decodes a size-limited JSON request body.
func DecodeJSON[T any](w http.ResponseWriter, r *http.Request, maxBytes int64) (*T, error) {
	var req T

	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, apperrors.NewBadRequestError(err, "Invalid request body")
	}

	return &req, nil
}

// ParseIntQueryParam parses an integer query parameter. A missing value
// yields defaultValue; a malformed one is a bad request.
func ParseIntQueryParam(r *http.Request, key string, defaultValue int) (int, error) {
	valueStr := r.URL.Query().Get(key)
	if valueStr == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, apperrors.NewBadRequestError(err, key+" must be an integer")
	}
	return value, nil
}

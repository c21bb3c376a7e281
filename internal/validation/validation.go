// Package validation provides field-level validation for API inputs.
package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Collector accumulates validation errors without failing on first.
type Collector struct {
	errors []ValidationError
}

// Add appends a validation error to the collector if non-nil.
func (c *Collector) Add(err *ValidationError) {
	if err != nil {
		c.errors = append(c.errors, *err)
	}
}

// HasErrors returns true if the collector has accumulated any errors.
func (c *Collector) HasErrors() bool {
	return len(c.errors) > 0
}

// Errors returns all accumulated validation errors.
func (c *Collector) Errors() []ValidationError {
	return c.errors
}

// ValidateRequired returns an error if the value is empty after trimming.
func ValidateRequired(field, value string) *ValidationError {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{
			Field:   field,
			Message: "is required",
		}
	}
	return nil
}

// ValidateUTF8 returns an error if the value is not valid UTF-8.
func ValidateUTF8(field, value string) *ValidationError {
	if !utf8.ValidString(value) {
		return &ValidationError{
			Field:   field,
			Message: "must be valid UTF-8",
		}
	}
	return nil
}

// ValidateMaxLength returns an error if the value exceeds max runes.
func ValidateMaxLength(field, value string, max int) *ValidationError {
	if utf8.RuneCountInString(value) > max {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("exceeds maximum length of %d characters", max),
		}
	}
	return nil
}

// ValidateRelativePath returns an error unless the value is a portal-relative
// path. Absolute URLs would let a queued record replay against a foreign host.
func ValidateRelativePath(field, value string) *ValidationError {
	if !strings.HasPrefix(value, "/") || strings.HasPrefix(value, "//") {
		return &ValidationError{
			Field:   field,
			Message: "must be a relative path starting with /",
		}
	}
	return nil
}

// ValidateLatitude returns an error if the value is outside [-90, 90].
func ValidateLatitude(field string, value float64) *ValidationError {
	if value < -90 || value > 90 {
		return &ValidationError{
			Field:   field,
			Message: "must be between -90 and 90",
		}
	}
	return nil
}

// ValidateLongitude returns an error if the value is outside [-180, 180].
func ValidateLongitude(field string, value float64) *ValidationError {
	if value < -180 || value > 180 {
		return &ValidationError{
			Field:   field,
			Message: "must be between -180 and 180",
		}
	}
	return nil
}

// ValidateULID returns an error if the value is not a valid ULID format.
// ULIDs are 26 characters using Crockford Base32 (excludes I, L, O, U).
func ValidateULID(field, value string) *ValidationError {
	if len(value) != 26 {
		return &ValidationError{
			Field:   field,
			Message: "must be a valid ULID (26 characters)",
		}
	}

	for _, c := range value {
		if !strings.ContainsRune("0123456789ABCDEFGHJKMNPQRSTVWXYZ", c) {
			return &ValidationError{
				Field:   field,
				Message: "must be a valid ULID (Crockford Base32)",
			}
		}
	}
	return nil
}

// Package validation provides input validation for the Sift API.
package validation

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize caps request bodies at 1MB.
const MaxRequestSize = 1 << 20

// MaxContentLength is the maximum length for submitted content
const MaxContentLength = 10000

// Timeframes accepted by the aggregation endpoints.
var validTimeframes = map[string]bool{
	"1h":  true,
	"24h": true,
	"7d":  true,
}

// RequestSizeMiddleware caps request body reads at maxSize bytes.
// Oversized bodies surface as read errors in the handler's bind call.
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidTimeframe checks if a timeframe string is one of the supported windows.
func IsValidTimeframe(s string) bool {
	return validTimeframes[s]
}

// SanitizeString strips null bytes, trims whitespace and truncates to
// maxLen bytes.
func SanitizeString(s string, maxLen int) string {
	s = strings.Map(func(r rune) rune {
		if r == 0 {
			return -1
		}
		return r
	}, s)
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return s
}

// ValidationError is a single failed check on a named field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	first := e[0]
	return first.Field + ": " + first.Message
}

// Validate runs each check and collects the failures.
func Validate(checks ...func() *ValidationError) ValidationErrors {
	var errs ValidationErrors
	for _, check := range checks {
		if e := check(); e != nil {
			errs = append(errs, *e)
		}
	}
	return errs
}

// Required fails when a value is empty or only whitespace.
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) != "" {
			return nil
		}
		return &ValidationError{Field: field, Message: "is required"}
	}
}

// MaxLength fails when a value is longer than max bytes.
func MaxLength(field, value string, max int) func() *ValidationError {
	return func() *ValidationError {
		if len(value) <= max {
			return nil
		}
		return &ValidationError{Field: field, Message: "exceeds maximum length"}
	}
}

// MaxItems fails when a list field carries more than max elements.
func MaxItems(field string, count, max int) func() *ValidationError {
	return func() *ValidationError {
		if count <= max {
			return nil
		}
		return &ValidationError{Field: field, Message: "too many items"}
	}
}

// Timeframe fails when a value, if present, is not a supported window.
func Timeframe(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil // Callers default the timeframe themselves
		}
		if !IsValidTimeframe(value) {
			return &ValidationError{Field: field, Message: "must be one of 1h, 24h, 7d"}
		}
		return nil
	}
}

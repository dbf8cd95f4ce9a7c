package domain

import (
	"fmt"
	"strings"
	"time"
)

// APIError represents a standardized error response body
type APIError struct {
	Error         string    `json:"error"`
	Details       []string  `json:"details,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Error messages returned to API clients
const (
	MsgValidationFailed  = "Assessment validation failed"
	MsgSchemaInvalid     = "Validation error"
	MsgNotFound          = "Assessment not found"
	MsgVersionConflict   = "Assessment was modified by another request"
	MsgInternalServer    = "Internal server error"
	MsgRateLimitExceeded = "Rate limit exceeded"
	MsgRequestTimeout    = "Request timeout"
)

// ValidationError carries every problem found in a submission.
// Details are ordered as the checks ran.
type ValidationError struct {
	Message string   `json:"message"`
	Details []string `json:"details"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Message, strings.Join(e.Details, "; "))
}

// NewValidationError creates a new ValidationError
func NewValidationError(message string, details []string) *ValidationError {
	return &ValidationError{
		Message: message,
		Details: details,
	}
}

// NewAPIError creates a new APIError with timestamp
func NewAPIError(message string, details []string, correlationID string) *APIError {
	return &APIError{
		Error:         message,
		Details:       details,
		CorrelationID: correlationID,
		Timestamp:     time.Now().UTC(),
	}
}

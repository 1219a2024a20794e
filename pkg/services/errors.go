// Package services provides the business operations behind the management
// API: automation CRUD with trigger-index maintenance, and the standardized
// error types the HTTP layer maps onto status codes.
package services

import (
	"errors"
	"fmt"
)

// Business logic errors. These indicate client errors (4xx responses).
var (
	// Validation errors (400 Bad Request).
	ErrInvalidRequest        = errors.New("invalid request")
	ErrAutomationNil         = errors.New("automation cannot be nil")
	ErrTeamRequired          = errors.New("team ID is required")
	ErrNameRequired          = errors.New("automation name is required")
	ErrUnknownNodeType       = errors.New("unknown node type")
	ErrInvalidNodeConfig     = errors.New("invalid node config")
	ErrDanglingEdge          = errors.New("edge references a missing node")
	ErrDuplicateNodeID       = errors.New("duplicate node ID")
	ErrInvalidCronExpression = errors.New("invalid cron expression")

	// Business logic conflicts (409 Conflict).
	ErrAlreadyActive = errors.New("automation is already active")
	ErrAlreadyPaused = errors.New("automation is already paused")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should
// return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrAutomationNil) ||
		errors.Is(err, ErrTeamRequired) ||
		errors.Is(err, ErrNameRequired) ||
		errors.Is(err, ErrUnknownNodeType) ||
		errors.Is(err, ErrInvalidNodeConfig) ||
		errors.Is(err, ErrDanglingEdge) ||
		errors.Is(err, ErrDuplicateNodeID) ||
		errors.Is(err, ErrInvalidCronExpression)
}

// IsConflictError checks if an error is a business logic conflict that should
// return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrAlreadyActive) ||
		errors.Is(err, ErrAlreadyPaused)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Package persistence provides standardized error types for persistence
// operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrAutomationNotFound indicates an automation was not found by the given identifier.
	ErrAutomationNotFound = errors.New("automation not found")

	// ErrProfileNotFound indicates no profile exists for the given identifier.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrContactNotFound indicates a contact was not found by the given identifier.
	ErrContactNotFound = errors.New("contact not found")

	// ErrDealNotFound indicates a deal was not found by the given identifier.
	ErrDealNotFound = errors.New("deal not found")

	// ErrStageNotFound indicates a pipeline stage was not found.
	ErrStageNotFound = errors.New("stage not found")

	// ErrNodeNotFound indicates a node was not found within an automation.
	ErrNodeNotFound = errors.New("node not found")
)

// StoreError wraps persistence errors with operation context.
type StoreError struct {
	Op     string // Operation being performed (e.g. "AutomationByID", "SaveContact")
	Entity string // Entity identifier if applicable
	Err    error
}

func (e *StoreError) Error() string {
	if e.Entity != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Entity, e.Err)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func IsAutomationNotFound(err error) bool {
	return errors.Is(err, ErrAutomationNotFound)
}

func IsProfileNotFound(err error) bool {
	return errors.Is(err, ErrProfileNotFound)
}

func IsContactNotFound(err error) bool {
	return errors.Is(err, ErrContactNotFound)
}

func IsDealNotFound(err error) bool {
	return errors.Is(err, ErrDealNotFound)
}

func IsStageNotFound(err error) bool {
	return errors.Is(err, ErrStageNotFound)
}

func IsNodeNotFound(err error) bool {
	return errors.Is(err, ErrNodeNotFound)
}

// Package shared contains common domain types and errors used across all
// domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrValueOutOfRange = errors.New("value out of range")

	// Ownership errors
	ErrOwnershipViolation = errors.New("record owned by another student")

	// Infrastructure errors
	ErrTransientIO        = errors.New("transient storage or network failure")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g. "event", "unit", "recommendation"
	Op      string // Operation that failed, e.g. "Upsert", "Pull"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Event domain errors
var (
	ErrEventNotFound      = NewDomainError("event", "Find", ErrNotFound, "learning event not found")
	ErrEventOwnerMismatch = NewDomainError("event", "Upsert", ErrOwnershipViolation, "event id belongs to a different student")
	ErrInvalidEventID     = NewDomainError("event", "Validate", ErrInvalidID, "invalid event ID")
	ErrInvalidScore       = NewDomainError("event", "Validate", ErrValueOutOfRange, "score must be between 0 and 100")
	ErrInvalidTimeSpent   = NewDomainError("event", "Validate", ErrValueOutOfRange, "time spent cannot be negative")
	ErrInvalidAttempts    = NewDomainError("event", "Validate", ErrValueOutOfRange, "attempts must be at least 1")
)

// Unit domain errors
var (
	ErrUnitNotFound      = NewDomainError("unit", "Find", ErrNotFound, "learning unit not found")
	ErrInvalidUnitID     = NewDomainError("unit", "Validate", ErrInvalidID, "invalid unit ID")
	ErrInvalidCategory   = NewDomainError("unit", "Validate", ErrInvalidInput, "invalid unit category")
	ErrInvalidDifficulty = NewDomainError("unit", "Validate", ErrValueOutOfRange, "difficulty must be positive")
)

// Sync errors
var (
	ErrEmptyBatch   = NewDomainError("sync", "Push", ErrValidation, "events batch is missing or empty")
	ErrSyncInFlight = NewDomainError("sync", "Run", ErrAlreadyExists, "a sync cycle is already in progress")
	ErrPushFailed   = NewDomainError("sync", "Push", ErrTransientIO, "failed to push events to server")
	ErrPullFailed   = NewDomainError("sync", "Pull", ErrTransientIO, "failed to pull changes from server")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsOwnershipViolation checks if the error is an ownership guard rejection.
func IsOwnershipViolation(err error) bool {
	return errors.Is(err, ErrOwnershipViolation)
}

// IsTransient checks if the operation can safely be retried on a later
// sync cycle.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientIO) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout)
}

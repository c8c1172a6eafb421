package domain

import (
	"errors"
	"fmt"
)

// Common domain errors.
var (
	// ErrInvalidState indicates that a State operation received invalid input.
	ErrInvalidState = errors.New("invalid state")

	// ErrKeyNotFound indicates that a requested state key does not exist.
	ErrKeyNotFound = errors.New("key not found")

	// ErrTypeMismatch indicates that a value's type doesn't match the expected type.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrInvalidValue indicates a value outside its domain, such as an
	// unknown decision name.
	ErrInvalidValue = errors.New("invalid value")

	// ErrInvalidOption indicates a configuration option holding a value of
	// the wrong type.
	ErrInvalidOption = errors.New("invalid option")
)

// StateError represents an error that occurred during State operations.
type StateError struct {
	// Key is the name of the state key involved in the failed operation.
	Key string

	// Operation describes what was being performed when the error occurred.
	Operation string

	Err error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("state error: operation=%s, key=%s, err=%v", e.Operation, e.Key, e.Err)
}

// Unwrap returns the underlying error.
func (e *StateError) Unwrap() error { return e.Err }

// NewStateError creates a new StateError with the given details.
func NewStateError(key, operation string, err error) *StateError {
	return &StateError{Key: key, Operation: operation, Err: err}
}

// ConfigError reports a configuration value that cannot be used. Silent
// defaulting is never applied to such values.
type ConfigError struct {
	Option string
	Value  any
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: option=%s, value=%v (%T): %v", e.Option, e.Value, e.Value, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError creates a new ConfigError.
func NewConfigError(option string, value any, err error) *ConfigError {
	return &ConfigError{Option: option, Value: value, Err: err}
}

// ValidationError collects one or more validation failures for an entity.
type ValidationError struct {
	Entity string
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{Entity: entity, Errors: make([]string, 0)}
}

package state

import (
	"errors"
	"fmt"
)

// ErrUndeclaredField is matched (via errors.Is) by every UndeclaredFieldError.
var ErrUndeclaredField = errors.New("undeclared state field")

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Key    string // Field name
	Reason string // Human-readable reason for failure
	Value  any    // The value that failed validation
}

func (e *ValidationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("field %q: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("field %q: %s (got %T)", e.Key, e.Reason, e.Value)
}

// UndeclaredFieldError is returned when an update names a field the schema does not declare.
type UndeclaredFieldError struct {
	Key string
}

func (e *UndeclaredFieldError) Error() string {
	return fmt.Sprintf("field %q is not declared in the state schema", e.Key)
}

func (e *UndeclaredFieldError) Is(target error) bool {
	return target == ErrUndeclaredField
}

// AggregateError represents multiple validation failures.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:\n", len(e.Errors))
	for i, err := range e.Errors {
		msg += fmt.Sprintf("  %d. %s\n", i+1, err.Error())
	}
	return msg
}

// Unwrap exposes the individual failures to errors.Is / errors.As.
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// ValidationErrors returns all validation errors if err is an AggregateError.
// Otherwise returns nil.
func ValidationErrors(err error) []error {
	var aggr *AggregateError
	if errors.As(err, &aggr) {
		return aggr.Errors
	}
	return nil
}

package queue

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when no entry exists for the given id.
var ErrNotFound = errors.New("queue: entry not found")

// ErrNoActiveEntry is returned by position lookups when the patient has no
// waiting, called or in-service entry.
var ErrNoActiveEntry = errors.New("queue: patient has no active entry")

// ValidationError is returned when input fails validation before any
// mutation is attempted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("queue: invalid %s: %s", e.Field, e.Reason)
}

// InvalidTransitionError is returned when an operation is not legal from
// the entry's current status. The stored entry is left untouched.
type InvalidTransitionError struct {
	ID   string
	From Status
	Op   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("queue: cannot %s entry %s in status %s", e.Op, e.ID, e.From)
}

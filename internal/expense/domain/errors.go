package expense

import (
	"errors"
	"fmt"
)

var (
	// ErrStateConflict is returned when a key already has an active session.
	ErrStateConflict = errors.New("expense: session already active")
	// ErrStaleComponent is returned for events from an outdated message.
	ErrStaleComponent = errors.New("expense: stale component")
	// ErrNoSession is returned when no active session exists for a key.
	ErrNoSession = errors.New("expense: no active session")
	// ErrInvalidTransition is returned when an event does not apply to the current stage.
	ErrInvalidTransition = errors.New("expense: invalid transition")
	// ErrMalformedCustomID is returned for component ids this service did not issue.
	ErrMalformedCustomID = errors.New("expense: malformed custom id")
)

// ValidationError reports a rejected user input.
type ValidationError struct {
	Field      string
	Reason     string
	Suggestion string
}

func (e *ValidationError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("invalid %s: %s (did you mean %q?)", e.Field, e.Reason, e.Suggestion)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// UserMessage is the text shown next to the form.
func (e *ValidationError) UserMessage() string {
	msg := fmt.Sprintf("Invalid %s: %s.", e.Field, e.Reason)
	if e.Suggestion != "" {
		msg += fmt.Sprintf(" Did you mean **%s**?", e.Suggestion)
	}
	return msg
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

package monitor

import (
	"errors"
	"fmt"
)

var (
	// ErrDataAnomaly is returned when an observed epoch regresses or is malformed.
	ErrDataAnomaly = errors.New("monitor: data anomaly")
	// ErrEpochMissing is returned when a cycle could not observe the epoch.
	ErrEpochMissing = errors.New("monitor: epoch missing")
	// ErrCycleInFlight is returned when a cycle is requested while one is running.
	ErrCycleInFlight = errors.New("monitor: cycle in flight")
	// ErrMalformedResponse is returned by sources that cannot decode a payload.
	ErrMalformedResponse = errors.New("monitor: malformed response")
)

// TransportError wraps a network or timeout failure from an external system.
type TransportError struct {
	Source string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: source=%s: %v", e.Source, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NewTransportError wraps err for source.
func NewTransportError(source string, err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{Source: source, Err: err}
}

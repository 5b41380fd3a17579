package eventlog

import "errors"

var (
	// ErrUnknownEventType is returned when applying or replaying an event
	// whose type was never registered.
	ErrUnknownEventType = errors.New("unknown event type")

	// ErrValidation is returned when props fail the declared schema or the
	// definition's Validate hook. Nothing is written.
	ErrValidation = errors.New("event validation failed")

	// ErrProjection is returned when a definition's Project function fails.
	// Nothing is written and the state is unchanged.
	ErrProjection = errors.New("event projection failed")

	// ErrDurableLog is returned by Restart when the backend keeps its
	// records across restarts.
	ErrDurableLog = errors.New("restart refused: event log is durable")

	// ErrClosed is returned by operations on a closed log.
	ErrClosed = errors.New("event log closed")
)

package storage

import "errors"

// Sentinel errors for storage operations.
var (
	// ErrConflict is returned when a record is appended at a position that
	// is not the next free one.
	ErrConflict = errors.New("position already recorded")

	// ErrClosed is returned by operations on a closed backend.
	ErrClosed = errors.New("backend closed")
)

package campair

import "errors"

// Package-level sentinel errors.
var (
	// ErrClosed is returned when an operation is attempted on a closed node.
	ErrClosed = errors.New("campair: closed")

	// ErrAlreadyStarted is returned when starting an already-started node.
	ErrAlreadyStarted = errors.New("campair: already started")

	// ErrInvalidRole is returned when the configured role is not valid.
	ErrInvalidRole = errors.New("campair: role must be camera or viewer")
)

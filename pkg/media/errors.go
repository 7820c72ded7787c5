package media

import "errors"

// Package-level sentinel errors.
var (
	// ErrClosed is returned when an operation is attempted on a closed component.
	ErrClosed = errors.New("media: closed")

	// ErrAlreadyStarted is returned when starting an already-started component.
	ErrAlreadyStarted = errors.New("media: already started")

	// ErrNotStarted is returned when stopping a component that is not running.
	ErrNotStarted = errors.New("media: not started")

	// ErrNoTrack is returned when an operation requires an attached track.
	ErrNoTrack = errors.New("media: no track attached")

	// ErrTrackAttached is returned when adding a track to a session that
	// already carries one.
	ErrTrackAttached = errors.New("media: track already attached")

	// ErrBadDescriptionKind is returned when a description kind other than
	// offer or answer is applied.
	ErrBadDescriptionKind = errors.New("media: description must be offer or answer")

	// ErrNoCapture is returned when a monitor is created without a capture.
	ErrNoCapture = errors.New("media: capture required")

	// ErrNoNegotiator is returned when a monitor is created without a negotiator.
	ErrNoNegotiator = errors.New("media: negotiator required")
)

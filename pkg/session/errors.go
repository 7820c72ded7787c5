package session

import "errors"

// Package-level sentinel errors.
var (
	// ErrClosed is returned when an operation is attempted on a closed controller.
	ErrClosed = errors.New("session: closed")

	// ErrInvalidRole is returned when the configured role is not valid.
	ErrInvalidRole = errors.New("session: invalid role")

	// ErrNoMediaSession is returned when no media session is configured.
	ErrNoMediaSession = errors.New("session: media session required")

	// ErrNoSender is returned when no send function is configured.
	ErrNoSender = errors.New("session: send function required")

	// ErrNoMediaInOffer is reported when a locally created offer describes no
	// media and is therefore withheld.
	ErrNoMediaInOffer = errors.New("session: offer describes no media")
)

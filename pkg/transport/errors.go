package transport

import "errors"

// Package-level sentinel errors.
var (
	// ErrClosed is returned when an operation is attempted on a closed component.
	ErrClosed = errors.New("transport: closed")

	// ErrAlreadyStarted is returned when starting an already-started manager.
	ErrAlreadyStarted = errors.New("transport: already started")

	// ErrInvalidRole is returned when the configured discovery role is not valid.
	ErrInvalidRole = errors.New("transport: invalid role")

	// ErrNoPairingCode is returned when no pairing code is configured.
	ErrNoPairingCode = errors.New("transport: pairing code required")

	// ErrFrameTooLarge is returned when a frame exceeds MaxFrameSize.
	ErrFrameTooLarge = errors.New("transport: frame too large")

	// ErrDecrypt is returned when a frame fails authentication. This usually
	// means the two peers hold different pairing codes.
	ErrDecrypt = errors.New("transport: frame authentication failed")

	// ErrHandshake is returned when the channel handshake cannot complete.
	ErrHandshake = errors.New("transport: handshake failed")
)

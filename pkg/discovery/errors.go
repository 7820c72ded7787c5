package discovery

import "errors"

// Package-level sentinel errors for discovery operations.
var (
	// ErrClosed is returned when an operation is attempted on a closed component.
	ErrClosed = errors.New("discovery: closed")

	// ErrAlreadyStarted is returned when starting an already-started service.
	ErrAlreadyStarted = errors.New("discovery: already started")

	// ErrNotStarted is returned when stopping a service that was not started.
	ErrNotStarted = errors.New("discovery: not started")

	// ErrInvalidDeviceName is returned when the device name is empty or exceeds
	// the maximum length of 32 characters.
	ErrInvalidDeviceName = errors.New("discovery: invalid device name (1-32 characters)")

	// ErrInvalidPort is returned when the port number is out of range.
	ErrInvalidPort = errors.New("discovery: invalid port (must be 1-65535)")

	// ErrInvalidTXTRecord is returned when a TXT record is missing required keys.
	ErrInvalidTXTRecord = errors.New("discovery: invalid TXT record")

	// ErrVersionMismatch is returned when a peer advertises an unsupported
	// protocol version.
	ErrVersionMismatch = errors.New("discovery: protocol version mismatch")
)

package signal

import "errors"

// Package-level sentinel errors for message validation.
var (
	// ErrUnknownType is returned for an unrecognized type discriminator.
	ErrUnknownType = errors.New("signal: unknown message type")

	// ErrMissingSDP is returned when an offer or answer carries no SDP.
	ErrMissingSDP = errors.New("signal: missing sdp")

	// ErrMissingCandidate is returned when a candidate message carries no candidate.
	ErrMissingCandidate = errors.New("signal: missing candidate")
)

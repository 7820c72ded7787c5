package session

import "github.com/campair/campair/pkg/signal"

// MediaSession is the boundary between the negotiation controller and the
// WebRTC engine. The controller drives it through offer/answer/candidate
// operations and never touches the engine directly, so it can be mocked in
// tests and the engine swapped without touching the state machine.
//
// Handler registration must happen before negotiation starts. Handlers may be
// invoked from arbitrary goroutines; the controller serializes them onto its
// own run loop.
type MediaSession interface {
	// CreateOffer produces a local offer SDP, optionally restarting ICE.
	CreateOffer(iceRestart bool) (string, error)

	// CreateAnswer produces a local answer SDP for the applied remote offer.
	CreateAnswer() (string, error)

	// SetLocalDescription applies a locally created description.
	SetLocalDescription(kind signal.Type, sdp string) error

	// SetRemoteDescription applies a description received from the peer.
	SetRemoteDescription(kind signal.Type, sdp string) error

	// AddICECandidate applies a remote ICE candidate. Only valid after a
	// remote description has been applied.
	AddICECandidate(candidate signal.CandidateInit) error

	// HasLocalTrack reports whether an outbound media track is attached and
	// ready to be described in an offer.
	HasLocalTrack() bool

	// OnICECandidate registers a handler for locally gathered candidates.
	OnICECandidate(handler func(signal.CandidateInit))

	// OnConnectionStateChange registers a handler for media connection state
	// transitions.
	OnConnectionStateChange(handler func(MediaConnState))

	// OnNegotiationNeeded registers a handler invoked when the engine wants a
	// new offer/answer exchange.
	OnNegotiationNeeded(handler func())
}

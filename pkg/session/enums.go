package session

// Role determines which side drives negotiation.
type Role int

// Negotiation roles.
const (
	// RoleUnknown is an unconfigured role.
	RoleUnknown Role = iota

	// RoleInitiator creates offers. The camera node is the initiator since it
	// owns the media track every offer must describe.
	RoleInitiator

	// RoleResponder answers offers and never creates them.
	RoleResponder
)

// String returns a human-readable string for the role.
func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "Initiator"
	case RoleResponder:
		return "Responder"
	default:
		return "Unknown"
	}
}

// IsValid reports whether the role is a configured role.
func (r Role) IsValid() bool {
	return r == RoleInitiator || r == RoleResponder
}

// NegotiationState is the controller's position in the offer/answer exchange.
type NegotiationState int

// Negotiation states.
const (
	// StateIdle means no negotiation has happened this epoch.
	StateIdle NegotiationState = iota

	// StateLocalOfferPending means a first offer is being created and applied
	// locally.
	StateLocalOfferPending

	// StateAwaitingAnswer means an offer was sent and the remote answer is
	// outstanding.
	StateAwaitingAnswer

	// StateRemoteOfferReceived means a remote offer is being applied.
	StateRemoteOfferReceived

	// StateLocalAnswerPending means an answer is being created and applied
	// locally.
	StateLocalAnswerPending

	// StateStable means an offer/answer exchange completed.
	StateStable

	// StateRenegotiating means a follow-up offer is being created from a
	// previously stable or failed session.
	StateRenegotiating

	// StateFailed means the session needs a restart offer to recover.
	StateFailed
)

// String returns a human-readable string for the state.
func (s NegotiationState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateLocalOfferPending:
		return "LocalOfferPending"
	case StateAwaitingAnswer:
		return "AwaitingAnswer"
	case StateRemoteOfferReceived:
		return "RemoteOfferReceived"
	case StateLocalAnswerPending:
		return "LocalAnswerPending"
	case StateStable:
		return "Stable"
	case StateRenegotiating:
		return "Renegotiating"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// MediaConnState mirrors the transport-level connection state of the media
// session, decoupled from any particular WebRTC implementation.
type MediaConnState int

// Media connection states.
const (
	MediaConnNew MediaConnState = iota
	MediaConnConnecting
	MediaConnConnected
	MediaConnDisconnected
	MediaConnFailed
	MediaConnClosed
)

// String returns a human-readable string for the state.
func (s MediaConnState) String() string {
	switch s {
	case MediaConnNew:
		return "New"
	case MediaConnConnecting:
		return "Connecting"
	case MediaConnConnected:
		return "Connected"
	case MediaConnDisconnected:
		return "Disconnected"
	case MediaConnFailed:
		return "Failed"
	case MediaConnClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

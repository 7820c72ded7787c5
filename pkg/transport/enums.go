// Package transport implements the campair messaging channel: an encrypted,
// ordered, reliable byte-payload channel between exactly two peers on an ad
// hoc local network.
//
// The Manager owns discovery bootstrapping (advertise or scan), connection
// lifecycle, and a pre-connect Outbox. Sending never fails from the caller's
// point of view: payloads are buffered until a peer is connected and flushed
// in order the moment one is. Payloads are opaque; interpretation belongs to
// the session layer.
//
// Frames on the wire are length-prefixed and sealed with ChaCha20-Poly1305
// under per-direction keys derived from the shared pairing code, so a peer
// that does not hold the code cannot join or tamper with the channel.
package transport

// State describes the connection to the canonical peer.
type State int

// Connection states.
const (
	// StateNotConnected means no peer connection exists.
	StateNotConnected State = iota

	// StateConnecting means a peer was found and a connection attempt is running.
	StateConnecting

	// StateConnected means the channel to the canonical peer is established.
	StateConnected
)

// String returns a human-readable string for the state.
func (s State) String() string {
	switch s {
	case StateNotConnected:
		return "NotConnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	default:
		return "Unknown"
	}
}

// Peer identifies the remote endpoint of the channel.
type Peer struct {
	// ID is the peer's instance ID, as advertised during discovery and
	// confirmed in the channel handshake.
	ID string

	// Name is the peer's human-readable device name.
	Name string

	// Addr is the remote network address, when known.
	Addr string
}

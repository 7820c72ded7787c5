// Package discovery implements DNS-SD (mDNS) peer discovery for campair nodes.
//
// Discovery is serverless: the announcing peer registers a `_campair._tcp`
// service on the local network and the scanning peer browses for it. Both
// sides run until cancelled; there is no caller-visible timeout. Connecting
// to a discovered peer is the transport manager's job, not this package's.
package discovery

// Role selects which half of the discovery handshake a node performs.
type Role int

// Role constants.
const (
	// RoleUnknown represents an unset role.
	RoleUnknown Role = iota

	// RoleAnnouncing advertises this node's service continuously.
	RoleAnnouncing

	// RoleScanning browses for announcing peers continuously.
	RoleScanning
)

// String returns a human-readable string for the role.
func (r Role) String() string {
	switch r {
	case RoleAnnouncing:
		return "Announcing"
	case RoleScanning:
		return "Scanning"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the role is a known value.
func (r Role) IsValid() bool {
	return r == RoleAnnouncing || r == RoleScanning
}

// DNS-SD service parameters.
const (
	// Service is the DNS-SD service type for campair peers.
	Service = "_campair._tcp"

	// DefaultDomain is the default mDNS domain.
	DefaultDomain = "local."

	// DefaultPort is the default campair signaling port.
	DefaultPort = 47200
)

// ProtocolVersion is advertised in the TXT record and checked by the browser.
// Peers with a different version are not offered for connection.
const ProtocolVersion = 1

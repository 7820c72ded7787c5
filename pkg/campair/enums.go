package campair

// Role selects which half of a pairing this node is.
type Role int

// Node roles.
const (
	// RoleUnknown is an unconfigured role.
	RoleUnknown Role = iota

	// RoleCamera announces itself on the LAN, owns the outbound video track
	// and initiates negotiation.
	RoleCamera

	// RoleViewer scans for a camera, responds to its offers and receives the
	// video track.
	RoleViewer
)

// String returns a human-readable string for the role.
func (r Role) String() string {
	switch r {
	case RoleCamera:
		return "camera"
	case RoleViewer:
		return "viewer"
	default:
		return "unknown"
	}
}

// IsValid reports whether the role is a configured role.
func (r Role) IsValid() bool {
	return r == RoleCamera || r == RoleViewer
}

// ParseRole parses a role name as used on the command line.
func ParseRole(s string) Role {
	switch s {
	case "camera":
		return RoleCamera
	case "viewer":
		return RoleViewer
	default:
		return RoleUnknown
	}
}

package discovery

import (
	"net"
	"sort"
)

// SortIPsByPreference sorts IP addresses by dialing preference for an ad hoc
// local network:
//
//  1. Private IPv4 (RFC 1918) - the common LAN case
//  2. IPv6 unique-local (fc00::/7)
//  3. IPv6 link-local
//  4. Other unicast addresses
//  5. Loopback
//
// campair connects peers on the same link, so site-local reachability wins
// over global routability.
func SortIPsByPreference(ips []net.IP) []net.IP {
	if len(ips) <= 1 {
		return ips
	}

	sorted := make([]net.IP, len(ips))
	copy(sorted, ips)

	sort.SliceStable(sorted, func(i, j int) bool {
		return ipPriority(sorted[i]) < ipPriority(sorted[j])
	})

	return sorted
}

// ipPriority returns the dialing priority of an IP address (lower is better).
func ipPriority(ip net.IP) int {
	norm := ip.To16()
	if norm == nil {
		return 99
	}

	if ip4 := norm.To4(); ip4 != nil {
		if isPrivateIPv4(ip4) {
			return 0
		}
		if norm.IsLoopback() {
			return 80
		}
		return 10
	}

	if isUniqueLocal(norm) {
		return 1
	}
	if norm.IsLinkLocalUnicast() {
		return 2
	}
	if norm.IsLoopback() {
		return 80
	}
	if norm.IsMulticast() {
		return 90
	}
	return 10
}

// isPrivateIPv4 returns true for RFC 1918 addresses.
func isPrivateIPv4(ip4 net.IP) bool {
	switch {
	case ip4[0] == 10:
		return true
	case ip4[0] == 172 && ip4[1] >= 16 && ip4[1] <= 31:
		return true
	case ip4[0] == 192 && ip4[1] == 168:
		return true
	default:
		return false
	}
}

// isUniqueLocal returns true if the IP is an IPv6 Unique Local Address (fc00::/7).
func isUniqueLocal(ip net.IP) bool {
	ip = ip.To16()
	if ip == nil || ip.To4() != nil {
		return false
	}
	return ip[0] == 0xfc || ip[0] == 0xfd
}

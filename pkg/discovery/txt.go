package discovery

import (
	"fmt"
	"strconv"
	"strings"
)

// TXT record keys advertised by the announcing peer.
const (
	txtKeyID      = "id"
	txtKeyName    = "name"
	txtKeyVersion = "ver"
)

// PeerInfo is the identity a peer publishes in its TXT record.
type PeerInfo struct {
	// ID uniquely identifies the peer instance.
	ID string

	// Name is the human-readable device name (max 32 characters).
	Name string

	// Version is the advertised protocol version.
	Version int
}

// encodeTXT builds the DNS-SD TXT record for a peer.
func encodeTXT(info PeerInfo) []string {
	return []string{
		fmt.Sprintf("%s=%s", txtKeyID, info.ID),
		fmt.Sprintf("%s=%s", txtKeyName, info.Name),
		fmt.Sprintf("%s=%d", txtKeyVersion, info.Version),
	}
}

// parseTXT extracts peer identity from a TXT record.
// The id key is required; name is optional; a missing version defaults to 1.
func parseTXT(txt []string) (PeerInfo, error) {
	info := PeerInfo{Version: 1}

	for _, record := range txt {
		key, value, ok := strings.Cut(record, "=")
		if !ok {
			continue
		}
		switch key {
		case txtKeyID:
			info.ID = value
		case txtKeyName:
			info.Name = value
		case txtKeyVersion:
			v, err := strconv.Atoi(value)
			if err != nil {
				return PeerInfo{}, fmt.Errorf("%w: bad version %q", ErrInvalidTXTRecord, value)
			}
			info.Version = v
		}
	}

	if info.ID == "" {
		return PeerInfo{}, fmt.Errorf("%w: missing id", ErrInvalidTXTRecord)
	}

	return info, nil
}

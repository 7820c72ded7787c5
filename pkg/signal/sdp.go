package signal

import (
	"github.com/pion/sdp/v3"
)

// HasVideo reports whether the SDP contains at least one video media section.
//
// A peer's very first offer can be emitted before its capture pipeline has a
// track attached, producing a warm-up offer that describes no media. Applying
// such an offer as a remote description only triggers churn: the real offer
// follows immediately and forces renegotiation. Callers drop media-less offers
// outright instead.
func HasVideo(raw string) bool {
	desc := sdp.SessionDescription{}
	if err := desc.Unmarshal([]byte(raw)); err != nil {
		return false
	}
	for _, md := range desc.MediaDescriptions {
		if md.MediaName.Media == "video" {
			return true
		}
	}
	return false
}

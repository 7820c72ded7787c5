// Package signal defines the wire format for session negotiation messages
// exchanged between exactly two peers over the transport channel.
//
// Messages form a tagged union discriminated by the "type" field:
//
//	{"type":"offer","sdp":"v=0..."}
//	{"type":"answer","sdp":"v=0..."}
//	{"type":"candidate","candidate":{"candidate":"...","sdpMid":"0","sdpMLineIndex":0}}
//
// The transport treats payloads as opaque bytes; encoding and decoding happen
// at the negotiation controller boundary.
package signal

import (
	"encoding/json"
	"fmt"
)

// Type identifies the kind of signaling message.
type Type string

// Message type discriminators.
const (
	TypeOffer     Type = "offer"
	TypeAnswer    Type = "answer"
	TypeCandidate Type = "candidate"
)

// String returns the wire name of the message type.
func (t Type) String() string {
	return string(t)
}

// IsValid returns true if the type is a known discriminator.
func (t Type) IsValid() bool {
	switch t {
	case TypeOffer, TypeAnswer, TypeCandidate:
		return true
	default:
		return false
	}
}

// CandidateInit carries a single ICE candidate in the format produced by
// RTCIceCandidate.toJSON(). SDPMid and SDPMLineIndex are nullable on the wire.
type CandidateInit struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex"`
}

// Message is a single signaling message. SDP is set for offer/answer,
// Candidate for candidate messages.
type Message struct {
	Type      Type           `json:"type"`
	SDP       string         `json:"sdp,omitempty"`
	Candidate *CandidateInit `json:"candidate,omitempty"`
}

// NewOffer builds an offer message for the given SDP.
func NewOffer(sdp string) *Message {
	return &Message{Type: TypeOffer, SDP: sdp}
}

// NewAnswer builds an answer message for the given SDP.
func NewAnswer(sdp string) *Message {
	return &Message{Type: TypeAnswer, SDP: sdp}
}

// NewCandidate builds a candidate message.
func NewCandidate(c CandidateInit) *Message {
	return &Message{Type: TypeCandidate, Candidate: &c}
}

// Encode serializes the message to its wire form.
func (m *Message) Encode() ([]byte, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

// Decode parses and validates a wire payload.
func Decode(data []byte) (*Message, error) {
	m := &Message{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("signal: malformed message: %w", err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// validate checks that the discriminator is known and the matching payload
// field is present.
func (m *Message) validate() error {
	switch m.Type {
	case TypeOffer, TypeAnswer:
		if m.SDP == "" {
			return ErrMissingSDP
		}
	case TypeCandidate:
		if m.Candidate == nil || m.Candidate.Candidate == "" {
			return ErrMissingCandidate
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, string(m.Type))
	}
	return nil
}

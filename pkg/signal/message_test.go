package signal

import (
	"errors"
	"testing"
)

func TestDecodeOffer(t *testing.T) {
	m, err := Decode([]byte(`{"type":"offer","sdp":"v=0 fake"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Type != TypeOffer {
		t.Errorf("expected type offer, got %q", m.Type)
	}
	if m.SDP != "v=0 fake" {
		t.Errorf("unexpected sdp: %q", m.SDP)
	}
}

func TestDecodeCandidate(t *testing.T) {
	raw := `{"type":"candidate","candidate":{"candidate":"candidate:1 1 udp 2130706431 192.168.1.2 50000 typ host","sdpMid":"0","sdpMLineIndex":0}}`

	m, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Type != TypeCandidate {
		t.Fatalf("expected type candidate, got %q", m.Type)
	}
	if m.Candidate == nil {
		t.Fatal("expected non-nil candidate")
	}
	if m.Candidate.SDPMid == nil || *m.Candidate.SDPMid != "0" {
		t.Errorf("unexpected sdpMid: %v", m.Candidate.SDPMid)
	}
	if m.Candidate.SDPMLineIndex == nil || *m.Candidate.SDPMLineIndex != 0 {
		t.Errorf("unexpected sdpMLineIndex: %v", m.Candidate.SDPMLineIndex)
	}
}

func TestDecodeNullableCandidateFields(t *testing.T) {
	raw := `{"type":"candidate","candidate":{"candidate":"candidate:1 1 udp 1 10.0.0.1 9 typ host","sdpMid":null,"sdpMLineIndex":null}}`

	m, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Candidate.SDPMid != nil {
		t.Errorf("expected nil sdpMid, got %q", *m.Candidate.SDPMid)
	}
	if m.Candidate.SDPMLineIndex != nil {
		t.Errorf("expected nil sdpMLineIndex, got %d", *m.Candidate.SDPMLineIndex)
	}
}

func TestDecodeInvalid(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want error
	}{
		{"unknown type", `{"type":"hangup"}`, ErrUnknownType},
		{"offer without sdp", `{"type":"offer"}`, ErrMissingSDP},
		{"answer without sdp", `{"type":"answer"}`, ErrMissingSDP},
		{"candidate without body", `{"type":"candidate"}`, ErrMissingCandidate},
		{"empty candidate", `{"type":"candidate","candidate":{"candidate":""}}`, ErrMissingCandidate},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.raw))
			if !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}

	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	mid := "video0"
	idx := uint16(1)
	in := NewCandidate(CandidateInit{
		Candidate:     "candidate:2 1 udp 1694498815 203.0.113.5 61000 typ srflx",
		SDPMid:        &mid,
		SDPMLineIndex: &idx,
	})

	data, err := in.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Candidate.Candidate != in.Candidate.Candidate {
		t.Errorf("candidate mismatch: %q", out.Candidate.Candidate)
	}
	if *out.Candidate.SDPMid != mid || *out.Candidate.SDPMLineIndex != idx {
		t.Errorf("candidate metadata mismatch: %+v", out.Candidate)
	}
}

func TestEncodeInvalid(t *testing.T) {
	if _, err := (&Message{Type: TypeOffer}).Encode(); !errors.Is(err, ErrMissingSDP) {
		t.Errorf("expected ErrMissingSDP, got %v", err)
	}
}

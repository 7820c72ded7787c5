// Package media binds the negotiation controller to a real WebRTC engine:
// Session wraps a pion PeerConnection, RTPSource feeds its outbound video
// track from a local RTP ingest socket, and Monitor watches the source for
// stalls and drives recovery.
package media

import (
	"fmt"
	"sync"

	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"

	"github.com/campair/campair/pkg/session"
	"github.com/campair/campair/pkg/signal"
)

// SessionConfig holds configuration for a Session.
type SessionConfig struct {
	// STUNServers lists optional STUN server URLs. On a single LAN segment
	// host candidates suffice and the list can stay empty.
	STUNServers []string

	// VideoMimeType is the codec of the outbound track (default: H264).
	VideoMimeType string

	// LoggerFactory for creating loggers. If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Session implements session.MediaSession on top of a pion PeerConnection.
// The camera side attaches one outbound video track; the viewer side
// registers OnTrack and receives.
type Session struct {
	pc  *webrtc.PeerConnection
	log logging.LeveledLogger

	mu     sync.Mutex
	track  *webrtc.TrackLocalStaticRTP
	closed bool
}

// NewSession creates a Session with the given configuration.
func NewSession(config SessionConfig) (*Session, error) {
	var pcConfig webrtc.Configuration
	if len(config.STUNServers) > 0 {
		pcConfig.ICEServers = []webrtc.ICEServer{{URLs: config.STUNServers}}
	}

	pc, err := webrtc.NewPeerConnection(pcConfig)
	if err != nil {
		return nil, fmt.Errorf("media: new peer connection: %w", err)
	}

	s := &Session{pc: pc}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("media")
	}
	return s, nil
}

// AddVideoTrack attaches the outbound video track. At most one track is
// carried per session.
func (s *Session) AddVideoTrack(mimeType string) (*webrtc.TrackLocalStaticRTP, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if s.track != nil {
		return nil, ErrTrackAttached
	}
	if mimeType == "" {
		mimeType = webrtc.MimeTypeH264
	}

	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: mimeType},
		"video", "campair",
	)
	if err != nil {
		return nil, fmt.Errorf("media: new track: %w", err)
	}
	if _, err := s.pc.AddTrack(track); err != nil {
		return nil, fmt.Errorf("media: add track: %w", err)
	}

	s.track = track
	return track, nil
}

// OnTrack registers a handler for inbound tracks (viewer side).
func (s *Session) OnTrack(handler func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	s.pc.OnTrack(handler)
}

// CreateOffer implements session.MediaSession.
func (s *Session) CreateOffer(iceRestart bool) (string, error) {
	var options *webrtc.OfferOptions
	if iceRestart {
		options = &webrtc.OfferOptions{ICERestart: true}
	}

	offer, err := s.pc.CreateOffer(options)
	if err != nil {
		return "", fmt.Errorf("media: create offer: %w", err)
	}
	return offer.SDP, nil
}

// CreateAnswer implements session.MediaSession.
func (s *Session) CreateAnswer() (string, error) {
	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("media: create answer: %w", err)
	}
	return answer.SDP, nil
}

// SetLocalDescription implements session.MediaSession.
func (s *Session) SetLocalDescription(kind signal.Type, sdp string) error {
	sdpType, err := sdpTypeFor(kind)
	if err != nil {
		return err
	}
	if err := s.pc.SetLocalDescription(webrtc.SessionDescription{Type: sdpType, SDP: sdp}); err != nil {
		return fmt.Errorf("media: set local description: %w", err)
	}
	return nil
}

// SetRemoteDescription implements session.MediaSession.
func (s *Session) SetRemoteDescription(kind signal.Type, sdp string) error {
	sdpType, err := sdpTypeFor(kind)
	if err != nil {
		return err
	}
	if err := s.pc.SetRemoteDescription(webrtc.SessionDescription{Type: sdpType, SDP: sdp}); err != nil {
		return fmt.Errorf("media: set remote description: %w", err)
	}
	return nil
}

// AddICECandidate implements session.MediaSession.
func (s *Session) AddICECandidate(candidate signal.CandidateInit) error {
	init := webrtc.ICECandidateInit{
		Candidate:     candidate.Candidate,
		SDPMid:        candidate.SDPMid,
		SDPMLineIndex: candidate.SDPMLineIndex,
	}
	if err := s.pc.AddICECandidate(init); err != nil {
		return fmt.Errorf("media: add candidate: %w", err)
	}
	return nil
}

// HasLocalTrack implements session.MediaSession.
func (s *Session) HasLocalTrack() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.track != nil
}

// OnICECandidate implements session.MediaSession. The end-of-gathering nil
// candidate is swallowed; the wire format has no representation for it and
// trickle completion is implicit.
func (s *Session) OnICECandidate(handler func(signal.CandidateInit)) {
	s.pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		init := candidate.ToJSON()
		handler(signal.CandidateInit{
			Candidate:     init.Candidate,
			SDPMid:        init.SDPMid,
			SDPMLineIndex: init.SDPMLineIndex,
		})
	})
}

// OnConnectionStateChange implements session.MediaSession.
func (s *Session) OnConnectionStateChange(handler func(session.MediaConnState)) {
	s.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		handler(connStateFor(state))
	})
}

// OnNegotiationNeeded implements session.MediaSession.
func (s *Session) OnNegotiationNeeded(handler func()) {
	s.pc.OnNegotiationNeeded(handler)
}

// Close closes the peer connection.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.closed = true
	s.mu.Unlock()

	return s.pc.Close()
}

func sdpTypeFor(kind signal.Type) (webrtc.SDPType, error) {
	switch kind {
	case signal.TypeOffer:
		return webrtc.SDPTypeOffer, nil
	case signal.TypeAnswer:
		return webrtc.SDPTypeAnswer, nil
	default:
		return webrtc.SDPType(0), ErrBadDescriptionKind
	}
}

func connStateFor(state webrtc.PeerConnectionState) session.MediaConnState {
	switch state {
	case webrtc.PeerConnectionStateNew:
		return session.MediaConnNew
	case webrtc.PeerConnectionStateConnecting:
		return session.MediaConnConnecting
	case webrtc.PeerConnectionStateConnected:
		return session.MediaConnConnected
	case webrtc.PeerConnectionStateDisconnected:
		return session.MediaConnDisconnected
	case webrtc.PeerConnectionStateFailed:
		return session.MediaConnFailed
	case webrtc.PeerConnectionStateClosed:
		return session.MediaConnClosed
	default:
		return session.MediaConnNew
	}
}

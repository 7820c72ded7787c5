package session

import (
	"sync"

	"github.com/campair/campair/pkg/signal"
)

const (
	sdpVideoOffer = "v=0\r\n" +
		"o=- 1 1 IN IP4 127.0.0.1\r\n" +
		"s=-\r\n" +
		"t=0 0\r\n" +
		"m=video 9 UDP/TLS/RTP/SAVPF 96\r\n" +
		"a=mid:0\r\n"

	sdpVideoAnswer = "v=0\r\n" +
		"o=- 2 1 IN IP4 127.0.0.1\r\n" +
		"s=-\r\n" +
		"t=0 0\r\n" +
		"m=video 9 UDP/TLS/RTP/SAVPF 96\r\n" +
		"a=mid:0\r\n"

	sdpNoMedia = "v=0\r\n" +
		"o=- 3 1 IN IP4 127.0.0.1\r\n" +
		"s=-\r\n" +
		"t=0 0\r\n"
)

// mockMedia implements MediaSession for controller tests.
type mockMedia struct {
	mu sync.Mutex

	hasTrack  bool
	offerSDP  string
	answerSDP string

	offerErr     error
	answerErr    error
	setLocalErr  error
	setRemoteErr error
	candidateErr error

	// blockRemote, if non-nil, stalls SetRemoteDescription until it closes.
	blockRemote chan struct{}

	offerCalls   int
	restartCalls int
	answerCalls  int
	remoteKinds  []signal.Type
	applied      []signal.CandidateInit

	onCandidate         func(signal.CandidateInit)
	onConnState         func(MediaConnState)
	onNegotiationNeeded func()
}

func newMockMedia() *mockMedia {
	return &mockMedia{
		hasTrack:  true,
		offerSDP:  sdpVideoOffer,
		answerSDP: sdpVideoAnswer,
	}
}

func (m *mockMedia) CreateOffer(iceRestart bool) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offerCalls++
	if iceRestart {
		m.restartCalls++
	}
	return m.offerSDP, m.offerErr
}

func (m *mockMedia) CreateAnswer() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answerCalls++
	return m.answerSDP, m.answerErr
}

func (m *mockMedia) SetLocalDescription(_ signal.Type, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setLocalErr
}

func (m *mockMedia) SetRemoteDescription(kind signal.Type, _ string) error {
	m.mu.Lock()
	block := m.blockRemote
	m.mu.Unlock()
	if block != nil {
		<-block
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.remoteKinds = append(m.remoteKinds, kind)
	return m.setRemoteErr
}

func (m *mockMedia) AddICECandidate(candidate signal.CandidateInit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.candidateErr != nil {
		return m.candidateErr
	}
	m.applied = append(m.applied, candidate)
	return nil
}

func (m *mockMedia) HasLocalTrack() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hasTrack
}

func (m *mockMedia) OnICECandidate(handler func(signal.CandidateInit)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onCandidate = handler
}

func (m *mockMedia) OnConnectionStateChange(handler func(MediaConnState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onConnState = handler
}

func (m *mockMedia) OnNegotiationNeeded(handler func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onNegotiationNeeded = handler
}

// fireConnState invokes the registered connection state handler.
func (m *mockMedia) fireConnState(state MediaConnState) {
	m.mu.Lock()
	handler := m.onConnState
	m.mu.Unlock()
	if handler != nil {
		handler(state)
	}
}

// fireCandidate invokes the registered local candidate handler.
func (m *mockMedia) fireCandidate(candidate signal.CandidateInit) {
	m.mu.Lock()
	handler := m.onCandidate
	m.mu.Unlock()
	if handler != nil {
		handler(candidate)
	}
}

// fireNegotiationNeeded invokes the registered negotiation-needed handler.
func (m *mockMedia) fireNegotiationNeeded() {
	m.mu.Lock()
	handler := m.onNegotiationNeeded
	m.mu.Unlock()
	if handler != nil {
		handler()
	}
}

func (m *mockMedia) offers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.offerCalls
}

func (m *mockMedia) restarts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.restartCalls
}

func (m *mockMedia) answers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.answerCalls
}

func (m *mockMedia) appliedCandidates() []signal.CandidateInit {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]signal.CandidateInit, len(m.applied))
	copy(out, m.applied)
	return out
}

func (m *mockMedia) setHasTrack(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hasTrack = v
}

package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pion/transport/v3/test"

	"github.com/campair/campair/pkg/signal"
)

// sentRecorder collects messages the controller hands to its send function.
type sentRecorder struct {
	mu   sync.Mutex
	msgs []*signal.Message
}

func (r *sentRecorder) send(msg *signal.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *sentRecorder) count(kind signal.Type) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, msg := range r.msgs {
		if msg.Type == kind {
			n++
		}
	}
	return n
}

func waitState(t *testing.T, c *Controller, want NegotiationState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %s, want %s", c.State(), want)
}

// settle gives posted work a moment to run, for asserting that nothing changed.
func settle() {
	time.Sleep(50 * time.Millisecond)
}

func newController(t *testing.T, role Role, media MediaSession, send SendFunc) *Controller {
	t.Helper()
	c, err := NewController(ControllerConfig{
		Role:            role,
		Media:           media,
		Send:            send,
		RestartCooldown: time.Minute,
	})
	if err != nil {
		t.Fatalf("NewController(%s) failed: %v", role, err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func mustEncode(t *testing.T, msg *signal.Message) []byte {
	t.Helper()
	payload, err := msg.Encode()
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}
	return payload
}

func TestControllerOfferAnswerRoundTrip(t *testing.T) {
	lim := test.TimeOut(10 * time.Second)
	defer lim.Stop()

	cameraMedia := newMockMedia()
	viewerMedia := newMockMedia()

	var camera, viewer *Controller
	camera = newController(t, RoleInitiator, cameraMedia, func(msg *signal.Message) {
		viewer.HandleMessage(mustEncode(t, msg))
	})
	viewer = newController(t, RoleResponder, viewerMedia, func(msg *signal.Message) {
		camera.HandleMessage(mustEncode(t, msg))
	})

	camera.CreateOffer()

	waitState(t, viewer, StateStable)
	waitState(t, camera, StateStable)

	if got := cameraMedia.offers(); got != 1 {
		t.Errorf("camera CreateOffer calls = %d, want 1", got)
	}
	if got := viewerMedia.answers(); got != 1 {
		t.Errorf("viewer CreateAnswer calls = %d, want 1", got)
	}

	// Local candidates flow in either state, both directions.
	cameraMedia.fireCandidate(signal.CandidateInit{Candidate: "candidate:1 1 udp 1 192.168.1.2 50000 typ host"})
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(viewerMedia.appliedCandidates()) == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Errorf("viewer applied %d candidates, want 1", len(viewerMedia.appliedCandidates()))
}

func TestControllerDiscardsMediaLessOffer(t *testing.T) {
	lim := test.TimeOut(10 * time.Second)
	defer lim.Stop()

	media := newMockMedia()
	sent := &sentRecorder{}
	viewer := newController(t, RoleResponder, media, sent.send)

	// A warm-up offer describing no media must not produce an answer.
	viewer.HandleMessage(mustEncode(t, signal.NewOffer(sdpNoMedia)))
	settle()

	if got := sent.count(signal.TypeAnswer); got != 0 {
		t.Fatalf("answers sent after media-less offer = %d, want 0", got)
	}
	if got := viewer.State(); got != StateIdle {
		t.Fatalf("state after media-less offer = %s, want Idle", got)
	}

	// The follow-up real offer gets exactly one answer.
	viewer.HandleMessage(mustEncode(t, signal.NewOffer(sdpVideoOffer)))
	waitState(t, viewer, StateStable)

	if got := sent.count(signal.TypeAnswer); got != 1 {
		t.Errorf("answers sent = %d, want 1", got)
	}
}

func TestControllerBuffersEarlyCandidates(t *testing.T) {
	lim := test.TimeOut(10 * time.Second)
	defer lim.Stop()

	media := newMockMedia()
	sent := &sentRecorder{}
	viewer := newController(t, RoleResponder, media, sent.send)

	first := signal.CandidateInit{Candidate: "candidate:1 1 udp 1 192.168.1.2 50000 typ host"}
	second := signal.CandidateInit{Candidate: "candidate:2 1 udp 1 192.168.1.2 50001 typ host"}

	viewer.HandleMessage(mustEncode(t, signal.NewCandidate(first)))
	viewer.HandleMessage(mustEncode(t, signal.NewCandidate(second)))
	settle()

	if got := media.appliedCandidates(); len(got) != 0 {
		t.Fatalf("candidates applied before remote description = %d, want 0", len(got))
	}

	viewer.HandleMessage(mustEncode(t, signal.NewOffer(sdpVideoOffer)))
	waitState(t, viewer, StateStable)

	applied := media.appliedCandidates()
	if len(applied) != 2 {
		t.Fatalf("candidates applied = %d, want 2", len(applied))
	}
	if applied[0].Candidate != first.Candidate || applied[1].Candidate != second.Candidate {
		t.Errorf("candidates applied out of order: %+v", applied)
	}

	// Later candidates apply directly, no rebuffering.
	third := signal.CandidateInit{Candidate: "candidate:3 1 udp 1 192.168.1.2 50002 typ host"}
	viewer.HandleMessage(mustEncode(t, signal.NewCandidate(third)))
	settle()

	if got := media.appliedCandidates(); len(got) != 3 {
		t.Errorf("candidates applied = %d, want 3", len(got))
	}
}

func TestControllerOfferOnlyWhenSettled(t *testing.T) {
	lim := test.TimeOut(10 * time.Second)
	defer lim.Stop()

	media := newMockMedia()
	sent := &sentRecorder{}
	camera := newController(t, RoleInitiator, media, sent.send)

	camera.CreateOffer()
	waitState(t, camera, StateAwaitingAnswer)

	// A second request while the answer is outstanding is a no-op.
	camera.CreateOffer()
	settle()

	if got := media.offers(); got != 1 {
		t.Errorf("CreateOffer calls = %d, want 1", got)
	}
	if got := sent.count(signal.TypeOffer); got != 1 {
		t.Errorf("offers sent = %d, want 1", got)
	}
}

func TestControllerOfferRequiresLocalTrack(t *testing.T) {
	media := newMockMedia()
	media.setHasTrack(false)
	sent := &sentRecorder{}
	camera := newController(t, RoleInitiator, media, sent.send)

	camera.CreateOffer()
	settle()

	if got := media.offers(); got != 0 {
		t.Errorf("CreateOffer calls = %d, want 0", got)
	}
	if got := camera.State(); got != StateIdle {
		t.Errorf("state = %s, want Idle", got)
	}
}

func TestControllerResponderNeverOffers(t *testing.T) {
	media := newMockMedia()
	sent := &sentRecorder{}
	viewer := newController(t, RoleResponder, media, sent.send)

	viewer.CreateOffer()
	if viewer.RequestRenegotiation() {
		t.Error("RequestRenegotiation() accepted on a responder")
	}
	settle()

	if got := media.offers(); got != 0 {
		t.Errorf("CreateOffer calls = %d, want 0", got)
	}
}

func TestControllerDropsAnswerOutOfState(t *testing.T) {
	media := newMockMedia()
	sent := &sentRecorder{}
	camera := newController(t, RoleInitiator, media, sent.send)

	camera.HandleMessage(mustEncode(t, signal.NewAnswer(sdpVideoAnswer)))
	settle()

	media.mu.Lock()
	remotes := len(media.remoteKinds)
	media.mu.Unlock()
	if remotes != 0 {
		t.Errorf("SetRemoteDescription calls = %d, want 0", remotes)
	}
	if got := camera.State(); got != StateIdle {
		t.Errorf("state = %s, want Idle", got)
	}
}

func TestControllerDropsDuplicateAnswerWhileApplying(t *testing.T) {
	lim := test.TimeOut(10 * time.Second)
	defer lim.Stop()

	media := newMockMedia()
	sent := &sentRecorder{}
	camera := newController(t, RoleInitiator, media, sent.send)

	camera.CreateOffer()
	waitState(t, camera, StateAwaitingAnswer)

	release := make(chan struct{})
	media.mu.Lock()
	media.blockRemote = release
	media.mu.Unlock()

	// The second answer arrives while the first is still being applied and
	// the state has not left AwaitingAnswer.
	answer := mustEncode(t, signal.NewAnswer(sdpVideoAnswer))
	camera.HandleMessage(answer)
	camera.HandleMessage(answer)
	settle()

	close(release)
	waitState(t, camera, StateStable)

	media.mu.Lock()
	remotes := len(media.remoteKinds)
	media.mu.Unlock()
	if remotes != 1 {
		t.Errorf("SetRemoteDescription calls = %d, want 1", remotes)
	}
}

func TestControllerRestartCooldown(t *testing.T) {
	lim := test.TimeOut(10 * time.Second)
	defer lim.Stop()

	media := newMockMedia()
	sent := &sentRecorder{}
	camera, err := NewController(ControllerConfig{
		Role:            RoleInitiator,
		Media:           media,
		Send:            sent.send,
		RestartCooldown: 150 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewController() failed: %v", err)
	}
	t.Cleanup(func() { camera.Close() })

	// The restart waits out the full cooldown; nothing goes out right away.
	media.fireConnState(MediaConnFailed)
	waitState(t, camera, StateFailed)
	settle()

	if got := media.restarts(); got != 0 {
		t.Fatalf("ICE restart offers before cooldown = %d, want 0", got)
	}

	// Repeated failures while the restart is pending schedule nothing more.
	media.fireConnState(MediaConnFailed)
	media.fireConnState(MediaConnFailed)

	waitState(t, camera, StateAwaitingAnswer)

	if got := media.restarts(); got != 1 {
		t.Errorf("ICE restart offers = %d, want 1", got)
	}
	if got := sent.count(signal.TypeOffer); got != 1 {
		t.Errorf("offers sent = %d, want 1", got)
	}
}

func TestControllerResponderDoesNotRestart(t *testing.T) {
	media := newMockMedia()
	sent := &sentRecorder{}
	viewer := newController(t, RoleResponder, media, sent.send)

	media.fireConnState(MediaConnFailed)
	settle()

	if got := media.restarts(); got != 0 {
		t.Errorf("ICE restart offers = %d, want 0", got)
	}
	if got := viewer.State(); got != StateFailed {
		t.Errorf("state = %s, want Failed", got)
	}
}

func TestControllerResetDiscardsStaleWork(t *testing.T) {
	lim := test.TimeOut(10 * time.Second)
	defer lim.Stop()

	media := newMockMedia()
	release := make(chan struct{})
	media.blockRemote = release

	sent := &sentRecorder{}
	viewer := newController(t, RoleResponder, media, sent.send)

	viewer.HandleMessage(mustEncode(t, signal.NewOffer(sdpVideoOffer)))
	waitState(t, viewer, StateRemoteOfferReceived)

	// Peer disconnects while the remote description is still being applied.
	viewer.Reset()
	waitState(t, viewer, StateIdle)

	close(release)
	settle()

	// The stale continuation must not answer or move the state machine.
	if got := sent.count(signal.TypeAnswer); got != 0 {
		t.Errorf("answers sent after reset = %d, want 0", got)
	}
	if got := viewer.State(); got != StateIdle {
		t.Errorf("state = %s, want Idle", got)
	}
	if got := media.answers(); got != 0 {
		t.Errorf("CreateAnswer calls = %d, want 0", got)
	}
}

func TestControllerNegotiationNeededOnlyWhenStable(t *testing.T) {
	lim := test.TimeOut(10 * time.Second)
	defer lim.Stop()

	media := newMockMedia()
	sent := &sentRecorder{}
	camera := newController(t, RoleInitiator, media, sent.send)

	// Ignored while idle negotiation has not produced a stable session.
	camera.CreateOffer()
	waitState(t, camera, StateAwaitingAnswer)
	media.fireNegotiationNeeded()
	settle()

	if got := media.offers(); got != 1 {
		t.Errorf("CreateOffer calls = %d, want 1", got)
	}

	// Honored once stable.
	camera.HandleMessage(mustEncode(t, signal.NewAnswer(sdpVideoAnswer)))
	waitState(t, camera, StateStable)
	media.fireNegotiationNeeded()
	waitState(t, camera, StateAwaitingAnswer)

	if got := media.offers(); got != 2 {
		t.Errorf("CreateOffer calls = %d, want 2", got)
	}
}

func TestControllerCloseTwice(t *testing.T) {
	media := newMockMedia()
	c, err := NewController(ControllerConfig{
		Role:  RoleResponder,
		Media: media,
		Send:  func(*signal.Message) {},
	})
	if err != nil {
		t.Fatalf("NewController() failed: %v", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if err := c.Close(); !errors.Is(err, ErrClosed) {
		t.Errorf("second Close() error = %v, want ErrClosed", err)
	}
}

func TestControllerConfigValidation(t *testing.T) {
	media := newMockMedia()
	send := func(*signal.Message) {}

	if _, err := NewController(ControllerConfig{Media: media, Send: send}); err != ErrInvalidRole {
		t.Errorf("missing role: error = %v, want ErrInvalidRole", err)
	}
	if _, err := NewController(ControllerConfig{Role: RoleInitiator, Send: send}); err != ErrNoMediaSession {
		t.Errorf("missing media: error = %v, want ErrNoMediaSession", err)
	}
	if _, err := NewController(ControllerConfig{Role: RoleInitiator, Media: media}); err != ErrNoSender {
		t.Errorf("missing sender: error = %v, want ErrNoSender", err)
	}
}

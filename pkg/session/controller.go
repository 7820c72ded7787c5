// Package session implements the campair negotiation controller: the state
// machine that turns messaging-channel signaling payloads into offer/answer
// exchanges against a MediaSession.
//
// One controller exists per node. Every mutation runs on a single internal
// goroutine; public methods post closures onto it, so no state is touched
// concurrently. Blocking media operations run on worker goroutines tagged
// with the session epoch, and their continuations are discarded when the
// epoch has moved on (peer disconnect, reset).
package session

import (
	"sync/atomic"
	"time"

	"github.com/pion/logging"

	"github.com/campair/campair/pkg/signal"
)

// DefaultRestartCooldown is the minimum spacing between ICE restart offers.
const DefaultRestartCooldown = 10 * time.Second

// SendFunc transmits a signaling message to the peer. It must not block and
// must not fail from the caller's point of view; the messaging channel
// buffers or counts what it cannot deliver.
type SendFunc func(msg *signal.Message)

// ControllerConfig holds configuration for the Controller.
type ControllerConfig struct {
	// Role selects offer/answer behavior. Required.
	Role Role

	// Media is the media session under negotiation. Required.
	Media MediaSession

	// Send transmits signaling messages to the peer. Required.
	Send SendFunc

	// RestartCooldown is the minimum spacing between ICE restart offers.
	// Zero selects DefaultRestartCooldown.
	RestartCooldown time.Duration

	// LoggerFactory for creating loggers. If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Controller is the negotiation state machine for one media session.
type Controller struct {
	config ControllerConfig
	log    logging.LeveledLogger

	runCh   chan func()
	closeCh chan struct{}
	closed  atomic.Bool

	// stateMirror lets State() answer without touching the run loop, so
	// watchdogs can poll it from their own ticks.
	stateMirror atomic.Int32

	// Everything below is owned by the run loop.
	state          NegotiationState
	epoch          uint64
	inFlight       bool
	remoteApplied  bool
	pending        candidateBuffer
	restartPending bool
}

// NewController creates a Controller and starts its run loop. The media
// session's handlers are registered here, so the controller must be created
// before negotiation can be triggered.
func NewController(config ControllerConfig) (*Controller, error) {
	if !config.Role.IsValid() {
		return nil, ErrInvalidRole
	}
	if config.Media == nil {
		return nil, ErrNoMediaSession
	}
	if config.Send == nil {
		return nil, ErrNoSender
	}
	if config.RestartCooldown == 0 {
		config.RestartCooldown = DefaultRestartCooldown
	}

	c := &Controller{
		config:  config,
		runCh:   make(chan func()),
		closeCh: make(chan struct{}),
		state:   StateIdle,
	}
	if config.LoggerFactory != nil {
		c.log = config.LoggerFactory.NewLogger("session")
	}

	// Local candidates are forwarded immediately, in any state: the peer
	// buffers whatever arrives ahead of the matching description.
	config.Media.OnICECandidate(func(candidate signal.CandidateInit) {
		c.config.Send(signal.NewCandidate(candidate))
	})
	config.Media.OnConnectionStateChange(func(state MediaConnState) {
		c.post(func() { c.handleConnState(state) })
	})
	config.Media.OnNegotiationNeeded(func() {
		c.post(func() { c.handleNegotiationNeeded() })
	})

	go c.loop()
	return c, nil
}

func (c *Controller) loop() {
	for {
		select {
		case fn := <-c.runCh:
			fn()
		case <-c.closeCh:
			return
		}
	}
}

// post runs fn on the run loop; after Close it is a no-op.
func (c *Controller) post(fn func()) {
	select {
	case c.runCh <- fn:
	case <-c.closeCh:
	}
}

// State returns the current negotiation state.
func (c *Controller) State() NegotiationState {
	return NegotiationState(c.stateMirror.Load())
}

// Close stops the run loop; a second Close returns ErrClosed. A scheduled
// restart timer may still fire but its callback is discarded.
func (c *Controller) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	close(c.closeCh)
	return nil
}

// CreateOffer starts an offer/answer exchange. It is accepted only for the
// initiator role, in Idle or Stable, with a ready local track; otherwise it
// is a silent no-op.
func (c *Controller) CreateOffer() {
	c.post(func() { c.tryOffer(false) })
}

// RequestRenegotiation asks for an ICE-restarting offer on behalf of a
// recovery path, reporting whether the controller accepted it. A busy
// controller rejects the request so the caller can retry later.
func (c *Controller) RequestRenegotiation() bool {
	result := make(chan bool, 1)
	c.post(func() {
		result <- c.tryOffer(true)
	})
	select {
	case accepted := <-result:
		return accepted
	case <-c.closeCh:
		return false
	}
}

// Reset discards all negotiation state and advances the epoch, so
// continuations of in-flight media operations are dropped. Called when the
// peer disconnects.
func (c *Controller) Reset() {
	c.post(func() {
		c.epoch++
		c.inFlight = false
		c.remoteApplied = false
		c.pending.Drain()
		c.restartPending = false
		c.setState(StateIdle)
	})
}

// HandleMessage decodes and dispatches one signaling payload from the
// messaging channel. Malformed payloads are logged and dropped.
func (c *Controller) HandleMessage(payload []byte) {
	msg, err := signal.Decode(payload)
	if err != nil {
		if c.log != nil {
			c.log.Warnf("dropping malformed signaling payload: %v", err)
		}
		return
	}

	switch msg.Type {
	case signal.TypeOffer:
		c.post(func() { c.handleOffer(msg.SDP) })
	case signal.TypeAnswer:
		c.post(func() { c.handleAnswer(msg.SDP) })
	case signal.TypeCandidate:
		candidate := *msg.Candidate
		c.post(func() { c.handleCandidate(candidate) })
	}
}

// ---------------------------------------------------------------------------
// Run-loop handlers
// ---------------------------------------------------------------------------

// tryOffer starts an offer if the state machine allows one right now.
func (c *Controller) tryOffer(iceRestart bool) bool {
	if c.config.Role != RoleInitiator {
		if c.log != nil {
			c.log.Debugf("ignoring offer request: role is %s", c.config.Role)
		}
		return false
	}
	if c.state != StateIdle && c.state != StateStable {
		if c.log != nil {
			c.log.Debugf("ignoring offer request in state %s", c.state)
		}
		return false
	}
	if c.inFlight {
		return false
	}
	if !c.config.Media.HasLocalTrack() {
		if c.log != nil {
			c.log.Debugf("ignoring offer request: no ready local track")
		}
		return false
	}

	c.startOffer(iceRestart, c.state)
	return true
}

// startOffer launches the offer worker. revert is the state to fall back to
// if creating or applying the offer fails locally.
func (c *Controller) startOffer(iceRestart bool, revert NegotiationState) {
	c.inFlight = true
	if c.state == StateIdle {
		c.setState(StateLocalOfferPending)
	} else {
		c.setState(StateRenegotiating)
	}

	epoch := c.epoch
	go func() {
		sdp, err := c.config.Media.CreateOffer(iceRestart)
		if err == nil && !signal.HasVideo(sdp) {
			// An offer describing no media must never reach the peer.
			err = ErrNoMediaInOffer
		}
		if err == nil {
			err = c.config.Media.SetLocalDescription(signal.TypeOffer, sdp)
		}

		c.post(func() {
			if c.epoch != epoch {
				return
			}
			c.inFlight = false
			if err != nil {
				c.failOp("create offer", err, revert)
				return
			}
			c.config.Send(signal.NewOffer(sdp))
			c.setState(StateAwaitingAnswer)
		})
	}()
}

func (c *Controller) handleOffer(sdp string) {
	if !signal.HasVideo(sdp) {
		if c.log != nil {
			c.log.Warnf("discarding offer describing no media")
		}
		return
	}
	if c.state != StateIdle && c.state != StateStable {
		if c.log != nil {
			c.log.Warnf("dropping offer in state %s", c.state)
		}
		return
	}
	if c.inFlight {
		if c.log != nil {
			c.log.Warnf("dropping offer: operation in flight")
		}
		return
	}

	revert := c.state
	c.inFlight = true
	c.setState(StateRemoteOfferReceived)

	epoch := c.epoch
	go func() {
		err := c.config.Media.SetRemoteDescription(signal.TypeOffer, sdp)

		c.post(func() {
			if c.epoch != epoch {
				return
			}
			if err != nil {
				c.inFlight = false
				c.failOp("apply remote offer", err, revert)
				return
			}

			c.remoteApplied = true
			c.drainPending()
			c.setState(StateLocalAnswerPending)
			c.startAnswer(epoch, revert)
		})
	}()
}

// startAnswer launches the answer worker for an applied remote offer.
func (c *Controller) startAnswer(epoch uint64, revert NegotiationState) {
	go func() {
		sdp, err := c.config.Media.CreateAnswer()
		if err == nil {
			err = c.config.Media.SetLocalDescription(signal.TypeAnswer, sdp)
		}

		c.post(func() {
			if c.epoch != epoch {
				return
			}
			c.inFlight = false
			if err != nil {
				c.failOp("create answer", err, revert)
				return
			}
			c.config.Send(signal.NewAnswer(sdp))
			c.setState(StateStable)
		})
	}()
}

func (c *Controller) handleAnswer(sdp string) {
	if c.state != StateAwaitingAnswer {
		if c.log != nil {
			c.log.Warnf("dropping answer in state %s", c.state)
		}
		return
	}
	// The state stays AwaitingAnswer while the first answer is being applied,
	// so a duplicate has to be caught here.
	if c.inFlight {
		if c.log != nil {
			c.log.Warnf("dropping answer: operation in flight")
		}
		return
	}

	c.inFlight = true
	epoch := c.epoch
	go func() {
		err := c.config.Media.SetRemoteDescription(signal.TypeAnswer, sdp)

		c.post(func() {
			if c.epoch != epoch {
				return
			}
			c.inFlight = false
			if err != nil {
				c.failOp("apply remote answer", err, StateFailed)
				return
			}
			c.remoteApplied = true
			c.drainPending()
			c.setState(StateStable)
		})
	}()
}

func (c *Controller) handleCandidate(candidate signal.CandidateInit) {
	if !c.remoteApplied {
		c.pending.Enqueue(candidate)
		return
	}
	if err := c.config.Media.AddICECandidate(candidate); err != nil && c.log != nil {
		c.log.Warnf("applying remote candidate failed: %v", err)
	}
}

// drainPending applies buffered candidates in arrival order, exactly once.
func (c *Controller) drainPending() {
	for _, candidate := range c.pending.Drain() {
		if err := c.config.Media.AddICECandidate(candidate); err != nil && c.log != nil {
			c.log.Warnf("applying buffered candidate failed: %v", err)
		}
	}
}

func (c *Controller) handleNegotiationNeeded() {
	// Honored only in Stable: during an exchange the engine's appetite for
	// renegotiation would collide with the one in progress.
	if c.state != StateStable {
		if c.log != nil {
			c.log.Debugf("deferring negotiation-needed in state %s", c.state)
		}
		return
	}
	c.tryOffer(false)
}

func (c *Controller) handleConnState(state MediaConnState) {
	if c.log != nil {
		c.log.Debugf("media connection state: %s", state)
	}

	switch state {
	case MediaConnFailed:
		c.setState(StateFailed)
		if c.config.Role == RoleInitiator {
			c.scheduleRestart()
		}
	case MediaConnDisconnected:
		if c.log != nil {
			c.log.Warnf("media connection interrupted")
		}
	}
}

// scheduleRestart arranges a single ICE restart offer a full cooldown after
// the failure, so transient flaps settle before the restart goes out. Further
// failures while one is pending schedule nothing more, which also keeps
// consecutive restarts at least a cooldown apart.
func (c *Controller) scheduleRestart() {
	if c.restartPending {
		return
	}

	if c.log != nil {
		c.log.Infof("scheduling ICE restart in %v", c.config.RestartCooldown)
	}
	c.restartPending = true
	epoch := c.epoch
	time.AfterFunc(c.config.RestartCooldown, func() {
		c.post(func() {
			if c.epoch != epoch {
				return
			}
			c.restartPending = false
			c.restartNow()
		})
	})
}

func (c *Controller) restartNow() {
	if c.state != StateFailed || c.inFlight {
		return
	}
	if !c.config.Media.HasLocalTrack() {
		if c.log != nil {
			c.log.Warnf("skipping ICE restart: no ready local track")
		}
		return
	}

	if c.log != nil {
		c.log.Infof("starting ICE restart offer")
	}
	c.startOffer(true, StateFailed)
}

// failOp logs a failed media operation and falls back: to the prior stable
// state when one existed, to Failed otherwise. Media errors are never fatal
// to the process.
func (c *Controller) failOp(op string, err error, revert NegotiationState) {
	if c.log != nil {
		c.log.Errorf("%s failed: %v", op, err)
	}
	if revert == StateStable {
		c.setState(StateStable)
		return
	}
	c.setState(StateFailed)
}

func (c *Controller) setState(state NegotiationState) {
	if c.state == state {
		return
	}
	if c.log != nil {
		c.log.Debugf("negotiation state %s -> %s", c.state, state)
	}
	c.state = state
	c.stateMirror.Store(int32(state))
}

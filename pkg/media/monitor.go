package media

import (
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/campair/campair/pkg/session"
)

const (
	// DefaultMonitorInterval is the spacing between watchdog checks.
	DefaultMonitorInterval = 2 * time.Second

	// DefaultStallThreshold is how long the capture may go without a
	// complete frame before recovery kicks in.
	DefaultStallThreshold = 5 * time.Second
)

// Negotiator is the Monitor's view of the negotiation controller.
type Negotiator interface {
	// State returns the current negotiation state.
	State() session.NegotiationState

	// RequestRenegotiation asks for a recovery offer, reporting whether the
	// controller accepted it.
	RequestRenegotiation() bool
}

// MonitorConfig holds configuration for the Monitor.
type MonitorConfig struct {
	// Capture is the source under watch. Required.
	Capture Capture

	// Negotiator receives renegotiation requests after a recovery. Required.
	Negotiator Negotiator

	// Interval between checks (default: DefaultMonitorInterval).
	Interval time.Duration

	// StallThreshold before recovery (default: DefaultStallThreshold).
	StallThreshold time.Duration

	// LoggerFactory for creating loggers. If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Monitor is the track lifecycle watchdog. On a fixed interval it re-enables
// a track that was disabled out from under us, and when the capture stops
// producing frames past the stall threshold it restarts the capture and asks
// the controller for one renegotiation.
//
// Recovery is per outage: after a restart, no further restart happens until
// frames have actually resumed, so a dead source cannot trigger a restart
// storm. A renegotiation request that the controller rejects because it is
// mid-exchange stays pending and is retried on later ticks.
type Monitor struct {
	config MonitorConfig
	log    logging.LeveledLogger

	mu      sync.Mutex
	started bool
	closed  bool

	// Owned by the run goroutine.
	baseline      time.Time
	lastRecovery  time.Time
	pendingRenego bool

	closeCh chan struct{}
	wg      sync.WaitGroup
}

// NewMonitor creates a Monitor with the given configuration.
func NewMonitor(config MonitorConfig) (*Monitor, error) {
	if config.Capture == nil {
		return nil, ErrNoCapture
	}
	if config.Negotiator == nil {
		return nil, ErrNoNegotiator
	}
	if config.Interval == 0 {
		config.Interval = DefaultMonitorInterval
	}
	if config.StallThreshold == 0 {
		config.StallThreshold = DefaultStallThreshold
	}

	m := &Monitor{
		config:  config,
		closeCh: make(chan struct{}),
	}
	if config.LoggerFactory != nil {
		m.log = config.LoggerFactory.NewLogger("monitor")
	}
	return m, nil
}

// Start begins watching.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.started {
		return ErrAlreadyStarted
	}
	m.started = true

	m.baseline = time.Now()
	m.wg.Add(1)
	go m.run()
	return nil
}

// Close stops the watchdog.
func (m *Monitor) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.closed = true
	m.mu.Unlock()

	close(m.closeCh)
	m.wg.Wait()
	return nil
}

func (m *Monitor) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			m.check(now)
		case <-m.closeCh:
			return
		}
	}
}

func (m *Monitor) check(now time.Time) {
	capture := m.config.Capture

	if !capture.Enabled() {
		if m.log != nil {
			m.log.Warnf("capture disabled unexpectedly, re-enabling")
		}
		capture.SetEnabled(true)
	}

	if m.pendingRenego {
		m.tryRenegotiate()
		return
	}

	last := capture.LastFrameTime()
	ref := last
	if m.baseline.After(ref) {
		ref = m.baseline
	}

	stalled := now.Sub(ref) >= m.config.StallThreshold || capture.ReadyState() == ReadyStateEnded
	if !stalled {
		return
	}

	// One recovery per outage: a second restart waits until frames have
	// resumed since the previous one.
	if !m.lastRecovery.IsZero() && !last.After(m.lastRecovery) {
		return
	}

	if m.log != nil {
		m.log.Warnf("capture stalled (last frame %v ago), restarting", now.Sub(last).Round(time.Millisecond))
	}

	if err := capture.Stop(); err != nil && err != ErrNotStarted {
		if m.log != nil {
			m.log.Warnf("stopping stalled capture failed: %v", err)
		}
	}
	if err := capture.Start(); err != nil {
		if m.log != nil {
			m.log.Errorf("restarting capture failed: %v", err)
		}
	}

	m.lastRecovery = now
	m.baseline = now
	m.pendingRenego = true
	m.tryRenegotiate()
}

// tryRenegotiate requests one recovery offer, deferring while the controller
// is mid-exchange.
func (m *Monitor) tryRenegotiate() {
	state := m.config.Negotiator.State()
	if state != session.StateIdle && state != session.StateStable {
		if m.log != nil {
			m.log.Debugf("deferring recovery renegotiation: controller is %s", state)
		}
		return
	}

	if m.config.Negotiator.RequestRenegotiation() {
		m.pendingRenego = false
		if m.log != nil {
			m.log.Infof("recovery renegotiation requested")
		}
	}
}

package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"github.com/pion/logging"

	"github.com/campair/campair/pkg/discovery"
)

const (
	// handshakeTimeout bounds the hello exchange on a fresh connection.
	handshakeTimeout = 10 * time.Second

	// writeQueueSlack is extra writer-queue capacity beyond the outbox limit,
	// so a full outbox can always be flushed without dropping.
	writeQueueSlack = 64

	dialTimeout     = 5 * time.Second
	dialInitialWait = 250 * time.Millisecond
	dialMaxWait     = 5 * time.Second
)

// DialFunc dials the peer's signaling address.
type DialFunc func(ctx context.Context, addr string) (net.Conn, error)

// MessageHandler is called once per received payload. Per-peer ordering is
// preserved. Implementations should return quickly or dispatch to a
// goroutine to avoid stalling the channel's read loop.
type MessageHandler func(peer Peer, payload []byte)

// StateHandler is called on connection state transitions. On the transition
// to StateConnected the outbox has already been flushed onto the channel, so
// anything the handler sends is observed by the peer after the buffered
// backlog.
type StateHandler func(peer Peer, state State)

// ManagerConfig holds configuration for the Manager.
type ManagerConfig struct {
	// Role selects discovery behavior: RoleAnnouncing advertises and accepts,
	// RoleScanning browses and dials the first peer found. Required.
	Role discovery.Role

	// InstanceID uniquely identifies this node. If empty, a random UUID is used.
	InstanceID string

	// DeviceName is the human-readable name shared with the peer.
	DeviceName string

	// PairingCode is the shared secret the channel keys derive from. Required.
	PairingCode string

	// Port is the listen/advertise port for the announcing role.
	// Zero selects discovery.DefaultPort; ignored when Listener is set.
	Port int

	// Interfaces restricts discovery to specific network interfaces.
	Interfaces []net.Interface

	// PeerAddr, when set on a scanning node, skips mDNS and dials the address
	// directly.
	PeerAddr string

	// Listener is an optional pre-bound listener for the announcing role.
	Listener net.Listener

	// Dial overrides the dialer used by the scanning role (for testing).
	Dial DialFunc

	// ServerFactory overrides the mDNS registration backend (for testing).
	ServerFactory discovery.MDNSServerFactory

	// MDNSResolver overrides the mDNS browse backend (for testing).
	MDNSResolver discovery.MDNSResolver

	// OutboxLimit caps the pre-connect outbox. Zero selects DefaultOutboxLimit.
	OutboxLimit int

	// OnMessage receives every payload from the canonical peer.
	OnMessage MessageHandler

	// OnConnectionState receives connection state transitions.
	OnConnectionState StateHandler

	// LoggerFactory for creating loggers. If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// session is one live channel to the canonical peer.
type session struct {
	sc   *SecureChannel
	peer Peer
	wq   chan []byte

	stop     chan struct{}
	stopOnce sync.Once
}

// shutdown ends the session; safe to call from any goroutine, repeatedly.
func (s *session) shutdown() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.sc.Close()
	})
}

// Manager owns the messaging channel between this node and its canonical peer.
//
// Exactly one remote peer is canonical: the first to complete the channel
// handshake. Further peers are tolerated at the connection level so they see
// no protocol error, but nothing they send is delivered and no state change
// is reported for them.
type Manager struct {
	config ManagerConfig
	log    logging.LeveledLogger

	queue *Outbox
	dial  DialFunc

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	started      bool
	closed       bool
	state        State
	canonical    *Peer
	sess         *session
	extra        []*SecureChannel
	sendFailures uint64

	listener   net.Listener
	advertiser *discovery.Advertiser

	closeCh chan struct{}
	wg      sync.WaitGroup
}

// NewManager creates a Manager with the given configuration.
func NewManager(config ManagerConfig) (*Manager, error) {
	if !config.Role.IsValid() {
		return nil, ErrInvalidRole
	}
	if config.PairingCode == "" {
		return nil, ErrNoPairingCode
	}
	if config.InstanceID == "" {
		config.InstanceID = uuid.NewString()
	}
	if config.DeviceName == "" {
		config.DeviceName = "campair"
	}
	if config.Port == 0 {
		config.Port = discovery.DefaultPort
	}

	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		config:  config,
		queue:   NewOutbox(config.OutboxLimit),
		dial:    config.Dial,
		ctx:     ctx,
		cancel:  cancel,
		state:   StateNotConnected,
		closeCh: make(chan struct{}),
	}
	if m.dial == nil {
		m.dial = func(ctx context.Context, addr string) (net.Conn, error) {
			d := net.Dialer{Timeout: dialTimeout}
			return d.DialContext(ctx, "tcp", addr)
		}
	}
	if config.LoggerFactory != nil {
		m.log = config.LoggerFactory.NewLogger("transport")
	}
	return m, nil
}

// InstanceID returns this node's instance ID.
func (m *Manager) InstanceID() string {
	return m.config.InstanceID
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CanonicalPeer returns the canonical peer, or nil if none connected yet.
func (m *Manager) CanonicalPeer() *Peer {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.canonical == nil {
		return nil
	}
	p := *m.canonical
	return &p
}

// SendFailures returns the number of payloads that could not be transmitted.
func (m *Manager) SendFailures() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sendFailures
}

// Start begins discovery for the configured role. Announcing nodes listen and
// advertise; scanning nodes browse and dial the first peer found, retrying
// indefinitely until Close.
func (m *Manager) Start() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.mu.Unlock()

	switch m.config.Role {
	case discovery.RoleAnnouncing:
		return m.startAnnouncing()
	case discovery.RoleScanning:
		m.wg.Add(1)
		go m.scanLoop()
		return nil
	default:
		return ErrInvalidRole
	}
}

// Send transmits a payload to the canonical peer, or buffers it when no peer
// is connected yet. It never returns an error and never blocks on I/O:
// transmit failures are counted and corrected at the protocol layer by the
// next negotiation cycle.
func (m *Manager) Send(payload []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	if m.state == StateConnected && m.sess != nil {
		select {
		case m.sess.wq <- payload:
		default:
			m.sendFailures++
			if m.log != nil {
				m.log.Warnf("write queue full, dropping payload (%d failures)", m.sendFailures)
			}
		}
		return
	}

	m.queue.Enqueue(payload)
}

// Close shuts the manager down: stops discovery, closes every connection and
// waits for all goroutines to exit.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.closed = true
	sess := m.sess
	extra := m.extra
	m.extra = nil
	m.mu.Unlock()

	m.cancel()
	close(m.closeCh)

	if m.listener != nil {
		m.listener.Close()
	}
	if m.advertiser != nil {
		m.advertiser.Close()
	}
	if sess != nil {
		sess.shutdown()
	}
	for _, sc := range extra {
		sc.Close()
	}

	m.wg.Wait()
	return nil
}

// ---------------------------------------------------------------------------
// Announcing role
// ---------------------------------------------------------------------------

func (m *Manager) startAnnouncing() error {
	listener := m.config.Listener
	if listener == nil {
		l, err := net.Listen("tcp", ":"+strconv.Itoa(m.config.Port))
		if err != nil {
			return fmt.Errorf("transport: listen: %w", err)
		}
		listener = l
	}
	m.listener = listener

	port := m.config.Port
	if addr, ok := listener.Addr().(*net.TCPAddr); ok {
		port = addr.Port
	}

	advertiser, err := discovery.NewAdvertiser(discovery.AdvertiserConfig{
		InstanceID:    m.config.InstanceID,
		DeviceName:    m.config.DeviceName,
		Port:          port,
		Interfaces:    m.config.Interfaces,
		ServerFactory: m.config.ServerFactory,
		LoggerFactory: m.config.LoggerFactory,
	})
	if err != nil {
		listener.Close()
		return err
	}
	if err := advertiser.Start(); err != nil {
		listener.Close()
		return err
	}
	m.advertiser = advertiser

	m.wg.Add(1)
	go m.acceptLoop(listener)
	return nil
}

func (m *Manager) acceptLoop(listener net.Listener) {
	defer m.wg.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-m.closeCh:
				return
			default:
			}
			if m.log != nil {
				m.log.Warnf("accept failed: %v", err)
			}
			// Accept errors are transient unless the listener is gone.
			select {
			case <-m.closeCh:
				return
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}

		m.wg.Add(1)
		go func() {
			defer m.wg.Done()

			peer, sc, err := m.handshakeInbound(conn)
			if err != nil {
				if m.log != nil {
					m.log.Warnf("inbound handshake failed: %v", err)
				}
				conn.Close()
				return
			}
			m.adopt(peer, sc)
		}()
	}
}

// ---------------------------------------------------------------------------
// Scanning role
// ---------------------------------------------------------------------------

func (m *Manager) scanLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		addr, hint, ok := m.findPeer()
		if !ok {
			return
		}

		m.setState(hint, StateConnecting)

		conn := m.dialRetry(addr)
		if conn == nil {
			return
		}

		peer, sc, err := m.handshakeOutbound(conn, addr)
		if err != nil {
			if m.log != nil {
				m.log.Warnf("handshake with %s failed: %v", addr, err)
			}
			conn.Close()
			m.setState(hint, StateNotConnected)
			// The peer is likely misconfigured (wrong pairing code). Back off
			// a little before rediscovering so we don't hammer it.
			select {
			case <-m.ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		sess, canonical := m.adopt(peer, sc)
		if !canonical {
			continue
		}

		// Block until the session ends, then rediscover.
		select {
		case <-sess.stop:
		case <-m.ctx.Done():
			return
		}
	}
}

// findPeer blocks until a dialable peer is known. It returns ok=false only on
// shutdown. Once a canonical peer exists, only that peer is accepted again.
func (m *Manager) findPeer() (addr string, hint Peer, ok bool) {
	if m.config.PeerAddr != "" {
		return m.config.PeerAddr, Peer{Addr: m.config.PeerAddr}, true
	}

	browser, err := discovery.NewBrowser(discovery.BrowserConfig{
		MDNSResolver:  m.config.MDNSResolver,
		IgnoreID:      m.config.InstanceID,
		LoggerFactory: m.config.LoggerFactory,
	})
	if err != nil {
		if m.log != nil {
			m.log.Errorf("browser unavailable: %v", err)
		}
		return "", Peer{}, false
	}

	browseCtx, cancel := context.WithCancel(m.ctx)
	defer cancel()

	results, err := browser.Browse(browseCtx)
	if err != nil {
		return "", Peer{}, false
	}

	canonicalID := ""
	if c := m.CanonicalPeer(); c != nil {
		canonicalID = c.ID
	}

	for {
		select {
		case <-m.ctx.Done():
			return "", Peer{}, false
		case found, open := <-results:
			if !open {
				return "", Peer{}, false
			}
			if canonicalID != "" && found.Info.ID != canonicalID {
				continue
			}
			dialAddr := found.Addr()
			if dialAddr == "" {
				continue
			}
			if m.log != nil {
				m.log.Infof("found peer %q at %s", found.Info.Name, dialAddr)
			}
			return dialAddr, Peer{ID: found.Info.ID, Name: found.Info.Name, Addr: dialAddr}, true
		}
	}
}

// dialRetry dials addr with indefinite exponential backoff.
// Returns nil only on shutdown.
func (m *Manager) dialRetry(addr string) net.Conn {
	var conn net.Conn

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = dialInitialWait
	b.MaxInterval = dialMaxWait
	b.MaxElapsedTime = 0

	op := func() error {
		c, err := m.dial(m.ctx, addr)
		if err != nil {
			if m.log != nil {
				m.log.Debugf("dial %s: %v", addr, err)
			}
			return err
		}
		conn = c
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(b, m.ctx)); err != nil {
		return nil
	}
	return conn
}

// ---------------------------------------------------------------------------
// Channel handshake
// ---------------------------------------------------------------------------

// helloPayload is the first frame exchanged in each direction on a new
// channel. Decrypting it proves the peer holds the same pairing code.
type helloPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// handshakeInbound completes the hello exchange on an accepted connection:
// the scanner speaks first, then we reply.
func (m *Manager) handshakeInbound(conn net.Conn) (Peer, *SecureChannel, error) {
	// The deadline covers the salt exchange inside NewSecureChannel too.
	conn.SetDeadline(time.Now().Add(handshakeTimeout))
	defer conn.SetDeadline(time.Time{})

	sc, err := NewSecureChannel(conn, m.config.PairingCode, m.config.Role)
	if err != nil {
		return Peer{}, nil, err
	}

	peer, err := m.readHello(sc, conn)
	if err != nil {
		return Peer{}, nil, err
	}
	if err := m.writeHello(sc); err != nil {
		return Peer{}, nil, err
	}
	return peer, sc, nil
}

// handshakeOutbound completes the hello exchange on a dialed connection.
func (m *Manager) handshakeOutbound(conn net.Conn, addr string) (Peer, *SecureChannel, error) {
	conn.SetDeadline(time.Now().Add(handshakeTimeout))
	defer conn.SetDeadline(time.Time{})

	sc, err := NewSecureChannel(conn, m.config.PairingCode, m.config.Role)
	if err != nil {
		return Peer{}, nil, err
	}

	if err := m.writeHello(sc); err != nil {
		return Peer{}, nil, err
	}
	peer, err := m.readHello(sc, conn)
	if err != nil {
		return Peer{}, nil, err
	}
	if peer.Addr == "" {
		peer.Addr = addr
	}
	return peer, sc, nil
}

func (m *Manager) writeHello(sc *SecureChannel) error {
	data, err := json.Marshal(helloPayload{ID: m.config.InstanceID, Name: m.config.DeviceName})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	if err := sc.WriteFrame(data); err != nil {
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	return nil
}

func (m *Manager) readHello(sc *SecureChannel, conn net.Conn) (Peer, error) {
	payload, err := sc.ReadFrame()
	if err != nil {
		return Peer{}, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	var hello helloPayload
	if err := json.Unmarshal(payload, &hello); err != nil {
		return Peer{}, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	if hello.ID == "" {
		return Peer{}, fmt.Errorf("%w: empty peer id", ErrHandshake)
	}

	peer := Peer{ID: hello.ID, Name: hello.Name}
	if ra := conn.RemoteAddr(); ra != nil {
		peer.Addr = ra.String()
	}
	return peer, nil
}

// ---------------------------------------------------------------------------
// Session lifecycle
// ---------------------------------------------------------------------------

// adopt installs a handshaken channel. The first peer becomes canonical; a
// channel from any other peer — or a duplicate from the canonical one — is
// kept open but ignored, so the remote side sees no protocol error.
func (m *Manager) adopt(peer Peer, sc *SecureChannel) (*session, bool) {
	m.mu.Lock()

	if m.closed {
		m.mu.Unlock()
		sc.Close()
		return nil, false
	}

	if m.canonical != nil && m.canonical.ID != peer.ID {
		m.extra = append(m.extra, sc)
		m.mu.Unlock()
		if m.log != nil {
			m.log.Warnf("ignoring non-canonical peer %q (%s); canonical is %q",
				peer.Name, peer.Addr, m.canonical.Name)
		}
		m.wg.Add(1)
		go m.drainLoop(sc)
		return nil, false
	}

	if m.sess != nil {
		m.extra = append(m.extra, sc)
		m.mu.Unlock()
		if m.log != nil {
			m.log.Warnf("ignoring duplicate connection from %q", peer.Name)
		}
		m.wg.Add(1)
		go m.drainLoop(sc)
		return nil, false
	}

	p := peer
	m.canonical = &p

	sess := &session{
		sc:   sc,
		peer: peer,
		wq:   make(chan []byte, m.queue.limit+writeQueueSlack),
		stop: make(chan struct{}),
	}

	// Flush the outbox onto the writer queue before flipping the state, so
	// nothing sent after the Connected callback can interleave ahead of the
	// buffered backlog.
	for _, payload := range m.queue.Drain() {
		select {
		case sess.wq <- payload:
		default:
			m.sendFailures++
		}
	}

	m.sess = sess
	m.state = StateConnected
	m.mu.Unlock()

	if m.log != nil {
		m.log.Infof("connected to %q (%s)", peer.Name, peer.Addr)
	}

	m.wg.Add(2)
	go m.writeLoop(sess)
	go m.readLoop(sess)

	m.notifyState(peer, StateConnected)
	return sess, true
}

func (m *Manager) writeLoop(sess *session) {
	defer m.wg.Done()

	for {
		select {
		case payload := <-sess.wq:
			if err := sess.sc.WriteFrame(payload); err != nil {
				m.mu.Lock()
				m.sendFailures++
				m.mu.Unlock()
				if m.log != nil {
					m.log.Warnf("send to %q failed: %v", sess.peer.Name, err)
				}
				m.endSession(sess)
				return
			}
		case <-sess.stop:
			return
		case <-m.closeCh:
			return
		}
	}
}

func (m *Manager) readLoop(sess *session) {
	defer m.wg.Done()

	for {
		payload, err := sess.sc.ReadFrame()
		if err != nil {
			select {
			case <-m.closeCh:
			default:
				if m.log != nil {
					m.log.Infof("channel to %q closed: %v", sess.peer.Name, err)
				}
			}
			m.endSession(sess)
			return
		}

		if handler := m.config.OnMessage; handler != nil {
			handler(sess.peer, payload)
		}
	}
}

// endSession tears down the active session once; late calls for a stale
// session only close its channel.
func (m *Manager) endSession(sess *session) {
	m.mu.Lock()
	if m.sess != sess {
		m.mu.Unlock()
		sess.shutdown()
		return
	}
	m.sess = nil
	m.state = StateNotConnected
	closed := m.closed
	m.mu.Unlock()

	sess.shutdown()

	if !closed {
		m.notifyState(sess.peer, StateNotConnected)
	}
}

// drainLoop reads and discards frames from a non-canonical channel until it
// closes.
func (m *Manager) drainLoop(sc *SecureChannel) {
	defer m.wg.Done()

	for {
		if _, err := sc.ReadFrame(); err != nil {
			sc.Close()
			m.removeExtra(sc)
			return
		}
	}
}

// removeExtra forgets a non-canonical channel once its connection dies, so a
// flappy ignored peer cannot grow the slice for the manager's lifetime.
func (m *Manager) removeExtra(sc *SecureChannel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, other := range m.extra {
		if other == sc {
			m.extra = append(m.extra[:i], m.extra[i+1:]...)
			return
		}
	}
}

func (m *Manager) setState(peer Peer, state State) {
	m.mu.Lock()
	if m.closed || m.state == state {
		m.mu.Unlock()
		return
	}
	m.state = state
	m.mu.Unlock()

	m.notifyState(peer, state)
}

func (m *Manager) notifyState(peer Peer, state State) {
	if handler := m.config.OnConnectionState; handler != nil {
		handler(peer, state)
	}
}

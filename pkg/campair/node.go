// Package campair assembles a complete node: LAN discovery, the encrypted
// messaging channel, the negotiation controller and the WebRTC media session,
// plus the capture watchdog on the camera side.
//
// A pairing is two nodes sharing a pairing code. The camera announces itself
// via DNS-SD, accepts the viewer's connection and initiates the offer/answer
// exchange once connected; the viewer scans, dials and answers. No signaling
// server is involved at any point.
package campair

import (
	"net"
	"sync"

	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"

	"github.com/campair/campair/pkg/discovery"
	"github.com/campair/campair/pkg/media"
	"github.com/campair/campair/pkg/session"
	"github.com/campair/campair/pkg/signal"
	"github.com/campair/campair/pkg/transport"
)

// Config holds configuration for a Node.
type Config struct {
	// Role selects camera or viewer behavior. Required.
	Role Role

	// DeviceName is the human-readable name advertised to the peer.
	DeviceName string

	// InstanceID is this node's stable identity across reconnects. If empty,
	// a random one is generated per run.
	InstanceID string

	// PairingCode is the shared secret both nodes must hold. Required.
	PairingCode string

	// Port is the camera's signaling listen/advertise port
	// (default: discovery.DefaultPort).
	Port int

	// PeerAddr, on a viewer, skips discovery and dials the camera directly.
	PeerAddr string

	// RTPListenAddr is the camera's RTP ingest address
	// (default: media.DefaultRTPListenAddr).
	RTPListenAddr string

	// STUNServers lists optional STUN server URLs; empty is fine on a LAN.
	STUNServers []string

	// VideoMimeType is the outbound track codec (default: H264).
	VideoMimeType string

	// Interfaces restricts discovery to specific network interfaces.
	Interfaces []net.Interface

	// LoggerFactory for creating loggers. If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory

	// Listener, Dial, ServerFactory and MDNSResolver are forwarded to the
	// transport manager; they exist so tests can run a pairing in memory.
	Listener      net.Listener
	Dial          transport.DialFunc
	ServerFactory discovery.MDNSServerFactory
	MDNSResolver  discovery.MDNSResolver
}

// Node is one half of a campair pairing.
type Node struct {
	config Config
	log    logging.LeveledLogger

	media      *media.Session
	source     *media.RTPSource
	monitor    *media.Monitor
	controller *session.Controller
	manager    *transport.Manager

	mu      sync.Mutex
	started bool
	closed  bool
}

// New creates a Node. Nothing touches the network until Start.
func New(config Config) (*Node, error) {
	if !config.Role.IsValid() {
		return nil, ErrInvalidRole
	}
	if config.PairingCode == "" {
		return nil, transport.ErrNoPairingCode
	}
	if config.DeviceName == "" {
		config.DeviceName = "campair " + config.Role.String()
	}

	n := &Node{config: config}
	if config.LoggerFactory != nil {
		n.log = config.LoggerFactory.NewLogger("campair")
	}

	mediaSession, err := media.NewSession(media.SessionConfig{
		STUNServers:   config.STUNServers,
		VideoMimeType: config.VideoMimeType,
		LoggerFactory: config.LoggerFactory,
	})
	if err != nil {
		return nil, err
	}
	n.media = mediaSession

	if config.Role == RoleCamera {
		track, err := mediaSession.AddVideoTrack(config.VideoMimeType)
		if err != nil {
			mediaSession.Close()
			return nil, err
		}
		source, err := media.NewRTPSource(media.RTPSourceConfig{
			ListenAddr:    config.RTPListenAddr,
			Track:         track,
			LoggerFactory: config.LoggerFactory,
		})
		if err != nil {
			mediaSession.Close()
			return nil, err
		}
		n.source = source
	}

	controller, err := session.NewController(session.ControllerConfig{
		Role:          n.negotiationRole(),
		Media:         mediaSession,
		Send:          n.sendSignal,
		LoggerFactory: config.LoggerFactory,
	})
	if err != nil {
		n.teardown()
		return nil, err
	}
	n.controller = controller

	manager, err := transport.NewManager(transport.ManagerConfig{
		Role:              n.discoveryRole(),
		InstanceID:        config.InstanceID,
		DeviceName:        config.DeviceName,
		PairingCode:       config.PairingCode,
		Port:              config.Port,
		PeerAddr:          config.PeerAddr,
		Interfaces:        config.Interfaces,
		Listener:          config.Listener,
		Dial:              config.Dial,
		ServerFactory:     config.ServerFactory,
		MDNSResolver:      config.MDNSResolver,
		OnMessage:         n.handleMessage,
		OnConnectionState: n.handleConnectionState,
		LoggerFactory:     config.LoggerFactory,
	})
	if err != nil {
		n.teardown()
		return nil, err
	}
	n.manager = manager

	if config.Role == RoleCamera {
		monitor, err := media.NewMonitor(media.MonitorConfig{
			Capture:       n.source,
			Negotiator:    controller,
			LoggerFactory: config.LoggerFactory,
		})
		if err != nil {
			n.teardown()
			return nil, err
		}
		n.monitor = monitor
	}

	return n, nil
}

// Start brings the node up: capture and watchdog on the camera, then
// discovery and the messaging channel.
func (n *Node) Start() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return ErrClosed
	}
	if n.started {
		n.mu.Unlock()
		return ErrAlreadyStarted
	}
	n.started = true
	n.mu.Unlock()

	if n.source != nil {
		if err := n.source.Start(); err != nil {
			return err
		}
	}
	if n.monitor != nil {
		if err := n.monitor.Start(); err != nil {
			return err
		}
	}
	if err := n.manager.Start(); err != nil {
		return err
	}

	if n.log != nil {
		n.log.Infof("%s %q started", n.config.Role, n.config.DeviceName)
	}
	return nil
}

// Close tears the node down in reverse start order.
func (n *Node) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return ErrClosed
	}
	n.closed = true
	n.mu.Unlock()

	n.manager.Close()
	if n.monitor != nil {
		n.monitor.Close()
	}
	if n.source != nil {
		n.source.Stop()
	}
	n.controller.Close()
	n.media.Close()
	return nil
}

// OnTrack registers a handler for the inbound video track (viewer side).
// Must be called before Start.
func (n *Node) OnTrack(handler func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	n.media.OnTrack(handler)
}

// ConnectionState returns the messaging channel state.
func (n *Node) ConnectionState() transport.State {
	return n.manager.State()
}

// NegotiationState returns the controller state.
func (n *Node) NegotiationState() session.NegotiationState {
	return n.controller.State()
}

// Peer returns the connected peer, or nil.
func (n *Node) Peer() *transport.Peer {
	return n.manager.CanonicalPeer()
}

// RTPIngestAddr returns the camera's bound RTP ingest address, or nil.
func (n *Node) RTPIngestAddr() net.Addr {
	if n.source == nil {
		return nil
	}
	return n.source.Addr()
}

func (n *Node) negotiationRole() session.Role {
	if n.config.Role == RoleCamera {
		return session.RoleInitiator
	}
	return session.RoleResponder
}

func (n *Node) discoveryRole() discovery.Role {
	if n.config.Role == RoleCamera {
		return discovery.RoleAnnouncing
	}
	return discovery.RoleScanning
}

// sendSignal encodes a signaling message onto the messaging channel. The
// channel buffers anything sent before a peer connects.
func (n *Node) sendSignal(msg *signal.Message) {
	payload, err := msg.Encode()
	if err != nil {
		if n.log != nil {
			n.log.Errorf("encoding %s failed: %v", msg.Type, err)
		}
		return
	}
	n.manager.Send(payload)
}

func (n *Node) handleMessage(_ transport.Peer, payload []byte) {
	n.controller.HandleMessage(payload)
}

func (n *Node) handleConnectionState(peer transport.Peer, state transport.State) {
	if n.log != nil {
		n.log.Infof("peer %q: %s", peer.Name, state)
	}

	switch state {
	case transport.StateConnected:
		if n.config.Role == RoleCamera {
			n.controller.CreateOffer()
		}
	case transport.StateNotConnected:
		// Drop all negotiation state; a reconnect starts a fresh epoch.
		n.controller.Reset()
	}
}

// teardown releases whatever New managed to build before failing.
func (n *Node) teardown() {
	if n.controller != nil {
		n.controller.Close()
	}
	if n.media != nil {
		n.media.Close()
	}
}

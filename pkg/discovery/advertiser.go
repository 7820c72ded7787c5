package discovery

import (
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/grandcat/zeroconf"
	"github.com/pion/logging"
)

// MDNSServer is the interface for an active mDNS service registration.
// This allows for dependency injection in tests.
type MDNSServer interface {
	// Shutdown stops the server.
	Shutdown()
}

// MDNSServerFactory creates MDNSServer instances.
type MDNSServerFactory interface {
	// Register creates a new mDNS server for the given service.
	Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error)
}

// zeroconfServerFactory is the production implementation using grandcat/zeroconf.
type zeroconfServerFactory struct{}

func (z *zeroconfServerFactory) Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error) {
	return zeroconf.Register(instance, service, domain, port, txt, ifaces)
}

// AdvertiserConfig holds configuration for the Advertiser.
type AdvertiserConfig struct {
	// InstanceID uniquely identifies this peer. If empty, a random UUID is used.
	InstanceID string

	// DeviceName is the human-readable name published in the TXT record.
	// Required, max 32 characters.
	DeviceName string

	// Port is the signaling port to advertise (default: DefaultPort).
	Port int

	// Interfaces specifies which network interfaces to advertise on.
	// If nil, all multicast-capable interfaces are used.
	Interfaces []net.Interface

	// ServerFactory is the factory for creating mDNS servers (for testing).
	// If nil, the default zeroconf factory is used.
	ServerFactory MDNSServerFactory

	// LoggerFactory for creating loggers. If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Advertiser publishes this node's campair service to the local network.
// Registration is continuous: the underlying mDNS responder answers queries
// until Stop or Close is called.
type Advertiser struct {
	config  AdvertiserConfig
	factory MDNSServerFactory
	log     logging.LeveledLogger

	mu     sync.Mutex
	server MDNSServer
	closed bool
}

// NewAdvertiser creates a new Advertiser with the given configuration.
func NewAdvertiser(config AdvertiserConfig) (*Advertiser, error) {
	if config.DeviceName == "" || len(config.DeviceName) > 32 {
		return nil, ErrInvalidDeviceName
	}
	if config.Port == 0 {
		config.Port = DefaultPort
	}
	if config.Port < 0 || config.Port > 65535 {
		return nil, ErrInvalidPort
	}
	if config.InstanceID == "" {
		config.InstanceID = uuid.NewString()
	}

	factory := config.ServerFactory
	if factory == nil {
		factory = &zeroconfServerFactory{}
	}

	a := &Advertiser{
		config:  config,
		factory: factory,
	}

	if config.LoggerFactory != nil {
		a.log = config.LoggerFactory.NewLogger("discovery")
	}

	return a, nil
}

// InstanceID returns the advertised peer instance ID.
func (a *Advertiser) InstanceID() string {
	return a.config.InstanceID
}

// Start begins advertising. It returns once the registration is active.
func (a *Advertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	if a.server != nil {
		return ErrAlreadyStarted
	}

	txt := encodeTXT(PeerInfo{
		ID:      a.config.InstanceID,
		Name:    a.config.DeviceName,
		Version: ProtocolVersion,
	})

	server, err := a.factory.Register(
		instanceName(a.config.DeviceName, a.config.InstanceID),
		Service,
		DefaultDomain,
		a.config.Port,
		txt,
		a.config.Interfaces,
	)
	if err != nil {
		return err
	}

	if a.log != nil {
		a.log.Infof("advertising %s on port %d (id=%s)", Service, a.config.Port, a.config.InstanceID)
	}

	a.server = server
	return nil
}

// Stop withdraws the advertisement. The Advertiser can be started again.
func (a *Advertiser) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server == nil {
		return ErrNotStarted
	}

	a.server.Shutdown()
	a.server = nil
	return nil
}

// Close withdraws the advertisement and releases the Advertiser.
func (a *Advertiser) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	a.closed = true

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
	return nil
}

// instanceName builds the DNS-SD instance name. The ID suffix keeps two
// devices with the same user-visible name distinguishable.
func instanceName(deviceName, id string) string {
	suffix := id
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return deviceName + " (" + suffix + ")"
}

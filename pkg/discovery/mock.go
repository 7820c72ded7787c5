package discovery

import (
	"context"
	"net"
	"sync"

	"github.com/grandcat/zeroconf"
)

// MockMDNSResolver provides a mock mDNS resolver for testing without real
// network I/O. It allows registering services and simulating discovery
// responses.
type MockMDNSResolver struct {
	mu      sync.RWMutex
	entries []*zeroconf.ServiceEntry
}

// NewMockMDNSResolver creates a new mock resolver.
func NewMockMDNSResolver() *MockMDNSResolver {
	return &MockMDNSResolver{}
}

// AddEntry registers an entry that will be returned by Browse.
func (m *MockMDNSResolver) AddEntry(entry *zeroconf.ServiceEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
}

// ClearEntries removes all registered entries.
func (m *MockMDNSResolver) ClearEntries() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
}

// Browse implements MDNSResolver with the same contract as grandcat/zeroconf:
// it returns once the query is running, delivers entries from a background
// goroutine, and closes the entries channel when ctx expires. The caller must
// not close the channel.
func (m *MockMDNSResolver) Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	m.mu.RLock()
	snapshot := make([]*zeroconf.ServiceEntry, len(m.entries))
	copy(snapshot, m.entries)
	m.mu.RUnlock()

	go func() {
		defer close(entries)
		for _, entry := range snapshot {
			select {
			case entries <- entry:
			case <-ctx.Done():
				return
			}
		}
		<-ctx.Done()
	}()
	return nil
}

// MockEntry builds a zeroconf.ServiceEntry for a campair peer, the way the
// production advertiser would publish it.
func MockEntry(info PeerInfo, ip net.IP, port int) *zeroconf.ServiceEntry {
	entry := &zeroconf.ServiceEntry{
		HostName: info.Name + ".local.",
		Port:     port,
		Text:     encodeTXT(info),
	}
	entry.Instance = instanceName(info.Name, info.ID)
	entry.Service = Service
	entry.Domain = DefaultDomain

	if ip4 := ip.To4(); ip4 != nil {
		entry.AddrIPv4 = []net.IP{ip4}
	} else if ip != nil {
		entry.AddrIPv6 = []net.IP{ip}
	}
	return entry
}

// MockMDNSServerFactory records registrations instead of touching the network.
type MockMDNSServerFactory struct {
	mu      sync.Mutex
	servers []*MockMDNSServer

	// RegisterErr, if set, is returned by Register.
	RegisterErr error
}

// NewMockMDNSServerFactory creates a new mock server factory.
func NewMockMDNSServerFactory() *MockMDNSServerFactory {
	return &MockMDNSServerFactory{}
}

// Register implements MDNSServerFactory.
func (f *MockMDNSServerFactory) Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error) {
	if f.RegisterErr != nil {
		return nil, f.RegisterErr
	}

	s := &MockMDNSServer{
		Instance: instance,
		Service:  service,
		Domain:   domain,
		Port:     port,
		TXT:      txt,
	}

	f.mu.Lock()
	f.servers = append(f.servers, s)
	f.mu.Unlock()

	return s, nil
}

// Servers returns all registrations made through the factory.
func (f *MockMDNSServerFactory) Servers() []*MockMDNSServer {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*MockMDNSServer, len(f.servers))
	copy(out, f.servers)
	return out
}

// MockMDNSServer is a recorded registration.
type MockMDNSServer struct {
	Instance string
	Service  string
	Domain   string
	Port     int
	TXT      []string

	mu       sync.Mutex
	shutdown bool
}

// Shutdown implements MDNSServer.
func (s *MockMDNSServer) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdown = true
}

// IsShutdown reports whether Shutdown was called.
func (s *MockMDNSServer) IsShutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown
}

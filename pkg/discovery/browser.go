package discovery

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/pion/logging"
)

// DefaultRoundTimeout bounds a single browse round. Browsing itself is
// unbounded: rounds repeat until the context is cancelled.
const DefaultRoundTimeout = 5 * time.Second

// ResolvedPeer describes a discovered campair peer.
type ResolvedPeer struct {
	// Info is the identity parsed from the peer's TXT record.
	Info PeerInfo

	// InstanceName is the DNS-SD instance name.
	InstanceName string

	// HostName is the target host name.
	HostName string

	// Port is the peer's signaling port.
	Port int

	// IPs contains the resolved IP addresses, sorted by preference.
	IPs []net.IP
}

// PreferredIP returns the most preferred IP address.
// Returns nil if no addresses are available.
func (r *ResolvedPeer) PreferredIP() net.IP {
	if len(r.IPs) > 0 {
		return r.IPs[0]
	}
	return nil
}

// Addr returns the "host:port" dial address for the preferred IP,
// or "" if the peer resolved without addresses.
func (r *ResolvedPeer) Addr() string {
	ip := r.PreferredIP()
	if ip == nil {
		return ""
	}
	return net.JoinHostPort(ip.String(), strconv.Itoa(r.Port))
}

// MDNSResolver is the interface for mDNS service resolution.
// This allows for dependency injection in tests.
type MDNSResolver interface {
	// Browse browses for services of the given type.
	Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

// zeroconfResolver is the production implementation using grandcat/zeroconf.
type zeroconfResolver struct {
	resolver *zeroconf.Resolver
}

func newZeroconfResolver() (*zeroconfResolver, error) {
	r, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, err
	}
	return &zeroconfResolver{resolver: r}, nil
}

func (z *zeroconfResolver) Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	return z.resolver.Browse(ctx, service, domain, entries)
}

// BrowserConfig holds configuration for the Browser.
type BrowserConfig struct {
	// MDNSResolver is the underlying mDNS resolver implementation (for testing).
	// If nil, the default zeroconf resolver is used.
	MDNSResolver MDNSResolver

	// RoundTimeout bounds a single browse round.
	// If zero, DefaultRoundTimeout is used.
	RoundTimeout time.Duration

	// IgnoreID filters out a peer instance ID (typically our own) from results.
	IgnoreID string

	// LoggerFactory for creating loggers. If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Browser discovers campair peers via DNS-SD, retrying indefinitely.
type Browser struct {
	config   BrowserConfig
	resolver MDNSResolver
	log      logging.LeveledLogger
}

// NewBrowser creates a new Browser with the given configuration.
func NewBrowser(config BrowserConfig) (*Browser, error) {
	resolver := config.MDNSResolver
	if resolver == nil {
		zr, err := newZeroconfResolver()
		if err != nil {
			return nil, err
		}
		resolver = zr
	}
	if config.RoundTimeout == 0 {
		config.RoundTimeout = DefaultRoundTimeout
	}

	b := &Browser{
		config:   config,
		resolver: resolver,
	}
	if config.LoggerFactory != nil {
		b.log = config.LoggerFactory.NewLogger("discovery")
	}
	return b, nil
}

// Browse searches for campair peers until ctx is cancelled. Every sighting is
// delivered on the returned channel; the caller decides which peer to treat as
// canonical. The channel is closed when ctx is done.
func (b *Browser) Browse(ctx context.Context) (<-chan ResolvedPeer, error) {
	results := make(chan ResolvedPeer)

	go func() {
		defer close(results)

		for {
			b.browseRound(ctx, results)

			select {
			case <-ctx.Done():
				return
			default:
			}
		}
	}()

	return results, nil
}

// browseRound performs one bounded browse pass and forwards matching entries.
// The resolver returns once the query is running and closes the entries
// channel itself when the round context expires; closing it here too would
// race the resolver.
func (b *Browser) browseRound(ctx context.Context, results chan<- ResolvedPeer) {
	roundCtx, cancel := context.WithTimeout(ctx, b.config.RoundTimeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)

	if err := b.resolver.Browse(roundCtx, Service, DefaultDomain, entries); err != nil {
		if b.log != nil {
			b.log.Warnf("browse round failed: %v", err)
		}
		// Round failures are non-fatal: sit out the rest of the round so a
		// persistent failure cannot spin, then retry.
		<-roundCtx.Done()
		return
	}

	for entry := range entries {
		peer, err := entryToResolvedPeer(entry)
		if err != nil {
			if b.log != nil {
				b.log.Debugf("ignoring entry %q: %v", entry.Instance, err)
			}
			continue
		}
		if peer.Info.ID == b.config.IgnoreID {
			continue
		}
		if peer.Info.Version != ProtocolVersion {
			if b.log != nil {
				b.log.Warnf("ignoring peer %q: %v (theirs=%d ours=%d)",
					peer.Info.Name, ErrVersionMismatch, peer.Info.Version, ProtocolVersion)
			}
			continue
		}

		select {
		case results <- peer:
		case <-ctx.Done():
			return
		}
	}
}

// entryToResolvedPeer converts a zeroconf.ServiceEntry to a ResolvedPeer.
func entryToResolvedPeer(entry *zeroconf.ServiceEntry) (ResolvedPeer, error) {
	info, err := parseTXT(entry.Text)
	if err != nil {
		return ResolvedPeer{}, err
	}

	var ips []net.IP
	ips = append(ips, entry.AddrIPv4...)
	ips = append(ips, entry.AddrIPv6...)

	return ResolvedPeer{
		Info:         info,
		InstanceName: entry.Instance,
		HostName:     entry.HostName,
		Port:         entry.Port,
		IPs:          SortIPsByPreference(ips),
	}, nil
}

package media

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pion/logging"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// DefaultRTPListenAddr is where the external encoder is expected to send RTP.
const DefaultRTPListenAddr = "127.0.0.1:5004"

// rtpReadBufferSize fits any UDP datagram an encoder will emit on loopback.
const rtpReadBufferSize = 1 << 16

// RTPSourceConfig holds configuration for an RTPSource.
type RTPSourceConfig struct {
	// ListenAddr is the UDP address to receive RTP on
	// (default: DefaultRTPListenAddr).
	ListenAddr string

	// Track is the outbound track packets are forwarded to. Required.
	Track *webrtc.TrackLocalStaticRTP

	// LoggerFactory for creating loggers. If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// RTPSource is the camera node's Capture implementation: an external hardware
// encoder sends RTP to a localhost UDP socket and the source forwards each
// packet onto the outbound track. A packet with the RTP marker bit closes a
// frame, which is what LastFrameTime reports.
type RTPSource struct {
	config RTPSourceConfig
	log    logging.LeveledLogger

	mu        sync.Mutex
	conn      *net.UDPConn
	enabled   bool
	state     ReadyState
	lastFrame time.Time

	wg sync.WaitGroup
}

// NewRTPSource creates an RTPSource with the given configuration.
func NewRTPSource(config RTPSourceConfig) (*RTPSource, error) {
	if config.Track == nil {
		return nil, ErrNoTrack
	}
	if config.ListenAddr == "" {
		config.ListenAddr = DefaultRTPListenAddr
	}

	s := &RTPSource{
		config:  config,
		enabled: true,
		state:   ReadyStateEnded,
	}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("media")
	}
	return s, nil
}

// Start implements Capture: binds the ingest socket and begins forwarding.
func (s *RTPSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return ErrAlreadyStarted
	}

	addr, err := net.ResolveUDPAddr("udp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("media: resolve %s: %w", s.config.ListenAddr, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("media: listen %s: %w", s.config.ListenAddr, err)
	}

	s.conn = conn
	s.state = ReadyStateLive

	if s.log != nil {
		s.log.Infof("RTP ingest listening on %s", conn.LocalAddr())
	}

	s.wg.Add(1)
	go s.readLoop(conn)
	return nil
}

// Stop implements Capture: closes the ingest socket. The source can be
// started again.
func (s *RTPSource) Stop() error {
	s.mu.Lock()
	conn := s.conn
	if conn == nil {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.conn = nil
	s.state = ReadyStateEnded
	s.mu.Unlock()

	conn.Close()
	s.wg.Wait()
	return nil
}

// Addr returns the bound ingest address, or nil when stopped.
func (s *RTPSource) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Enabled implements Capture.
func (s *RTPSource) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// SetEnabled implements Capture. While disabled, inbound packets are read and
// discarded so the socket does not back up.
func (s *RTPSource) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
}

// ReadyState implements Capture.
func (s *RTPSource) ReadyState() ReadyState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastFrameTime implements Capture.
func (s *RTPSource) LastFrameTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFrame
}

func (s *RTPSource) readLoop(conn *net.UDPConn) {
	defer s.wg.Done()

	buf := make([]byte, rtpReadBufferSize)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			// Stop closed the socket, or it failed underneath us.
			s.mu.Lock()
			if s.conn == conn {
				s.conn = nil
				s.state = ReadyStateEnded
				if s.log != nil {
					s.log.Warnf("RTP ingest socket failed: %v", err)
				}
			}
			s.mu.Unlock()
			return
		}

		var packet rtp.Packet
		if err := packet.Unmarshal(buf[:n]); err != nil {
			if s.log != nil {
				s.log.Debugf("dropping malformed RTP packet: %v", err)
			}
			continue
		}

		s.mu.Lock()
		enabled := s.enabled
		s.mu.Unlock()
		if !enabled {
			continue
		}

		if err := s.config.Track.WriteRTP(&packet); err != nil {
			if s.log != nil {
				s.log.Warnf("writing RTP to track failed: %v", err)
			}
			continue
		}

		if packet.Marker {
			s.mu.Lock()
			s.lastFrame = time.Now()
			s.mu.Unlock()
		}
	}
}

package media

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/transport/v3/test"
	"github.com/pion/webrtc/v4"
)

func newTestTrack(t *testing.T) *webrtc.TrackLocalStaticRTP {
	t.Helper()
	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264},
		"video", "campair",
	)
	if err != nil {
		t.Fatalf("NewTrackLocalStaticRTP() failed: %v", err)
	}
	return track
}

func startSource(t *testing.T) (*RTPSource, *net.UDPConn) {
	t.Helper()

	source, err := NewRTPSource(RTPSourceConfig{
		ListenAddr: "127.0.0.1:0",
		Track:      newTestTrack(t),
	})
	if err != nil {
		t.Fatalf("NewRTPSource() failed: %v", err)
	}
	if err := source.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	t.Cleanup(func() { source.Stop() })

	sender, err := net.DialUDP("udp", nil, source.Addr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("DialUDP() failed: %v", err)
	}
	t.Cleanup(func() { sender.Close() })

	return source, sender
}

func sendPacket(t *testing.T, sender *net.UDPConn, seq uint16, marker bool) {
	t.Helper()
	packet := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         marker,
			PayloadType:    96,
			SequenceNumber: seq,
			Timestamp:      uint32(seq) * 3000,
			SSRC:           0x1234,
		},
		Payload: []byte{0x00, 0x01, 0x02},
	}
	data, err := packet.Marshal()
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}
	if _, err := sender.Write(data); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
}

func TestRTPSourceRecordsFrameArrival(t *testing.T) {
	lim := test.TimeOut(10 * time.Second)
	defer lim.Stop()

	source, sender := startSource(t)

	if source.ReadyState() != ReadyStateLive {
		t.Fatalf("ReadyState() = %s, want Live", source.ReadyState())
	}
	if !source.LastFrameTime().IsZero() {
		t.Fatal("LastFrameTime() non-zero before any packet")
	}

	// Mid-frame packets do not close a frame; the marker does.
	sendPacket(t, sender, 1, false)
	time.Sleep(50 * time.Millisecond)
	if !source.LastFrameTime().IsZero() {
		t.Fatal("LastFrameTime() set by a packet without the marker bit")
	}

	sendPacket(t, sender, 2, true)
	deadline := time.Now().Add(2 * time.Second)
	for source.LastFrameTime().IsZero() {
		if !time.Now().Before(deadline) {
			t.Fatal("LastFrameTime() not set after marker packet")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRTPSourceDisabledDropsFrames(t *testing.T) {
	lim := test.TimeOut(10 * time.Second)
	defer lim.Stop()

	source, sender := startSource(t)

	source.SetEnabled(false)
	if source.Enabled() {
		t.Fatal("Enabled() = true after SetEnabled(false)")
	}

	sendPacket(t, sender, 1, true)
	time.Sleep(100 * time.Millisecond)
	if !source.LastFrameTime().IsZero() {
		t.Fatal("LastFrameTime() advanced while disabled")
	}

	source.SetEnabled(true)
	sendPacket(t, sender, 2, true)
	deadline := time.Now().Add(2 * time.Second)
	for source.LastFrameTime().IsZero() {
		if !time.Now().Before(deadline) {
			t.Fatal("LastFrameTime() not set after re-enable")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRTPSourceRestart(t *testing.T) {
	lim := test.TimeOut(10 * time.Second)
	defer lim.Stop()

	source, err := NewRTPSource(RTPSourceConfig{
		ListenAddr: "127.0.0.1:0",
		Track:      newTestTrack(t),
	})
	if err != nil {
		t.Fatalf("NewRTPSource() failed: %v", err)
	}

	if err := source.Stop(); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Stop() before Start error = %v, want ErrNotStarted", err)
	}

	if err := source.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if err := source.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() error = %v, want ErrAlreadyStarted", err)
	}

	if err := source.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if source.ReadyState() != ReadyStateEnded {
		t.Errorf("ReadyState() after Stop = %s, want Ended", source.ReadyState())
	}

	// Stopped sources restart cleanly; this is the recovery path.
	if err := source.Start(); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	if source.ReadyState() != ReadyStateLive {
		t.Errorf("ReadyState() after restart = %s, want Live", source.ReadyState())
	}
	source.Stop()
}

func TestNewRTPSourceRequiresTrack(t *testing.T) {
	if _, err := NewRTPSource(RTPSourceConfig{}); !errors.Is(err, ErrNoTrack) {
		t.Errorf("NewRTPSource without track: error = %v, want ErrNoTrack", err)
	}
}

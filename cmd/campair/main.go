// campair runs one half of a serverless LAN camera pairing.
//
// A camera node advertises itself via DNS-SD, accepts the viewer's encrypted
// signaling connection and streams the video it receives as RTP on a local
// ingest socket. A viewer node scans the LAN for the camera, connects and
// receives the video track. Both sides must be started with the same pairing
// code; nothing else is shared in advance and no server is involved.
//
// Usage:
//
//	campair -role camera -code 314159 [-name "Porch Camera"] [-rtp 127.0.0.1:5004]
//	campair -role viewer -code 314159 [-peer 192.168.1.20:47200]
//
// Options:
//
//	-role  camera or viewer (required)
//	-code  shared pairing code (required)
//	-name  device name shown to the peer
//	-port  camera signaling port (default: 47200)
//	-peer  viewer: dial this address instead of scanning
//	-rtp   camera: RTP ingest listen address (default: 127.0.0.1:5004)
//	-stun  comma-separated STUN URLs (optional; LAN works without)
//	-v     debug logging
package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"

	"github.com/campair/campair/pkg/campair"
	"github.com/campair/campair/pkg/media"
)

type options struct {
	role    string
	name    string
	code    string
	port    int
	peer    string
	rtp     string
	stun    string
	verbose bool
}

func parseFlags() options {
	var o options
	flag.StringVar(&o.role, "role", "", "node role: camera or viewer")
	flag.StringVar(&o.name, "name", "", "device name shown to the peer")
	flag.StringVar(&o.code, "code", "", "shared pairing code")
	flag.IntVar(&o.port, "port", 0, "camera signaling port (default: 47200)")
	flag.StringVar(&o.peer, "peer", "", "viewer: dial this address instead of scanning")
	flag.StringVar(&o.rtp, "rtp", media.DefaultRTPListenAddr, "camera: RTP ingest listen address")
	flag.StringVar(&o.stun, "stun", "", "comma-separated STUN server URLs")
	flag.BoolVar(&o.verbose, "v", false, "debug logging")
	flag.Parse()
	return o
}

func main() {
	o := parseFlags()

	role := campair.ParseRole(o.role)
	if !role.IsValid() {
		log.Fatalf("-role must be camera or viewer")
	}
	if o.code == "" {
		log.Fatalf("-code is required; both nodes must share it")
	}

	loggerFactory := logging.NewDefaultLoggerFactory()
	if o.verbose {
		loggerFactory.DefaultLogLevel = logging.LogLevelDebug
	} else {
		loggerFactory.DefaultLogLevel = logging.LogLevelInfo
	}

	var stunServers []string
	if o.stun != "" {
		stunServers = strings.Split(o.stun, ",")
	}

	node, err := campair.New(campair.Config{
		Role:          role,
		DeviceName:    o.name,
		PairingCode:   o.code,
		Port:          o.port,
		PeerAddr:      o.peer,
		RTPListenAddr: o.rtp,
		STUNServers:   stunServers,
		LoggerFactory: loggerFactory,
	})
	if err != nil {
		log.Fatalf("creating node: %v", err)
	}

	if role == campair.RoleViewer {
		nodeLog := loggerFactory.NewLogger("campair")
		node.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
			nodeLog.Infof("receiving %s track %s", track.Codec().MimeType, track.ID())
			go drainTrack(nodeLog, track)
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := node.Start(); err != nil {
		log.Fatalf("starting node: %v", err)
	}

	if role == campair.RoleCamera {
		log.Printf("camera ready; send RTP to %v", node.RTPIngestAddr())
	}

	<-ctx.Done()
	log.Println("shutting down")
	if err := node.Close(); err != nil {
		log.Printf("close: %v", err)
	}
}

// drainTrack keeps the inbound track's RTP flowing. Rendering is out of
// scope for the CLI; consumers embed pkg/campair and attach their own sink.
func drainTrack(log logging.LeveledLogger, track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := track.Read(buf); err != nil {
			if err != io.EOF {
				log.Warnf("track read ended: %v", err)
			}
			return
		}
	}
}
